package stats

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
)

func TestCollectorAggregatesAcrossRounds(t *testing.T) {
	c := NewCollector(log.New(io.Discard))

	c.RecordRound("1234", []HandOutcome{
		{PlayerID: "p1", Name: "alice", Result: "win", Blackjack: true, Wager: 100},
		{PlayerID: "p2", Name: "bob", Result: "loss", Wager: 100},
	})
	c.RecordRound("1234", []HandOutcome{
		{PlayerID: "p1", Name: "alice", Result: "push", Wager: 50},
		// A split round reports one outcome per hand.
		{PlayerID: "p2", Name: "bob", Result: "win", Wager: 100},
		{PlayerID: "p2", Name: "bob", Result: "loss", Wager: 100},
	})

	alice, ok := c.Totals("p1")
	if !ok {
		t.Fatal("expected totals for p1")
	}
	if alice.Hands != 2 || alice.Wins != 1 || alice.Pushes != 1 || alice.Blackjacks != 1 {
		t.Errorf("unexpected totals for alice: %+v", alice)
	}

	bob, ok := c.Totals("p2")
	if !ok {
		t.Fatal("expected totals for p2")
	}
	if bob.Hands != 3 || bob.Wins != 1 || bob.Losses != 2 {
		t.Errorf("unexpected totals for bob: %+v", bob)
	}
}

func TestCollectorUnknownPlayer(t *testing.T) {
	c := NewCollector(log.New(io.Discard))
	if _, ok := c.Totals("nobody"); ok {
		t.Error("expected no totals for an unknown player")
	}
}
