package server

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/blackjackd/internal/deck"
	"github.com/lox/blackjackd/internal/game"
)

// fakeSender records every message the room service pushes, keyed by player
// identity.
type fakeSender struct {
	mu   sync.Mutex
	msgs map[string][]*Message
}

func newFakeSender() *fakeSender {
	return &fakeSender{msgs: make(map[string][]*Message)}
}

func (f *fakeSender) SendToPlayer(playerID string, msg *Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs[playerID] = append(f.msgs[playerID], msg)
	return nil
}

// lastState returns the most recent room snapshot delivered to a player.
func (f *fakeSender) lastState(t *testing.T, playerID string) (RoomStateData, bool) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	msgs := f.msgs[playerID]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type != MessageTypeRoomState {
			continue
		}
		var state RoomStateData
		require.NoError(t, json.Unmarshal(msgs[i].Data, &state))
		return state, true
	}
	return RoomStateData{}, false
}

// testSettings disables deal pacing so the background deal and dealer
// goroutines complete without clock involvement.
func testSettings() Settings {
	s := DefaultSettings()
	s.DealPause = 0
	s.DealerPause = 0
	return s
}

func newService(t *testing.T, clock quartz.Clock) (*RoomService, *fakeSender) {
	t.Helper()
	sender := newFakeSender()
	svc := NewRoomService(sender, log.New(io.Discard), clock, testSettings(), 1)
	return svc, sender
}

func stackShoe(t *testing.T, svc *RoomService, code, cards string) {
	t.Helper()
	h, ok := svc.Registry().Lookup(code)
	require.True(t, ok, "room %s not found", code)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Room.Shoe.Stack(deck.MustParseCards(cards)...)
}

func waitForPhase(t *testing.T, svc *RoomService, code string, phase game.Phase) {
	t.Helper()
	h, ok := svc.Registry().Lookup(code)
	require.True(t, ok, "room %s not found", code)
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.Room.Phase == phase
	}, time.Second, 5*time.Millisecond, "room never reached %s", phase)
}

func roomState(t *testing.T, svc *RoomService, code string) *game.Room {
	t.Helper()
	h, ok := svc.Registry().Lookup(code)
	require.True(t, ok, "room %s not found", code)
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Room
}

// startedRound creates a two-player room with a rigged shoe and drives it into
// the player-turns phase: alice holds 17 and acts first, bob holds 14, the
// dealer holds hard 17.
func startedRound(t *testing.T, svc *RoomService) (code, alice, bob string) {
	t.Helper()
	code, alice, err := svc.CreateRoom("alice")
	require.NoError(t, err)
	bob, err = svc.Join(code, "bob")
	require.NoError(t, err)

	require.NoError(t, svc.StartGame(code, alice))
	stackShoe(t, svc, code, "Ts 5d 7c 7h 9s Th")

	require.NoError(t, svc.PlaceBet(code, alice, 100))
	require.NoError(t, svc.PlaceBet(code, bob, 100))
	waitForPhase(t, svc, code, game.PhasePlayerTurns)
	return code, alice, bob
}

func TestCreateRoomAndJoin(t *testing.T) {
	svc, sender := newService(t, quartz.NewReal())

	code, alice, err := svc.CreateRoom("alice")
	require.NoError(t, err)
	require.Len(t, code, 4)

	bob, err := svc.Join(code, "bob")
	require.NoError(t, err)
	require.NotEqual(t, alice, bob)

	svc.BroadcastRoom(code)

	state, ok := sender.lastState(t, bob)
	require.True(t, ok, "bob never received a snapshot")
	assert.Equal(t, code, state.RoomCode)
	assert.Equal(t, alice, state.HostID)
	assert.Equal(t, "lobby", state.Phase)
	require.Len(t, state.Players, 2)
	assert.Equal(t, 1000, state.Players[0].Chips)
}

func TestJoinFailures(t *testing.T) {
	svc, _ := newService(t, quartz.NewReal())

	_, err := svc.Join("9999", "bob")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	code, alice, err := svc.CreateRoom("alice")
	require.NoError(t, err)
	require.NoError(t, svc.StartGame(code, alice))

	_, err = svc.Join(code, "bob")
	assert.ErrorIs(t, err, game.ErrGameInProgress)
}

func TestBetsTriggerDeal(t *testing.T) {
	svc, sender := newService(t, quartz.NewReal())
	code, alice, bob := startedRound(t, svc)

	state, ok := sender.lastState(t, bob)
	require.True(t, ok)
	assert.Equal(t, "player_turns", state.Phase)
	assert.Equal(t, alice, state.ActivePlayerID)
	require.Len(t, state.Players, 2)
	for _, p := range state.Players {
		require.Len(t, p.Hands, 1)
		assert.Len(t, p.Hands[0].Cards, 2)
	}
	assert.Len(t, state.Dealer.Cards, 2)

	r := roomState(t, svc, code)
	assert.Equal(t, 17, r.Player(alice).Hands[0].Total())
	assert.Equal(t, 14, r.Player(bob).Hands[0].Total())
}

func TestActionsRunRoundToResults(t *testing.T) {
	svc, sender := newService(t, quartz.NewReal())
	code, alice, bob := startedRound(t, svc)

	require.NoError(t, svc.Action(code, alice, "stand", 0))
	require.NoError(t, svc.Action(code, bob, "stand", 0))

	waitForPhase(t, svc, code, game.PhaseResults)

	r := roomState(t, svc, code)
	assert.Equal(t, game.ResultPush, r.Player(alice).Hands[0].Result)
	assert.Equal(t, game.ResultLoss, r.Player(bob).Hands[0].Result)
	assert.Equal(t, 1000, r.Player(alice).Chips)
	assert.Equal(t, 900, r.Player(bob).Chips)

	state, ok := sender.lastState(t, alice)
	require.True(t, ok)
	assert.Equal(t, "results", state.Phase)
}

func TestActionValidationLeavesRoomUntouched(t *testing.T) {
	svc, _ := newService(t, quartz.NewReal())
	code, alice, bob := startedRound(t, svc)

	assert.ErrorIs(t, svc.Action(code, bob, "hit", 0), game.ErrNotYourTurn)
	assert.ErrorIs(t, svc.Action(code, alice, "explode", 0), game.ErrInvalidAction)

	r := roomState(t, svc, code)
	assert.Equal(t, game.PhasePlayerTurns, r.Phase)
	assert.Equal(t, alice, r.ActiveID)
}

func TestBetRejectedWhileDealing(t *testing.T) {
	svc, _ := newService(t, quartz.NewReal())
	code, alice, err := svc.CreateRoom("alice")
	require.NoError(t, err)
	require.NoError(t, svc.StartGame(code, alice))

	h, ok := svc.Registry().Lookup(code)
	require.True(t, ok)
	h.mu.Lock()
	h.dealing = true
	h.mu.Unlock()

	assert.ErrorIs(t, svc.PlaceBet(code, alice, 100), game.ErrWrongPhase)
}

func TestDisconnectAutoStandsActivePlayer(t *testing.T) {
	mockClock := quartz.NewMock(t)
	svc, _ := newService(t, mockClock)
	code, alice, bob := startedRound(t, svc)

	svc.Disconnect(alice)

	r := roomState(t, svc, code)
	require.True(t, r.Player(alice).Disconnected)
	require.Equal(t, alice, r.ActiveID, "turn must not move before the timer fires")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mockClock.Advance(5 * time.Second).MustWait(ctx)

	r = roomState(t, svc, code)
	assert.Equal(t, game.StatusStanding, r.Player(alice).Hands[0].Status)
	assert.Equal(t, bob, r.ActiveID, "turn must pass to bob after the auto-stand")
}

func TestRejoinCancelsDisconnectTimers(t *testing.T) {
	mockClock := quartz.NewMock(t)
	svc, _ := newService(t, mockClock)
	code, alice, _ := startedRound(t, svc)

	svc.Disconnect(alice)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mockClock.Advance(2 * time.Second).MustWait(ctx)

	require.NoError(t, svc.Rejoin(code, alice))

	// Long past both the auto-stand delay and the grace period.
	mockClock.Advance(time.Minute).MustWait(ctx)

	r := roomState(t, svc, code)
	require.NotNil(t, r.Player(alice), "alice must keep her seat after rejoining")
	assert.False(t, r.Player(alice).Disconnected)
	assert.Equal(t, alice, r.ActiveID, "her turn must survive the reconnect")
	assert.Equal(t, game.StatusPlaying, r.Player(alice).Hands[0].Status)
}

func TestGracePeriodRemovesPlayer(t *testing.T) {
	mockClock := quartz.NewMock(t)
	svc, _ := newService(t, mockClock)

	code, alice, err := svc.CreateRoom("alice")
	require.NoError(t, err)
	_, err = svc.Join(code, "bob")
	require.NoError(t, err)

	svc.Disconnect(alice)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mockClock.Advance(45 * time.Second).MustWait(ctx)

	r := roomState(t, svc, code)
	assert.Nil(t, r.Player(alice), "alice's seat must be forfeited")
	assert.NotEqual(t, alice, r.HostID, "host must transfer off the removed player")

	_, ok := svc.Registry().MemberRoom(alice)
	assert.False(t, ok, "alice's identity must be unbound")
}

func TestGracePeriodDestroysEmptyRoom(t *testing.T) {
	mockClock := quartz.NewMock(t)
	svc, _ := newService(t, mockClock)

	code, alice, err := svc.CreateRoom("alice")
	require.NoError(t, err)

	svc.Disconnect(alice)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mockClock.Advance(45 * time.Second).MustWait(ctx)

	assert.Equal(t, 0, svc.Registry().RoomCount())
	assert.ErrorIs(t, svc.Rejoin(code, alice), ErrRoomGone)
}

func TestRejoinRequiresMembership(t *testing.T) {
	svc, _ := newService(t, quartz.NewReal())
	code, _, err := svc.CreateRoom("alice")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Rejoin(code, "not-a-player-id"), ErrNotAMember)
}

func TestLeaveDestroysEmptyRoom(t *testing.T) {
	svc, _ := newService(t, quartz.NewReal())
	code, alice, err := svc.CreateRoom("alice")
	require.NoError(t, err)

	require.NoError(t, svc.Leave(code, alice))

	assert.Equal(t, 0, svc.Registry().RoomCount())
	_, ok := svc.Registry().MemberRoom(alice)
	assert.False(t, ok)
}

func TestNextRoundPurgesDisconnected(t *testing.T) {
	svc, _ := newService(t, quartz.NewReal())
	code, alice, bob := startedRound(t, svc)

	require.NoError(t, svc.Action(code, alice, "stand", 0))
	require.NoError(t, svc.Action(code, bob, "stand", 0))
	waitForPhase(t, svc, code, game.PhaseResults)

	// bob drops during the results screen and never comes back.
	h, ok := svc.Registry().Lookup(code)
	require.True(t, ok)
	h.mu.Lock()
	h.Room.Player(bob).Disconnected = true
	h.mu.Unlock()

	require.NoError(t, svc.NextRound(code, alice))

	r := roomState(t, svc, code)
	assert.Equal(t, game.PhaseBetting, r.Phase)
	assert.Nil(t, r.Player(bob))
	_, stillBound := svc.Registry().MemberRoom(bob)
	assert.False(t, stillBound)
}

func TestRoundOutcomesReachStats(t *testing.T) {
	svc, _ := newService(t, quartz.NewReal())
	code, alice, bob := startedRound(t, svc)

	require.NoError(t, svc.Action(code, alice, "stand", 0))
	require.NoError(t, svc.Action(code, bob, "stand", 0))
	waitForPhase(t, svc, code, game.PhaseResults)

	// Stats recording is fire-and-forget off the room goroutine.
	require.Eventually(t, func() bool {
		totals, ok := svc.Stats().Totals(alice)
		return ok && totals.Hands == 1
	}, time.Second, 5*time.Millisecond)

	totals, _ := svc.Stats().Totals(alice)
	assert.Equal(t, 1, totals.Pushes)
	totals, _ = svc.Stats().Totals(bob)
	assert.Equal(t, 1, totals.Losses)
}

func TestNaturalDealerBlackjackSettlesWithoutTurns(t *testing.T) {
	svc, sender := newService(t, quartz.NewReal())
	code, alice, err := svc.CreateRoom("alice")
	require.NoError(t, err)
	require.NoError(t, svc.StartGame(code, alice))

	// alice: As Kd (natural), dealer: Ah Qc (natural): an immediate push.
	stackShoe(t, svc, code, "As Ah Kd Qc")
	require.NoError(t, svc.PlaceBet(code, alice, 100))
	waitForPhase(t, svc, code, game.PhaseResults)

	r := roomState(t, svc, code)
	assert.Equal(t, game.ResultPush, r.Player(alice).Hands[0].Result)
	assert.Equal(t, 1000, r.Player(alice).Chips)

	state, ok := sender.lastState(t, alice)
	require.True(t, ok)
	assert.Equal(t, "results", state.Phase)
	assert.Empty(t, state.ActivePlayerID)
}

func TestBroadcastSkipsDisconnectedMembers(t *testing.T) {
	svc, sender := newService(t, quartz.NewMock(t))
	code, _, err := svc.CreateRoom("alice")
	require.NoError(t, err)
	bob, err := svc.Join(code, "bob")
	require.NoError(t, err)

	svc.Disconnect(bob)

	sender.mu.Lock()
	bobCount := len(sender.msgs[bob])
	sender.mu.Unlock()

	svc.BroadcastRoom(code)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Equal(t, bobCount, len(sender.msgs[bob]), "disconnected members receive no snapshots")
}
