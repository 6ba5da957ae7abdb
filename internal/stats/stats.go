package stats

import (
	"sync"

	"github.com/charmbracelet/log"
)

// HandOutcome is one settled hand as reported by the room engine.
type HandOutcome struct {
	PlayerID  string
	Name      string
	Result    string // win, loss, push
	Blackjack bool
	Wager     int
}

// PlayerTotals aggregates a player's results across rounds.
type PlayerTotals struct {
	Name       string
	Hands      int
	Wins       int
	Losses     int
	Pushes     int
	Blackjacks int
}

// Collector is the downstream statistics sink the room engine reports settled
// rounds into. It is fire-and-forget from the engine's point of view and
// never touches chip balances or game state.
type Collector struct {
	mu     sync.Mutex
	totals map[string]*PlayerTotals
	logger *log.Logger
}

// NewCollector creates an empty collector.
func NewCollector(logger *log.Logger) *Collector {
	return &Collector{
		totals: make(map[string]*PlayerTotals),
		logger: logger.WithPrefix("stats"),
	}
}

// RecordRound folds a settled round into the per-player aggregates.
func (c *Collector) RecordRound(roomCode string, outcomes []HandOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, o := range outcomes {
		t, ok := c.totals[o.PlayerID]
		if !ok {
			t = &PlayerTotals{Name: o.Name}
			c.totals[o.PlayerID] = t
		}
		t.Hands++
		switch o.Result {
		case "win":
			t.Wins++
		case "loss":
			t.Losses++
		case "push":
			t.Pushes++
		}
		if o.Blackjack {
			t.Blackjacks++
		}
	}
	c.logger.Debug("Recorded round", "room", roomCode, "hands", len(outcomes))
}

// Totals returns a copy of the aggregates for one player.
func (c *Collector) Totals(playerID string) (PlayerTotals, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.totals[playerID]
	if !ok {
		return PlayerTotals{}, false
	}
	return *t, true
}
