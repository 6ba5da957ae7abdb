package game

import "github.com/lox/blackjackd/internal/deck"

// HandStatus represents the lifecycle state of a single hand
type HandStatus int

const (
	StatusPlaying HandStatus = iota
	StatusStanding
	StatusBusted
	StatusBlackjack
	StatusDoubled
)

// String returns the string representation of a hand status
func (hs HandStatus) String() string {
	switch hs {
	case StatusPlaying:
		return "playing"
	case StatusStanding:
		return "standing"
	case StatusBusted:
		return "busted"
	case StatusBlackjack:
		return "blackjack"
	case StatusDoubled:
		return "doubled"
	default:
		return "unknown"
	}
}

// HandResult is the settlement outcome of a hand. ResultNone means the hand
// has not been settled yet.
type HandResult int

const (
	ResultNone HandResult = iota
	ResultWin
	ResultLoss
	ResultPush
)

// String returns the string representation of a hand result
func (hr HandResult) String() string {
	switch hr {
	case ResultWin:
		return "win"
	case ResultLoss:
		return "loss"
	case ResultPush:
		return "push"
	default:
		return ""
	}
}

// Hand holds the cards and wager for one seat position. A player may hold up
// to four hands after splits; the dealer holds exactly one.
type Hand struct {
	Cards  []deck.Card
	Wager  int
	Status HandStatus
	Result HandResult
}

// NewHand creates an empty hand carrying the given wager.
func NewHand(wager int) *Hand {
	return &Hand{Wager: wager}
}

// Value returns the hand total and whether the hand is soft. Aces count as 11
// until the total exceeds 21, then drop to 1 one at a time. Soft means at
// least one ace still counts as 11 after adjustment. Busted hands keep their
// true total; nothing is ever clamped to 21.
func (h *Hand) Value() (total int, soft bool) {
	aces := 0
	for _, c := range h.Cards {
		total += c.Value()
		if c.IsAce() {
			aces++
		}
	}
	for total > 21 && aces > 0 {
		total -= 10
		aces--
	}
	return total, aces > 0
}

// Total returns just the hand total.
func (h *Hand) Total() int {
	total, _ := h.Value()
	return total
}

// IsBlackjack returns true for a two-card 21.
func (h *Hand) IsBlackjack() bool {
	return len(h.Cards) == 2 && h.Total() == 21
}

// IsPair returns true iff the hand is exactly two cards of equal rank. Rank
// equality, not value equality: K-T is twenty but not a pair.
func (h *Hand) IsPair() bool {
	return len(h.Cards) == 2 && h.Cards[0].Rank == h.Cards[1].Rank
}

// Settled returns true once the hand carries a result.
func (h *Hand) Settled() bool {
	return h.Result != ResultNone
}

// Live reports whether the hand still contends against the dealer: it stood
// or doubled without busting. Busted hands and naturals are already decided.
func (h *Hand) Live() bool {
	return h.Status == StatusStanding || h.Status == StatusDoubled
}
