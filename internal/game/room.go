package game

import (
	"errors"
	rand "math/rand/v2"

	"github.com/lox/blackjackd/internal/deck"
)

var (
	ErrGameInProgress = errors.New("game already in progress")
	ErrRoomFull       = errors.New("room is full")
	ErrAlreadySeated  = errors.New("player already seated in room")
	ErrNotHost        = errors.New("only the host may do that")
	ErrWrongPhase     = errors.New("invalid action for current phase")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrUnknownPlayer  = errors.New("player not in room")
	ErrInvalidBet     = errors.New("invalid bet amount")
	ErrInvalidAction  = errors.New("invalid action for hand")
	ErrNoPlayers      = errors.New("room has no players")
)

// Phase represents the room's position in the round lifecycle
type Phase int

const (
	PhaseLobby Phase = iota
	PhaseBetting
	PhasePlayerTurns
	PhaseDealerTurn
	PhaseResults
)

// String returns the string representation of a phase
func (p Phase) String() string {
	switch p {
	case PhaseLobby:
		return "lobby"
	case PhaseBetting:
		return "betting"
	case PhasePlayerTurns:
		return "player_turns"
	case PhaseDealerTurn:
		return "dealer_turn"
	case PhaseResults:
		return "results"
	default:
		return "unknown"
	}
}

// Room holds the authoritative state for one table: roster (in join order,
// which is also turn order and deal order), shoe, dealer hand, phase, and the
// active-turn pointer. Room is not safe for concurrent use; the server layer
// serializes access.
type Room struct {
	Code     string
	HostID   string
	Phase    Phase
	Players  []*Player
	Shoe     *deck.Shoe
	Dealer   *Hand
	ActiveID string

	maxSeats int
}

// NewRoom creates a room in the lobby phase with a freshly shuffled shoe.
func NewRoom(code string, rng *rand.Rand, maxSeats int) *Room {
	return &Room{
		Code:     code,
		Phase:    PhaseLobby,
		Shoe:     deck.NewShoe(rng, deck.DecksPerShoe),
		Dealer:   &Hand{},
		maxSeats: maxSeats,
	}
}

// Player returns the seated player with the given ID, or nil.
func (r *Room) Player(id string) *Player {
	for _, p := range r.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Seat adds a player to the roster. Joining is only possible while the room
// is still in the lobby. The first player to sit becomes host.
func (r *Room) Seat(p *Player) error {
	if r.Phase != PhaseLobby {
		return ErrGameInProgress
	}
	if len(r.Players) >= r.maxSeats {
		return ErrRoomFull
	}
	if r.Player(p.ID) != nil {
		return ErrAlreadySeated
	}

	r.Players = append(r.Players, p)
	if r.HostID == "" {
		r.HostID = p.ID
	}
	return nil
}

// StartGame moves the room from lobby to betting. Host only. A started game
// never returns to the lobby.
func (r *Room) StartGame(callerID string) error {
	if callerID != r.HostID {
		return ErrNotHost
	}
	if r.Phase != PhaseLobby {
		return ErrWrongPhase
	}
	if len(r.Players) == 0 {
		return ErrNoPlayers
	}

	for _, p := range r.Players {
		p.ResetForRound()
	}
	r.Phase = PhaseBetting
	return nil
}

// PlaceBet validates and records a bet, deducting it from the player's chips
// immediately. Bets are accepted once per player per round.
func (r *Room) PlaceBet(playerID string, amount int) error {
	if r.Phase != PhaseBetting {
		return ErrWrongPhase
	}
	p := r.Player(playerID)
	if p == nil {
		return ErrUnknownPlayer
	}
	if p.HasBet {
		return ErrWrongPhase
	}
	if amount <= 0 || amount > p.Chips {
		return ErrInvalidBet
	}

	p.Chips -= amount
	p.Bet = amount
	p.HasBet = true
	return nil
}

// AllBetsIn returns true once every connected player has bet and at least one
// bet is down. Disconnected players do not hold up the round.
func (r *Room) AllBetsIn() bool {
	if r.Phase != PhaseBetting {
		return false
	}
	bets := 0
	for _, p := range r.Players {
		if p.Disconnected {
			continue
		}
		if !p.HasBet {
			return false
		}
		bets++
	}
	return bets > 0
}

// BeginDeal creates a fresh wagered hand for every player that bet and resets
// the dealer hand. Players without a bet sit the round out.
func (r *Room) BeginDeal() {
	r.Dealer = &Hand{}
	for _, p := range r.Players {
		if p.HasBet {
			p.Hands = []*Hand{NewHand(p.Bet)}
		} else {
			p.Hands = nil
			p.Done = true
		}
	}
}

// DealOrder returns the IDs of players receiving cards this round, in roster
// order. The caller deals each of them (then the dealer) twice over.
func (r *Room) DealOrder() []string {
	ids := make([]string, 0, len(r.Players))
	for _, p := range r.Players {
		if p.HasBet {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// DealTo draws one card into the player's first hand. A no-op if the player
// has left the room mid-deal.
func (r *Room) DealTo(playerID string) {
	p := r.Player(playerID)
	if p == nil || len(p.Hands) == 0 {
		return
	}
	p.Hands[0].Cards = append(p.Hands[0].Cards, r.Shoe.Draw())
}

// DealToDealer draws one card into the dealer's hand.
func (r *Room) DealToDealer() {
	r.Dealer.Cards = append(r.Dealer.Cards, r.Shoe.Draw())
}

// ResolveDeal inspects the completed initial deal and picks the next phase:
// results if the dealer has a natural (everything settles immediately, no
// player ever acts), dealer turn if every player hand is already a natural,
// otherwise player turns with the active pointer on the first eligible
// player. Player naturals are flagged and paid out on the spot.
func (r *Room) ResolveDeal() Phase {
	for _, p := range r.Players {
		if len(p.Hands) == 1 && p.Hands[0].IsBlackjack() {
			p.Hands[0].Status = StatusBlackjack
			p.Done = true
		}
	}

	if r.Dealer.IsBlackjack() {
		Settle(r.Dealer, r.Players)
		r.ActiveID = ""
		r.Phase = PhaseResults
		return r.Phase
	}

	// Dealer has no natural, so player naturals win 3:2 right now.
	for _, p := range r.Players {
		for _, h := range p.Hands {
			if h.Status == StatusBlackjack && !h.Settled() {
				h.Result = ResultWin
				p.Chips += h.Wager + h.Wager*3/2
			}
		}
	}

	for _, p := range r.Players {
		if !p.Done && !p.Disconnected {
			r.ActiveID = p.ID
			r.Phase = PhasePlayerTurns
			return r.Phase
		}
	}

	r.standLingering()
	r.ActiveID = ""
	r.Phase = PhaseDealerTurn
	return r.Phase
}

// Hit applies a hit to the active player's hand.
func (r *Room) Hit(playerID string, handIdx int) error {
	h, err := r.playableHand(playerID, handIdx)
	if err != nil {
		return err
	}
	Hit(h, r.Shoe)
	r.advanceFrom(playerID)
	return nil
}

// Stand applies a stand to the active player's hand.
func (r *Room) Stand(playerID string, handIdx int) error {
	h, err := r.playableHand(playerID, handIdx)
	if err != nil {
		return err
	}
	Stand(h)
	r.advanceFrom(playerID)
	return nil
}

// Double applies a double-down to the active player's hand.
func (r *Room) Double(playerID string, handIdx int) error {
	h, err := r.playableHand(playerID, handIdx)
	if err != nil {
		return err
	}
	if !Double(r.Player(playerID), h, r.Shoe) {
		return ErrInvalidAction
	}
	r.advanceFrom(playerID)
	return nil
}

// SplitHand splits the active player's hand.
func (r *Room) SplitHand(playerID string, handIdx int) error {
	if _, err := r.playableHand(playerID, handIdx); err != nil {
		return err
	}
	if !Split(r.Player(playerID), handIdx, r.Shoe) {
		return ErrInvalidAction
	}
	r.advanceFrom(playerID)
	return nil
}

// playableHand validates phase, turn ownership, and hand status for an
// in-round action.
func (r *Room) playableHand(playerID string, handIdx int) (*Hand, error) {
	if r.Phase != PhasePlayerTurns {
		return nil, ErrWrongPhase
	}
	if r.ActiveID != playerID {
		return nil, ErrNotYourTurn
	}
	p := r.Player(playerID)
	if p == nil {
		return nil, ErrUnknownPlayer
	}
	if handIdx < 0 || handIdx >= len(p.Hands) {
		return nil, ErrInvalidAction
	}
	h := p.Hands[handIdx]
	if h.Status != StatusPlaying {
		return nil, ErrInvalidAction
	}
	return h, nil
}

// AutoStand stands every still-playing hand the player owns and advances the
// turn if it was theirs. Driven by the disconnect auto-stand timer.
func (r *Room) AutoStand(playerID string) {
	p := r.Player(playerID)
	if p == nil {
		return
	}
	for _, h := range p.Hands {
		if h.Status == StatusPlaying {
			Stand(h)
		}
	}
	if r.Phase == PhasePlayerTurns && r.ActiveID == playerID {
		r.advanceFrom(playerID)
	} else if p.AllHandsResolved() {
		p.Done = true
	}
}

// advanceFrom marks the player done once all their hands are resolved, then
// scans roster order from just after them for the next player still owed a
// turn. With nobody left the room moves to the dealer turn.
func (r *Room) advanceFrom(playerID string) {
	p := r.Player(playerID)
	if p == nil {
		return
	}
	if !p.AllHandsResolved() {
		return
	}
	p.Done = true
	r.advanceFromIndex(r.indexOf(playerID))
}

func (r *Room) indexOf(playerID string) int {
	for i, p := range r.Players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

// advanceFromIndex scans for the next not-done, not-disconnected player
// strictly after roster index i (wrapping), entering the dealer turn when
// none remains.
func (r *Room) advanceFromIndex(i int) {
	n := len(r.Players)
	for step := 1; step <= n; step++ {
		q := r.Players[(i+step)%n]
		if !q.Done && !q.Disconnected {
			r.ActiveID = q.ID
			return
		}
	}
	r.standLingering()
	r.ActiveID = ""
	r.Phase = PhaseDealerTurn
}

// standLingering force-stands any hand still marked playing (skipped
// disconnected players) so the dealer turn starts from a consistent roster.
func (r *Room) standLingering() {
	for _, p := range r.Players {
		changed := false
		for _, h := range p.Hands {
			if h.Status == StatusPlaying {
				Stand(h)
				changed = true
			}
		}
		if changed || (!p.Done && p.AllHandsResolved()) {
			p.Done = true
		}
	}
}

// DealerNeedsCard reports whether the dealer must draw another card: only
// during the dealer turn, only while at least one player hand is live, and
// only while the H17 rule says hit. With no live hands the dealer turn is
// skipped entirely and the two dealt cards stand for comparison.
func (r *Room) DealerNeedsCard() bool {
	if r.Phase != PhaseDealerTurn {
		return false
	}
	if !r.anyLiveHands() {
		return false
	}
	return DealerShouldHit(r.Dealer)
}

func (r *Room) anyLiveHands() bool {
	for _, p := range r.Players {
		for _, h := range p.Hands {
			if h.Live() {
				return true
			}
		}
	}
	return false
}

// DealerDraw draws one card into the dealer's hand during the dealer turn.
func (r *Room) DealerDraw() {
	r.Dealer.Cards = append(r.Dealer.Cards, r.Shoe.Draw())
}

// FinishRound settles every unresolved hand and enters the results phase.
func (r *Room) FinishRound() {
	Settle(r.Dealer, r.Players)
	r.Phase = PhaseResults
}

// NextRound moves from results back to betting. Host only. Players whose
// disconnect grace period is still running at this boundary are permanently
// removed and returned to the caller for cleanup; the room may come back
// empty, in which case the caller destroys it.
func (r *Room) NextRound(callerID string) ([]*Player, error) {
	if callerID != r.HostID {
		return nil, ErrNotHost
	}
	if r.Phase != PhaseResults {
		return nil, ErrWrongPhase
	}

	var removed []*Player
	kept := r.Players[:0]
	for _, p := range r.Players {
		if p.Disconnected {
			removed = append(removed, p)
		} else {
			kept = append(kept, p)
		}
	}
	r.Players = kept

	if len(r.Players) == 0 {
		return removed, nil
	}
	r.ensureHost()

	for _, p := range r.Players {
		p.ResetForRound()
	}
	r.Dealer = &Hand{}
	r.ActiveID = ""
	r.Phase = PhaseBetting
	return removed, nil
}

// RemovePlayer takes a player out of the roster immediately, transferring
// host if needed and advancing the turn if it was theirs. Returns true if the
// player was seated. The caller destroys the room if Empty() afterwards.
func (r *Room) RemovePlayer(playerID string) bool {
	i := r.indexOf(playerID)
	if i < 0 {
		return false
	}
	wasActive := r.ActiveID == playerID

	r.Players = append(r.Players[:i], r.Players[i+1:]...)
	if len(r.Players) == 0 {
		r.HostID = ""
		r.ActiveID = ""
		return true
	}
	r.ensureHost()

	if wasActive && r.Phase == PhasePlayerTurns {
		// The seat at index i now holds the next player in roster order.
		r.advanceFromIndex(i - 1)
	}
	return true
}

// Empty returns true once the roster is empty.
func (r *Room) Empty() bool {
	return len(r.Players) == 0
}

// ensureHost reassigns the host when the current host has left the roster,
// preferring the first connected player and falling back to the first seat.
// A host who is merely disconnected keeps the role until removed.
func (r *Room) ensureHost() {
	if r.Player(r.HostID) != nil {
		return
	}
	for _, p := range r.Players {
		if !p.Disconnected {
			r.HostID = p.ID
			return
		}
	}
	if len(r.Players) > 0 {
		r.HostID = r.Players[0].ID
	}
}
