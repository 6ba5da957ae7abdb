package game

// Player is a seated identity in a room. ID is stable across reconnects; the
// live connection is tracked outside the game package.
type Player struct {
	ID           string
	Name         string
	Chips        int
	Hands        []*Hand
	Bet          int
	HasBet       bool
	Done         bool
	Disconnected bool
}

// ResetForRound clears per-round state ahead of a new betting phase.
func (p *Player) ResetForRound() {
	p.Hands = nil
	p.Bet = 0
	p.HasBet = false
	p.Done = false
}

// AllHandsResolved returns true when none of the player's hands is still
// playing. A player with no hands has nothing left to resolve.
func (p *Player) AllHandsResolved() bool {
	for _, h := range p.Hands {
		if h.Status == StatusPlaying {
			return false
		}
	}
	return true
}
