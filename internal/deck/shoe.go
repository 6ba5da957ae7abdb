package deck

import rand "math/rand/v2"

const (
	// DecksPerShoe is the number of 52-card decks a shoe is built from.
	DecksPerShoe = 6

	// reshufflePoint is the penetration threshold: a shoe holding fewer
	// cards than this is rebuilt and reshuffled before the next draw.
	reshufflePoint = 20
)

// Shoe is an ordered sequence of cards dealt from the tail. It is owned by a
// single room and is not safe for concurrent use.
type Shoe struct {
	cards  []Card
	rng    *rand.Rand
	decks  int
	nextID int
}

// NewShoe builds and shuffles a shoe of the given number of decks using the
// provided rng.
func NewShoe(rng *rand.Rand, decks int) *Shoe {
	s := &Shoe{
		cards: make([]Card, 0, decks*52),
		rng:   rng,
		decks: decks,
	}
	s.rebuild()
	return s
}

func (s *Shoe) rebuild() {
	s.cards = s.cards[:0]
	for d := 0; d < s.decks; d++ {
		for suit := Spades; suit <= Clubs; suit++ {
			for rank := Two; rank <= Ace; rank++ {
				s.cards = append(s.cards, Card{ID: s.nextID, Suit: suit, Rank: rank})
				s.nextID++
			}
		}
	}
	s.shuffle()
}

// shuffle performs a Fisher-Yates pass over the whole shoe. Every permutation
// is equally likely given a uniform rng.
func (s *Shoe) shuffle() {
	for i := len(s.cards) - 1; i > 0; i-- {
		j := s.rng.IntN(i + 1)
		s.cards[i], s.cards[j] = s.cards[j], s.cards[i]
	}
}

// Draw removes and returns the card at the tail of the shoe. A shoe below the
// penetration threshold is rebuilt and reshuffled first, so the draw itself
// always services from a healthy shoe.
func (s *Shoe) Draw() Card {
	if len(s.cards) < reshufflePoint {
		s.rebuild()
	}
	card := s.cards[len(s.cards)-1]
	s.cards = s.cards[:len(s.cards)-1]
	return card
}

// Remaining returns the number of cards left in the shoe.
func (s *Shoe) Remaining() int {
	return len(s.cards)
}

// Stack arranges the given cards to be drawn next, in the order given,
// without shortening the shoe below the penetration threshold. Used by tests
// to rig deterministic deals.
func (s *Shoe) Stack(cards ...Card) {
	for i := len(cards) - 1; i >= 0; i-- {
		c := cards[i]
		c.ID = s.nextID
		s.nextID++
		s.cards = append(s.cards, c)
	}
}
