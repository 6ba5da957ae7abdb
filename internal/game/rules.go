package game

import "github.com/lox/blackjackd/internal/deck"

// MaxHandsPerPlayer caps splitting at three splits (four concurrent hands).
const MaxHandsPerPlayer = 4

// Hit draws one card into the hand. A total over 21 busts the hand and locks
// in the loss immediately, independent of how the dealer later plays.
func Hit(h *Hand, shoe *deck.Shoe) {
	h.Cards = append(h.Cards, shoe.Draw())
	if h.Total() > 21 {
		h.Status = StatusBusted
		h.Result = ResultLoss
	}
}

// Stand freezes the hand at its current total.
func Stand(h *Hand) {
	h.Status = StatusStanding
}

// Double doubles the wager, draws exactly one card, and ends the hand: busted
// if over 21, otherwise doubled (a forced stand). Only a two-card hand may
// double, and the player must cover the second wager. Returns false when the
// double is not allowed; the hand is untouched in that case.
func Double(p *Player, h *Hand, shoe *deck.Shoe) bool {
	if len(h.Cards) != 2 || p.Chips < h.Wager {
		return false
	}

	p.Chips -= h.Wager
	h.Wager *= 2
	h.Cards = append(h.Cards, shoe.Draw())
	if h.Total() > 21 {
		h.Status = StatusBusted
		h.Result = ResultLoss
	} else {
		h.Status = StatusDoubled
	}
	return true
}

// Split turns a pair into two hands, each keeping one original card, drawing
// one fresh card, and carrying the original wager. A second wager equal to
// the first is collected. Split aces get their one card and stand; no hit or
// double is ever allowed on them. Returns false when the split is not
// allowed; state is untouched in that case.
func Split(p *Player, idx int, shoe *deck.Shoe) bool {
	if idx < 0 || idx >= len(p.Hands) {
		return false
	}
	h := p.Hands[idx]
	if !h.IsPair() || len(p.Hands) >= MaxHandsPerPlayer || p.Chips < h.Wager {
		return false
	}

	p.Chips -= h.Wager

	first := &Hand{Cards: []deck.Card{h.Cards[0]}, Wager: h.Wager}
	second := &Hand{Cards: []deck.Card{h.Cards[1]}, Wager: h.Wager}
	first.Cards = append(first.Cards, shoe.Draw())
	second.Cards = append(second.Cards, shoe.Draw())

	if h.Cards[0].IsAce() {
		first.Status = StatusStanding
		second.Status = StatusStanding
	}

	p.Hands[idx] = first
	p.Hands = append(p.Hands, second)
	return true
}

// DealerShouldHit implements the H17 rule: the dealer draws below 17 and on
// soft 17, and stands on hard 17 or better.
func DealerShouldHit(dealer *Hand) bool {
	total, soft := dealer.Value()
	return total < 17 || (total == 17 && soft)
}

// Settle assigns a result and pays out every hand that does not already carry
// one. Hands settled earlier (bust-time losses, deal-time naturals) are never
// re-evaluated, so calling Settle again is a no-op. Blackjack pays 3:2
// (floored); every other win pays 1:1 with the stake returned.
func Settle(dealer *Hand, players []*Player) {
	dealerTotal := dealer.Total()
	dealerBust := dealerTotal > 21
	dealerBlackjack := dealer.IsBlackjack()

	for _, p := range players {
		for _, h := range p.Hands {
			if h.Settled() {
				continue
			}

			natural := h.Status == StatusBlackjack
			switch {
			case dealerBlackjack && natural:
				h.Result = ResultPush
				p.Chips += h.Wager
			case dealerBlackjack:
				h.Result = ResultLoss
			case natural:
				h.Result = ResultWin
				p.Chips += h.Wager + h.Wager*3/2
			case dealerBust:
				h.Result = ResultWin
				p.Chips += h.Wager * 2
			default:
				switch total := h.Total(); {
				case total > dealerTotal:
					h.Result = ResultWin
					p.Chips += h.Wager * 2
				case total < dealerTotal:
					h.Result = ResultLoss
				default:
					h.Result = ResultPush
					p.Chips += h.Wager
				}
			}
		}
	}
}
