package game

import (
	"github.com/lox/dexbot/internal/deck"
)

// Hand is one blackjack hand. A seat starts with a single hand and gains
// more by splitting pairs. Status transitions are monotonic: once a hand
// leaves StatusActive it never returns.
type Hand struct {
	Cards     []deck.Card
	Status    HandStatus
	Split     bool
	SplitAces bool
}

func newHand() *Hand {
	return &Hand{Status: StatusActive}
}

// Value returns the best total for the hand.
func (h *Hand) Value() int {
	return HandValue(h.Cards)
}

// IsSoft reports whether an ace still counts as 11 in the resolved total.
func (h *Hand) IsSoft() bool {
	return IsSoft(h.Cards)
}

// IsBlackjack reports whether the hand is a natural: exactly two cards
// totaling 21. A three-card 21 ties the value but is not a blackjack.
func (h *Hand) IsBlackjack() bool {
	return IsBlackjack(h.Cards)
}

// IsBust reports whether the hand value exceeds 21.
func (h *Hand) IsBust() bool {
	return IsBust(h.Cards)
}

// CanSplit reports whether the hand is a splittable pair: exactly two cards
// of the same rank.
func (h *Hand) CanSplit() bool {
	return len(h.Cards) == initialCards && h.Cards[0].Rank == h.Cards[1].Rank
}

// Finished reports whether the hand has been resolved.
func (h *Hand) Finished() bool {
	return h.Status != StatusActive
}

// HandValue returns the best total for the given cards. Every ace counts as
// 11 initially; while the total busts and an undowngraded ace remains, one
// ace's contribution drops from 11 to 1.
func HandValue(cards []deck.Card) int {
	total := 0
	aces := 0
	for _, c := range cards {
		if c.IsAce() {
			aces++
		}
		total += c.Value()
	}
	for total > blackjackValue && aces > 0 {
		total -= 10
		aces--
	}
	return total
}

// IsBlackjack reports whether cards form a natural blackjack.
func IsBlackjack(cards []deck.Card) bool {
	return len(cards) == initialCards && HandValue(cards) == blackjackValue
}

// IsSoft reports whether the resolved total still counts an ace as 11.
func IsSoft(cards []deck.Card) bool {
	hasAce := false
	low := 0
	for _, c := range cards {
		if c.IsAce() {
			hasAce = true
			low++
		} else {
			low += c.Value()
		}
	}
	return hasAce && low+10 <= blackjackValue
}

// IsBust reports whether the cards total more than 21.
func IsBust(cards []deck.Card) bool {
	return HandValue(cards) > blackjackValue
}
