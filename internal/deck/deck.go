package deck

import (
	"github.com/lox/dexbot/internal/randutil"
)

// DeckSize is the number of cards in one standard deck.
const DeckSize = 52

// Shoe holds the cards for a blackjack game, built from one or more standard
// decks and shuffled exactly once at construction. The seed that produced the
// shuffle is retained so a game can be replayed deterministically.
type Shoe struct {
	cards []Card
	seed  int64
}

// ShoeOption configures shoe construction.
type ShoeOption func(*shoeConfig)

type shoeConfig struct {
	seed int64
}

// WithSeed fixes the shuffle seed. Two shoes built with the same deck count
// and seed draw identical sequences.
func WithSeed(seed int64) ShoeOption {
	return func(cfg *shoeConfig) {
		cfg.seed = seed
	}
}

// NewShoe creates a shuffled shoe from the given number of standard decks.
// A non-positive count is treated as one deck.
func NewShoe(decks int, opts ...ShoeOption) *Shoe {
	if decks < 1 {
		decks = 1
	}

	cfg := shoeConfig{seed: randutil.Seed()}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Shoe{
		cards: make([]Card, 0, decks*DeckSize),
		seed:  cfg.seed,
	}
	for d := 0; d < decks; d++ {
		for suit := Spades; suit <= Clubs; suit++ {
			for rank := Two; rank <= Ace; rank++ {
				s.cards = append(s.cards, NewCard(suit, rank))
			}
		}
	}
	s.shuffle()

	return s
}

// shuffle performs a Fisher-Yates shuffle seeded from the shoe's seed.
func (s *Shoe) shuffle() {
	rng := randutil.New(s.seed)
	for i := len(s.cards) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		s.cards[i], s.cards[j] = s.cards[j], s.cards[i]
	}
}

// NewStacked builds an unshuffled shoe that draws the given cards in order:
// the first card listed is the first drawn. Intended for tests that need
// exact card control.
func NewStacked(cards ...Card) *Shoe {
	s := &Shoe{cards: make([]Card, len(cards))}
	for i, c := range cards {
		s.cards[len(cards)-1-i] = c
	}
	return s
}

// Draw removes and returns the last card in the shoe. It returns false when
// the shoe is exhausted.
func (s *Shoe) Draw() (Card, bool) {
	if len(s.cards) == 0 {
		return Card{}, false
	}

	card := s.cards[len(s.cards)-1]
	s.cards = s.cards[:len(s.cards)-1]
	return card, true
}

// Remaining returns the number of cards left in the shoe.
func (s *Shoe) Remaining() int {
	return len(s.cards)
}

// Seed returns the seed the shoe was shuffled with.
func (s *Shoe) Seed() int64 {
	return s.seed
}
