package deck

import "testing"

func TestNewShoeComposition(t *testing.T) {
	t.Parallel()

	shoe := NewShoe(2, WithSeed(1))
	if got := shoe.Remaining(); got != 2*DeckSize {
		t.Fatalf("Remaining() = %d, want %d", got, 2*DeckSize)
	}

	// Every rank/suit combination must appear exactly twice in a two-deck shoe.
	counts := make(map[Card]int)
	for {
		card, ok := shoe.Draw()
		if !ok {
			break
		}
		counts[card]++
	}
	if len(counts) != DeckSize {
		t.Fatalf("distinct cards = %d, want %d", len(counts), DeckSize)
	}
	for card, n := range counts {
		if n != 2 {
			t.Errorf("card %s appears %d times, want 2", card, n)
		}
	}
}

func TestShoeSeedDeterminism(t *testing.T) {
	t.Parallel()

	a := NewShoe(2, WithSeed(42))
	b := NewShoe(2, WithSeed(42))

	for i := 0; i < 2*DeckSize; i++ {
		ca, okA := a.Draw()
		cb, okB := b.Draw()
		if !okA || !okB {
			t.Fatalf("draw %d: unexpected exhaustion (okA=%v okB=%v)", i, okA, okB)
		}
		if ca != cb {
			t.Fatalf("draw %d: %s != %s for identical seeds", i, ca, cb)
		}
	}

	if _, ok := a.Draw(); ok {
		t.Error("expected shoe exhausted after 104 draws")
	}
}

func TestShoeSeedsDiffer(t *testing.T) {
	t.Parallel()

	a := NewShoe(1, WithSeed(1))
	b := NewShoe(1, WithSeed(2))

	same := true
	for i := 0; i < DeckSize; i++ {
		ca, _ := a.Draw()
		cb, _ := b.Draw()
		if ca != cb {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical draw order")
	}
}

func TestShoeDrawExhausted(t *testing.T) {
	t.Parallel()

	shoe := NewShoe(1, WithSeed(7))
	for i := 0; i < DeckSize; i++ {
		if _, ok := shoe.Draw(); !ok {
			t.Fatalf("draw %d failed with %d cards expected", i, DeckSize)
		}
	}

	if card, ok := shoe.Draw(); ok {
		t.Errorf("Draw() on empty shoe returned %s, want failure", card)
	}
	if got := shoe.Remaining(); got != 0 {
		t.Errorf("Remaining() = %d, want 0", got)
	}
}

func TestShoeMinimumDecks(t *testing.T) {
	t.Parallel()

	shoe := NewShoe(0, WithSeed(3))
	if got := shoe.Remaining(); got != DeckSize {
		t.Errorf("Remaining() = %d, want %d", got, DeckSize)
	}
}
