package game

import (
	"errors"
	"reflect"
	"testing"
)

func TestSplitSequentialDealing(t *testing.T) {
	t.Parallel()

	g := startGame(t, 1, "Tc9cTd7d4s5s6s")

	if err := g.Split("p1"); err != nil {
		t.Fatalf("split: %v", err)
	}

	// The first hand is completed and playable immediately; the second
	// holds a single card until the turn reaches it.
	st := g.State()
	hands := st.Seats[0].Hands
	if len(hands) != 2 {
		t.Fatalf("hand count = %d, want 2", len(hands))
	}
	if !reflect.DeepEqual(hands[0].Cards, []string{"10♣", "4♠"}) {
		t.Errorf("first hand = %v, want [10♣ 4♠]", hands[0].Cards)
	}
	if !reflect.DeepEqual(hands[1].Cards, []string{"10♦"}) {
		t.Errorf("second hand = %v, want [10♦]", hands[1].Cards)
	}
	if st.CurrentHand != 0 {
		t.Errorf("current hand = %d, want 0", st.CurrentHand)
	}

	if err := g.Stand("p1"); err != nil {
		t.Fatalf("stand first hand: %v", err)
	}

	// Turn control reaching the second hand deals its second card.
	st = g.State()
	if got := st.Seats[0].Hands[1].Cards; !reflect.DeepEqual(got, []string{"10♦", "5♠"}) {
		t.Errorf("second hand = %v, want [10♦ 5♠]", got)
	}
	if st.CurrentHand != 1 {
		t.Errorf("current hand = %d, want 1", st.CurrentHand)
	}
	requireTurn(t, g, "p1")

	if err := g.Stand("p1"); err != nil {
		t.Fatalf("stand second hand: %v", err)
	}
	if _, err := g.PlayDealer(); err != nil {
		t.Fatalf("play dealer: %v", err)
	}

	results := g.Results()
	if len(results) != 2 {
		t.Fatalf("result count = %d, want 2", len(results))
	}
	for _, r := range results {
		if r.Result != ResultWin {
			t.Errorf("hand %d result = %s, want win (dealer bust)", r.HandIndex, r.Result)
		}
	}
}

func TestSplitAcesAutoResolve(t *testing.T) {
	t.Parallel()

	g := startGame(t, 1, "As9cAh7d5s6s4h")

	if err := g.Split("p1"); err != nil {
		t.Fatalf("split: %v", err)
	}

	// Both ace hands get one card each and no further play; with the sole
	// seat resolved the dealer acts next.
	if g.Phase() != PhaseDealerTurn {
		t.Fatalf("phase = %s, want dealer_turn", g.Phase())
	}
	st := g.State()
	for i, hand := range st.Seats[0].Hands {
		if len(hand.Cards) != 2 {
			t.Errorf("hand %d has %d cards, want 2", i, len(hand.Cards))
		}
		if hand.Status != StatusSplitAces.String() {
			t.Errorf("hand %d status = %s, want split_aces", i, hand.Status)
		}
	}

	if _, err := g.PlayDealer(); err != nil {
		t.Fatalf("play dealer: %v", err)
	}

	// Split-ace hands still settle against the dealer total.
	results := g.Results()
	wantValues := []int{16, 17}
	for i, r := range results {
		if r.Value != wantValues[i] {
			t.Errorf("hand %d value = %d, want %d", i, r.Value, wantValues[i])
		}
		if r.Result != ResultLose {
			t.Errorf("hand %d result = %s, want lose (dealer has 20)", i, r.Result)
		}
	}
}

func TestSplitAcesAdvanceToNextSeat(t *testing.T) {
	t.Parallel()

	g := startGame(t, 2, "As5c9cAh6c7d2s3s")

	requireTurn(t, g, "p1")
	if err := g.Split("p1"); err != nil {
		t.Fatalf("split: %v", err)
	}
	if g.Phase() != PhasePlaying {
		t.Fatalf("phase = %s, want playing", g.Phase())
	}
	requireTurn(t, g, "p2")
}

func TestResplit(t *testing.T) {
	t.Parallel()

	g := startGame(t, 1, "8s9c8h7d8d2h3h4hTs")

	if err := g.Split("p1"); err != nil {
		t.Fatalf("first split: %v", err)
	}
	// The drawn card pairs up again, so the first hand can be resplit.
	if err := g.Split("p1"); err != nil {
		t.Fatalf("second split: %v", err)
	}

	st := g.State()
	hands := st.Seats[0].Hands
	if len(hands) != 3 {
		t.Fatalf("hand count = %d, want 3", len(hands))
	}
	if !reflect.DeepEqual(hands[0].Cards, []string{"8♠", "2♥"}) {
		t.Errorf("first hand = %v, want [8♠ 2♥]", hands[0].Cards)
	}
	if !reflect.DeepEqual(hands[1].Cards, []string{"8♦"}) {
		t.Errorf("second hand = %v, want [8♦]", hands[1].Cards)
	}
	if !reflect.DeepEqual(hands[2].Cards, []string{"8♥"}) {
		t.Errorf("third hand = %v, want [8♥]", hands[2].Cards)
	}

	for i := 0; i < 3; i++ {
		if err := g.Stand("p1"); err != nil {
			t.Fatalf("stand hand %d: %v", i, err)
		}
	}
	if _, err := g.PlayDealer(); err != nil {
		t.Fatalf("play dealer: %v", err)
	}

	results := g.Results()
	if len(results) != 3 {
		t.Fatalf("result count = %d, want 3", len(results))
	}
	for _, r := range results {
		if r.Result != ResultWin {
			t.Errorf("hand %d result = %s, want win (dealer bust)", r.HandIndex, r.Result)
		}
	}
}

func TestSplitRequiresPair(t *testing.T) {
	t.Parallel()

	g := startGame(t, 1, "Ks9cQh7d")

	err := g.Split("p1")
	if !errors.Is(err, ErrCannotSplit) {
		t.Fatalf("split of K,Q = %v, want ErrCannotSplit", err)
	}
	if !errors.Is(err, ErrInvalidMove) {
		t.Error("ErrCannotSplit should wrap ErrInvalidMove")
	}
}

func TestSplitHandRules(t *testing.T) {
	t.Parallel()

	g := startGame(t, 1, "8s9c8h7d8d4h5hTc")

	if err := g.Split("p1"); err != nil {
		t.Fatalf("split: %v", err)
	}

	// Split hands cannot surrender but may double down.
	if err := g.Surrender("p1"); !errors.Is(err, ErrCannotSurrender) {
		t.Fatalf("surrender on split hand = %v, want ErrCannotSurrender", err)
	}
	if _, err := g.DoubleDown("p1"); err != nil {
		t.Fatalf("double on split hand: %v", err)
	}

	st := g.State()
	if got := st.Seats[0].Hands[0].Value; got != 20 {
		t.Errorf("doubled hand value = %d, want 20", got)
	}
	// Doubling consumed the turn, so the deferred hand is now live.
	if st.CurrentHand != 1 {
		t.Errorf("current hand = %d, want 1", st.CurrentHand)
	}
	if err := g.Surrender("p1"); !errors.Is(err, ErrCannotSurrender) {
		t.Fatalf("surrender on second split hand = %v, want ErrCannotSurrender", err)
	}

	if err := g.Stand("p1"); err != nil {
		t.Fatalf("stand: %v", err)
	}
	if _, err := g.PlayDealer(); err != nil {
		t.Fatalf("play dealer: %v", err)
	}

	for _, r := range g.Results() {
		if r.Result != ResultWin {
			t.Errorf("hand %d result = %s, want win (dealer bust)", r.HandIndex, r.Result)
		}
	}
}
