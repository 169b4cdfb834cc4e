package game

// hiddenCard marks the dealer's hole card in public snapshots.
const hiddenCard = "??"

// State is a public snapshot of a game, safe to serialize and hand to
// renderers. The dealer's hole card is hidden until the dealer acts or the
// game reaches results.
type State struct {
	Phase         string      `json:"phase"`
	MaxSeats      int         `json:"maxSeats"`
	Seats         []SeatState `json:"seats"`
	Dealer        SeatState   `json:"dealer"`
	CurrentSeat   string      `json:"currentSeat,omitempty"`
	CurrentHand   int         `json:"currentHand"`
	HoleRevealed  bool        `json:"holeRevealed"`
	DealerAutoWin bool        `json:"dealerAutoWin,omitempty"`
	TurnTimeout   int         `json:"turnTimeoutSeconds"`
	CardsLeft     int         `json:"cardsRemaining"`
}

// SeatState is the public view of one seat.
type SeatState struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Role  string      `json:"role"`
	Hands []HandState `json:"hands"`
}

// HandState is the public view of one hand.
type HandState struct {
	Cards  []string `json:"cards"`
	Value  int      `json:"value"`
	Status string   `json:"status"`
}

func (g *Game) holeRevealed() bool {
	return g.phase == PhaseDealerTurn || g.phase == PhaseResults
}

// State returns the current public snapshot.
func (g *Game) State() State {
	st := State{
		Phase:        g.phase.String(),
		MaxSeats:     g.cfg.MaxSeats,
		Seats:        make([]SeatState, 0, len(g.seats)),
		HoleRevealed: g.holeRevealed(),
		TurnTimeout:  int(g.cfg.TurnTimeout.Seconds()),
		CardsLeft:    g.shoe.Remaining(),
	}

	for _, seat := range g.seats {
		st.Seats = append(st.Seats, seatState(seat))
	}
	st.Dealer = g.dealerState()

	if seat := g.currentSeat(); seat != nil {
		st.CurrentSeat = seat.ID
		st.CurrentHand = seat.HandIndex
	}
	if g.phase.Terminal() {
		st.DealerAutoWin = g.allSeatsBustOrSurrendered()
	}
	return st
}

func seatState(seat *Seat) SeatState {
	ss := SeatState{
		ID:    seat.ID,
		Name:  seat.Name,
		Role:  seat.Role.String(),
		Hands: make([]HandState, 0, len(seat.Hands)),
	}
	for _, hand := range seat.Hands {
		cards := make([]string, 0, len(hand.Cards))
		for _, c := range hand.Cards {
			cards = append(cards, c.String())
		}
		ss.Hands = append(ss.Hands, HandState{
			Cards:  cards,
			Value:  hand.Value(),
			Status: hand.Status.String(),
		})
	}
	return ss
}

// dealerState renders the dealer seat, masking the hole card and reporting
// only the visible value while the hole card is down.
func (g *Game) dealerState() SeatState {
	if g.holeRevealed() {
		return seatState(g.dealer)
	}

	hand := g.dealer.Hands[0]
	hs := HandState{Status: hand.Status.String()}
	if len(hand.Cards) > 0 {
		up := hand.Cards[0]
		hs.Cards = []string{up.String()}
		hs.Value = HandValue(hand.Cards[:1])
		for i := 1; i < len(hand.Cards); i++ {
			hs.Cards = append(hs.Cards, hiddenCard)
		}
	}
	return SeatState{
		ID:    g.dealer.ID,
		Name:  g.dealer.Name,
		Role:  g.dealer.Role.String(),
		Hands: []HandState{hs},
	}
}
