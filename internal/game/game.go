package game

import (
	"slices"
	"time"

	"github.com/lox/dexbot/internal/deck"
)

const (
	blackjackValue = 21
	dealerStandMin = 17
	initialCards   = 2
)

// Defaults and bounds for game configuration.
const (
	DefaultMaxSeats    = 3
	DefaultDecks       = 2
	DefaultTurnTimeout = 60 * time.Second
	MinTurnTimeout     = 30 * time.Second
	MaxTurnTimeout     = 120 * time.Second
)

// Config holds per-game settings.
type Config struct {
	MaxSeats    int
	Decks       int
	TurnTimeout time.Duration
	Seed        int64 // 0 selects a random shuffle seed
}

func (c Config) withDefaults() Config {
	if c.MaxSeats <= 0 {
		c.MaxSeats = DefaultMaxSeats
	}
	if c.Decks <= 0 {
		c.Decks = DefaultDecks
	}
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = DefaultTurnTimeout
	}
	if c.TurnTimeout < MinTurnTimeout {
		c.TurnTimeout = MinTurnTimeout
	}
	if c.TurnTimeout > MaxTurnTimeout {
		c.TurnTimeout = MaxTurnTimeout
	}
	return c
}

// Game is the blackjack state machine. It owns the shoe and every hand
// exclusively; all mutation goes through its methods.
//
// The machine is not safe for concurrent use. It is designed to be driven
// by one caller at a time, serialized by the owning session, because turn
// order invariants assume actions apply in sequence.
type Game struct {
	cfg Config

	phase     Phase
	dealer    *Seat
	seats     []*Seat
	shoe      *deck.Shoe
	turnIndex int
}

// Option configures a game at construction.
type Option func(*Game)

// WithShoe replaces the game's shoe. Tests use it with deck.NewStacked for
// exact card control.
func WithShoe(s *deck.Shoe) Option {
	return func(g *Game) {
		g.shoe = s
	}
}

// New creates a game in the lobby phase. The host occupies the dealer seat
// and cannot join as a player.
func New(hostID, hostName string, cfg Config, opts ...Option) *Game {
	cfg = cfg.withDefaults()

	g := &Game{
		cfg:    cfg,
		phase:  PhaseLobby,
		dealer: newSeat(hostID, hostName, RoleDealer),
	}
	if cfg.Seed != 0 {
		g.shoe = deck.NewShoe(cfg.Decks, deck.WithSeed(cfg.Seed))
	} else {
		g.shoe = deck.NewShoe(cfg.Decks)
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Phase returns the current phase.
func (g *Game) Phase() Phase {
	return g.phase
}

// TurnTimeout returns the configured per-turn timeout.
func (g *Game) TurnTimeout() time.Duration {
	return g.cfg.TurnTimeout
}

// Seed returns the shoe's shuffle seed.
func (g *Game) Seed() int64 {
	return g.shoe.Seed()
}

// HostID returns the ID of the host, who occupies the dealer seat.
func (g *Game) HostID() string {
	return g.dealer.ID
}

// SeatCount returns the number of seated players, excluding the dealer.
func (g *Game) SeatCount() int {
	return len(g.seats)
}

// Full reports whether the lobby has reached capacity.
func (g *Game) Full() bool {
	return len(g.seats) >= g.cfg.MaxSeats
}

// Join seats a player in the lobby.
func (g *Game) Join(id, name string) error {
	if g.phase != PhaseLobby {
		return ErrNotInLobby
	}
	if len(g.seats) >= g.cfg.MaxSeats {
		return ErrGameFull
	}
	if id == g.dealer.ID {
		return ErrAlreadySeated
	}
	for _, s := range g.seats {
		if s.ID == id {
			return ErrAlreadySeated
		}
	}

	g.seats = append(g.seats, newSeat(id, name, RolePlayer))
	return nil
}

// Leave removes a player from the lobby. Players cannot leave once the
// game has started, and the dealer cannot leave at all.
func (g *Game) Leave(id string) error {
	if g.phase != PhaseLobby {
		return ErrNotInLobby
	}
	for i, s := range g.seats {
		if s.ID == id {
			g.seats = slices.Delete(g.seats, i, i+1)
			return nil
		}
	}
	return ErrNotSeated
}

// Start deals the opening round and moves the game into play. It requires
// at least one seated player.
//
// Dealing is round-robin: one card to each seat then the dealer, repeated
// for the second card. A dealer natural ends the game immediately; seat
// naturals are marked and those seats are skipped in the turn order.
func (g *Game) Start() error {
	if g.phase != PhaseLobby {
		return ErrNotInLobby
	}
	if len(g.seats) == 0 {
		return ErrNoPlayers
	}

	g.phase = PhaseDealing
	if err := g.dealInitial(); err != nil {
		g.phase = PhaseEnded
		return err
	}

	if g.dealer.Hands[0].IsBlackjack() {
		g.dealer.Hands[0].Status = StatusBlackjack
		g.phase = PhaseResults
		return nil
	}

	for _, seat := range g.seats {
		if seat.Hands[0].IsBlackjack() {
			seat.Hands[0].Status = StatusBlackjack
		}
	}

	g.phase = PhasePlaying
	g.turnIndex = 0
	for g.turnIndex < len(g.seats) && g.seats[g.turnIndex].AllHandsFinished() {
		g.turnIndex++
	}
	if g.turnIndex >= len(g.seats) {
		g.phase = PhaseDealerTurn
		g.checkDealerStand()
	}
	return nil
}

func (g *Game) dealInitial() error {
	for round := 0; round < initialCards; round++ {
		for _, seat := range g.seats {
			card, err := g.draw()
			if err != nil {
				return err
			}
			seat.Hands[0].Cards = append(seat.Hands[0].Cards, card)
		}
		card, err := g.draw()
		if err != nil {
			return err
		}
		g.dealer.Hands[0].Cards = append(g.dealer.Hands[0].Cards, card)
	}
	return nil
}

func (g *Game) draw() (deck.Card, error) {
	card, ok := g.shoe.Draw()
	if !ok {
		return deck.Card{}, ErrEmptyShoe
	}
	return card, nil
}

// currentSeat returns the seat whose turn it is, or nil outside of play.
func (g *Game) currentSeat() *Seat {
	switch g.phase {
	case PhaseDealerTurn:
		return g.dealer
	case PhasePlaying:
		if g.turnIndex >= 0 && g.turnIndex < len(g.seats) {
			return g.seats[g.turnIndex]
		}
	}
	return nil
}

// CurrentTurn returns the ID of the seat currently acting. During the
// dealer's turn it returns the dealer's ID.
func (g *Game) CurrentTurn() (string, bool) {
	seat := g.currentSeat()
	if seat == nil {
		return "", false
	}
	return seat.ID, true
}

// actingHand validates that id owns the hand currently awaiting action and
// returns it. Every rejection leaves the game untouched.
func (g *Game) actingHand(id string) (*Seat, *Hand, error) {
	seat := g.currentSeat()
	if seat == nil || seat.Role == RoleDealer || seat.ID != id {
		return nil, nil, ErrNotYourTurn
	}
	hand := seat.CurrentHand()
	if hand.Status != StatusActive {
		return nil, nil, ErrHandNotActive
	}
	return seat, hand, nil
}

// Hit draws one card to the acting hand. A bust resolves the hand and
// advances the turn; otherwise the hand stays active for further action.
func (g *Game) Hit(id string) (deck.Card, error) {
	_, hand, err := g.actingHand(id)
	if err != nil {
		return deck.Card{}, err
	}

	card, err := g.draw()
	if err != nil {
		return deck.Card{}, err
	}
	hand.Cards = append(hand.Cards, card)

	if hand.IsBust() {
		hand.Status = StatusBust
		if err := g.advanceTurn(); err != nil {
			return card, err
		}
	}
	return card, nil
}

// Stand resolves the acting hand and advances the turn.
func (g *Game) Stand(id string) error {
	_, hand, err := g.actingHand(id)
	if err != nil {
		return err
	}
	hand.Status = StatusStand
	return g.advanceTurn()
}

// DoubleDown draws exactly one card to an untouched two-card hand, then
// forces the hand to stand or bust, consuming the turn.
func (g *Game) DoubleDown(id string) (deck.Card, error) {
	_, hand, err := g.actingHand(id)
	if err != nil {
		return deck.Card{}, err
	}
	if len(hand.Cards) != initialCards {
		return deck.Card{}, ErrCannotDouble
	}

	card, err := g.draw()
	if err != nil {
		return deck.Card{}, err
	}
	hand.Cards = append(hand.Cards, card)

	if hand.IsBust() {
		hand.Status = StatusBust
	} else {
		hand.Status = StatusStand
	}
	return card, g.advanceTurn()
}

// Split divides a pair into two hands. The first hand receives its second
// card immediately; the second hand waits for turn control to reach it
// (sequential dealing). Split aces receive exactly one card each, are
// marked SplitAces, and the turn advances without further play on them.
func (g *Game) Split(id string) error {
	seat, hand, err := g.actingHand(id)
	if err != nil {
		return err
	}
	if !hand.CanSplit() {
		return ErrCannotSplit
	}

	first, second := hand.Cards[0], hand.Cards[1]
	aces := first.Rank == deck.Ace

	hand1 := &Hand{Cards: []deck.Card{first}, Status: StatusActive, Split: true, SplitAces: aces}
	hand2 := &Hand{Cards: []deck.Card{second}, Status: StatusActive, Split: true, SplitAces: aces}

	card, err := g.draw()
	if err != nil {
		return err
	}
	hand1.Cards = append(hand1.Cards, card)

	seat.Hands[seat.HandIndex] = hand1
	seat.Hands = slices.Insert(seat.Hands, seat.HandIndex+1, hand2)

	if aces {
		hand1.Status = StatusSplitAces
		card2, err := g.draw()
		if err != nil {
			return err
		}
		hand2.Cards = append(hand2.Cards, card2)
		hand2.Status = StatusSplitAces
		return g.advanceTurn()
	}
	return nil
}

// Surrender forfeits an untouched, unsplit two-card hand and consumes the
// turn. Surrendered hands settle separately from the win/lose comparison.
func (g *Game) Surrender(id string) error {
	_, hand, err := g.actingHand(id)
	if err != nil {
		return err
	}
	if len(hand.Cards) != initialCards || hand.Split {
		return ErrCannotSurrender
	}
	hand.Status = StatusSurrender
	return g.advanceTurn()
}

// advanceTurn moves control to the next unplayed hand, then the next seat
// with play remaining, then the dealer. The walk is iterative so chained
// split-ace resolutions cannot recurse.
func (g *Game) advanceTurn() error {
	if seat := g.currentSeat(); seat != nil && seat.Role == RolePlayer {
		for seat.HandIndex < len(seat.Hands)-1 {
			seat.HandIndex++
			hand := seat.CurrentHand()

			// First visit to a deferred split hand: deal its second card.
			if len(hand.Cards) == 1 {
				card, err := g.draw()
				if err != nil {
					return err
				}
				hand.Cards = append(hand.Cards, card)
				if hand.SplitAces {
					hand.Status = StatusSplitAces
					continue
				}
			}
			if hand.Status == StatusActive {
				return nil
			}
		}
	}

	// Everyone busted or surrendered: the dealer wins by default and the
	// dealer turn is skipped entirely.
	if g.allSeatsBustOrSurrendered() {
		g.phase = PhaseResults
		return nil
	}

	g.turnIndex++
	for g.turnIndex < len(g.seats) && g.seats[g.turnIndex].AllHandsFinished() {
		g.turnIndex++
	}
	if g.turnIndex >= len(g.seats) {
		g.phase = PhaseDealerTurn
		g.checkDealerStand()
	}
	return nil
}

// allSeatsBustOrSurrendered reports whether no seat hand can still contest
// the dealer.
func (g *Game) allSeatsBustOrSurrendered() bool {
	if len(g.seats) == 0 {
		return false
	}
	for _, seat := range g.seats {
		for _, hand := range seat.Hands {
			switch hand.Status {
			case StatusBust, StatusSurrender:
			default:
				return false
			}
		}
	}
	return true
}

// CanDealerHit reports whether the dealer must draw. House rule is H17:
// hit below 17, hit a soft 17, stand otherwise.
func (g *Game) CanDealerHit() bool {
	hand := g.dealer.Hands[0]
	if len(hand.Cards) == 0 {
		return false
	}
	value := hand.Value()
	if value < dealerStandMin {
		return true
	}
	return value == dealerStandMin && hand.IsSoft()
}

// checkDealerStand settles the dealer immediately on entering the dealer
// turn if the H17 policy already requires a stand.
func (g *Game) checkDealerStand() {
	if g.phase != PhaseDealerTurn {
		return
	}
	if g.CanDealerHit() {
		return
	}
	g.dealer.Hands[0].Status = StatusStand
	g.phase = PhaseResults
}

// DealerHit draws one card for the dealer, re-evaluating the H17 policy
// afterwards. Standing or busting moves the game to results.
func (g *Game) DealerHit() (deck.Card, error) {
	if g.phase != PhaseDealerTurn {
		return deck.Card{}, ErrNotDealerTurn
	}
	if !g.CanDealerHit() {
		return deck.Card{}, ErrDealerMustStand
	}

	hand := g.dealer.Hands[0]
	card, err := g.draw()
	if err != nil {
		return deck.Card{}, err
	}
	hand.Cards = append(hand.Cards, card)

	if hand.IsBust() {
		hand.Status = StatusBust
		g.phase = PhaseResults
	} else if !g.CanDealerHit() {
		hand.Status = StatusStand
		g.phase = PhaseResults
	}
	return card, nil
}

// PlayDealer runs the dealer's turn to completion under the H17 policy and
// returns the cards drawn.
func (g *Game) PlayDealer() ([]deck.Card, error) {
	if g.phase != PhaseDealerTurn {
		return nil, ErrNotDealerTurn
	}

	var drawn []deck.Card
	for g.phase == PhaseDealerTurn {
		if !g.CanDealerHit() {
			g.dealer.Hands[0].Status = StatusStand
			g.phase = PhaseResults
			break
		}
		card, err := g.DealerHit()
		if err != nil {
			return drawn, err
		}
		drawn = append(drawn, card)
	}
	return drawn, nil
}

// End terminates the game. No further actions are accepted.
func (g *Game) End() {
	g.phase = PhaseEnded
}

// DealerAutoWin reports whether the dealer won by default because every
// seat busted or surrendered, leaving the dealer turn skipped.
func (g *Game) DealerAutoWin() bool {
	return g.phase.Terminal() && g.allSeatsBustOrSurrendered()
}

// HandOutcome is the settled result of one seat hand.
type HandOutcome struct {
	SeatID    string
	SeatName  string
	HandIndex int
	Cards     []deck.Card
	Value     int
	Status    HandStatus
	Result    Result
}

// Results settles every seat hand against the dealer. It returns nil until
// play has finished.
func (g *Game) Results() []HandOutcome {
	if !g.phase.Terminal() {
		return nil
	}

	dealerHand := g.dealer.Hands[0]
	dealerValue := dealerHand.Value()
	dealerBlackjack := dealerHand.IsBlackjack()

	var out []HandOutcome
	for _, seat := range g.seats {
		for i, hand := range seat.Hands {
			out = append(out, HandOutcome{
				SeatID:    seat.ID,
				SeatName:  seat.Name,
				HandIndex: i,
				Cards:     slices.Clone(hand.Cards),
				Value:     hand.Value(),
				Status:    hand.Status,
				Result:    resolveHand(hand, dealerValue, dealerBlackjack),
			})
		}
	}
	return out
}

func resolveHand(hand *Hand, dealerValue int, dealerBlackjack bool) Result {
	switch hand.Status {
	case StatusBust:
		return ResultLose
	case StatusSurrender:
		return ResultSurrender
	}
	return DetermineResult(hand.Value(), dealerValue, hand.IsBlackjack(), dealerBlackjack)
}

// DetermineResult applies the table rules to a settled hand: naturals beat
// made 21s, busts lose, a dealer bust pays everyone still standing, and
// otherwise the higher total wins with equal totals pushing.
func DetermineResult(playerValue, dealerValue int, playerBlackjack, dealerBlackjack bool) Result {
	switch {
	case playerBlackjack && dealerBlackjack:
		return ResultPush
	case playerBlackjack:
		return ResultWin
	case dealerBlackjack:
		return ResultLose
	case playerValue > blackjackValue:
		return ResultLose
	case dealerValue > blackjackValue:
		return ResultWin
	case playerValue > dealerValue:
		return ResultWin
	case playerValue < dealerValue:
		return ResultLose
	default:
		return ResultPush
	}
}
