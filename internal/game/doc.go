// Package game implements the multiplayer blackjack state machine.
//
// The main type is Game, which owns the shoe and every hand and advances
// through the phases lobby, dealing, playing, dealer turn, and results.
// Players act through Hit, Stand, DoubleDown, Split, and Surrender; illegal
// actions are rejected without mutating state.
//
// # Basic Usage
//
// Create a game, seat players, and drive it through actions:
//
//	g := game.New("host", "Dealer", game.Config{})
//	g.Join("p1", "Alice")
//	g.Start()
//	g.Hit("p1")
//	g.Stand("p1")
//	if g.Phase() == game.PhaseDealerTurn {
//	    g.PlayDealer()
//	}
//	for _, r := range g.Results() {
//	    // settle r.Result
//	}
//
// # Deterministic Testing
//
// Shoes shuffle from a recorded seed, so a game can be replayed by fixing
// Config.Seed. For exact card control, inject a stacked shoe:
//
//	shoe := deck.NewStacked(deck.MustParseCards("AsKh6d...")...)
//	g := game.New("host", "Dealer", game.Config{}, game.WithShoe(shoe))
//
// # Concurrency
//
// Game is not safe for concurrent use. The server layer serializes access
// with a per-game session lock; turn-order invariants assume actions apply
// one at a time.
package game
