package game

import (
	"errors"
	"fmt"
)

// Lifecycle errors.
var (
	ErrNotInLobby    = errors.New("game: not in lobby phase")
	ErrGameFull      = errors.New("game: lobby is full")
	ErrAlreadySeated = errors.New("game: already seated")
	ErrNotSeated     = errors.New("game: not seated")
	ErrNoPlayers     = errors.New("game: no players seated")

	// ErrEmptyShoe indicates the shoe ran out mid-game. Dealing arithmetic
	// makes this unreachable for legal configurations, so hitting it means
	// a broken invariant and the game instance is no longer playable.
	ErrEmptyShoe = errors.New("game: shoe exhausted")
)

// ErrInvalidMove is the base for every rejected action. Rejected actions
// never mutate game state. Specific rejections wrap it so callers can match
// the whole family with errors.Is.
var ErrInvalidMove = errors.New("game: invalid move")

var (
	ErrNotYourTurn     = fmt.Errorf("%w: not this seat's turn", ErrInvalidMove)
	ErrHandNotActive   = fmt.Errorf("%w: hand already resolved", ErrInvalidMove)
	ErrCannotSplit     = fmt.Errorf("%w: hand is not a splittable pair", ErrInvalidMove)
	ErrCannotDouble    = fmt.Errorf("%w: double down requires an untouched two-card hand", ErrInvalidMove)
	ErrCannotSurrender = fmt.Errorf("%w: surrender requires an untouched unsplit hand", ErrInvalidMove)
	ErrNotDealerTurn   = fmt.Errorf("%w: dealer is not acting", ErrInvalidMove)
	ErrDealerMustStand = fmt.Errorf("%w: dealer must stand", ErrInvalidMove)
)
