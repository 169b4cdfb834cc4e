package server

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/dexbot/internal/game"
)

// DefaultLobbyTimeout is how long a game may wait in the lobby before it
// is cancelled.
const DefaultLobbyTimeout = 90 * time.Second

var (
	ErrGameNotFound = errors.New("game not found")
	ErrNotHost      = errors.New("only the host can start the game")
)

// Session owns one game and serializes every mutation through its mutex.
// It arms a single turn timer per acting seat; the timer is stopped and
// re-armed on every transition, and an epoch counter makes fires from
// superseded timers no-ops. A lobby timer cancels games that never start.
type Session struct {
	ID     string
	HostID string

	notifier Notifier
	logger   *log.Logger
	clock    quartz.Clock

	mu           sync.Mutex
	game         *game.Game
	turnTimer    *quartz.Timer
	turnEpoch    int
	lobbyTimer   *quartz.Timer
	lobbyTimeout time.Duration
	remove       func(sessionID string)
	finished     bool
}

func newSession(id string, g *game.Game, notifier Notifier, logger *log.Logger, clock quartz.Clock, lobbyTimeout time.Duration, remove func(sessionID string)) *Session {
	if lobbyTimeout <= 0 {
		lobbyTimeout = DefaultLobbyTimeout
	}
	return &Session{
		ID:           id,
		HostID:       g.HostID(),
		game:         g,
		notifier:     notifier,
		logger:       logger.WithPrefix("session").With("game", id),
		clock:        clock,
		lobbyTimeout: lobbyTimeout,
		remove:       remove,
	}
}

// startLobbyTimer arms the lobby expiry. Called once, after the session is
// registered.
func (s *Session) startLobbyTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lobbyTimer = s.clock.AfterFunc(s.lobbyTimeout, s.expireLobby)
}

// State returns the current public snapshot.
func (s *Session) State() game.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game.State()
}

// Join seats a player in the lobby and pushes the updated state.
func (s *Session) Join(playerID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.game.Join(playerID, name); err != nil {
		return err
	}
	s.logger.Info("Player joined", "player", playerID)
	s.broadcastStateLocked()
	return nil
}

// Leave removes a player from the lobby. A host leaving their own lobby
// cancels the game outright.
func (s *Session) Leave(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if playerID == s.HostID && s.game.Phase() == game.PhaseLobby {
		s.logger.Info("Host left, cancelling game")
		s.game.End()
		s.broadcastStateLocked()
		s.finishLocked()
		return nil
	}

	if err := s.game.Leave(playerID); err != nil {
		return err
	}
	s.logger.Info("Player left", "player", playerID)
	s.broadcastStateLocked()
	return nil
}

// Start deals the opening round. Only the host may start.
func (s *Session) Start(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if playerID != s.HostID {
		return ErrNotHost
	}
	if err := s.game.Start(); err != nil {
		return err
	}
	if s.lobbyTimer != nil {
		s.lobbyTimer.Stop()
		s.lobbyTimer = nil
	}
	s.logger.Info("Game started", "players", s.game.SeatCount())
	s.afterTransitionLocked()
	return nil
}

// Apply executes one named move for a player.
func (s *Session) Apply(playerID, move string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	switch move {
	case "hit":
		_, err = s.game.Hit(playerID)
	case "stand":
		err = s.game.Stand(playerID)
	case "double":
		_, err = s.game.DoubleDown(playerID)
	case "split":
		err = s.game.Split(playerID)
	case "surrender":
		err = s.game.Surrender(playerID)
	default:
		return fmt.Errorf("%w: unknown move %q", game.ErrInvalidMove, move)
	}
	if err != nil {
		return err
	}

	s.logger.Debug("Applied move", "player", playerID, "move", move, "phase", s.game.Phase())
	s.afterTransitionLocked()
	return nil
}

// Close cancels all timers without broadcasting. Used on server shutdown.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
	s.stopTimersLocked()
	s.game.End()
}

// afterTransitionLocked runs the dealer when play has passed to them,
// re-arms the turn timer and pushes the new state. Terminal games also
// broadcast their settled results and retire the session.
func (s *Session) afterTransitionLocked() {
	if s.game.Phase() == game.PhaseDealerTurn {
		if _, err := s.game.PlayDealer(); err != nil {
			s.logger.Error("Dealer play failed, ending game", "error", err)
			s.game.End()
		}
	}

	s.rescheduleTurnLocked()
	s.broadcastStateLocked()

	if s.game.Phase().Terminal() {
		s.broadcastResultLocked()
		s.finishLocked()
	}
}

// rescheduleTurnLocked arms the turn timer for whichever seat now acts.
// Any previously armed timer is cancelled; bumping the epoch makes a fire
// that already escaped Stop a no-op.
func (s *Session) rescheduleTurnLocked() {
	if s.turnTimer != nil {
		s.turnTimer.Stop()
		s.turnTimer = nil
	}
	s.turnEpoch++

	if s.game.Phase() != game.PhasePlaying {
		return
	}
	seatID, ok := s.game.CurrentTurn()
	if !ok {
		return
	}

	epoch := s.turnEpoch
	s.turnTimer = s.clock.AfterFunc(s.game.TurnTimeout(), func() {
		s.timeoutTurn(epoch, seatID)
	})
}

// timeoutTurn is the turn timer callback: the seat that was acting when
// the timer was armed is forced to stand. Fires carrying a stale epoch
// lost the race against a real action and do nothing.
func (s *Session) timeoutTurn(epoch int, seatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished || epoch != s.turnEpoch {
		return
	}

	s.logger.Warn("Turn timed out, standing", "player", seatID)
	if err := s.game.Stand(seatID); err != nil {
		s.logger.Error("Timeout stand rejected", "player", seatID, "error", err)
		return
	}

	msg, err := NewMessage(MessageTypePlayerTimeout, PlayerTimeoutData{
		GameID:         s.ID,
		PlayerName:     seatID,
		TimeoutSeconds: int(s.game.TurnTimeout().Seconds()),
		Action:         "stand",
	})
	if err == nil {
		s.notifier.BroadcastToGame(s.ID, msg)
	}

	s.afterTransitionLocked()
}

// expireLobby is the lobby timer callback: a game still waiting for its
// host to start is cancelled.
func (s *Session) expireLobby() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished || s.game.Phase() != game.PhaseLobby {
		return
	}

	s.logger.Info("Lobby timed out, cancelling game")
	s.game.End()
	s.broadcastStateLocked()
	s.finishLocked()
}

func (s *Session) broadcastStateLocked() {
	msg, err := NewMessage(MessageTypeGameState, GameStateData{GameID: s.ID, State: s.game.State()})
	if err != nil {
		s.logger.Error("Failed to create game state message", "error", err)
		return
	}
	s.notifier.BroadcastToGame(s.ID, msg)
}

func (s *Session) broadcastResultLocked() {
	msg, err := NewMessage(MessageTypeRoundResult, RoundResultFromGame(s.ID, s.game))
	if err != nil {
		s.logger.Error("Failed to create round result message", "error", err)
		return
	}
	s.notifier.BroadcastToGame(s.ID, msg)
}

func (s *Session) stopTimersLocked() {
	if s.turnTimer != nil {
		s.turnTimer.Stop()
		s.turnTimer = nil
	}
	s.turnEpoch++
	if s.lobbyTimer != nil {
		s.lobbyTimer.Stop()
		s.lobbyTimer = nil
	}
}

// finishLocked retires a settled or cancelled session: timers are stopped
// and the owning registry is told to drop it.
func (s *Session) finishLocked() {
	if s.finished {
		return
	}
	s.finished = true
	s.stopTimersLocked()
	if s.remove != nil {
		s.remove(s.ID)
	}
}
