package server

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/dexbot/internal/game"
	"github.com/lox/dexbot/internal/gameid"
)

// Notifier delivers protocol messages to connected clients. The Server
// implements it; tests substitute a recorder.
type Notifier interface {
	BroadcastToGame(gameID string, msg *Message)
	SendToPlayer(playerID string, msg *Message) error
}

// GameService manages the registry of active game sessions.
type GameService struct {
	notifier     Notifier
	base         game.Config
	lobbyTimeout time.Duration
	logger       *log.Logger
	clock        quartz.Clock

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewGameService creates a new game service. The base config supplies the
// per-game defaults; create requests may override seats, decks and the
// turn timeout within the engine's bounds.
func NewGameService(notifier Notifier, base game.Config, lobbyTimeout time.Duration, logger *log.Logger, clock quartz.Clock) *GameService {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &GameService{
		notifier:     notifier,
		base:         base,
		lobbyTimeout: lobbyTimeout,
		logger:       logger.WithPrefix("game-service"),
		clock:        clock,
		sessions:     make(map[string]*Session),
	}
}

// CreateGame opens a new lobby hosted by the given player. The host deals
// and cannot occupy a player seat.
func (gs *GameService) CreateGame(hostID, hostName string, data CreateGameData) (*Session, error) {
	cfg := gs.base
	if data.MaxSeats > 0 {
		cfg.MaxSeats = data.MaxSeats
	}
	if data.Decks > 0 {
		cfg.Decks = data.Decks
	}
	if data.TurnTimeoutSeconds > 0 {
		cfg.TurnTimeout = time.Duration(data.TurnTimeoutSeconds) * time.Second
	}

	id := gameid.Generate()
	sess := newSession(id, game.New(hostID, hostName, cfg), gs.notifier, gs.logger, gs.clock, gs.lobbyTimeout, gs.removeSession)

	gs.mu.Lock()
	gs.sessions[id] = sess
	gs.mu.Unlock()

	sess.startLobbyTimer()
	gs.logger.Info("Created game", "id", id, "host", hostName)
	return sess, nil
}

// GetSession returns a session by game ID, or nil.
func (gs *GameService) GetSession(gameID string) *Session {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	return gs.sessions[gameID]
}

// JoinGame seats a player in a lobby.
func (gs *GameService) JoinGame(gameID, playerID, name string) error {
	sess := gs.GetSession(gameID)
	if sess == nil {
		return ErrGameNotFound
	}
	return sess.Join(playerID, name)
}

// LeaveGame removes a player from a lobby.
func (gs *GameService) LeaveGame(gameID, playerID string) error {
	sess := gs.GetSession(gameID)
	if sess == nil {
		return ErrGameNotFound
	}
	return sess.Leave(playerID)
}

// StartGame deals the opening round of a lobby's game.
func (gs *GameService) StartGame(gameID, playerID string) error {
	sess := gs.GetSession(gameID)
	if sess == nil {
		return ErrGameNotFound
	}
	return sess.Start(playerID)
}

// Action applies one move for a player.
func (gs *GameService) Action(gameID, playerID, move string) error {
	sess := gs.GetSession(gameID)
	if sess == nil {
		return ErrGameNotFound
	}
	return sess.Apply(playerID, move)
}

// SessionCount returns the number of active sessions.
func (gs *GameService) SessionCount() int {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	return len(gs.sessions)
}

// Shutdown closes every session. Used on server stop.
func (gs *GameService) Shutdown() {
	gs.mu.Lock()
	sessions := make([]*Session, 0, len(gs.sessions))
	for _, sess := range gs.sessions {
		sessions = append(sessions, sess)
	}
	gs.sessions = make(map[string]*Session)
	gs.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
}

func (gs *GameService) removeSession(gameID string) {
	gs.mu.Lock()
	delete(gs.sessions, gameID)
	gs.mu.Unlock()
	gs.logger.Info("Removed game", "id", gameID)
}
