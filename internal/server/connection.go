package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/lox/dexbot/internal/dex"
	"github.com/lox/dexbot/internal/game"
)

// Connection represents a WebSocket connection to a client
type Connection struct {
	conn        *websocket.Conn
	send        chan *Message
	playerID    string
	gameID      string
	logger      *log.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	mu          sync.RWMutex
	closeOnce   sync.Once
	gameService *GameService
	dexService  *DexService
}

// NewConnection creates a new connection wrapper
func NewConnection(conn *websocket.Conn, logger *log.Logger, gameService *GameService, dexService *DexService) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:        conn,
		send:        make(chan *Message, 256),
		logger:      logger.WithPrefix("conn"),
		ctx:         ctx,
		cancel:      cancel,
		gameService: gameService,
		dexService:  dexService,
	}
}

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close closes the connection
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// SendMessage sends a message to the client
func (c *Connection) SendMessage(msg *Message) error {
	defer func() {
		if r := recover(); r != nil {
			// Channel was closed, this is expected during shutdown
			c.logger.Debug("Attempted to send message on closed connection", "error", r)
		}
	}()

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn("Connection send buffer full, closing connection")
		_ = c.Close() // Ignore close errors
		return ErrConnectionClosed
	}
}

// SetPlayer associates this connection with a player
func (c *Connection) SetPlayer(playerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playerID = playerID
}

// GetPlayer returns the associated player ID
func (c *Connection) GetPlayer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID
}

// SetGame associates this connection with a game
func (c *Connection) SetGame(gameID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gameID = gameID
}

// GetGame returns the associated game ID
func (c *Connection) GetGame() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gameID
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

var (
	ErrConnectionClosed = websocket.ErrCloseSent
)

// readPump handles incoming messages from the client
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }() // Ignore close errors during cleanup

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			break
		}

		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // Ignore close errors during cleanup
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// handleMessage processes incoming messages from the client. Game moves
// run inline; dex lookups hit upstream APIs and run in their own
// goroutine so the read pump never blocks on the network.
func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("Received message", "type", msg.Type, "player", c.GetPlayer())

	switch msg.Type {
	case MessageTypeAuth:
		var data AuthData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse auth data")
			return
		}
		c.handleAuth(data)

	case MessageTypeCreateGame:
		var data CreateGameData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse create game data")
			return
		}
		c.handleCreateGame(data)

	case MessageTypeJoinGame:
		var data JoinGameData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse join game data")
			return
		}
		c.handleJoinGame(data)

	case MessageTypeLeaveGame:
		var data LeaveGameData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse leave game data")
			return
		}
		c.handleLeaveGame(data)

	case MessageTypeStartGame:
		var data StartGameData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse start game data")
			return
		}
		c.handleStartGame(data)

	case MessageTypeAction:
		var data ActionData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse action data")
			return
		}
		c.handleAction(data)

	case MessageTypeLookupSets:
		var data LookupSetsData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse lookup sets data")
			return
		}
		go c.handleLookupSets(data, msg.RequestID)

	case MessageTypeSearchTiers:
		var data SearchTiersData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse search tiers data")
			return
		}
		go c.handleSearchTiers(data, msg.RequestID)

	case MessageTypeLookupYield:
		var data LookupYieldData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse lookup yield data")
			return
		}
		go c.handleLookupYield(data, msg.RequestID)

	case MessageTypeLookupSprite:
		var data LookupSpriteData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse lookup sprite data")
			return
		}
		go c.handleLookupSprite(data, msg.RequestID)

	case MessageTypeSetGeneration:
		var data SetGenerationData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse set generation data")
			return
		}
		go c.handleSetGeneration(data, msg.RequestID)

	case MessageTypeCacheStats:
		go c.handleCacheStats(msg.RequestID)

	default:
		c.sendError("unknown_message_type", "Unknown message type: "+msg.Type.String())
	}
}

// sendError sends an error message to the client
func (c *Connection) sendError(code, message string) {
	errorMsg, err := NewMessage(MessageTypeError, ErrorData{
		Code:    code,
		Message: message,
	})
	if err != nil {
		c.logger.Error("Failed to create error message", "error", err)
		return
	}

	_ = c.SendMessage(errorMsg) // Ignore send errors during error handling
}

// reply sends a response correlated to the request that prompted it.
func (c *Connection) reply(requestID string, messageType MessageType, data interface{}) {
	msg, err := NewMessage(messageType, data)
	if err != nil {
		c.logger.Error("Failed to create response message", "error", err, "type", messageType)
		return
	}
	msg.RequestID = requestID
	_ = c.SendMessage(msg) // Ignore send errors
}

// replyError maps a lookup failure onto the error envelope, attaching
// close-match suggestions when the name simply wasn't found.
func (c *Connection) replyError(requestID string, err error, name string) {
	data := ErrorData{Code: errorCode(err), Message: err.Error()}
	if errors.Is(err, dex.ErrNotFound) && name != "" && c.dexService != nil {
		data.Suggestions = c.dexService.Suggestions(c.ctx, name)
	}

	msg, merr := NewMessage(MessageTypeError, data)
	if merr != nil {
		c.logger.Error("Failed to create error message", "error", merr)
		return
	}
	msg.RequestID = requestID
	_ = c.SendMessage(msg) // Ignore send errors
}

// errorCode maps service errors onto protocol error codes.
func errorCode(err error) string {
	var notInGen *dex.NotInGenerationError
	switch {
	case errors.Is(err, ErrGameNotFound):
		return "game_not_found"
	case errors.Is(err, ErrNotHost):
		return "not_host"
	case errors.Is(err, game.ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, game.ErrInvalidMove):
		return "invalid_move"
	case errors.Is(err, game.ErrGameFull):
		return "game_full"
	case errors.Is(err, game.ErrAlreadySeated):
		return "already_seated"
	case errors.Is(err, game.ErrNotSeated):
		return "not_seated"
	case errors.Is(err, game.ErrNotInLobby):
		return "not_in_lobby"
	case errors.Is(err, game.ErrNoPlayers):
		return "no_players"
	case errors.As(err, &notInGen):
		return "not_in_generation"
	case errors.Is(err, dex.ErrNotFound):
		return "not_found"
	case errors.Is(err, dex.ErrInvalidGeneration):
		return "invalid_generation"
	case errors.Is(err, dex.ErrInvalidName):
		return "invalid_name"
	case errors.Is(err, dex.ErrUnavailable):
		return "unavailable"
	default:
		return "internal_error"
	}
}

// generationScope is the namespace this connection's generation defaults
// resolve against.
func (c *Connection) generationScope() string {
	if gameID := c.GetGame(); gameID != "" {
		return "game:" + gameID
	}
	return "global"
}

func (c *Connection) handleAuth(data AuthData) {
	c.logger.Info("Auth request", "playerName", data.PlayerName)

	// Simple authentication - just accept any player name
	if data.PlayerName == "" {
		c.sendError("invalid_auth", "Player name required")
		return
	}

	c.SetPlayer(data.PlayerName)

	response, _ := NewMessage(MessageTypeAuthResponse, AuthResponseData{
		Success:  true,
		PlayerID: data.PlayerName,
	})
	_ = c.SendMessage(response) // Ignore send errors
}

// authedPlayer returns the player name, sending an error when the
// connection has not authenticated.
func (c *Connection) authedPlayer() (string, bool) {
	playerName := c.GetPlayer()
	if playerName == "" {
		c.sendError("not_authenticated", "Must authenticate first")
		return "", false
	}
	return playerName, true
}

func (c *Connection) handleCreateGame(data CreateGameData) {
	playerName, ok := c.authedPlayer()
	if !ok {
		return
	}
	if c.gameService == nil {
		c.sendError("service_unavailable", "Game service not available")
		return
	}
	if c.GetGame() != "" {
		c.sendError("already_in_game", "Leave the current game first")
		return
	}

	c.logger.Info("Create game request", "player", playerName)

	sess, err := c.gameService.CreateGame(playerName, playerName, data)
	if err != nil {
		c.sendError(errorCode(err), err.Error())
		return
	}
	c.SetGame(sess.ID)

	response, _ := NewMessage(MessageTypeGameCreated, GameCreatedData{
		GameID: sess.ID,
		State:  sess.State(),
	})
	_ = c.SendMessage(response) // Ignore send errors
}

func (c *Connection) handleJoinGame(data JoinGameData) {
	playerName, ok := c.authedPlayer()
	if !ok {
		return
	}
	if c.gameService == nil {
		c.sendError("service_unavailable", "Game service not available")
		return
	}

	c.logger.Info("Join game request", "gameId", data.GameID, "player", playerName)

	// Associate before joining so the join's own state broadcast reaches
	// this connection.
	c.SetGame(data.GameID)
	if err := c.gameService.JoinGame(data.GameID, playerName, playerName); err != nil {
		c.SetGame("")
		c.sendError(errorCode(err), err.Error())
		return
	}

	sess := c.gameService.GetSession(data.GameID)
	if sess == nil {
		c.SetGame("")
		c.sendError("game_not_found", "Game not found after join")
		return
	}

	response, _ := NewMessage(MessageTypeGameJoined, GameJoinedData{
		GameID: data.GameID,
		State:  sess.State(),
	})
	_ = c.SendMessage(response) // Ignore send errors
}

func (c *Connection) handleLeaveGame(data LeaveGameData) {
	playerName, ok := c.authedPlayer()
	if !ok {
		return
	}
	if c.gameService == nil {
		c.sendError("service_unavailable", "Game service not available")
		return
	}

	c.logger.Info("Leave game request", "gameId", data.GameID, "player", playerName)

	if err := c.gameService.LeaveGame(data.GameID, playerName); err != nil {
		c.sendError(errorCode(err), err.Error())
		return
	}
	c.SetGame("")

	response, _ := NewMessage(MessageTypeGameLeft, GameLeftData{GameID: data.GameID})
	_ = c.SendMessage(response) // Ignore send errors
}

func (c *Connection) handleStartGame(data StartGameData) {
	playerName, ok := c.authedPlayer()
	if !ok {
		return
	}
	if c.gameService == nil {
		c.sendError("service_unavailable", "Game service not available")
		return
	}

	gameID := data.GameID
	if gameID == "" {
		gameID = c.GetGame()
	}

	c.logger.Info("Start game request", "gameId", gameID, "player", playerName)

	if err := c.gameService.StartGame(gameID, playerName); err != nil {
		c.sendError(errorCode(err), err.Error())
		return
	}
	// No direct response - the session broadcasts the dealt state
}

func (c *Connection) handleAction(data ActionData) {
	playerName, ok := c.authedPlayer()
	if !ok {
		return
	}
	if c.gameService == nil {
		c.sendError("service_unavailable", "Game service not available")
		return
	}

	gameID := data.GameID
	if gameID == "" {
		gameID = c.GetGame()
	}

	c.logger.Debug("Action request", "gameId", gameID, "player", playerName, "move", data.Move)

	if err := c.gameService.Action(gameID, playerName, data.Move); err != nil {
		c.sendError(errorCode(err), err.Error())
		return
	}
	// No direct response - the session broadcasts the resulting state
}

func (c *Connection) handleLookupSets(data LookupSetsData, requestID string) {
	if c.dexService == nil {
		c.sendError("service_unavailable", "Dex service not available")
		return
	}

	result, err := c.dexService.LookupSets(c.ctx, c.generationScope(), data)
	if err != nil {
		c.replyError(requestID, err, data.Name)
		return
	}
	c.reply(requestID, MessageTypeSetsResult, result)
}

func (c *Connection) handleSearchTiers(data SearchTiersData, requestID string) {
	if c.dexService == nil {
		c.sendError("service_unavailable", "Dex service not available")
		return
	}

	result, err := c.dexService.SearchTiers(c.ctx, c.generationScope(), data)
	if err != nil {
		c.replyError(requestID, err, data.Name)
		return
	}
	c.reply(requestID, MessageTypeSearchResult, result)
}

func (c *Connection) handleLookupYield(data LookupYieldData, requestID string) {
	if c.dexService == nil {
		c.sendError("service_unavailable", "Dex service not available")
		return
	}

	result, err := c.dexService.LookupYield(c.ctx, data)
	if err != nil {
		c.replyError(requestID, err, data.Name)
		return
	}
	c.reply(requestID, MessageTypeYieldResult, result)
}

func (c *Connection) handleLookupSprite(data LookupSpriteData, requestID string) {
	if c.dexService == nil {
		c.sendError("service_unavailable", "Dex service not available")
		return
	}

	result, err := c.dexService.LookupSprite(c.ctx, c.generationScope(), data)
	if err != nil {
		c.replyError(requestID, err, data.Name)
		return
	}
	c.reply(requestID, MessageTypeSpriteResult, result)
}

func (c *Connection) handleSetGeneration(data SetGenerationData, requestID string) {
	if c.dexService == nil {
		c.sendError("service_unavailable", "Dex service not available")
		return
	}

	result, err := c.dexService.SetGeneration(c.ctx, c.generationScope(), data)
	if err != nil {
		c.replyError(requestID, err, "")
		return
	}
	c.reply(requestID, MessageTypeGenerationSet, result)
}

func (c *Connection) handleCacheStats(requestID string) {
	if c.dexService == nil {
		c.sendError("service_unavailable", "Dex service not available")
		return
	}

	result, err := c.dexService.Stats(c.ctx)
	if err != nil {
		c.replyError(requestID, err, "")
		return
	}
	c.reply(requestID, MessageTypeCacheStatsResult, result)
}
