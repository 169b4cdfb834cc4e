package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/dexbot/internal/cache"
	"github.com/lox/dexbot/internal/dex"
	"github.com/lox/dexbot/internal/game"
)

// wsHarness runs the full server over httptest with both upstreams faked.
type wsHarness struct {
	server *Server
	http   *httptest.Server
}

func newWSHarness(t *testing.T, upstream http.Handler) *wsHarness {
	t.Helper()

	s := NewServer("127.0.0.1:0", testLogger())

	api := httptest.NewServer(upstream)
	t.Cleanup(api.Close)

	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"), zerolog.Nop(), cache.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	client := dex.New(zerolog.Nop(), store, dex.Config{
		SmogonURL:      api.URL + "/sets",
		PokeAPIURL:     api.URL + "/api",
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  5 * time.Millisecond,
	})
	t.Cleanup(client.Close)

	s.SetGameService(NewGameService(s, game.Config{}, 0, testLogger(), quartz.NewMock(t)))
	s.SetDexService(NewDexService(client, testLogger()))

	srv := httptest.NewServer(s.httpServer.Handler)
	t.Cleanup(srv.Close)
	t.Cleanup(func() { _ = s.Stop() })
	go s.run()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, WaitForHealthy(ctx, srv.URL))

	return &wsHarness{server: s, http: srv}
}

func (h *wsHarness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendMessage(t *testing.T, conn *websocket.Conn, messageType MessageType, data interface{}, requestID string) {
	t.Helper()
	msg, err := NewMessage(messageType, data)
	require.NoError(t, err)
	msg.RequestID = requestID
	require.NoError(t, conn.WriteJSON(msg))
}

func readMessage(t *testing.T, conn *websocket.Conn) *Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return &msg
}

// readUntil drains messages until one of the wanted type arrives. Sessions
// broadcast state freely, so responses interleave with state pushes.
func readUntil(t *testing.T, conn *websocket.Conn, messageType MessageType) *Message {
	t.Helper()
	for i := 0; i < 20; i++ {
		msg := readMessage(t, conn)
		if msg.Type == messageType {
			return msg
		}
	}
	t.Fatalf("no %s message received", messageType)
	return nil
}

func authPlayer(t *testing.T, conn *websocket.Conn, name string) {
	t.Helper()
	sendMessage(t, conn, MessageTypeAuth, AuthData{PlayerName: name}, "")
	msg := readUntil(t, conn, MessageTypeAuthResponse)
	var resp AuthResponseData
	decodePayload(t, msg, &resp)
	require.True(t, resp.Success)
	require.Equal(t, name, resp.PlayerID)
}

func TestServerGameFlow(t *testing.T) {
	t.Parallel()

	h := newWSHarness(t, http.NewServeMux())

	host := h.dial(t)
	authPlayer(t, host, "alice")

	sendMessage(t, host, MessageTypeCreateGame, CreateGameData{MaxSeats: 2}, "")
	created := readUntil(t, host, MessageTypeGameCreated)
	var createdData GameCreatedData
	decodePayload(t, created, &createdData)
	require.NotEmpty(t, createdData.GameID)
	assert.Equal(t, "lobby", createdData.State.Phase)
	assert.Equal(t, "alice", createdData.State.Dealer.ID)

	player := h.dial(t)
	authPlayer(t, player, "bob")
	sendMessage(t, player, MessageTypeJoinGame, JoinGameData{GameID: createdData.GameID}, "")
	joined := readUntil(t, player, MessageTypeGameJoined)
	var joinedData GameJoinedData
	decodePayload(t, joined, &joinedData)
	require.Len(t, joinedData.State.Seats, 1)
	assert.Equal(t, "bob", joinedData.State.Seats[0].ID)

	// The host sees the join as a state broadcast.
	stateMsg := readUntil(t, host, MessageTypeGameState)
	var stateData GameStateData
	decodePayload(t, stateMsg, &stateData)
	assert.Equal(t, createdData.GameID, stateData.GameID)

	// Only the host deals.
	sendMessage(t, player, MessageTypeStartGame, StartGameData{GameID: createdData.GameID}, "")
	errMsg := readUntil(t, player, MessageTypeError)
	var errData ErrorData
	decodePayload(t, errMsg, &errData)
	assert.Equal(t, "not_host", errData.Code)

	sendMessage(t, host, MessageTypeStartGame, StartGameData{GameID: createdData.GameID}, "")
	started := readUntil(t, player, MessageTypeGameState)
	decodePayload(t, started, &stateData)
	assert.NotEqual(t, "lobby", stateData.State.Phase)
}

func TestServerRejectsUnknownGame(t *testing.T) {
	t.Parallel()

	h := newWSHarness(t, http.NewServeMux())
	conn := h.dial(t)
	authPlayer(t, conn, "alice")

	sendMessage(t, conn, MessageTypeAction, ActionData{GameID: "zzz", Move: "hit"}, "")
	msg := readUntil(t, conn, MessageTypeError)
	var errData ErrorData
	decodePayload(t, msg, &errData)
	assert.Equal(t, "game_not_found", errData.Code)
}

func TestServerRequiresAuth(t *testing.T) {
	t.Parallel()

	h := newWSHarness(t, http.NewServeMux())
	conn := h.dial(t)

	sendMessage(t, conn, MessageTypeCreateGame, CreateGameData{}, "")
	msg := readUntil(t, conn, MessageTypeError)
	var errData ErrorData
	decodePayload(t, msg, &errData)
	assert.Equal(t, "not_authenticated", errData.Code)
}

func TestServerDexLookup(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/sets/gen9ou.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Pikachu": {"Classic": {"item": "Light Ball", "nature": "Timid"}}}`)
	})
	mux.HandleFunc("/api/pokemon-species", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results": [{"name": "pikachu"}]}`)
	})

	h := newWSHarness(t, mux)
	conn := h.dial(t)
	authPlayer(t, conn, "alice")

	sendMessage(t, conn, MessageTypeLookupSets, LookupSetsData{Name: "Pikachu", Generation: "9", Tier: "ou"}, "r1")
	msg := readUntil(t, conn, MessageTypeSetsResult)
	assert.Equal(t, "r1", msg.RequestID)
	var sets SetsResultData
	decodePayload(t, msg, &sets)
	assert.Equal(t, "Pikachu", sets.Name)
	assert.Equal(t, "gen9", sets.Generation)
	assert.Equal(t, "ou", sets.Tier)
	assert.Equal(t, "Gen 9 OU (OverUsed)", sets.Format)
	assert.Contains(t, sets.Sets, "Classic")

	// Unknown names come back with suggestions from the species list.
	sendMessage(t, conn, MessageTypeLookupSets, LookupSetsData{Name: "Pikachi"}, "r2")
	msg = readUntil(t, conn, MessageTypeError)
	assert.Equal(t, "r2", msg.RequestID)
	var errData ErrorData
	decodePayload(t, msg, &errData)
	assert.Equal(t, "not_found", errData.Code)
	assert.Contains(t, errData.Suggestions, "pikachu")
}

func TestServerCacheStats(t *testing.T) {
	t.Parallel()

	h := newWSHarness(t, http.NewServeMux())
	conn := h.dial(t)
	authPlayer(t, conn, "alice")

	sendMessage(t, conn, MessageTypeCacheStats, nil, "r9")
	msg := readUntil(t, conn, MessageTypeCacheStatsResult)
	assert.Equal(t, "r9", msg.RequestID)
	var stats CacheStatsResultData
	decodePayload(t, msg, &stats)
	assert.Len(t, stats.Breakers, 2)
}
