package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/dexbot/internal/deck"
	"github.com/lox/dexbot/internal/game"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

// recordingNotifier captures everything a session broadcasts.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []*Message
}

func (n *recordingNotifier) BroadcastToGame(gameID string, msg *Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
}

func (n *recordingNotifier) SendToPlayer(playerID string, msg *Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

// typed returns every recorded message of the given type, in order.
func (n *recordingNotifier) typed(messageType MessageType) []*Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []*Message
	for _, msg := range n.messages {
		if msg.Type == messageType {
			out = append(out, msg)
		}
	}
	return out
}

func decodePayload(t *testing.T, msg *Message, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(msg.Data, v))
}

// sessionHarness wires a session to a mock clock and a recording notifier.
// The shoe is stacked so deals are deterministic: cards come off in the
// order given, dealt one per seat per round with the dealer last.
type sessionHarness struct {
	sess     *Session
	notifier *recordingNotifier
	clock    *quartz.Mock
	removed  chan string
}

func newSessionHarness(t *testing.T, players int, cards string) *sessionHarness {
	t.Helper()

	h := &sessionHarness{
		notifier: &recordingNotifier{},
		clock:    quartz.NewMock(t),
		removed:  make(chan string, 1),
	}

	g := game.New("host", "Host", game.Config{}, game.WithShoe(deck.NewStacked(deck.MustParseCards(cards)...)))
	h.sess = newSession("g1", g, h.notifier, testLogger(), h.clock, 0, func(id string) {
		h.removed <- id
	})

	for i := 1; i <= players; i++ {
		id := fmt.Sprintf("p%d", i)
		require.NoError(t, h.sess.Join(id, id))
	}
	return h
}

func (h *sessionHarness) epoch() int {
	h.sess.mu.Lock()
	defer h.sess.mu.Unlock()
	return h.sess.turnEpoch
}

func (h *sessionHarness) advance(t *testing.T, d time.Duration) {
	t.Helper()
	h.clock.Advance(d).MustWait(context.Background())
}

func (h *sessionHarness) assertRemoved(t *testing.T) {
	t.Helper()
	select {
	case id := <-h.removed:
		assert.Equal(t, "g1", id)
	default:
		t.Fatal("session was not removed")
	}
}

func TestSessionTurnTimeoutStandsPlayer(t *testing.T) {
	t.Parallel()

	// p1 draws 5H 7D for 12, dealer shows 9C with KS down for 19.
	h := newSessionHarness(t, 1, "5H 9C 7D KS")
	require.NoError(t, h.sess.Start("host"))

	st := h.sess.State()
	require.Equal(t, "playing", st.Phase)
	require.Equal(t, "p1", st.CurrentSeat)

	h.advance(t, game.DefaultTurnTimeout)

	timeouts := h.notifier.typed(MessageTypePlayerTimeout)
	require.Len(t, timeouts, 1)
	var timeout PlayerTimeoutData
	decodePayload(t, timeouts[0], &timeout)
	assert.Equal(t, "g1", timeout.GameID)
	assert.Equal(t, "p1", timeout.PlayerName)
	assert.Equal(t, "stand", timeout.Action)

	st = h.sess.State()
	assert.Equal(t, "results", st.Phase)
	assert.Equal(t, "stand", st.Seats[0].Hands[0].Status)

	results := h.notifier.typed(MessageTypeRoundResult)
	require.Len(t, results, 1)
	var result RoundResultData
	decodePayload(t, results[0], &result)
	assert.Equal(t, 19, result.DealerValue)
	require.Len(t, result.Hands, 1)
	assert.Equal(t, "lose", result.Hands[0].Result)

	h.assertRemoved(t)
}

func TestSessionActionResetsTurnTimer(t *testing.T) {
	t.Parallel()

	// p1 holds 5H 2D for 7 and hits into 3C for 10; dealer has 19.
	h := newSessionHarness(t, 1, "5H 9C 2D KS 3C")
	require.NoError(t, h.sess.Start("host"))

	h.advance(t, 30*time.Second)
	require.NoError(t, h.sess.Apply("p1", "hit"))

	// The hit re-armed the timer, so the original deadline passes quietly.
	h.advance(t, 59*time.Second)
	assert.Empty(t, h.notifier.typed(MessageTypePlayerTimeout))
	st := h.sess.State()
	assert.Equal(t, "playing", st.Phase)
	assert.Equal(t, "p1", st.CurrentSeat)

	h.advance(t, time.Second)
	assert.Len(t, h.notifier.typed(MessageTypePlayerTimeout), 1)
	assert.Equal(t, "results", h.sess.State().Phase)
}

func TestSessionStaleTimerFireDoesNothing(t *testing.T) {
	t.Parallel()

	// p1 holds 12, p2 holds 14, dealer 19.
	h := newSessionHarness(t, 2, "5H 6C 9D 7S 8H KC")
	require.NoError(t, h.sess.Start("host"))

	p1Epoch := h.epoch()
	require.NoError(t, h.sess.Apply("p1", "stand"))

	// A fire from p1's superseded timer must not stand p2.
	h.sess.timeoutTurn(p1Epoch, "p1")

	assert.Empty(t, h.notifier.typed(MessageTypePlayerTimeout))
	st := h.sess.State()
	assert.Equal(t, "playing", st.Phase)
	assert.Equal(t, "p2", st.CurrentSeat)

	h.advance(t, game.DefaultTurnTimeout)
	timeouts := h.notifier.typed(MessageTypePlayerTimeout)
	require.Len(t, timeouts, 1)
	var timeout PlayerTimeoutData
	decodePayload(t, timeouts[0], &timeout)
	assert.Equal(t, "p2", timeout.PlayerName)
	assert.Equal(t, "results", h.sess.State().Phase)
}

func TestSessionSplitHandsTimeOutSeparately(t *testing.T) {
	t.Parallel()

	// p1 splits 8H 8S; the first hand draws 5D immediately, the second
	// draws 6D when the turn reaches it. Dealer has 19.
	h := newSessionHarness(t, 1, "8H 9C 8S KS 5D 6D")
	require.NoError(t, h.sess.Start("host"))
	require.NoError(t, h.sess.Apply("p1", "split"))

	h.advance(t, game.DefaultTurnTimeout)

	// The first timeout stood only the first hand.
	st := h.sess.State()
	require.Equal(t, "playing", st.Phase)
	assert.Equal(t, 1, st.CurrentHand)
	require.Len(t, st.Seats[0].Hands, 2)
	assert.Equal(t, "stand", st.Seats[0].Hands[0].Status)
	assert.Equal(t, "active", st.Seats[0].Hands[1].Status)

	h.advance(t, game.DefaultTurnTimeout)

	assert.Len(t, h.notifier.typed(MessageTypePlayerTimeout), 2)
	results := h.notifier.typed(MessageTypeRoundResult)
	require.Len(t, results, 1)
	var result RoundResultData
	decodePayload(t, results[0], &result)
	require.Len(t, result.Hands, 2)
	assert.Equal(t, 13, result.Hands[0].Value)
	assert.Equal(t, 14, result.Hands[1].Value)
	assert.Equal(t, "lose", result.Hands[0].Result)
	assert.Equal(t, "lose", result.Hands[1].Result)
}

func TestSessionLobbyTimeoutCancelsGame(t *testing.T) {
	t.Parallel()

	h := newSessionHarness(t, 1, "5H 9C 7D KS")
	h.sess.startLobbyTimer()

	h.advance(t, DefaultLobbyTimeout)

	assert.Equal(t, "ended", h.sess.State().Phase)
	h.assertRemoved(t)
}

func TestSessionStartRequiresHost(t *testing.T) {
	t.Parallel()

	h := newSessionHarness(t, 1, "5H 9C 7D KS")
	h.sess.startLobbyTimer()

	require.ErrorIs(t, h.sess.Start("p1"), ErrNotHost)
	require.NoError(t, h.sess.Start("host"))

	h.sess.mu.Lock()
	assert.Nil(t, h.sess.lobbyTimer)
	h.sess.mu.Unlock()
}

func TestSessionHostLeavingLobbyCancelsGame(t *testing.T) {
	t.Parallel()

	h := newSessionHarness(t, 1, "5H 9C 7D KS")

	require.NoError(t, h.sess.Leave("host"))

	assert.Equal(t, "ended", h.sess.State().Phase)
	h.assertRemoved(t)
	require.Error(t, h.sess.Join("p2", "p2"))
}

func TestSessionApplyUnknownMove(t *testing.T) {
	t.Parallel()

	h := newSessionHarness(t, 1, "5H 9C 7D KS")
	require.NoError(t, h.sess.Start("host"))

	err := h.sess.Apply("p1", "fold")
	require.ErrorIs(t, err, game.ErrInvalidMove)
}
