package server

import (
	"encoding/json"
	"time"

	"github.com/lox/dexbot/internal/breaker"
	"github.com/lox/dexbot/internal/dex"
	"github.com/lox/dexbot/internal/flight"
	"github.com/lox/dexbot/internal/game"
)

// Message represents the base WebSocket message structure
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(messageType MessageType, data interface{}) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// Client → Server Messages

type AuthData struct {
	PlayerName string `json:"playerName"`
}

type CreateGameData struct {
	Decks              int `json:"decks,omitempty"`
	MaxSeats           int `json:"maxSeats,omitempty"`
	TurnTimeoutSeconds int `json:"turnTimeoutSeconds,omitempty"`
}

type JoinGameData struct {
	GameID string `json:"gameId"`
}

type LeaveGameData struct {
	GameID string `json:"gameId"`
}

type StartGameData struct {
	GameID string `json:"gameId"`
}

type ActionData struct {
	GameID string `json:"gameId"`
	Move   string `json:"move"`
}

type LookupSetsData struct {
	Name       string `json:"name"`
	Generation string `json:"generation,omitempty"`
	Tier       string `json:"tier,omitempty"`
}

type SearchTiersData struct {
	Name       string `json:"name"`
	Generation string `json:"generation,omitempty"`
}

type LookupYieldData struct {
	Name string `json:"name"`
}

type LookupSpriteData struct {
	Name       string `json:"name"`
	Shiny      bool   `json:"shiny,omitempty"`
	Generation int    `json:"generation,omitempty"`
}

type SetGenerationData struct {
	Generation string `json:"generation"`
}

// Server → Client Messages

type AuthResponseData struct {
	Success  bool   `json:"success"`
	PlayerID string `json:"playerId,omitempty"`
	Error    string `json:"error,omitempty"`
}

type ErrorData struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

type GameCreatedData struct {
	GameID string     `json:"gameId"`
	State  game.State `json:"state"`
}

type GameJoinedData struct {
	GameID string     `json:"gameId"`
	State  game.State `json:"state"`
}

type GameLeftData struct {
	GameID string `json:"gameId"`
}

type GameStateData struct {
	GameID string     `json:"gameId"`
	State  game.State `json:"state"`
}

type PlayerTimeoutData struct {
	GameID         string `json:"gameId"`
	PlayerName     string `json:"playerName"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	Action         string `json:"action"` // The action taken due to timeout
}

// HandResult is one settled hand in a round result broadcast.
type HandResult struct {
	SeatID    string   `json:"seatId"`
	SeatName  string   `json:"seatName"`
	HandIndex int      `json:"handIndex"`
	Cards     []string `json:"cards"`
	Value     int      `json:"value"`
	Result    string   `json:"result"`
}

type RoundResultData struct {
	GameID        string       `json:"gameId"`
	DealerCards   []string     `json:"dealerCards"`
	DealerValue   int          `json:"dealerValue"`
	DealerAutoWin bool         `json:"dealerAutoWin,omitempty"`
	Hands         []HandResult `json:"hands"`
}

type SetsResultData struct {
	Name       string      `json:"name"`
	Generation string      `json:"generation"`
	Tier       string      `json:"tier"`
	Format     string      `json:"format"`
	DexURL     string      `json:"dexUrl"`
	Sets       dex.SetList `json:"sets"`
}

type SearchResultData struct {
	Name       string         `json:"name"`
	Generation string         `json:"generation"`
	Tiers      []dex.TierSets `json:"tiers"`
}

type YieldResultData struct {
	Yield   dex.EVYield `json:"yield"`
	Display string      `json:"display"`
}

type SpriteResultData struct {
	Sprite dex.Sprite `json:"sprite"`
}

type GenerationSetData struct {
	Scope      string `json:"scope"`
	Generation string `json:"generation"`
}

type CacheStatsResultData struct {
	Cache    dex.CacheStats  `json:"cache"`
	Breakers []breaker.Stats `json:"breakers"`
	Flight   flight.Stats    `json:"flight"`
}

// Helper functions to convert between internal types and message types

// RoundResultFromGame settles a finished game into a broadcastable result.
// It must only be called once the game has reached a terminal phase.
func RoundResultFromGame(gameID string, g *game.Game) RoundResultData {
	st := g.State()
	dealer := st.Dealer.Hands[0]

	data := RoundResultData{
		GameID:        gameID,
		DealerCards:   dealer.Cards,
		DealerValue:   dealer.Value,
		DealerAutoWin: g.DealerAutoWin(),
	}

	for _, out := range g.Results() {
		cards := make([]string, 0, len(out.Cards))
		for _, c := range out.Cards {
			cards = append(cards, c.String())
		}
		data.Hands = append(data.Hands, HandResult{
			SeatID:    out.SeatID,
			SeatName:  out.SeatName,
			HandIndex: out.HandIndex,
			Cards:     cards,
			Value:     out.Value,
			Result:    out.Result.String(),
		})
	}

	return data
}
