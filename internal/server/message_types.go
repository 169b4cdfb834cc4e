package server

// MessageType represents a WebSocket message type with type safety
type MessageType string

// WebSocket message type constants
// These are used for client-server communication protocol
const (
	// Client to server messages
	MessageTypeAuth          MessageType = "auth"
	MessageTypeCreateGame    MessageType = "create_game"
	MessageTypeJoinGame      MessageType = "join_game"
	MessageTypeLeaveGame     MessageType = "leave_game"
	MessageTypeStartGame     MessageType = "start_game"
	MessageTypeAction        MessageType = "action"
	MessageTypeLookupSets    MessageType = "lookup_sets"
	MessageTypeSearchTiers   MessageType = "search_tiers"
	MessageTypeLookupYield   MessageType = "lookup_yield"
	MessageTypeLookupSprite  MessageType = "lookup_sprite"
	MessageTypeSetGeneration MessageType = "set_generation"
	MessageTypeCacheStats    MessageType = "cache_stats"

	// Server to client messages
	MessageTypeAuthResponse     MessageType = "auth_response"
	MessageTypeGameCreated      MessageType = "game_created"
	MessageTypeGameJoined       MessageType = "game_joined"
	MessageTypeGameLeft         MessageType = "game_left"
	MessageTypeGameState        MessageType = "game_state"
	MessageTypePlayerTimeout    MessageType = "player_timeout"
	MessageTypeRoundResult      MessageType = "round_result"
	MessageTypeSetsResult       MessageType = "sets_result"
	MessageTypeSearchResult     MessageType = "search_result"
	MessageTypeYieldResult      MessageType = "yield_result"
	MessageTypeSpriteResult     MessageType = "sprite_result"
	MessageTypeGenerationSet    MessageType = "generation_set"
	MessageTypeCacheStatsResult MessageType = "cache_stats_result"
	MessageTypeError            MessageType = "error"
)

// String returns the string representation of the message type
func (mt MessageType) String() string {
	return string(mt)
}
