package server

// MessageType represents a WebSocket message type with type safety
type MessageType string

// WebSocket message type constants
// These are used for client-server communication protocol
const (
	// Client to server messages
	MessageTypeCreateRoom   MessageType = "create_room"
	MessageTypeJoinRoom     MessageType = "join_room"
	MessageTypeRejoinRoom   MessageType = "rejoin_room"
	MessageTypeStartGame    MessageType = "start_game"
	MessageTypePlaceBet     MessageType = "place_bet"
	MessageTypePlayerAction MessageType = "player_action"
	MessageTypeNextRound    MessageType = "next_round"
	MessageTypeLeaveRoom    MessageType = "leave_room"

	// Server to client messages
	MessageTypeRoomCreated  MessageType = "room_created"
	MessageTypeRoomJoined   MessageType = "room_joined"
	MessageTypeRoomRejoined MessageType = "room_rejoined"
	MessageTypeRoomState    MessageType = "room_state"
	MessageTypeError        MessageType = "error"
)

// String returns the string representation of the message type
func (mt MessageType) String() string {
	return string(mt)
}
