// internal/protocol/protocol.go
package protocol

// Frame is one message on the wire: a single JSON object. The relay treats
// frame payloads as opaque; only the dispatcher interprets top-level fields.
type Frame map[string]interface{}

// Client command verbs. Every client frame carries one of these in "command".
const (
	CmdListRooms    = "list_rooms"
	CmdCreateRoom   = "create_room"
	CmdJoinRoom     = "join_room"
	CmdPingRoom     = "ping_room"
	CmdDeleteRoom   = "delete_room"
	CmdLeaveRoom    = "leave_room"
	CmdRelayMessage = "relay_message"
)

// Server reply and notification command names.
const (
	CmdRoomList        = "room_list"
	CmdRoomCreated     = "room_created"
	CmdJoinSuccess     = "join_success"
	CmdJoinFailed      = "join_failed"
	CmdPong            = "pong"
	CmdRoomDeleted     = "room_deleted"
	CmdRoomNotFound    = "room_not_found"
	CmdRoomLeft        = "room_left"
	CmdRelaySent       = "relay_sent"
	CmdRelayFailed     = "relay_failed"
	CmdRelayReceived   = "relay_received"
	CmdClientConnected = "client_connected"
	CmdRoomExpired     = "room_expired"
	CmdError           = "error"
)

// Error reasons. Fixed vocabulary; every "reason" field on the wire is one
// of these.
const (
	ReasonNotFound       = "not_found"
	ReasonWrongPassword  = "wrong_password"
	ReasonFull           = "full"
	ReasonUnknownCommand = "unknown_command"
	ReasonInvalidRequest = "invalid_request"
	ReasonNotAuthorized  = "not_authorized"
	ReasonInternal       = "internal"
)

// Relay origin tags and synthesized disconnect payload types.
const (
	RelayFromKey = "_relay_from"
	FromHost     = "host"
	FromJoiner   = "joiner"

	TypeHostLeft   = "host_left"
	TypeJoinerLeft = "joiner_left"
)

// Command returns the frame's command verb, or "" when absent or not a string.
func (f Frame) Command() string {
	return f.String("command")
}

// String returns the named field as a string, or "" when absent or of
// another type.
func (f Frame) String(key string) string {
	s, _ := f[key].(string)
	return s
}

// Object returns the named field as a JSON object, with ok reporting whether
// it was present and object-typed.
func (f Frame) Object(key string) (map[string]interface{}, bool) {
	m, ok := f[key].(map[string]interface{})
	return m, ok
}

// ErrorFrame builds the standard error reply envelope.
func ErrorFrame(reason, message string) Frame {
	return Frame{
		"command": CmdError,
		"reason":  reason,
		"message": message,
	}
}
