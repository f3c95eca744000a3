package relay

import "encoding/json"

// Client -> server event names.
const (
	EventJoinSession    = "join-session"
	EventSendMessage    = "send-message"
	EventTyping         = "typing"
	EventSessionCreated = "session-created"
)

// Server -> client event names.
const (
	EventUserJoined      = "user-joined"
	EventUserLeft        = "user-left"
	EventUserTyping      = "user-typing"
	EventReceiveMessage  = "receive-message"
	EventCalendarUpdated = "calendar-updated"
)

// Envelope is the wire format for both directions: a named event with a
// JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// JoinSessionPayload is sent by a client to join a session room. The
// identity fields are part of the wire format for compatibility but the
// relay derives identity from the authenticated connection instead.
type JoinSessionPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
}

// SendMessagePayload is sent by a client to relay a chat message to its
// current room.
type SendMessagePayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Content   string `json:"content"`
}

// TypingPayload signals a typing-state change. The relay forwards the flag
// without tracking it.
type TypingPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	IsTyping  bool   `json:"isTyping"`
}

// SessionCreatedPayload announces a newly bookable session to all
// connected clients.
type SessionCreatedPayload struct {
	Session json.RawMessage `json:"session"`
	UserID  string          `json:"userId"`
}

// PresenceNotice is broadcast to the other members of a room when a
// member joins or leaves.
type PresenceNotice struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Message  string `json:"message"`
}

// TypingNotice is broadcast to the other members of a room when a member's
// typing state changes.
type TypingNotice struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	IsTyping bool   `json:"isTyping"`
}

// CalendarNotice is broadcast to every connected client when a new session
// becomes bookable.
type CalendarNotice struct {
	Session json.RawMessage `json:"session"`
	UserID  string          `json:"userId"`
	Message string          `json:"message"`
}
