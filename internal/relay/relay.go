package relay

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/Yashvi2874/tradetalents/internal/metrics"
)

// Sink receives server events bound for a single connection. Deliver must
// not block: the relay calls it while holding its lock, in per-room send
// order. A transport sink that cannot keep up should drop the connection
// rather than stall delivery.
type Sink interface {
	Deliver(event string, payload any)
}

// ChatMessage is a relayed message. It exists only for the duration of the
// fan-out; the relay keeps no history, so a member joining after a message
// was sent never sees it.
type ChatMessage struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

type connection struct {
	sink     Sink
	userID   string
	userName string
}

// Relay is the real-time fan-out layer: it owns the connection registry
// and room membership, and re-broadcasts presence, typing, chat and
// calendar events to connected clients. All state is in-memory and lost on
// restart; delivery is best-effort, at-most-once, with per-room FIFO
// ordering. Nothing a single client does can affect other clients' state
// beyond the broadcasts defined here.
type Relay struct {
	mu       sync.Mutex
	registry *Registry
	rooms    *Rooms
	conns    map[string]*connection
	logger   zerolog.Logger
}

// New creates a relay with empty state.
func New(logger zerolog.Logger) *Relay {
	return &Relay{
		registry: NewRegistry(),
		rooms:    NewRooms(),
		conns:    make(map[string]*connection),
		logger:   logger,
	}
}

// Register adds a newly connected client. Identity comes from the
// authenticated transport context, never from event payloads.
func (r *Relay) Register(connID, userID, userName string, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.registry.OnConnect(connID)
	r.conns[connID] = &connection{sink: sink, userID: userID, userName: userName}

	metrics.RelayConnections.Inc()
	r.logger.Debug().Str("conn_id", connID).Str("user_id", userID).Msg("connection registered")
}

// Join moves a connection into a room and notifies the other members.
// A connection belongs to at most one room: joining while already in a
// different room first synthesizes a leave from the old room, so no ghost
// membership is left behind. Re-joining the same room is idempotent for
// membership but still emits a fresh join notification.
func (r *Relay) Join(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return
	}

	if prev, found := r.registry.Lookup(connID); found && prev.RoomID != "" && prev.RoomID != roomID {
		r.leaveRoomLocked(connID, prev)
	}

	r.registry.OnJoin(connID, roomID, conn.userID, conn.userName)
	r.rooms.AddMember(roomID, connID)
	metrics.RelayRooms.Set(float64(r.rooms.Count()))

	r.broadcastRoomLocked(roomID, connID, EventUserJoined, PresenceNotice{
		UserID:   conn.userID,
		UserName: conn.userName,
		Message:  fmt.Sprintf("%s joined the session", conn.userName),
	})

	r.logger.Debug().Str("conn_id", connID).Str("room_id", roomID).Msg("joined room")
}

// SetTyping forwards a typing-state change to the other members of the
// connection's room. The relay does not track typing state or debounce;
// it only relays the signal. A connection with no room is a no-op.
func (r *Relay) SetTyping(connID string, isTyping bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	assoc, ok := r.registry.Lookup(connID)
	if !ok || assoc.RoomID == "" {
		return
	}

	r.broadcastRoomLocked(assoc.RoomID, connID, EventUserTyping, TypingNotice{
		UserID:   assoc.UserID,
		UserName: assoc.UserName,
		IsTyping: isTyping,
	})
}

// Send relays a chat message to every member of the sender's room,
// including the sender, which relies on the echo to render its own
// message. The message gets a server-assigned ULID and timestamp. If the
// sender has no room the message is dropped.
func (r *Relay) Send(connID, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	assoc, ok := r.registry.Lookup(connID)
	if !ok || assoc.RoomID == "" {
		return
	}

	msg := ChatMessage{
		ID:        ulid.Make().String(),
		SessionID: assoc.RoomID,
		UserID:    assoc.UserID,
		UserName:  assoc.UserName,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}

	r.broadcastRoomLocked(assoc.RoomID, "", EventReceiveMessage, msg)
	metrics.MessagesRelayed.Inc()
}

// AnnounceSessionCreated notifies every connected client that a new
// bookable session exists. This is a global broadcast: calendar views need
// it regardless of room membership, so no room filtering applies.
func (r *Relay) AnnounceSessionCreated(session json.RawMessage, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	notice := CalendarNotice{
		Session: session,
		UserID:  userID,
		Message: "A new session is available",
	}
	for _, conn := range r.conns {
		conn.sink.Deliver(EventCalendarUpdated, notice)
	}
	metrics.CalendarBroadcasts.Inc()
}

// Disconnect handles a transport-level disconnect: an implicit leave from
// the connection's room (if any) followed by removal of all connection
// state. Disconnecting an unknown or never-joined connection produces no
// broadcasts and is safe.
func (r *Relay) Disconnect(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connID]; !ok {
		return
	}

	if assoc, found := r.registry.OnDisconnect(connID); found && assoc.RoomID != "" {
		r.leaveRoomLocked(connID, assoc)
	}
	delete(r.conns, connID)

	metrics.RelayConnections.Dec()
	r.logger.Debug().Str("conn_id", connID).Msg("connection removed")
}

// leaveRoomLocked removes the connection from its room and notifies the
// remaining members. Caller must hold r.mu.
func (r *Relay) leaveRoomLocked(connID string, assoc Association) {
	r.rooms.RemoveMember(assoc.RoomID, connID)
	metrics.RelayRooms.Set(float64(r.rooms.Count()))

	r.broadcastRoomLocked(assoc.RoomID, connID, EventUserLeft, PresenceNotice{
		UserID:   assoc.UserID,
		UserName: assoc.UserName,
		Message:  fmt.Sprintf("%s left the session", assoc.UserName),
	})
}

// broadcastRoomLocked delivers an event to the members of a room present
// at this instant, skipping exclude when non-empty. Caller must hold r.mu,
// which is what preserves per-room FIFO order across broadcasts.
func (r *Relay) broadcastRoomLocked(roomID, exclude, event string, payload any) {
	for _, memberID := range r.rooms.MembersOf(roomID) {
		if memberID == exclude {
			continue
		}
		if conn, ok := r.conns[memberID]; ok {
			conn.sink.Deliver(event, payload)
		}
	}
}
