package relay

import "sync"

// Association is the last known (user, room) binding for a connection.
// RoomID is empty until the connection joins a room.
type Association struct {
	UserID   string
	UserName string
	RoomID   string
}

// Registry maps ephemeral connection IDs to their current association.
// It is the only owner of connection state; entries live from connect to
// disconnect. All methods are safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	conns map[string]Association
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Association)}
}

// OnConnect registers a new connection with no room or user yet.
func (r *Registry) OnConnect(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[connID] = Association{}
}

// OnJoin records the (user, room) tuple for a connection, overwriting any
// prior association. A connection is bound to at most one room at a time.
func (r *Registry) OnJoin(connID, roomID, userID, userName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[connID] = Association{UserID: userID, UserName: userName, RoomID: roomID}
}

// OnDisconnect returns the last known association and removes the entry.
// Removing an absent entry is safe and reports found=false.
func (r *Registry) OnDisconnect(connID string) (Association, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	assoc, ok := r.conns[connID]
	delete(r.conns, connID)
	return assoc, ok
}

// Lookup returns the current association for a connection. An unknown
// connection is a normal, expected result, not an error.
func (r *Registry) Lookup(connID string) (Association, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	assoc, ok := r.conns[connID]
	return assoc, ok
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
