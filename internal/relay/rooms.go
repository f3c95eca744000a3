package relay

import "sync"

// Rooms maps a room ID to the set of member connection IDs. Rooms are
// created implicitly on first join and dropped when their last member
// leaves, so stale empty rooms never accumulate. All methods are safe for
// concurrent use.
type Rooms struct {
	mu      sync.Mutex
	members map[string]map[string]struct{}
}

// NewRooms creates an empty room manager.
func NewRooms() *Rooms {
	return &Rooms{members: make(map[string]map[string]struct{})}
}

// AddMember adds a connection to a room. Adding an already-present member
// is a no-op.
func (r *Rooms) AddMember(roomID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.members[roomID]
	if !ok {
		set = make(map[string]struct{})
		r.members[roomID] = set
	}
	set[connID] = struct{}{}
}

// RemoveMember removes a connection from a room. Removing an absent member
// is a no-op. The room entry is dropped once its membership is empty.
func (r *Rooms) RemoveMember(roomID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.members[roomID]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.members, roomID)
	}
}

// MembersOf returns a snapshot of the member connection IDs of a room,
// safe to iterate while joins and leaves mutate the underlying set. An
// unknown room yields an empty slice.
func (r *Rooms) MembersOf(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.members[roomID]
	out := make([]string, 0, len(set))
	for connID := range set {
		out = append(out, connID)
	}
	return out
}

// Count returns the number of rooms with at least one member.
func (r *Rooms) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}
