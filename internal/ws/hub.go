package ws

import "sync"

// Hub tracks which connections are members of which room and fans
// broadcasts out to them.
//
// Each room entry carries its own mutex, and the router holds it across an
// entire event: log/roster mutation and broadcast enqueue happen under the
// same per-room lock, so every member observes room events in one total
// order. There is deliberately no lock shared across rooms.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*roomSet
}

type roomSet struct {
	mu      sync.Mutex // serializes event dispatch for this room
	clients map[*Client]bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]*roomSet),
	}
}

// room returns the set for roomID, creating it on first use.
func (h *Hub) room(roomID string) *roomSet {
	h.mu.RLock()
	rs, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if ok {
		return rs
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if rs, ok := h.rooms[roomID]; ok {
		return rs
	}
	rs = &roomSet{clients: make(map[*Client]bool)}
	h.rooms[roomID] = rs
	return rs
}

// lock returns the set currently mapped for roomID with its dispatch mutex
// held, creating the entry on first use. The mapping is re-verified and the
// set locked under h.mu: without that, a drop of a just-emptied entry could
// slip between lookup and lock and hand the caller an orphaned set that no
// later broadcast would ever resolve.
func (h *Hub) lock(roomID string) *roomSet {
	for {
		rs := h.room(roomID)

		h.mu.RLock()
		if h.rooms[roomID] == rs {
			rs.mu.Lock()
			h.mu.RUnlock()
			return rs
		}
		h.mu.RUnlock()
	}
}

// drop removes the room entry if it has no members left. The registry keeps
// the room's state through its grace period; the hub entry is cheap to
// recreate on the next join. Must not be called with rs.mu held: lock order
// is always h.mu before roomSet.mu.
func (h *Hub) drop(roomID string, rs *roomSet) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cur, ok := h.rooms[roomID]
	if !ok || cur != rs {
		return
	}
	rs.mu.Lock()
	empty := len(rs.clients) == 0
	rs.mu.Unlock()
	if empty {
		delete(h.rooms, roomID)
	}
}

// broadcastLocked enqueues data to every member of rs, optionally skipping
// one connection. Callers must hold rs.mu; membership is read live, so a
// connection that left mid-dispatch simply receives nothing further.
func (rs *roomSet) broadcastLocked(data []byte, except *Client) {
	for c := range rs.clients {
		if c == except {
			continue
		}
		c.Send(data)
	}
}

// ClientCount returns the number of joined connections across all rooms.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, rs := range h.rooms {
		rs.mu.Lock()
		total += len(rs.clients)
		rs.mu.Unlock()
	}
	return total
}
