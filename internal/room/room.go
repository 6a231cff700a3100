// Package room owns the registry mapping room ids to their operation log
// and roster of connected sessions.
package room

import (
	"fmt"
	"sync"
	"time"

	"github.com/LaveshwarPS/canvascode/internal/history"
)

// Session is one connected participant's identity and live state within a
// room. A session belongs to exactly one room at a time and is owned by it.
type Session struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Color    string         `json:"color"`
	RoomID   string         `json:"room_id"`
	Cursor   *history.Point `json:"cursor,omitempty"`
	JoinedAt time.Time      `json:"joined_at"`
}

// Room is an isolated collaboration namespace: one log, one roster.
// Rooms never reference another room's state.
type Room struct {
	ID  string
	Log *history.Log

	mu         sync.Mutex
	sessions   map[string]*Session
	order      []string // session ids in join order, for color cycling
	createdAt  time.Time
	emptySince time.Time // zero while occupied
}

func newRoom(id string, now time.Time) *Room {
	return &Room{
		ID:        id,
		Log:       history.NewLog(),
		sessions:  make(map[string]*Session),
		order:     make([]string, 0),
		createdAt: now,
	}
}

// Roster returns the room's sessions in join order.
func (r *Room) Roster() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	roster := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		if s, ok := r.sessions[id]; ok {
			roster = append(roster, s)
		}
	}
	return roster
}

// Session returns the session with the given id, or nil.
func (r *Room) Session(sessionID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[sessionID]
}

// SessionCount returns the current roster size.
func (r *Room) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CreatedAt returns the room's creation time.
func (r *Room) CreatedAt() time.Time {
	return r.createdAt
}

// Palette is the fixed ordered color palette cycled over at join time.
// Assignment is positional (roster size at join, mod palette size), so a
// rejoining participant may come back with a different color. Intentional.
var Palette = []string{
	"#e6194b", // red
	"#3cb44b", // green
	"#4363d8", // blue
	"#f58231", // orange
	"#911eb4", // purple
	"#46f0f0", // cyan
	"#f032e6", // magenta
	"#9a6324", // brown
}

// DefaultGrace is how long an empty room survives before it becomes
// eligible for deletion.
const DefaultGrace = 5 * time.Minute

// Registry owns the room map. Unknown room ids are never an error: rooms
// are implicit and fabricated on first use.
type Registry struct {
	grace time.Duration
	now   func() time.Time

	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRegistry creates a registry with the given empty-room grace period.
// A non-positive grace falls back to DefaultGrace.
func NewRegistry(grace time.Duration) *Registry {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Registry{
		grace: grace,
		now:   time.Now,
		rooms: make(map[string]*Room),
	}
}

// GetOrCreate returns the room with the given id, allocating it with an
// empty log on first use. Idempotent.
func (reg *Registry) GetOrCreate(roomID string) *Room {
	reg.mu.RLock()
	r, ok := reg.rooms[roomID]
	reg.mu.RUnlock()
	if ok {
		return r
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if r, ok := reg.rooms[roomID]; ok {
		return r
	}
	r = newRoom(roomID, reg.now())
	reg.rooms[roomID] = r
	return r
}

// Get returns the room with the given id, or nil if it does not exist.
// Only the read-only API uses this; everything else fabricates via
// GetOrCreate.
func (reg *Registry) Get(roomID string) *Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.rooms[roomID]
}

// AddSession registers a session in the room, assigning a color from the
// palette by roster size at join time and a "UserN" default name when none
// was supplied. Joining cancels any pending empty-room expiry.
func (reg *Registry) AddSession(roomID, sessionID, name string) *Session {
	r := reg.GetOrCreate(roomID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		name = fmt.Sprintf("User%d", len(r.sessions)+1)
	}

	s := &Session{
		ID:       sessionID,
		Name:     name,
		Color:    Palette[len(r.sessions)%len(Palette)],
		RoomID:   roomID,
		JoinedAt: reg.now(),
	}
	r.sessions[sessionID] = s
	r.order = append(r.order, sessionID)
	r.emptySince = time.Time{}
	return s
}

// RemoveSession drops a session from the room's roster. Removing the last
// session arms a deletion check after the grace period; the check re-reads
// the roster at fire time, so a rejoin before expiry keeps the room (and
// its log) alive. Returns the removed session, or nil if it was unknown.
func (reg *Registry) RemoveSession(roomID, sessionID string) *Session {
	r := reg.Get(roomID)
	if r == nil {
		return nil
	}

	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.sessions, sessionID)
	for i, id := range r.order {
		if id == sessionID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	empty := len(r.sessions) == 0
	if empty {
		r.emptySince = reg.now()
	}
	r.mu.Unlock()

	if empty {
		time.AfterFunc(reg.grace, func() { reg.expire(roomID) })
	}
	return s
}

// expire deletes the room if it is still empty and has been empty for at
// least the grace period. Re-checking state at fire time avoids any race
// between a rejoin and a cancelled timer handle.
func (reg *Registry) expire(roomID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.rooms[roomID]
	if !ok {
		return
	}

	r.mu.Lock()
	expired := len(r.sessions) == 0 &&
		!r.emptySince.IsZero() &&
		reg.now().Sub(r.emptySince) >= reg.grace
	r.mu.Unlock()

	if expired {
		delete(reg.rooms, roomID)
	}
}

// UpdateCursor records a session's last cursor position. Best-effort: a
// cursor arriving after the session is gone is ignored. Returns the
// session, or nil when it no longer exists.
func (reg *Registry) UpdateCursor(roomID, sessionID string, pt history.Point) *Session {
	r := reg.Get(roomID)
	if r == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	s.Cursor = &pt
	return s
}

// RoomCount returns the number of live rooms, empty-but-in-grace included.
func (reg *Registry) RoomCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// SessionCount returns the total number of sessions across all rooms.
func (reg *Registry) SessionCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	total := 0
	for _, r := range reg.rooms {
		total += r.SessionCount()
	}
	return total
}

// Rooms returns a snapshot of all live rooms.
func (reg *Registry) Rooms() []*Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	rooms := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}
