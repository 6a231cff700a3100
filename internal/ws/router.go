// Package ws translates transport events into room registry and operation
// log calls and fans the results back out to room members.
package ws

import (
	"encoding/json"
	"log"

	"github.com/LaveshwarPS/canvascode/internal/history"
	"github.com/LaveshwarPS/canvascode/internal/protocol"
	"github.com/LaveshwarPS/canvascode/internal/room"
)

// Router dispatches inbound session events. A connection is Unjoined until
// its join message is accepted; every drawing, cursor, undo, redo, or clear
// event received before then is silently dropped. The UI disables those
// controls anyway; the server check is defense in depth.
type Router struct {
	registry *room.Registry
	hub      *Hub
}

// NewRouter creates a router over the given registry.
func NewRouter(registry *room.Registry) *Router {
	return &Router{
		registry: registry,
		hub:      NewHub(),
	}
}

// Hub exposes the connection hub, for stats.
func (rt *Router) Hub() *Hub {
	return rt.hub
}

// Handle processes one inbound message for c. Called only from c's read
// goroutine, so per-connection state needs no locking.
func (rt *Router) Handle(c *Client, msg *protocol.Message) {
	if c.roomID == "" {
		if msg.Type == protocol.TypeJoin {
			rt.handleJoin(c, msg.Payload)
		}
		// Anything else before joining is a silent no-op.
		return
	}

	switch msg.Type {
	case protocol.TypeStrokePoint:
		rt.handleStrokePoint(c, msg.Payload)
	case protocol.TypeStroke:
		rt.handleStroke(c, msg.Payload)
	case protocol.TypeCursor:
		rt.handleCursor(c, msg.Payload)
	case protocol.TypeUndo:
		rt.handleUndo(c)
	case protocol.TypeRedo:
		rt.handleRedo(c)
	case protocol.TypeClear:
		rt.handleClear(c)
	case protocol.TypeJoin:
		// Already joined; a second join is dropped.
	default:
		log.Printf("⚠️ Unknown message type %q from session %s", msg.Type, c.id)
	}
}

// Disconnect is an implicit leave: remove the session, tell the rest of the
// room. Safe to call for connections that never joined.
func (rt *Router) Disconnect(c *Client) {
	if c.roomID == "" {
		return
	}

	roomID := c.roomID
	rs := rt.hub.lock(roomID)
	delete(rs.clients, c)
	sess := rt.registry.RemoveSession(roomID, c.id)
	if sess != nil {
		r := rt.registry.GetOrCreate(roomID)
		rt.broadcastRosterLocked(rs, r, "left", sess, nil)
		log.Printf("Session %s (%s) left room %s (remaining: %d)",
			c.id, sess.Name, roomID, len(rs.clients))
	}
	rs.mu.Unlock()

	rt.hub.drop(roomID, rs)
	c.roomID = ""
	c.session = nil
}

func (rt *Router) handleJoin(c *Client, payload json.RawMessage) {
	var req protocol.Join
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Printf("⚠️ Bad join payload from session %s: %v", c.id, err)
		return
	}
	if err := req.Validate(); err != nil {
		log.Printf("⚠️ Rejected join from session %s: %v", c.id, err)
		return
	}

	rs := rt.hub.lock(req.RoomID)
	sess := rt.registry.AddSession(req.RoomID, c.id, req.Name)
	r := rt.registry.GetOrCreate(req.RoomID)

	c.roomID = req.RoomID
	c.session = sess

	ops, index := r.Log.Snapshot()
	roster := rosterUsers(r.Roster())

	reply, err := protocol.Encode(protocol.TypeJoined, protocol.Joined{
		Self:         userOf(sess),
		Roster:       roster,
		Operations:   ops,
		CurrentIndex: index,
	})
	if err == nil {
		c.Send(reply)
	}

	rt.broadcastRosterLocked(rs, r, "joined", sess, c)
	rs.clients[c] = true
	rs.mu.Unlock()

	log.Printf("Session %s (%s) joined room %s (total: %d)",
		c.id, sess.Name, req.RoomID, r.SessionCount())
}

// broadcastRosterLocked announces a roster change to every member except
// skip. Callers hold rs.mu.
func (rt *Router) broadcastRosterLocked(rs *roomSet, r *room.Room, event string, subject *room.Session, skip *Client) {
	data, err := protocol.Encode(protocol.TypeRoster, protocol.Roster{
		Event:  event,
		User:   userOf(subject),
		Roster: rosterUsers(r.Roster()),
	})
	if err != nil {
		return
	}
	rs.broadcastLocked(data, skip)
}

func (rt *Router) handleStrokePoint(c *Client, payload json.RawMessage) {
	var pt protocol.StrokePoint
	if err := json.Unmarshal(payload, &pt); err != nil {
		log.Printf("⚠️ Bad stroke point from session %s: %v", c.id, err)
		return
	}
	if err := pt.Validate(); err != nil {
		log.Printf("⚠️ Rejected stroke point from session %s: %v", c.id, err)
		return
	}

	// Ephemeral preview: relayed, never logged.
	pt.AuthorID = c.id
	data, err := protocol.Encode(protocol.TypeStrokePoint, pt)
	if err != nil {
		return
	}

	rs := rt.hub.lock(c.roomID)
	rs.broadcastLocked(data, c)
	rs.mu.Unlock()
}

func (rt *Router) handleStroke(c *Client, payload json.RawMessage) {
	var stroke protocol.Stroke
	if err := json.Unmarshal(payload, &stroke); err != nil {
		log.Printf("⚠️ Bad stroke from session %s: %v", c.id, err)
		return
	}
	if err := stroke.Validate(); err != nil {
		log.Printf("⚠️ Rejected stroke from session %s: %v", c.id, err)
		return
	}

	op := &history.Operation{
		AuthorID:    c.id,
		AuthorName:  c.session.Name,
		AuthorColor: c.session.Color,
		Tool:        stroke.Tool,
		Color:       stroke.Color,
		Width:       stroke.Width,
		Points:      stroke.Points,
	}

	r := rt.registry.GetOrCreate(c.roomID)
	rs := rt.hub.lock(c.roomID)
	r.Log.Add(op)
	data, err := protocol.Encode(protocol.TypeOperation, protocol.OperationAdded{Operation: op})
	if err == nil {
		// Sender included: the echo carries the assigned id as its ack.
		rs.broadcastLocked(data, nil)
	}
	rs.mu.Unlock()
}

func (rt *Router) handleCursor(c *Client, payload json.RawMessage) {
	var cur protocol.Cursor
	if err := json.Unmarshal(payload, &cur); err != nil {
		log.Printf("⚠️ Bad cursor update from session %s: %v", c.id, err)
		return
	}

	rs := rt.hub.lock(c.roomID)
	defer rs.mu.Unlock()

	sess := rt.registry.UpdateCursor(c.roomID, c.id, cur.Point)
	if sess == nil {
		// Session already removed; late cursors are dropped.
		return
	}

	data, err := protocol.Encode(protocol.TypeCursor, protocol.Cursor{
		AuthorID: sess.ID,
		Name:     sess.Name,
		Color:    sess.Color,
		Point:    cur.Point,
	})
	if err != nil {
		return
	}

	rs.broadcastLocked(data, c)
}

func (rt *Router) handleUndo(c *Client) {
	r := rt.registry.GetOrCreate(c.roomID)
	rs := rt.hub.lock(c.roomID)
	defer rs.mu.Unlock()

	op, index, ok := r.Log.Undo()
	if !ok {
		// Bottom of history: nothing to undo, nothing to say.
		return
	}

	data, err := protocol.Encode(protocol.TypeUndoApplied, protocol.HistoryApplied{
		AuthorID:  c.id,
		Name:      c.session.Name,
		Operation: op,
		NewIndex:  index,
	})
	if err == nil {
		rs.broadcastLocked(data, nil)
	}
}

func (rt *Router) handleRedo(c *Client) {
	r := rt.registry.GetOrCreate(c.roomID)
	rs := rt.hub.lock(c.roomID)
	defer rs.mu.Unlock()

	op, index, ok := r.Log.Redo()
	if !ok {
		return
	}

	data, err := protocol.Encode(protocol.TypeRedoApplied, protocol.HistoryApplied{
		AuthorID:  c.id,
		Name:      c.session.Name,
		Operation: op,
		NewIndex:  index,
	})
	if err == nil {
		rs.broadcastLocked(data, nil)
	}
}

func (rt *Router) handleClear(c *Client) {
	r := rt.registry.GetOrCreate(c.roomID)
	rs := rt.hub.lock(c.roomID)
	defer rs.mu.Unlock()

	r.Log.Clear()

	data, err := protocol.Encode(protocol.TypeCleared, protocol.Cleared{
		AuthorID: c.id,
		Name:     c.session.Name,
	})
	if err == nil {
		rs.broadcastLocked(data, nil)
	}
}

func userOf(s *room.Session) protocol.User {
	return protocol.User{ID: s.ID, Name: s.Name, Color: s.Color}
}

func rosterUsers(sessions []*room.Session) []protocol.User {
	users := make([]protocol.User, len(sessions))
	for i, s := range sessions {
		users[i] = userOf(s)
	}
	return users
}
