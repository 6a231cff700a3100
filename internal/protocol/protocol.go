// Package protocol defines the wire message catalogue exchanged between
// clients and the sync server. Every WebSocket text frame carries one
// envelope: {"type": ..., "payload": {...}}.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/LaveshwarPS/canvascode/internal/history"
)

// Type discriminates the payload carried by an envelope.
type Type string

const (
	// Client -> server message types
	TypeJoin        Type = "join"
	TypeStrokePoint Type = "stroke_point"
	TypeStroke      Type = "stroke"
	TypeCursor      Type = "cursor"
	TypeUndo        Type = "undo"
	TypeRedo        Type = "redo"
	TypeClear       Type = "clear"

	// Server -> client message types
	TypeJoined      Type = "joined"
	TypeRoster      Type = "roster"
	TypeOperation   Type = "operation"
	TypeUndoApplied Type = "undo_applied"
	TypeRedoApplied Type = "redo_applied"
	TypeCleared     Type = "cleared"
)

// Message is the wire envelope.
type Message struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// User identifies a participant to other room members.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Join asks to enter a room. The only message accepted before a session
// has joined.
type Join struct {
	RoomID string `json:"room_id"`
	Name   string `json:"name,omitempty"`
}

// StrokePoint is the ephemeral in-progress stroke preview. Never logged;
// relayed to the rest of the room tagged with the sender's identity.
type StrokePoint struct {
	AuthorID string        `json:"author_id,omitempty"` // set by the server on relay
	Phase    string        `json:"phase"`               // "start" or "continue"
	Point    history.Point `json:"point"`
	Tool     history.Tool  `json:"tool,omitempty"`
	Color    string        `json:"color,omitempty"`
	Width    int           `json:"width,omitempty"`
}

// Stroke commits a completed stroke to the room's log.
type Stroke struct {
	Tool   history.Tool    `json:"tool"`
	Color  string          `json:"color"`
	Width  int             `json:"width"`
	Points []history.Point `json:"points"`
}

// Cursor reports the sender's pointer position. Outbound relays carry the
// author fields; inbound updates carry only the point.
type Cursor struct {
	AuthorID string        `json:"author_id,omitempty"`
	Name     string        `json:"name,omitempty"`
	Color    string        `json:"color,omitempty"`
	Point    history.Point `json:"point"`
}

// Joined is the reply sent to the joining session alone: its own identity,
// the full roster, and the active history to replay.
type Joined struct {
	Self         User                 `json:"self"`
	Roster       []User               `json:"roster"`
	Operations   []*history.Operation `json:"operations"`
	CurrentIndex int                  `json:"current_index"`
}

// Roster announces a join or leave to the rest of the room.
type Roster struct {
	Event  string `json:"event"` // "joined" or "left"
	User   User   `json:"user"`
	Roster []User `json:"roster"`
}

// OperationAdded broadcasts a freshly stored operation, assigned id
// included, to the whole room. The sender treats it as its commit ack.
type OperationAdded struct {
	Operation *history.Operation `json:"operation"`
}

// HistoryApplied broadcasts the outcome of an undo or redo.
type HistoryApplied struct {
	AuthorID  string             `json:"author_id"`
	Name      string             `json:"name"`
	Operation *history.Operation `json:"operation"`
	NewIndex  int                `json:"new_index"`
}

// Cleared broadcasts a full-log clear.
type Cleared struct {
	AuthorID string `json:"author_id"`
	Name     string `json:"name"`
}

// Encode marshals a payload into an envelope frame.
func Encode(t Type, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return json.Marshal(Message{Type: t, Payload: raw})
}

// Decode parses an envelope frame.
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("missing message type")
	}
	return &msg, nil
}

// Validate rejects out-of-range stroke payloads before they reach the
// room's log.
func (s *Stroke) Validate() error {
	if !s.Tool.Valid() {
		return fmt.Errorf("unknown tool %q", s.Tool)
	}
	if s.Width < history.MinStrokeWidth || s.Width > history.MaxStrokeWidth {
		return fmt.Errorf("stroke width %d out of range %d..%d",
			s.Width, history.MinStrokeWidth, history.MaxStrokeWidth)
	}
	if len(s.Points) == 0 {
		return fmt.Errorf("stroke has no points")
	}
	return nil
}

// Validate checks a preview point's phase.
func (p *StrokePoint) Validate() error {
	if p.Phase != "start" && p.Phase != "continue" {
		return fmt.Errorf("unknown stroke phase %q", p.Phase)
	}
	return nil
}

// Validate checks a join request.
func (j *Join) Validate() error {
	if j.RoomID == "" {
		return fmt.Errorf("missing room id")
	}
	return nil
}
