package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LaveshwarPS/canvascode/internal/history"
	"github.com/LaveshwarPS/canvascode/internal/protocol"
	"github.com/LaveshwarPS/canvascode/internal/ratelimit"
	"github.com/LaveshwarPS/canvascode/internal/room"
)

// newTestClient builds a client without a real WebSocket connection; the
// router only ever touches the send channel.
func newTestClient(rt *Router, id string) *Client {
	return &Client{
		router:  rt,
		conn:    nil,
		send:    make(chan []byte, 64),
		id:      id,
		limiter: ratelimit.NewLimiter(100, 200),
	}
}

func dispatch(t *testing.T, rt *Router, c *Client, typ protocol.Type, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	rt.Handle(c, &protocol.Message{Type: typ, Payload: raw})
}

// drain decodes every frame queued on the client so far.
func drain(t *testing.T, c *Client) []*protocol.Message {
	t.Helper()
	var msgs []*protocol.Message
	for {
		select {
		case data := <-c.send:
			msg, err := protocol.Decode(data)
			require.NoError(t, err)
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func decodePayload(t *testing.T, msg *protocol.Message, target any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(msg.Payload, target))
}

func join(t *testing.T, rt *Router, c *Client, roomID, name string) {
	t.Helper()
	dispatch(t, rt, c, protocol.TypeJoin, protocol.Join{RoomID: roomID, Name: name})
}

func testStroke() protocol.Stroke {
	return protocol.Stroke{
		Tool:   history.ToolBrush,
		Color:  "#123456",
		Width:  4,
		Points: []history.Point{{X: 1, Y: 2}, {X: 3, Y: 4}},
	}
}

func TestJoinRepliesWithSelfRosterAndSnapshot(t *testing.T) {
	rt := NewRouter(room.NewRegistry(0))
	c := newTestClient(rt, "s1")

	join(t, rt, c, "r1", "Ada")

	msgs := drain(t, c)
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.TypeJoined, msgs[0].Type)

	var joined protocol.Joined
	decodePayload(t, msgs[0], &joined)
	assert.Equal(t, "s1", joined.Self.ID)
	assert.Equal(t, "Ada", joined.Self.Name)
	assert.NotEmpty(t, joined.Self.Color)
	require.Len(t, joined.Roster, 1)
	assert.Empty(t, joined.Operations)
	assert.Equal(t, -1, joined.CurrentIndex)
}

func TestJoinNotifiesExistingMembersOnly(t *testing.T) {
	rt := NewRouter(room.NewRegistry(0))
	c1 := newTestClient(rt, "s1")
	c2 := newTestClient(rt, "s2")

	join(t, rt, c1, "r1", "Ada")
	drain(t, c1)

	join(t, rt, c2, "r1", "Grace")

	msgs := drain(t, c1)
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.TypeRoster, msgs[0].Type)

	var roster protocol.Roster
	decodePayload(t, msgs[0], &roster)
	assert.Equal(t, "joined", roster.Event)
	assert.Equal(t, "s2", roster.User.ID)
	assert.Len(t, roster.Roster, 2)

	// The joiner itself only gets its joined reply, not the roster
	// broadcast about its own arrival.
	joinerMsgs := drain(t, c2)
	require.Len(t, joinerMsgs, 1)
	assert.Equal(t, protocol.TypeJoined, joinerMsgs[0].Type)
}

func TestLateJoinerReceivesActiveHistory(t *testing.T) {
	rt := NewRouter(room.NewRegistry(0))
	c1 := newTestClient(rt, "s1")
	join(t, rt, c1, "r1", "")
	dispatch(t, rt, c1, protocol.TypeStroke, testStroke())
	dispatch(t, rt, c1, protocol.TypeStroke, testStroke())
	dispatch(t, rt, c1, protocol.TypeUndo, struct{}{})

	c2 := newTestClient(rt, "s2")
	join(t, rt, c2, "r1", "")

	msgs := drain(t, c2)
	require.Len(t, msgs, 1)

	var joined protocol.Joined
	decodePayload(t, msgs[0], &joined)
	require.Len(t, joined.Operations, 1)
	assert.Equal(t, 0, joined.Operations[0].ID)
	assert.Equal(t, 0, joined.CurrentIndex)
}

func TestMutatingEventsWhileUnjoinedAreDropped(t *testing.T) {
	rt := NewRouter(room.NewRegistry(0))
	c := newTestClient(rt, "s1")

	dispatch(t, rt, c, protocol.TypeStroke, testStroke())
	dispatch(t, rt, c, protocol.TypeCursor, protocol.Cursor{Point: history.Point{X: 1, Y: 1}})
	dispatch(t, rt, c, protocol.TypeUndo, struct{}{})
	dispatch(t, rt, c, protocol.TypeRedo, struct{}{})
	dispatch(t, rt, c, protocol.TypeClear, struct{}{})

	assert.Empty(t, drain(t, c))
	assert.Equal(t, 0, rt.registry.RoomCount())
}

func TestStrokeCommitBroadcastIncludesSender(t *testing.T) {
	rt := NewRouter(room.NewRegistry(0))
	c1 := newTestClient(rt, "s1")
	c2 := newTestClient(rt, "s2")
	join(t, rt, c1, "r1", "Ada")
	join(t, rt, c2, "r1", "Grace")
	drain(t, c1)
	drain(t, c2)

	dispatch(t, rt, c1, protocol.TypeStroke, testStroke())

	for _, c := range []*Client{c1, c2} {
		msgs := drain(t, c)
		require.Len(t, msgs, 1)
		assert.Equal(t, protocol.TypeOperation, msgs[0].Type)

		var added protocol.OperationAdded
		decodePayload(t, msgs[0], &added)
		require.NotNil(t, added.Operation)
		assert.Equal(t, 0, added.Operation.ID)
		assert.Equal(t, "s1", added.Operation.AuthorID)
		assert.Equal(t, "Ada", added.Operation.AuthorName)
		assert.Equal(t, history.KindStroke, added.Operation.Kind)
	}
}

func TestInvalidStrokeNeverReachesLog(t *testing.T) {
	rt := NewRouter(room.NewRegistry(0))
	c := newTestClient(rt, "s1")
	join(t, rt, c, "r1", "")
	drain(t, c)

	bad := testStroke()
	bad.Width = 99
	dispatch(t, rt, c, protocol.TypeStroke, bad)

	bad = testStroke()
	bad.Points = nil
	dispatch(t, rt, c, protocol.TypeStroke, bad)

	bad = testStroke()
	bad.Tool = "spray"
	dispatch(t, rt, c, protocol.TypeStroke, bad)

	assert.Empty(t, drain(t, c))
	assert.Equal(t, 0, rt.registry.GetOrCreate("r1").Log.Len())
}

func TestLiveStrokePointRelayedToOthersOnly(t *testing.T) {
	rt := NewRouter(room.NewRegistry(0))
	c1 := newTestClient(rt, "s1")
	c2 := newTestClient(rt, "s2")
	join(t, rt, c1, "r1", "")
	join(t, rt, c2, "r1", "")
	drain(t, c1)
	drain(t, c2)

	dispatch(t, rt, c1, protocol.TypeStrokePoint, protocol.StrokePoint{
		Phase: "start",
		Point: history.Point{X: 5, Y: 6},
		Tool:  history.ToolBrush,
		Width: 3,
	})

	assert.Empty(t, drain(t, c1), "preview relays exclude the sender")

	msgs := drain(t, c2)
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.TypeStrokePoint, msgs[0].Type)

	var pt protocol.StrokePoint
	decodePayload(t, msgs[0], &pt)
	assert.Equal(t, "s1", pt.AuthorID)
	assert.Equal(t, "start", pt.Phase)

	// Preview traffic never touches the log.
	assert.Equal(t, 0, rt.registry.GetOrCreate("r1").Log.Len())
}

func TestCursorUpdateRelayedWithIdentity(t *testing.T) {
	rt := NewRouter(room.NewRegistry(0))
	c1 := newTestClient(rt, "s1")
	c2 := newTestClient(rt, "s2")
	join(t, rt, c1, "r1", "Ada")
	join(t, rt, c2, "r1", "")
	drain(t, c1)
	drain(t, c2)

	dispatch(t, rt, c1, protocol.TypeCursor, protocol.Cursor{Point: history.Point{X: 7, Y: 8}})

	assert.Empty(t, drain(t, c1))

	msgs := drain(t, c2)
	require.Len(t, msgs, 1)

	var cur protocol.Cursor
	decodePayload(t, msgs[0], &cur)
	assert.Equal(t, "s1", cur.AuthorID)
	assert.Equal(t, "Ada", cur.Name)
	assert.Equal(t, 7.0, cur.Point.X)

	sess := rt.registry.GetOrCreate("r1").Session("s1")
	require.NotNil(t, sess)
	require.NotNil(t, sess.Cursor)
	assert.Equal(t, 8.0, sess.Cursor.Y)
}

func TestCursorForRemovedSessionIsDropped(t *testing.T) {
	rt := NewRouter(room.NewRegistry(0))
	c1 := newTestClient(rt, "s1")
	c2 := newTestClient(rt, "s2")
	join(t, rt, c1, "r1", "")
	join(t, rt, c2, "r1", "")
	drain(t, c1)
	drain(t, c2)

	// Roster entry gone but the connection has not noticed yet.
	rt.registry.RemoveSession("r1", "s1")

	dispatch(t, rt, c1, protocol.TypeCursor, protocol.Cursor{Point: history.Point{X: 1, Y: 1}})
	assert.Empty(t, drain(t, c2))
}

func TestClearBroadcastsToEveryone(t *testing.T) {
	rt := NewRouter(room.NewRegistry(0))
	c1 := newTestClient(rt, "s1")
	c2 := newTestClient(rt, "s2")
	join(t, rt, c1, "r1", "Ada")
	join(t, rt, c2, "r1", "")
	dispatch(t, rt, c1, protocol.TypeStroke, testStroke())
	drain(t, c1)
	drain(t, c2)

	dispatch(t, rt, c1, protocol.TypeClear, struct{}{})

	r := rt.registry.GetOrCreate("r1")
	assert.Equal(t, 0, r.Log.Len())
	assert.Equal(t, -1, r.Log.CurrentIndex())

	for _, c := range []*Client{c1, c2} {
		msgs := drain(t, c)
		require.Len(t, msgs, 1)
		assert.Equal(t, protocol.TypeCleared, msgs[0].Type)

		var cleared protocol.Cleared
		decodePayload(t, msgs[0], &cleared)
		assert.Equal(t, "s1", cleared.AuthorID)
		assert.Equal(t, "Ada", cleared.Name)
	}
}

func TestSecondJoinIsIgnored(t *testing.T) {
	rt := NewRouter(room.NewRegistry(0))
	c := newTestClient(rt, "s1")
	join(t, rt, c, "r1", "")
	drain(t, c)

	join(t, rt, c, "r2", "")

	assert.Empty(t, drain(t, c))
	assert.Equal(t, "r1", c.roomID)
	assert.Nil(t, rt.registry.Get("r2"))
}

func TestDisconnectNotifiesRemainingMembers(t *testing.T) {
	rt := NewRouter(room.NewRegistry(0))
	c1 := newTestClient(rt, "s1")
	c2 := newTestClient(rt, "s2")
	join(t, rt, c1, "r1", "Ada")
	join(t, rt, c2, "r1", "")
	drain(t, c1)
	drain(t, c2)

	rt.Disconnect(c1)

	msgs := drain(t, c2)
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.TypeRoster, msgs[0].Type)

	var roster protocol.Roster
	decodePayload(t, msgs[0], &roster)
	assert.Equal(t, "left", roster.Event)
	assert.Equal(t, "s1", roster.User.ID)
	require.Len(t, roster.Roster, 1)
	assert.Equal(t, "s2", roster.Roster[0].ID)

	assert.Empty(t, drain(t, c1))
	assert.Equal(t, 1, rt.registry.SessionCount())
}

func TestDisconnectBeforeJoinIsHarmless(t *testing.T) {
	rt := NewRouter(room.NewRegistry(0))
	c := newTestClient(rt, "s1")

	rt.Disconnect(c)

	assert.Equal(t, 0, rt.registry.RoomCount())
}

// Full session walkthrough: two participants sharing one undo/redo history.
func TestSharedHistoryScenario(t *testing.T) {
	rt := NewRouter(room.NewRegistry(0))
	reg := rt.registry

	s1 := newTestClient(rt, "s1")
	join(t, rt, s1, "r1", "")
	drain(t, s1)

	// S1 commits the first stroke: id 0.
	dispatch(t, rt, s1, protocol.TypeStroke, testStroke())
	msgs := drain(t, s1)
	require.Len(t, msgs, 1)
	var added protocol.OperationAdded
	decodePayload(t, msgs[0], &added)
	assert.Equal(t, 0, added.Operation.ID)

	// S2 joins and receives the one-stroke snapshot.
	s2 := newTestClient(rt, "s2")
	join(t, rt, s2, "r1", "")
	msgs = drain(t, s2)
	require.Len(t, msgs, 1)
	var joined protocol.Joined
	decodePayload(t, msgs[0], &joined)
	require.Len(t, joined.Operations, 1)
	assert.Equal(t, 0, joined.CurrentIndex)
	drain(t, s1) // roster broadcast

	// S2 commits the second stroke: id 1.
	dispatch(t, rt, s2, protocol.TypeStroke, testStroke())
	msgs = drain(t, s2)
	require.Len(t, msgs, 1)
	decodePayload(t, msgs[0], &added)
	assert.Equal(t, 1, added.Operation.ID)
	drain(t, s1)

	// S1 undoes: op1 comes back, index 0, broadcast to both.
	dispatch(t, rt, s1, protocol.TypeUndo, struct{}{})
	for _, c := range []*Client{s1, s2} {
		msgs = drain(t, c)
		require.Len(t, msgs, 1)
		assert.Equal(t, protocol.TypeUndoApplied, msgs[0].Type)
		var applied protocol.HistoryApplied
		decodePayload(t, msgs[0], &applied)
		assert.Equal(t, "s1", applied.AuthorID)
		assert.Equal(t, 1, applied.Operation.ID)
		assert.Equal(t, 0, applied.NewIndex)
	}

	// S1 undoes again: op0, index -1.
	dispatch(t, rt, s1, protocol.TypeUndo, struct{}{})
	for _, c := range []*Client{s1, s2} {
		msgs = drain(t, c)
		require.Len(t, msgs, 1)
		var applied protocol.HistoryApplied
		decodePayload(t, msgs[0], &applied)
		assert.Equal(t, 0, applied.Operation.ID)
		assert.Equal(t, -1, applied.NewIndex)
	}

	// S2 undoes at the bottom: silence.
	dispatch(t, rt, s2, protocol.TypeUndo, struct{}{})
	assert.Empty(t, drain(t, s1))
	assert.Empty(t, drain(t, s2))

	// S1 redoes: op0 again, index 0.
	dispatch(t, rt, s1, protocol.TypeRedo, struct{}{})
	for _, c := range []*Client{s1, s2} {
		msgs = drain(t, c)
		require.Len(t, msgs, 1)
		assert.Equal(t, protocol.TypeRedoApplied, msgs[0].Type)
		var applied protocol.HistoryApplied
		decodePayload(t, msgs[0], &applied)
		assert.Equal(t, 0, applied.Operation.ID)
		assert.Equal(t, 0, applied.NewIndex)
	}

	assert.Equal(t, 2, reg.GetOrCreate("r1").Log.Len())
	assert.Equal(t, 0, reg.GetOrCreate("r1").Log.CurrentIndex())
}
