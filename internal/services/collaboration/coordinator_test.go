package collaboration

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"collab-relay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentEvent struct {
	To   models.ConnectionID
	Kind models.EventKind
	Data json.RawMessage
}

// recordingGateway captures every send as encoded JSON
type recordingGateway struct {
	mu     sync.Mutex
	events []sentEvent
	groups map[models.ConnectionID]string
	full   map[models.ConnectionID]bool
	panics bool
}

func newRecordingGateway() *recordingGateway {
	return &recordingGateway{
		groups: make(map[models.ConnectionID]string),
		full:   make(map[models.ConnectionID]bool),
	}
}

func (g *recordingGateway) Send(id models.ConnectionID, kind models.EventKind, payload any) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.panics {
		panic("gateway exploded")
	}
	if g.full[id] {
		return false
	}
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	g.events = append(g.events, sentEvent{To: id, Kind: kind, Data: data})
	return true
}

func (g *recordingGateway) JoinGroup(id models.ConnectionID, roomID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.groups[id] = roomID
}

func (g *recordingGateway) LeaveGroup(id models.ConnectionID, _ string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.groups, id)
}

func (g *recordingGateway) all() []sentEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]sentEvent, len(g.events))
	copy(out, g.events)
	return out
}

func (g *recordingGateway) to(id models.ConnectionID) []sentEvent {
	var out []sentEvent
	for _, e := range g.all() {
		if e.To == id {
			out = append(out, e)
		}
	}
	return out
}

func (g *recordingGateway) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = nil
}

type recordingActivity struct {
	mu      sync.Mutex
	entries []models.ActivityEntry
}

func (r *recordingActivity) Record(e models.ActivityEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recordingActivity) kinds() []models.ActivityKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ActivityKind, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Kind)
	}
	return out
}

func newTestCoordinator(t *testing.T) (*Coordinator, *recordingGateway) {
	t.Helper()
	gw := newRecordingGateway()
	return NewCoordinator(gw, zap.NewNop()), gw
}

func emit(t *testing.T, c *Coordinator, sender models.ConnectionID, kind models.EventKind, payload string) error {
	t.Helper()
	var data json.RawMessage
	if payload != "" {
		data = json.RawMessage(payload)
	}
	return c.HandleEvent(context.Background(), sender, kind, data)
}

func joinAs(t *testing.T, c *Coordinator, id models.ConnectionID, roomID, username string) {
	t.Helper()
	payload := fmt.Sprintf(`{"roomId":%q,"username":%q}`, roomID, username)
	require.NoError(t, emit(t, c, id, models.EventJoinRequest, payload))
}

func decodeInto[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestHandleEventUnknownKind(t *testing.T) {
	c, gw := newTestCoordinator(t)
	joinAs(t, c, "c1", "r1", "alice")
	gw.reset()

	err := emit(t, c, "c1", "teleport", `{}`)
	assert.ErrorIs(t, err, ErrUnknownEvent)
	assert.Empty(t, gw.all())
}

func TestHandleEventFromUnjoinedSender(t *testing.T) {
	c, gw := newTestCoordinator(t)
	joinAs(t, c, "c1", "r1", "alice")
	gw.reset()

	for _, kind := range []models.EventKind{
		models.EventFileCreated,
		models.EventCursorMove,
		models.EventSendMessage,
		models.EventRequestDrawing,
		models.EventUserOffline,
	} {
		err := emit(t, c, "ghost", kind, `{}`)
		assert.ErrorIs(t, err, ErrNotJoined, "kind %s", kind)
	}
	assert.Empty(t, gw.all())
}

func TestHandleEventMalformedPayload(t *testing.T) {
	c, gw := newTestCoordinator(t)
	joinAs(t, c, "c1", "r1", "alice")
	joinAs(t, c, "c2", "r1", "bob")
	gw.reset()

	tests := []struct {
		name    string
		kind    models.EventKind
		payload string
	}{
		{"join not an object", models.EventJoinRequest, `[1,2]`},
		{"join missing username", models.EventJoinRequest, `{"roomId":"r1"}`},
		{"join blank room", models.EventJoinRequest, `{"roomId":"  ","username":"x"}`},
		{"cursor wrong type", models.EventCursorMove, `{"cursorPosition":"ten"}`},
		{"cursor negative", models.EventCursorMove, `{"cursorPosition":-1}`},
		{"selection negative", models.EventTypingStart, `{"selectionEnd":-4}`},
		{"directed without target", models.EventSyncStructure, `{"tree":[]}`},
		{"directed empty target", models.EventSyncDrawing, `{"connectionId":""}`},
		{"directed numeric target", models.EventSyncStructure, `{"connectionId":12}`},
		{"presence wrong type", models.EventUserOnline, `{"clientConnectionId":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := models.ConnectionID("c1")
			if tt.kind == models.EventJoinRequest {
				sender = "c3"
			}
			assert.ErrorIs(t, emit(t, c, sender, tt.kind, tt.payload), ErrMalformedPayload)
		})
	}
	assert.Empty(t, gw.all())

	alice, ok := c.store.Get("c1")
	require.True(t, ok)
	assert.Equal(t, 0, alice.CursorPosition)
	assert.False(t, alice.Typing)
}

func TestHandleEventRecoversFromPanic(t *testing.T) {
	c, gw := newTestCoordinator(t)
	joinAs(t, c, "c1", "r1", "alice")
	joinAs(t, c, "c2", "r1", "bob")

	gw.mu.Lock()
	gw.panics = true
	gw.mu.Unlock()

	err := emit(t, c, "c1", models.EventFileCreated, `{"path":"a.txt"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")

	gw.mu.Lock()
	gw.panics = false
	gw.mu.Unlock()
	gw.reset()

	// the lock was released and the store is still usable
	require.NoError(t, emit(t, c, "c1", models.EventFileCreated, `{"path":"b.txt"}`))
	assert.Len(t, gw.to("c2"), 1)
}

func TestDroppedSendDoesNotAffectOthers(t *testing.T) {
	c, gw := newTestCoordinator(t)
	joinAs(t, c, "c1", "r1", "alice")
	joinAs(t, c, "c2", "r1", "bob")
	joinAs(t, c, "c3", "r1", "carol")
	gw.reset()

	gw.mu.Lock()
	gw.full["c2"] = true
	gw.mu.Unlock()

	require.NoError(t, emit(t, c, "c1", models.EventFileUpdated, `{"path":"a"}`))
	assert.Empty(t, gw.to("c2"))
	assert.Len(t, gw.to("c3"), 1)
}

func TestConcurrentJoinsWithSameUsername(t *testing.T) {
	c, gw := newTestCoordinator(t)

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := models.ConnectionID(fmt.Sprintf("c%d", i))
			errs[i] = emit(t, c, id, models.EventJoinRequest, `{"roomId":"r1","username":"alice"}`)
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		assert.ErrorIs(t, err, ErrUsernameExists)
	}
	assert.Equal(t, 1, accepted)
	assert.Len(t, c.RoomMembers("r1"), 1)

	rejected := 0
	for _, e := range gw.all() {
		if e.Kind == models.EventUsernameExists {
			rejected++
		}
	}
	assert.Equal(t, n-1, rejected)
}

func TestRoomsSnapshot(t *testing.T) {
	c, _ := newTestCoordinator(t)
	joinAs(t, c, "c1", "r1", "alice")
	joinAs(t, c, "c2", "r1", "bob")
	joinAs(t, c, "c3", "r2", "carol")

	assert.Equal(t, []models.RoomSummary{
		{RoomID: "r1", Members: 2},
		{RoomID: "r2", Members: 1},
	}, c.Rooms())

	members := c.RoomMembers("r1")
	require.Len(t, members, 2)
	assert.Equal(t, "alice", members[0].Username)
	assert.Empty(t, c.RoomMembers("nope"))
}

func TestActivityRecorderReceivesTransitions(t *testing.T) {
	c, _ := newTestCoordinator(t)
	rec := &recordingActivity{}
	c.SetActivityRecorder(rec)

	joinAs(t, c, "c1", "r1", "alice")
	assert.ErrorIs(t, emit(t, c, "c2", models.EventJoinRequest, `{"roomId":"r1","username":"alice"}`), ErrUsernameExists)
	require.NoError(t, emit(t, c, "c1", models.EventUserOffline, `{}`))
	require.NoError(t, emit(t, c, "c1", models.EventUserOnline, `{}`))
	c.HandleDisconnect(context.Background(), "c1")

	assert.Equal(t, []models.ActivityKind{
		models.ActivityJoined,
		models.ActivityRejected,
		models.ActivityOffline,
		models.ActivityOnline,
		models.ActivityDisconnected,
	}, rec.kinds())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, e := range rec.entries {
		assert.Equal(t, "r1", e.RoomID)
		assert.Equal(t, "alice", e.Username)
		assert.False(t, e.CreatedAt.IsZero())
	}
}

func TestSetActivityRecorderNil(t *testing.T) {
	c, _ := newTestCoordinator(t)
	c.SetActivityRecorder(nil)
	joinAs(t, c, "c1", "r1", "alice")
}
