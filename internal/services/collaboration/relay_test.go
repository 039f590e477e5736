package collaboration

import (
	"context"
	"testing"

	"collab-relay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoRooms joins alice and bob to r1 and carol to r2
func twoRooms(t *testing.T) (*Coordinator, *recordingGateway) {
	t.Helper()
	c, gw := newTestCoordinator(t)
	joinAs(t, c, "c1", "r1", "alice")
	joinAs(t, c, "c2", "r1", "bob")
	joinAs(t, c, "c3", "r2", "carol")
	gw.reset()
	return c, gw
}

func TestVerbatimRelayKinds(t *testing.T) {
	kinds := []models.EventKind{
		models.EventDirectoryUpdated,
		models.EventDirectoryRename,
		models.EventDirectoryDelete,
		models.EventFileCreated,
		models.EventFileUpdated,
		models.EventFileRenamed,
		models.EventFileDeleted,
		models.EventDrawingUpdate,
	}

	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			c, gw := twoRooms(t)
			payload := `{"path":"src/main.go","content":"package main","nested":{"n":[1,2,3]}}`

			require.NoError(t, emit(t, c, "c1", kind, payload))

			toBob := gw.to("c2")
			require.Len(t, toBob, 1)
			assert.Equal(t, kind, toBob[0].Kind)
			assert.JSONEq(t, payload, string(toBob[0].Data))

			assert.Empty(t, gw.to("c1"), "sender is excluded")
			assert.Empty(t, gw.to("c3"), "other rooms are isolated")
		})
	}
}

func TestVerbatimRelayWithoutPayload(t *testing.T) {
	c, gw := twoRooms(t)
	require.NoError(t, emit(t, c, "c1", models.EventFileDeleted, ``))

	toBob := gw.to("c2")
	require.Len(t, toBob, 1)
	assert.JSONEq(t, `{}`, string(toBob[0].Data))
}

func TestSendMessageIsReceivedAsReceiveMessage(t *testing.T) {
	c, gw := twoRooms(t)
	payload := `{"message":{"id":"m1","text":"hi","username":"alice"}}`

	require.NoError(t, emit(t, c, "c1", models.EventSendMessage, payload))

	toBob := gw.to("c2")
	require.Len(t, toBob, 1)
	assert.Equal(t, models.EventReceiveMessage, toBob[0].Kind)
	assert.JSONEq(t, payload, string(toBob[0].Data))
	assert.Empty(t, gw.to("c3"))
}

func TestSingleMemberRoomBroadcastsToNobody(t *testing.T) {
	c, gw := twoRooms(t)
	require.NoError(t, emit(t, c, "c3", models.EventFileCreated, `{"path":"x"}`))
	assert.Empty(t, gw.all())
}

func TestCursorMoveBroadcastsUpdatedSession(t *testing.T) {
	c, gw := twoRooms(t)

	require.NoError(t, emit(t, c, "c1", models.EventCursorMove, `{"cursorPosition":42,"selectionStart":40,"selectionEnd":42}`))

	toBob := gw.to("c2")
	require.Len(t, toBob, 1)
	assert.Equal(t, models.EventCursorMove, toBob[0].Kind)
	got := decodeInto[models.SessionUserPayload](t, toBob[0].Data)
	assert.Equal(t, "alice", got.SessionUser.Username)
	assert.Equal(t, 42, got.SessionUser.CursorPosition)
	require.NotNil(t, got.SessionUser.SelectionStart)
	assert.Equal(t, 40, *got.SessionUser.SelectionStart)
	require.NotNil(t, got.SessionUser.SelectionEnd)
	assert.Equal(t, 42, *got.SessionUser.SelectionEnd)

	assert.Empty(t, gw.to("c1"))
	assert.Empty(t, gw.to("c3"))

	stored, _ := c.store.Get("c1")
	assert.Equal(t, 42, stored.CursorPosition)
}

func TestCursorMoveClearsSelection(t *testing.T) {
	c, gw := twoRooms(t)
	require.NoError(t, emit(t, c, "c1", models.EventCursorMove, `{"cursorPosition":3,"selectionStart":1,"selectionEnd":3}`))
	gw.reset()

	require.NoError(t, emit(t, c, "c1", models.EventCursorMove, `{"cursorPosition":9}`))

	got := decodeInto[models.SessionUserPayload](t, gw.to("c2")[0].Data)
	assert.Equal(t, 9, got.SessionUser.CursorPosition)
	assert.Nil(t, got.SessionUser.SelectionStart)
	assert.Nil(t, got.SessionUser.SelectionEnd)
	assert.Contains(t, string(gw.to("c2")[0].Data), `"selectionStart":null`)
}

func TestCursorMoveWithoutPositionKeepsPosition(t *testing.T) {
	c, _ := twoRooms(t)
	require.NoError(t, emit(t, c, "c1", models.EventCursorMove, `{"cursorPosition":12}`))
	require.NoError(t, emit(t, c, "c1", models.EventCursorMove, `{"selectionStart":2}`))

	stored, _ := c.store.Get("c1")
	assert.Equal(t, 12, stored.CursorPosition)
	require.NotNil(t, stored.SelectionStart)
	assert.Equal(t, 2, *stored.SelectionStart)
}

func TestTypingStartAndPause(t *testing.T) {
	c, gw := twoRooms(t)

	require.NoError(t, emit(t, c, "c1", models.EventTypingStart, `{"cursorPosition":7}`))
	toBob := gw.to("c2")
	require.Len(t, toBob, 1)
	assert.Equal(t, models.EventTypingStart, toBob[0].Kind)
	started := decodeInto[models.SessionUserPayload](t, toBob[0].Data)
	assert.True(t, started.SessionUser.Typing)
	assert.Equal(t, 7, started.SessionUser.CursorPosition)

	gw.reset()
	require.NoError(t, emit(t, c, "c1", models.EventTypingPause, `{"cursorPosition":100}`))
	toBob = gw.to("c2")
	require.Len(t, toBob, 1)
	assert.Equal(t, models.EventTypingPause, toBob[0].Kind)
	paused := decodeInto[models.SessionUserPayload](t, toBob[0].Data)
	assert.False(t, paused.SessionUser.Typing)
	assert.Equal(t, 7, paused.SessionUser.CursorPosition, "pause never moves the cursor")
	assert.Empty(t, gw.to("c3"))
}

func TestDirectedRelayStripsTarget(t *testing.T) {
	c, gw := twoRooms(t)

	for _, kind := range []models.EventKind{models.EventSyncStructure, models.EventSyncDrawing} {
		gw.reset()
		payload := `{"connectionId":"c2","fileStructure":{"name":"root","children":[]},"openFiles":["a"]}`

		require.NoError(t, emit(t, c, "c1", kind, payload))

		events := gw.all()
		require.Len(t, events, 1, "kind %s", kind)
		assert.Equal(t, models.ConnectionID("c2"), events[0].To)
		assert.Equal(t, kind, events[0].Kind)
		assert.JSONEq(t, `{"fileStructure":{"name":"root","children":[]},"openFiles":["a"]}`, string(events[0].Data))
	}
}

func TestDirectedRelayToMissingTarget(t *testing.T) {
	c, gw := twoRooms(t)

	err := emit(t, c, "c1", models.EventSyncStructure, `{"connectionId":"gone","fileStructure":{}}`)
	assert.ErrorIs(t, err, ErrNotJoined)
	assert.Empty(t, gw.all())

	c.HandleDisconnect(context.Background(), "c2")
	gw.reset()
	err = emit(t, c, "c1", models.EventSyncDrawing, `{"connectionId":"c2","drawingData":[]}`)
	assert.ErrorIs(t, err, ErrNotJoined)
	assert.Empty(t, gw.all())
}

func TestDirectedRelayAcrossRoomsIsRefused(t *testing.T) {
	c, gw := twoRooms(t)

	err := emit(t, c, "c1", models.EventSyncStructure, `{"connectionId":"c3"}`)
	assert.ErrorIs(t, err, ErrNotJoined)
	assert.Empty(t, gw.all())
}

func TestRequestDrawing(t *testing.T) {
	c, gw := twoRooms(t)

	require.NoError(t, emit(t, c, "c2", models.EventRequestDrawing, ``))

	toAlice := gw.to("c1")
	require.Len(t, toAlice, 1)
	assert.Equal(t, models.EventRequestDrawing, toAlice[0].Kind)
	assert.JSONEq(t, `{"connectionId":"c2"}`, string(toAlice[0].Data))
	assert.Empty(t, gw.to("c2"))
	assert.Empty(t, gw.to("c3"))

	// alice answers the requester directly
	require.NoError(t, emit(t, c, "c1", models.EventSyncDrawing, `{"connectionId":"c2","drawingData":{"shapes":[]}}`))
	toBob := gw.to("c2")
	require.Len(t, toBob, 1)
	assert.JSONEq(t, `{"drawingData":{"shapes":[]}}`, string(toBob[0].Data))
}

func TestBroadcastToRoom(t *testing.T) {
	c, gw := twoRooms(t)

	require.NoError(t, c.BroadcastToRoom(context.Background(), "c2", models.EventFileCreated, map[string]string{"path": "x"}))
	require.Len(t, gw.to("c1"), 1)
	assert.Empty(t, gw.to("c2"))
	assert.Empty(t, gw.to("c3"))

	err := c.BroadcastToRoom(context.Background(), "ghost", models.EventFileCreated, nil)
	assert.ErrorIs(t, err, ErrNotJoined)
}

func TestRelayToConnection(t *testing.T) {
	c, gw := twoRooms(t)

	require.NoError(t, c.RelayToConnection(context.Background(), "c3", models.EventSyncStructure, map[string]int{"n": 1}))
	events := gw.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.ConnectionID("c3"), events[0].To)

	err := c.RelayToConnection(context.Background(), "ghost", models.EventSyncStructure, nil)
	assert.ErrorIs(t, err, ErrNotJoined)
}
