package models

import "encoding/json"

/*
LEARNING: NAMED-EVENT WIRE PROTOCOL

Every frame on the socket is a JSON envelope:

	{"event": "file-updated", "data": {"fileId": "...", "newContent": "..."}}

The relay only reads the fields it needs for routing (room, target connection,
cursor position). Everything else inside "data" is forwarded untouched, which
is why Data is kept as json.RawMessage instead of being decoded.
*/

// EventKind names an inbound or outbound event
type EventKind string

const (
	// Presence
	EventJoinRequest      EventKind = "join-request"
	EventUsernameExists   EventKind = "username-exists"
	EventJoinAccepted     EventKind = "join-accepted"
	EventUserJoined       EventKind = "user-joined"
	EventDisconnect       EventKind = "disconnect"
	EventUserDisconnected EventKind = "user-disconnected"
	EventUserOnline       EventKind = "user-online"
	EventUserOffline      EventKind = "user-offline"

	// Workspace structure
	EventSyncStructure    EventKind = "sync-structure"
	EventDirectoryUpdated EventKind = "directory-updated"
	EventDirectoryRename  EventKind = "directory-rename"
	EventDirectoryDelete  EventKind = "directory-delete"
	EventFileCreated      EventKind = "file-created"
	EventFileUpdated      EventKind = "file-updated"
	EventFileRenamed      EventKind = "file-renamed"
	EventFileDeleted      EventKind = "file-deleted"

	// Cursor and typing
	EventTypingStart EventKind = "user-typing-start"
	EventTypingPause EventKind = "user-typing-pause"
	EventCursorMove  EventKind = "user-cursor-move"

	// Chat
	EventSendMessage    EventKind = "user-send-message"
	EventReceiveMessage EventKind = "user-receive-message"

	// Drawing
	EventRequestDrawing EventKind = "user-request-drawing"
	EventDrawingUpdate  EventKind = "user-drawing-update"
	EventSyncDrawing    EventKind = "user-sync-drawing"
)

// Envelope is the frame exchanged with clients in both directions
type Envelope struct {
	Event EventKind       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound payloads the relay has to look inside of

type JoinRequest struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

type PresenceToggle struct {
	ClientConnectionID ConnectionID `json:"clientConnectionId"`
}

// CursorUpdate carries the fields of typing and cursor events.
// A nil CursorPosition leaves the stored position unchanged.
type CursorUpdate struct {
	CursorPosition *int `json:"cursorPosition"`
	SelectionStart *int `json:"selectionStart"`
	SelectionEnd   *int `json:"selectionEnd"`
}

// Outbound payloads

type UserPayload struct {
	User UserSession `json:"user"`
}

type JoinAccepted struct {
	CurrentUser     UserSession   `json:"currentUser"`
	ActiveRoomUsers []UserSession `json:"activeRoomUsers"`
}

type SessionUserPayload struct {
	SessionUser UserSession `json:"sessionUser"`
}

type ConnectionRef struct {
	ConnectionID ConnectionID `json:"connectionId"`
}

// Empty marshals as {} for payload-less events such as username-exists
type Empty struct{}
