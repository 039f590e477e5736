package models

// ConnectionID identifies one live transport connection. It is the only key
// used for session lookups; every payload field that refers to a connection
// is decoded into this type.
type ConnectionID string

// UserConnectionStatus is the presence status of a joined session
type UserConnectionStatus string

const (
	StatusOnline  UserConnectionStatus = "online"
	StatusOffline UserConnectionStatus = "offline"
)

// UserSession is the per-connection state created by an accepted join.
// Learning: Optional fields are pointers so "absent" is an explicit nil
// and serializes as JSON null instead of disappearing from the payload.
type UserSession struct {
	ConnectionID   ConnectionID         `json:"connectionId"`
	Username       string               `json:"username"`
	RoomID         string               `json:"roomId"`
	Status         UserConnectionStatus `json:"status"`
	Typing         bool                 `json:"typing"`
	CursorPosition int                  `json:"cursorPosition"`
	SelectionStart *int                 `json:"selectionStart"`
	SelectionEnd   *int                 `json:"selectionEnd"`
	CurrentFile    *string              `json:"currentFile"`
}

// NewUserSession returns the initial state of a freshly joined user.
func NewUserSession(id ConnectionID, roomID, username string) UserSession {
	return UserSession{
		ConnectionID:   id,
		Username:       username,
		RoomID:         roomID,
		Status:         StatusOnline,
		Typing:         false,
		CursorPosition: 0,
	}
}

// Clone returns a deep copy so callers never share pointer fields with
// the session store.
func (s UserSession) Clone() UserSession {
	out := s
	out.SelectionStart = copyInt(s.SelectionStart)
	out.SelectionEnd = copyInt(s.SelectionEnd)
	if s.CurrentFile != nil {
		f := *s.CurrentFile
		out.CurrentFile = &f
	}
	return out
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// RoomSummary is a read-only view of one room's population
type RoomSummary struct {
	RoomID  string `json:"roomId"`
	Members int    `json:"members"`
}
