package collaboration

import (
	"sort"
	"sync"

	"collab-relay/internal/models"
)

// SessionStore is the in-memory registry of joined sessions, indexed by
// connection id and by room. Rooms keep their members in join order so
// snapshots are deterministic.
//
// Values are copied on the way in and out; nothing outside the store ever
// holds a pointer to a stored session.
type SessionStore struct {
	mu     sync.RWMutex
	byConn map[models.ConnectionID]*models.UserSession
	rooms  map[string][]models.ConnectionID // roomID -> members in join order
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		byConn: make(map[models.ConnectionID]*models.UserSession),
		rooms:  make(map[string][]models.ConnectionID),
	}
}

// Put inserts a session. Putting an id that is already stored replaces the
// record in place and keeps its join position; the room of an existing
// session never changes.
func (s *SessionStore) Put(session models.UserSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := session.Clone()
	if existing, ok := s.byConn[session.ConnectionID]; ok {
		stored.RoomID = existing.RoomID
		s.byConn[session.ConnectionID] = &stored
		return
	}

	s.byConn[session.ConnectionID] = &stored
	s.rooms[stored.RoomID] = append(s.rooms[stored.RoomID], stored.ConnectionID)
}

func (s *SessionStore) Get(id models.ConnectionID) (models.UserSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.byConn[id]
	if !ok {
		return models.UserSession{}, false
	}
	return session.Clone(), true
}

// Update applies fn to the stored session and returns the updated copy.
// Identity fields (connection id, room) are restored after fn runs.
func (s *SessionStore) Update(id models.ConnectionID, fn func(*models.UserSession)) (models.UserSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.byConn[id]
	if !ok {
		return models.UserSession{}, false
	}

	next := session.Clone()
	fn(&next)
	next.ConnectionID = session.ConnectionID
	next.RoomID = session.RoomID
	*session = next

	return session.Clone(), true
}

// Remove deletes the session and returns its last state
func (s *SessionStore) Remove(id models.ConnectionID) (models.UserSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.byConn[id]
	if !ok {
		return models.UserSession{}, false
	}
	delete(s.byConn, id)

	members := s.rooms[session.RoomID]
	for i, member := range members {
		if member == id {
			members = append(members[:i:i], members[i+1:]...)
			break
		}
	}
	if len(members) == 0 {
		delete(s.rooms, session.RoomID)
	} else {
		s.rooms[session.RoomID] = members
	}

	return *session, true
}

// ListByRoom returns copies of the room's sessions in join order
func (s *SessionStore) ListByRoom(roomID string) []models.UserSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := s.rooms[roomID]
	out := make([]models.UserSession, 0, len(members))
	for _, id := range members {
		out = append(out, s.byConn[id].Clone())
	}
	return out
}

// MembersOf returns the connection ids in a room in join order
func (s *SessionStore) MembersOf(roomID string) []models.ConnectionID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := s.rooms[roomID]
	out := make([]models.ConnectionID, len(members))
	copy(out, members)
	return out
}

func (s *SessionStore) RoomOf(id models.ConnectionID) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.byConn[id]
	if !ok {
		return "", false
	}
	return session.RoomID, true
}

// UsernameTaken reports whether any session in the room uses username
func (s *SessionStore) UsernameTaken(roomID, username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.rooms[roomID] {
		if s.byConn[id].Username == username {
			return true
		}
	}
	return false
}

// Rooms summarizes every non-empty room, sorted by room id
func (s *SessionStore) Rooms() []models.RoomSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.RoomSummary, 0, len(s.rooms))
	for roomID, members := range s.rooms {
		out = append(out, models.RoomSummary{RoomID: roomID, Members: len(members)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byConn)
}

func (s *SessionStore) RoomCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}
