package domain

import (
	"sort"
	"sync"
	"time"
)

// Session is the registry entry of one live connection. Its user is fixed
// at connect time; rooms come and go.
type Session struct {
	ConnID      string
	UserID      string
	ConnectedAt time.Time

	mu    sync.RWMutex
	rooms map[string]string // roomID -> target user
}

func NewSession(connID, userID string) *Session {
	return &Session{
		ConnID:      connID,
		UserID:      userID,
		ConnectedAt: time.Now(),
		rooms:       make(map[string]string),
	}
}

// JoinRoom records the room; it reports false if already joined.
func (s *Session) JoinRoom(roomID, targetUserID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; ok {
		return false
	}
	s.rooms[roomID] = targetUserID
	return true
}

func (s *Session) LeaveRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

func (s *Session) InRoom(roomID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[roomID]
	return ok
}

// Rooms returns the joined room ids in sorted order.
func (s *Session) Rooms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
