package session

import (
	"sort"
	"sync"
)

// Store keeps the current session and a bounded history of ended ones for
// status endpoints. Reads return copies.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]Session
	limit    int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 20
	}
	return &Store{
		sessions: make(map[string]Session),
		limit:    limit,
	}
}

func (s *Store) Get(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return st.Clone(), true
}

// GetAll returns every stored session, newest first.
func (s *Store) GetAll() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]Session, 0, len(s.sessions))
	for _, st := range s.sessions {
		result = append(result, st.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	return result
}

// Update inserts or replaces a session, evicting the oldest ended sessions
// beyond the limit.
func (s *Store) Update(st Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[st.ID] = st.Clone()
	s.evictLocked()
}

func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// ActiveCount returns the number of sessions that are launching or watching.
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, st := range s.sessions {
		if st.State.Active() {
			count++
		}
	}
	return count
}

// evictLocked drops the oldest inactive sessions. Caller must hold s.mu.
func (s *Store) evictLocked() {
	for len(s.sessions) > s.limit {
		var oldestID string
		var oldest Session
		for id, st := range s.sessions {
			if st.State.Active() {
				continue
			}
			if oldestID == "" || st.StartedAt.Before(oldest.StartedAt) {
				oldestID, oldest = id, st
			}
		}
		if oldestID == "" {
			return
		}
		delete(s.sessions, oldestID)
	}
}
