package session

import (
	"context"
	"sync"
	"time"

	"github.com/haasonsaas/llama-agent/pkg/agentmodel"
)

// MemoryStore is the in-process Store implementation: a map guarded by
// a single RWMutex. Reads (Get) take the read lock; mutations take the
// write lock.
type MemoryStore struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[agentmodel.SessionID]*agentmodel.Session
	nowFunc  func() time.Time
}

// NewMemoryStore constructs a MemoryStore with cfg normalized to its
// defaults where zero-valued.
func NewMemoryStore(cfg Config) *MemoryStore {
	return &MemoryStore{
		cfg:      cfg.normalized(),
		sessions: make(map[agentmodel.SessionID]*agentmodel.Session),
		nowFunc:  time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context) (*agentmodel.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictExpiredLocked()
	if len(s.sessions) >= s.cfg.MaxSessions {
		return nil, ErrMaxSessionsReached
	}

	now := s.nowFunc()
	sess := &agentmodel.Session{
		ID:        agentmodel.NewSessionID(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[sess.ID] = sess
	return sess.Clone(), nil
}

func (s *MemoryStore) Get(ctx context.Context, id agentmodel.SessionID) (*agentmodel.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok || s.isExpiredLocked(sess) {
		return nil, ErrNotFound
	}
	return sess.Clone(), nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, id agentmodel.SessionID, msg agentmodel.Message) (*agentmodel.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || s.isExpiredLocked(sess) {
		return nil, ErrNotFound
	}
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = s.nowFunc()
	return sess.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, id agentmodel.SessionID, mutate func(*agentmodel.Session)) (*agentmodel.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || s.isExpiredLocked(sess) {
		return nil, ErrNotFound
	}
	mutate(sess)
	sess.UpdatedAt = s.nowFunc()
	return sess.Clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id agentmodel.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictExpiredLocked()
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *MemoryStore) isExpiredLocked(sess *agentmodel.Session) bool {
	return s.nowFunc().Sub(sess.UpdatedAt) > s.cfg.SessionTimeout
}

func (s *MemoryStore) evictExpiredLocked() int {
	removed := 0
	for id, sess := range s.sessions {
		if s.isExpiredLocked(sess) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
