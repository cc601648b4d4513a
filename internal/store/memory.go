package store

import (
	"context"
	"sync"
	"time"

	"x402router/internal/models"
)

// MemoryStore keeps sessions in a mutex-guarded map. It is the default
// backend when DATABASE_URL is unset and the backend the tests run against.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*models.PaymentSession
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory session store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.PaymentSession),
		now:      time.Now,
	}
}

// SetClock overrides the store's clock. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Create(ctx context.Context, session *models.PaymentSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return ErrDuplicateSession
	}

	now := s.now()
	cp := session.Clone()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.sessions[cp.ID] = cp

	session.CreatedAt = cp.CreatedAt
	session.UpdatedAt = cp.UpdatedAt
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.expireIfOverdue(session)
	return session.Clone(), nil
}

func (s *MemoryStore) GetByReceipt(ctx context.Context, receipt string) (*models.PaymentSession, error) {
	if receipt == "" {
		return nil, ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, session := range s.sessions {
		if session.Receipt == receipt {
			return session.Clone(), nil
		}
	}
	return nil, ErrSessionNotFound
}

func (s *MemoryStore) TryTransition(ctx context.Context, id string, expected, next models.SessionStatus, mutate MutateFunc) (bool, *models.PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return false, nil, ErrSessionNotFound
	}

	// A transition attempt against an overdue pending session loses to
	// expiry first.
	s.expireIfOverdue(session)

	if session.Status != expected {
		return false, session.Clone(), nil
	}

	if mutate != nil {
		mutate(session)
	}
	session.Status = next
	session.UpdatedAt = s.now()
	return true, session.Clone(), nil
}

func (s *MemoryStore) ExpireOverdue(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, session := range s.sessions {
		if session.Status == models.SessionPending && s.now().After(session.ExpiresAt) {
			session.Status = models.SessionExpired
			session.UpdatedAt = s.now()
			n++
		}
	}
	return n, nil
}

// expireIfOverdue must be called with the lock held
func (s *MemoryStore) expireIfOverdue(session *models.PaymentSession) {
	if session.Status == models.SessionPending && s.now().After(session.ExpiresAt) {
		session.Status = models.SessionExpired
		session.UpdatedAt = s.now()
	}
}
