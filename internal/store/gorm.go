package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"x402router/internal/models"
)

// GormStore persists sessions in a relational table. Compare-and-swap is
// implemented as a conditional UPDATE guarded on the current status column;
// RowsAffected == 0 means the swap lost to a concurrent transition.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore wraps an initialized GORM connection
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

func (s *GormStore) Create(ctx context.Context, session *models.PaymentSession) error {
	err := s.db.WithContext(ctx).Create(session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateSession
		}
		return fmt.Errorf("create payment session: %w", err)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, id string) (*models.PaymentSession, error) {
	session, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	if session.Status == models.SessionPending && s.now().After(session.ExpiresAt) {
		if _, err := s.expire(ctx, id); err != nil {
			return nil, err
		}
		return s.fetch(ctx, id)
	}
	return session, nil
}

func (s *GormStore) GetByReceipt(ctx context.Context, receipt string) (*models.PaymentSession, error) {
	if receipt == "" {
		return nil, ErrSessionNotFound
	}

	var session models.PaymentSession
	err := s.db.WithContext(ctx).Where("receipt = ?", receipt).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get payment session by receipt: %w", err)
	}
	return &session, nil
}

func (s *GormStore) TryTransition(ctx context.Context, id string, expected, next models.SessionStatus, mutate MutateFunc) (bool, *models.PaymentSession, error) {
	session, err := s.fetch(ctx, id)
	if err != nil {
		return false, nil, err
	}

	// Lazy expiry wins over any transition attempt on an overdue session.
	if session.Status == models.SessionPending && s.now().After(session.ExpiresAt) {
		if _, err := s.expire(ctx, id); err != nil {
			return false, nil, err
		}
		session, err = s.fetch(ctx, id)
		if err != nil {
			return false, nil, err
		}
	}

	if session.Status != expected {
		return false, session, nil
	}

	if mutate != nil {
		mutate(session)
	}
	session.Status = next
	session.UpdatedAt = s.now()

	res := s.db.WithContext(ctx).
		Model(&models.PaymentSession{}).
		Where("id = ? AND status = ?", id, expected).
		Select("status", "receipt", "payment_proof_id", "completed_at", "updated_at").
		Updates(session)
	if res.Error != nil {
		return false, nil, fmt.Errorf("transition payment session: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		// Lost the race; report whatever state won.
		current, err := s.fetch(ctx, id)
		if err != nil {
			return false, nil, err
		}
		return false, current, nil
	}
	return true, session, nil
}

func (s *GormStore) ExpireOverdue(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.PaymentSession{}).
		Where("status = ? AND expires_at < ?", models.SessionPending, s.now()).
		Updates(map[string]interface{}{
			"status":     models.SessionExpired,
			"updated_at": s.now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("expire overdue sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) fetch(ctx context.Context, id string) (*models.PaymentSession, error) {
	var session models.PaymentSession
	err := s.db.WithContext(ctx).First(&session, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get payment session: %w", err)
	}
	return &session, nil
}

func (s *GormStore) expire(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.PaymentSession{}).
		Where("id = ? AND status = ?", id, models.SessionPending).
		Updates(map[string]interface{}{
			"status":     models.SessionExpired,
			"updated_at": s.now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("expire payment session: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
