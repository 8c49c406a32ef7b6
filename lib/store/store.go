package store

import (
	"context"
	"errors"
	"time"

	"github.com/wenqt/florabot/lib/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the gorm-backed subscriber repository. It reports failures as
// plain errors; the policy for a failed read or write (abort the broadcast
// run, or log and reply with the apology text) belongs to the caller.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewStore(db *gorm.DB, log *zap.Logger) *Store {
	return &Store{db, log}
}

// ListDue returns every active subscriber that has not yet been pushed on
// the given calendar date. Rows that were never pushed have an empty
// LastPushDate and are always due.
func (s *Store) ListDue(ctx context.Context, today string) (models.Subscribers, error) {
	var subs models.Subscribers
	tx := s.db.WithContext(ctx).
		Where("active = ?", true).
		Where("last_push_date <> ?", today).
		Find(&subs)
	if err := tx.Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// MarkPushed records a successful push, updating only the de-duplication date.
func (s *Store) MarkPushed(ctx context.Context, userID, today string) error {
	tx := s.db.WithContext(ctx).
		Model(&models.Subscriber{}).
		Where("user_id = ?", userID).
		Update("last_push_date", today)
	return tx.Error
}

// SetActive idempotently sets the opt-in flag for one user, inserting the
// row on first contact. Deactivating an unknown user is a no-op. The
// returned bool reports whether a new row was created.
func (s *Store) SetActive(ctx context.Context, userID string, active bool) (bool, error) {
	var sub models.Subscriber
	err := s.db.WithContext(ctx).First(&sub, "user_id = ?", userID).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		if !active {
			return false, nil
		}
		sub = models.Subscriber{
			UserID:       userID,
			Platform:     models.PlatformLINE,
			Active:       true,
			SubscribedAt: time.Now().UTC(),
		}
		// Webhook delivery is at-least-once, so a concurrent redelivery may
		// have inserted the row between our read and this write.
		tx := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&sub)
		return true, tx.Error
	}
	if err != nil {
		return false, err
	}

	if sub.Active == active {
		return false, nil
	}
	tx := s.db.WithContext(ctx).
		Model(&models.Subscriber{}).
		Where("user_id = ?", userID).
		Update("active", active)
	return false, tx.Error
}

// Get fetches one subscriber row; found == false means no row exists.
func (s *Store) Get(ctx context.Context, userID string) (sub models.Subscriber, found bool, err error) {
	err = s.db.WithContext(ctx).First(&sub, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sub, false, nil
	}
	if err != nil {
		return sub, false, err
	}
	return sub, true, nil
}
