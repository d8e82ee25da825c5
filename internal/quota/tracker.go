// Package quota computes a user's remaining daily allowance from the
// user/project backend. The backend is authoritative: nothing is counted
// locally, so callers refresh at every gating point.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xaenox/gua-bot/internal/models"
	"github.com/xaenox/gua-bot/internal/storage"
	"go.uber.org/zap"
)

// ErrUserResolution is returned when the backend cannot resolve or create
// the user.
var ErrUserResolution = errors.New("user resolution failed")

// Backend is the part of storage.Storage the tracker reads.
type Backend interface {
	GetOrCreateUser(ctx context.Context, telegramID, name string) (*models.User, error)
	GetUserDailyLimit(ctx context.Context, userID string) (int, error)
	GetTodayUsageCount(ctx context.Context, userID string, date string) (int, error)
}

type Tracker struct {
	backend Backend
	now     func() time.Time
	logger  *zap.Logger
}

func NewTracker(backend Backend, logger *zap.Logger) *Tracker {
	return &Tracker{
		backend: backend,
		now:     time.Now,
		logger:  logger,
	}
}

// WithClock returns a copy of the tracker reading time from now.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	c := *t
	c.now = now
	return &c
}

// Today returns the current UTC+8 calendar date.
func (t *Tracker) Today() string {
	return t.now().In(storage.Beijing).Format(storage.DateLayout)
}

func (t *Tracker) Refresh(ctx context.Context, telegramID, displayName string) (*models.Quota, error) {
	user, err := t.backend.GetOrCreateUser(ctx, telegramID, displayName)
	if err != nil || user == nil {
		t.logger.Error("Failed to get or create user",
			zap.Error(err),
			zap.String("tg_user_id", telegramID))
		return nil, fmt.Errorf("%w: tg user %s: %v", ErrUserResolution, telegramID, err)
	}

	today := t.Today()

	limit, err := t.backend.GetUserDailyLimit(ctx, user.UserID)
	if err != nil {
		return nil, fmt.Errorf("get daily limit: %w", err)
	}

	used, err := t.backend.GetTodayUsageCount(ctx, user.UserID, today)
	if err != nil {
		return nil, fmt.Errorf("get usage count: %w", err)
	}

	return &models.Quota{
		UserID:     user.UserID,
		DailyLimit: limit,
		Remaining:  limit - used,
		Date:       today,
	}, nil
}
