// Package session keeps the per-user conversation state between updates.
package session

import (
	"context"

	"github.com/xaenox/gua-bot/internal/models"
)

// Store loads and saves Session records keyed by Telegram user id.
type Store interface {
	// Load returns the stored session, or a fresh idle one on first contact.
	Load(ctx context.Context, telegramID int64) (*models.Session, error)
	Save(ctx context.Context, s *models.Session) error
	Close() error
}
