package storage

import (
	"context"
	"errors"
	"time"

	"github.com/xaenox/gua-bot/internal/models"
)

var ErrNotFound = errors.New("not found")

// DateLayout is the format of the date argument of GetTodayUsageCount.
const DateLayout = "2006-01-02"

// Storage is the user/project backend the bot reads quota from and writes
// transcripts to.
type Storage interface {
	GetOrCreateUser(ctx context.Context, telegramID, name string) (*models.User, error)
	GetUserDailyLimit(ctx context.Context, userID string) (int, error)
	// GetTodayUsageCount returns the number of projects the user created on
	// date, a DateLayout day in the UTC+8 calendar.
	GetTodayUsageCount(ctx context.Context, userID string, date string) (int, error)
	GetUserMembershipInfo(ctx context.Context, userID string) (*models.Membership, error)
	Close() error

	ProjectStorage
}

type ProjectStorage interface {
	CreateProject(ctx context.Context, userID, question string) (*models.Project, error)
	UpdateProjectMessages(ctx context.Context, projectID string, messages []models.TranscriptEntry) error
}

// BaseTier is the allowance of users without an active membership.
type BaseTier struct {
	Name        string
	Description string
	DailyLimit  int
}

// Beijing is the calendar zone usage is counted in.
var Beijing = time.FixedZone("UTC+8", 8*60*60)
