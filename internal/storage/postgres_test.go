package storage

import (
	"context"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/gua-bot/internal/models"
	"go.uber.org/zap"
)

// Runs only against a disposable database named by GUA_TEST_DATABASE_URL.
func openTestPostgres(t *testing.T) *PostgresStorage {
	t.Helper()
	raw := os.Getenv("GUA_TEST_DATABASE_URL")
	if raw == "" {
		t.Skip("GUA_TEST_DATABASE_URL not set")
	}
	u, err := url.Parse(raw)
	require.NoError(t, err)
	port, _ := strconv.Atoi(u.Port())
	if port == 0 {
		port = 5432
	}
	password, _ := u.User.Password()
	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	s, err := NewPostgresStorage(DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, BaseTier{Name: "免费用户", DailyLimit: 3}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgresStorage_ProjectLifecycle(t *testing.T) {
	s := openTestPostgres(t)
	ctx := context.Background()

	tgID := "pg-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	user, err := s.GetOrCreateUser(ctx, tgID, "Zhang San")
	require.NoError(t, err)

	limit, err := s.GetUserDailyLimit(ctx, user.UserID)
	require.NoError(t, err)
	assert.Equal(t, 3, limit)

	today := time.Now().In(Beijing).Format(DateLayout)
	before, err := s.GetTodayUsageCount(ctx, user.UserID, today)
	require.NoError(t, err)

	p, err := s.CreateProject(ctx, user.UserID, "今年运势如何")
	require.NoError(t, err)

	after, err := s.GetTodayUsageCount(ctx, user.UserID, today)
	require.NoError(t, err)
	assert.Equal(t, before+1, after)

	err = s.UpdateProjectMessages(ctx, p.ProjectID, []models.TranscriptEntry{
		{Role: models.RoleAssistant, Content: "大吉"},
	})
	require.NoError(t, err)

	m, err := s.GetUserMembershipInfo(ctx, user.UserID)
	require.NoError(t, err)
	assert.Nil(t, m)
}
