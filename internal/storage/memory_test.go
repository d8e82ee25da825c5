package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/gua-bot/internal/models"
)

func newTestMemory(now time.Time) *MemoryStorage {
	s := NewMemoryStorage(BaseTier{Name: "免费用户", DailyLimit: 3})
	s.SetClock(func() time.Time { return now })
	return s
}

func TestMemoryStorage_GetOrCreateUser(t *testing.T) {
	ctx := context.Background()
	s := newTestMemory(time.Now())

	first, err := s.GetOrCreateUser(ctx, "1001", "Zhang San")
	require.NoError(t, err)
	assert.NotEmpty(t, first.UserID)
	assert.Equal(t, "1001", first.TelegramID)

	again, err := s.GetOrCreateUser(ctx, "1001", "Zhang Sanfeng")
	require.NoError(t, err)
	assert.Equal(t, first.UserID, again.UserID)
	assert.Equal(t, "Zhang Sanfeng", again.Name)

	other, err := s.GetOrCreateUser(ctx, "1002", "Li Si")
	require.NoError(t, err)
	assert.NotEqual(t, first.UserID, other.UserID)
}

func TestMemoryStorage_DailyLimitFollowsMembership(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	s := newTestMemory(now)

	user, err := s.GetOrCreateUser(ctx, "1001", "Zhang San")
	require.NoError(t, err)

	limit, err := s.GetUserDailyLimit(ctx, user.UserID)
	require.NoError(t, err)
	assert.Equal(t, 3, limit)

	m, err := s.GetUserMembershipInfo(ctx, user.UserID)
	require.NoError(t, err)
	assert.Nil(t, m)

	s.SetMembership(user.UserID, models.Membership{
		TierName:   "月度会员",
		DailyLimit: 20,
		StartTime:  now.Add(-24 * time.Hour),
		EndTime:    now.Add(24 * time.Hour),
	})

	limit, err = s.GetUserDailyLimit(ctx, user.UserID)
	require.NoError(t, err)
	assert.Equal(t, 20, limit)

	m, err = s.GetUserMembershipInfo(ctx, user.UserID)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "月度会员", m.TierName)

	s.SetMembership(user.UserID, models.Membership{
		TierName:   "过期会员",
		DailyLimit: 50,
		StartTime:  now.Add(-48 * time.Hour),
		EndTime:    now.Add(-24 * time.Hour),
	})

	limit, err = s.GetUserDailyLimit(ctx, user.UserID)
	require.NoError(t, err)
	assert.Equal(t, 3, limit, "expired membership falls back to the base tier")
}

func TestMemoryStorage_UsageCountedPerBeijingDay(t *testing.T) {
	ctx := context.Background()
	// 2024-03-10 17:00 UTC is already 2024-03-11 01:00 in UTC+8.
	now := time.Date(2024, 3, 10, 17, 0, 0, 0, time.UTC)
	s := newTestMemory(now)

	user, err := s.GetOrCreateUser(ctx, "1001", "Zhang San")
	require.NoError(t, err)

	_, err = s.CreateProject(ctx, user.UserID, "今年运势如何")
	require.NoError(t, err)
	_, err = s.CreateProject(ctx, user.UserID, "事业如何")
	require.NoError(t, err)

	count, err := s.GetTodayUsageCount(ctx, user.UserID, "2024-03-11")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = s.GetTodayUsageCount(ctx, user.UserID, "2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMemoryStorage_UpdateProjectMessages(t *testing.T) {
	ctx := context.Background()
	s := newTestMemory(time.Now())

	p, err := s.CreateProject(ctx, "u-1", "今年运势如何")
	require.NoError(t, err)

	msgs := []models.TranscriptEntry{
		{Role: models.RoleAssistant, Content: "开始起卦"},
		{Role: models.RoleAssistant, Content: "大吉"},
	}
	require.NoError(t, s.UpdateProjectMessages(ctx, p.ProjectID, msgs))

	msgs[1].Content = "mutated"
	stored, err := s.GetProject(p.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, "大吉", stored.Messages[1].Content)

	err = s.UpdateProjectMessages(ctx, "missing", msgs)
	assert.True(t, errors.Is(err, ErrNotFound))
}
