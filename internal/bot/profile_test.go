package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/xaenox/gua-bot/internal/models"
)

func TestRenderProfile_FreeTier(t *testing.T) {
	got := renderProfile("San", &models.Quota{DailyLimit: 3, Remaining: 2}, nil)

	assert.Equal(t, "用户：San\n会员等级：免费用户\n今日剩余算卦次数：2\n每日限额：3次", got)
}

func TestRenderProfile_Membership(t *testing.T) {
	m := &models.Membership{
		TierName:    "月度会员",
		Description: "每日二十次",
		// 16:30 UTC is already the next day in UTC+8.
		StartTime: time.Date(2024, 2, 29, 16, 30, 0, 0, time.UTC),
		EndTime:   time.Date(2024, 3, 30, 15, 0, 0, 0, time.UTC),
	}

	got := renderProfile("San", &models.Quota{DailyLimit: 20, Remaining: 0}, m)

	assert.Equal(t, "用户：San\n"+
		"会员等级：月度会员\n"+
		"会员说明：每日二十次\n"+
		"会员有效期：2024-03-01 至 2024-03-30\n"+
		"今日剩余算卦次数：0\n"+
		"每日限额：20次", got)
}
