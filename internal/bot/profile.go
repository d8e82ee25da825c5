package bot

import (
	"fmt"
	"strings"

	"github.com/xaenox/gua-bot/internal/models"
	"github.com/xaenox/gua-bot/internal/storage"
)

const profileDateLayout = "2006-01-02"

// renderProfile formats the /profile reply. Membership dates are shown in
// UTC+8.
func renderProfile(userName string, q *models.Quota, m *models.Membership) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "用户：%s\n", userName)
	if m != nil {
		fmt.Fprintf(&sb, "会员等级：%s\n", m.TierName)
		fmt.Fprintf(&sb, "会员说明：%s\n", m.Description)
		fmt.Fprintf(&sb, "会员有效期：%s 至 %s\n",
			m.StartTime.In(storage.Beijing).Format(profileDateLayout),
			m.EndTime.In(storage.Beijing).Format(profileDateLayout))
	} else {
		sb.WriteString("会员等级：免费用户\n")
	}
	fmt.Fprintf(&sb, "今日剩余算卦次数：%d\n", q.Remaining)
	fmt.Fprintf(&sb, "每日限额：%d次", q.DailyLimit)
	return sb.String()
}
