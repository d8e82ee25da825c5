package models

import "time"

// User represents a bot user as known to the user/project backend
type User struct {
    UserID     string    `json:"user_id"`
    TelegramID string    `json:"tg_user_id"`
    Name       string    `json:"user_name"`
    CreatedAt  time.Time `json:"created_at"`
}

// Membership is a paid tier attached to a user for a period of time
type Membership struct {
    TierName    string    `json:"tier_name"`
    Description string    `json:"description"`
    DailyLimit  int       `json:"daily_limit"`
    StartTime   time.Time `json:"start_time"`
    EndTime     time.Time `json:"end_time"`
}

// Active reports whether the membership covers t.
func (m *Membership) Active(t time.Time) bool {
    return !t.Before(m.StartTime) && t.Before(m.EndTime)
}

// Quota is the user's allowance for one calendar day
type Quota struct {
    UserID     string `json:"user_id"`
    DailyLimit int    `json:"daily_limit"`
    Remaining  int    `json:"remaining"`
    Date       string `json:"date"`
}

func (q *Quota) Exhausted() bool {
    return q.Remaining <= 0
}

// Session is the per-user conversation state kept between updates
type Session struct {
    TelegramID         int64     `json:"tg_user_id"`
    WaitingForQuestion bool      `json:"waiting_for_question"`
    DailyLimit         int       `json:"daily_limit"`
    DailyCount         int       `json:"daily_count"`
    LastDate           string    `json:"last_date"`
    UserID             string    `json:"user_id"`
    UpdatedAt          time.Time `json:"updated_at"`
}

// ApplyQuota caches a freshly refreshed quota on the session.
func (s *Session) ApplyQuota(q *Quota) {
    s.DailyLimit = q.DailyLimit
    s.DailyCount = q.Remaining
    s.LastDate = q.Date
    s.UserID = q.UserID
}
