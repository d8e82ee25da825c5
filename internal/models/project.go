package models

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TranscriptEntry is one role-tagged message of a question's transcript.
type TranscriptEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Project records a single question and, once answered, its transcript.
type Project struct {
	ProjectID string            `json:"project_id"`
	UserID    string            `json:"user_id"`
	Question  string            `json:"question"`
	Messages  []TranscriptEntry `json:"messages"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
