// Package chat abstracts the streaming conversational backend.
package chat

import (
	"context"
)

type EventType int

const (
	EventOther EventType = iota
	// EventMessageDelta carries one incremental content fragment.
	EventMessageDelta
	// EventChatCompleted marks the end of generation and carries usage.
	EventChatCompleted
)

func (t EventType) String() string {
	switch t {
	case EventMessageDelta:
		return "conversation.message.delta"
	case EventChatCompleted:
		return "conversation.chat.completed"
	default:
		return "other"
	}
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TokenCount   int
}

type Event struct {
	Type    EventType
	Content string
	Usage   *Usage
}

type Message struct {
	Role    string
	Content string
}

// Request starts one streamed chat. BotID selects the backend bot, UserID
// scopes the backend's conversation.
type Request struct {
	BotID    string
	UserID   string
	Messages []Message
}

// Stream yields events in arrival order. Recv returns io.EOF once the
// backend has finished.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

type Backend interface {
	Stream(ctx context.Context, req Request) (Stream, error)
}
