// Package chattest provides a scripted chat.Backend for tests.
package chattest

import (
	"context"
	"io"
	"sync"

	"github.com/xaenox/gua-bot/internal/chat"
)

// Backend replays Events on every Stream call. When Err is set the stream
// fails with it after the events are exhausted; OpenErr fails Stream itself.
type Backend struct {
	Events  []chat.Event
	Err     error
	OpenErr error

	mu       sync.Mutex
	requests []chat.Request
}

// Deltas builds one message-delta event per fragment.
func Deltas(fragments ...string) []chat.Event {
	events := make([]chat.Event, 0, len(fragments))
	for _, f := range fragments {
		events = append(events, chat.Event{Type: chat.EventMessageDelta, Content: f})
	}
	return events
}

func (b *Backend) Stream(_ context.Context, req chat.Request) (chat.Stream, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.mu.Unlock()

	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	return &stream{events: append([]chat.Event(nil), b.Events...), err: b.Err}, nil
}

// Requests returns the requests seen so far.
func (b *Backend) Requests() []chat.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]chat.Request(nil), b.requests...)
}

type stream struct {
	events []chat.Event
	err    error
	closed bool
}

func (s *stream) Recv() (chat.Event, error) {
	if len(s.events) == 0 {
		if s.err != nil {
			return chat.Event{}, s.err
		}
		return chat.Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *stream) Close() error {
	s.closed = true
	return nil
}
