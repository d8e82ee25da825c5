package chat

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIBackend streams chat completions from an OpenAI-compatible endpoint.
type OpenAIBackend struct {
	client *openai.Client
	logger *zap.Logger
}

func NewOpenAIBackend(token, baseURL string, logger *zap.Logger) *OpenAIBackend {
	cfg := openai.DefaultConfig(token)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIBackend{
		client: openai.NewClientWithConfig(cfg),
		logger: logger,
	}
}

func (b *OpenAIBackend) Stream(ctx context.Context, req Request) (Stream, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	stream, err := b.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:         req.BotID,
		User:          req.UserID,
		Messages:      messages,
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	})
	if err != nil {
		return nil, fmt.Errorf("open chat stream: %w", err)
	}

	b.logger.Debug("Chat stream opened",
		zap.String("bot_id", req.BotID),
		zap.String("session_id", req.UserID))

	return &openAIStream{stream: stream}, nil
}

type openAIStream struct {
	stream  *openai.ChatCompletionStream
	pending []Event
	done    bool
}

func (s *openAIStream) Recv() (Event, error) {
	for len(s.pending) == 0 {
		if s.done {
			return Event{}, io.EOF
		}
		if err := s.fill(); err != nil {
			return Event{}, err
		}
	}
	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, nil
}

// fill reads one chunk and turns it into zero or more events. A chunk may
// carry both a delta and the usage block, and the usage chunk may arrive
// without any choices.
func (s *openAIStream) fill() error {
	resp, err := s.stream.Recv()
	if errors.Is(err, io.EOF) {
		s.done = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("read chat stream: %w", err)
	}

	for _, choice := range resp.Choices {
		if choice.Delta.Content != "" {
			s.pending = append(s.pending, Event{Type: EventMessageDelta, Content: choice.Delta.Content})
		}
	}
	if resp.Usage != nil {
		s.pending = append(s.pending, Event{
			Type: EventChatCompleted,
			Usage: &Usage{
				InputTokens:  resp.Usage.PromptTokens,
				OutputTokens: resp.Usage.CompletionTokens,
				TokenCount:   resp.Usage.TotalTokens,
			},
		})
	} else if len(s.pending) == 0 {
		s.pending = append(s.pending, Event{Type: EventOther})
	}
	return nil
}

func (s *openAIStream) Close() error {
	return s.stream.Close()
}
