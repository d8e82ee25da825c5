// Package stream relays a chat backend stream to a Telegram chat as a
// bounded number of sends and in-place edits, and records the transcript.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xaenox/gua-bot/internal/chat"
	"github.com/xaenox/gua-bot/internal/metrics"
	"github.com/xaenox/gua-bot/internal/models"
	"go.uber.org/zap"
)

const (
	// FlushThreshold is the number of buffered characters that triggers an
	// edit after the first message has been sent.
	FlushThreshold = 30

	// StatusMarker prefixes fragments that announce the casting has begun.
	StatusMarker = "开始起卦"

	lineBreakMarker = "<br><br>"
)

// Messenger is the outbound side of the chat transport.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) (int, error)
	SendPhoto(ctx context.Context, chatID int64, photoURL string) error
	EditText(ctx context.Context, chatID int64, messageID int, text string) error
}

// TranscriptWriter persists the finished transcript of a project.
type TranscriptWriter interface {
	UpdateProjectMessages(ctx context.Context, projectID string, messages []models.TranscriptEntry) error
}

type Request struct {
	ChatID    int64
	Question  string
	ProjectID string
}

type Result struct {
	Transcript []models.TranscriptEntry
	// Text is the last text shown in the answer message.
	Text      string
	MessageID int
	Edits     int
	Persisted bool
}

type Streamer struct {
	backend     chat.Backend
	botID       string
	messenger   Messenger
	transcripts TranscriptWriter
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

func NewStreamer(backend chat.Backend, botID string, messenger Messenger, transcripts TranscriptWriter, m *metrics.Metrics, logger *zap.Logger) *Streamer {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Streamer{
		backend:     backend,
		botID:       botID,
		messenger:   messenger,
		transcripts: transcripts,
		metrics:     m,
		logger:      logger,
	}
}

// AnswerHeader is the text that opens the answer message.
func AnswerHeader(question string) string {
	return fmt.Sprintf("您所问的事：%s\n\n卦象解析：\n", question)
}

type fragmentKind int

const (
	fragmentText fragmentKind = iota
	fragmentImage
	fragmentStatus
)

// classify matches a fragment against the shapes the backend emits. An image
// is a whole fragment of the form ![alt](url).
func classify(content string) (fragmentKind, string) {
	if strings.HasPrefix(content, "![") && strings.HasSuffix(content, ")") {
		if i := strings.Index(content, "]("); i >= 0 && i+2 <= len(content)-1 {
			return fragmentImage, content[i+2 : len(content)-1]
		}
	}
	if strings.HasPrefix(content, StatusMarker) {
		return fragmentStatus, ""
	}
	return fragmentText, ""
}

func normalize(text string) string {
	return strings.ReplaceAll(text, lineBreakMarker, "\n")
}

// relay holds the buffers of one question.
type relay struct {
	*Streamer
	req Request

	transcript    []models.TranscriptEntry
	contentBuffer string
	textBuffer    string
	messageID     int
	edits         int
}

// Relay streams the answer to req.Question into req.ChatID. Send and edit
// failures are logged and skipped. A backend error aborts the relay and is
// returned; nothing is persisted in that case.
func (s *Streamer) Relay(ctx context.Context, req Request) (*Result, error) {
	stream, err := s.backend.Stream(ctx, chat.Request{
		BotID:  s.botID,
		UserID: req.ProjectID,
		Messages: []chat.Message{
			{Role: models.RoleUser, Content: req.Question},
		},
	})
	if err != nil {
		s.metrics.StreamFailures.Inc()
		return nil, err
	}
	defer stream.Close()

	r := &relay{Streamer: s, req: req}
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.metrics.StreamFailures.Inc()
			return nil, fmt.Errorf("relay project %s: %w", req.ProjectID, err)
		}

		switch ev.Type {
		case chat.EventMessageDelta:
			r.handleDelta(ctx, ev.Content)
		case chat.EventChatCompleted:
			if ev.Usage != nil {
				s.metrics.TokensUsed.Add(float64(ev.Usage.TokenCount))
				s.logger.Info("Chat completed",
					zap.String("project_id", req.ProjectID),
					zap.Int("token_count", ev.Usage.TokenCount))
			}
		}
	}

	return r.finish(ctx), nil
}

func (r *relay) handleDelta(ctx context.Context, content string) {
	kind, photoURL := classify(content)
	switch kind {
	case fragmentImage:
		if err := r.messenger.SendPhoto(ctx, r.req.ChatID, photoURL); err != nil {
			r.logger.Warn("Failed to send photo",
				zap.Error(err),
				zap.Int64("chat_id", r.req.ChatID),
				zap.String("photo_url", photoURL))
			return
		}
		r.metrics.Sends.WithLabelValues("photo").Inc()
		r.record(content)

	case fragmentStatus:
		if _, err := r.messenger.SendText(ctx, r.req.ChatID, StatusMarker); err != nil {
			r.logger.Warn("Failed to send status message",
				zap.Error(err),
				zap.Int64("chat_id", r.req.ChatID))
			return
		}
		r.metrics.Sends.WithLabelValues("status").Inc()
		r.record(content)

	default:
		r.contentBuffer += content
		if r.messageID == 0 {
			r.sendFirst(ctx)
			return
		}
		if utf8.RuneCountInString(r.contentBuffer) >= FlushThreshold {
			r.flush(ctx)
		}
	}
}

// sendFirst sends the answer message as soon as there is any text, so the
// first token is shown without waiting for the threshold.
func (r *relay) sendFirst(ctx context.Context) {
	text := normalize(AnswerHeader(r.req.Question) + r.contentBuffer)
	id, err := r.messenger.SendText(ctx, r.req.ChatID, text)
	if err != nil {
		r.logger.Warn("Failed to send answer message",
			zap.Error(err),
			zap.Int64("chat_id", r.req.ChatID))
		return
	}
	r.metrics.Sends.WithLabelValues("text").Inc()
	r.messageID = id
	r.textBuffer = text
	r.contentBuffer = ""
}

func (r *relay) flush(ctx context.Context) {
	r.textBuffer = normalize(r.textBuffer + r.contentBuffer)
	r.contentBuffer = ""
	if err := r.messenger.EditText(ctx, r.req.ChatID, r.messageID, r.textBuffer); err != nil {
		r.metrics.EditFailures.Inc()
		r.logger.Warn("Failed to update message",
			zap.Error(err),
			zap.Int64("chat_id", r.req.ChatID),
			zap.Int("message_id", r.messageID))
		return
	}
	r.metrics.Edits.Inc()
	r.edits++
}

func (r *relay) record(content string) {
	r.transcript = append(r.transcript, models.TranscriptEntry{
		Role:    models.RoleAssistant,
		Content: content,
	})
}

// finish flushes what is left, then persists the transcript once. Nothing is
// persisted when no answer message could be sent.
func (r *relay) finish(ctx context.Context) *Result {
	res := &Result{MessageID: r.messageID}
	if r.messageID == 0 {
		res.Transcript = r.transcript
		return res
	}

	if r.contentBuffer != "" {
		r.flush(ctx)
	}
	r.record(r.textBuffer)

	res.Transcript = r.transcript
	res.Text = r.textBuffer
	res.Edits = r.edits

	if err := r.transcripts.UpdateProjectMessages(ctx, r.req.ProjectID, r.transcript); err != nil {
		r.logger.Warn("Failed to update project messages",
			zap.Error(err),
			zap.String("project_id", r.req.ProjectID))
		return res
	}
	res.Persisted = true
	return res
}
