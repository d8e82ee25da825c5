package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/gua-bot/internal/chat"
	"github.com/xaenox/gua-bot/internal/metrics"
	"github.com/xaenox/gua-bot/internal/models"
	"github.com/xaenox/gua-bot/internal/quota"
	"github.com/xaenox/gua-bot/internal/session"
	"github.com/xaenox/gua-bot/internal/storage"
	"github.com/xaenox/gua-bot/internal/stream"
	"go.uber.org/zap"
)

const (
	msgPrompt         = "请输入你所求之事："
	msgExhausted      = "今日算卦次数已用完，请明日再来。"
	msgStartFirst     = "请先发送 /start 开始算卦流程。"
	msgSystemError    = "系统错误，请稍后再试。"
	msgStreamFailure  = "抱歉，算卦系统暂时遇到问题，请稍后再试。"
	msgUnknownCommand = "未知命令，请使用 /help 查看可用命令。"
)

// BotAPI is the subset of *tgbotapi.BotAPI the bot uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Deps are the collaborators a Bot is built from.
type Deps struct {
	Storage  storage.Storage
	Sessions session.Store
	Backend  chat.Backend
	BotID    string
	Metrics  *metrics.Metrics
}

type Bot struct {
	api       BotAPI
	storage   storage.Storage
	sessions  session.Store
	tracker   *quota.Tracker
	streamer  *stream.Streamer
	messenger *telegramMessenger
	metrics   *metrics.Metrics
	logger    *zap.Logger

	mu    sync.Mutex
	users map[int64]*sync.Mutex
}

func New(token string, deps Deps, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	logger.Info("Authorized on Telegram", zap.String("username", api.Self.UserName))

	return NewWithAPI(api, deps, logger), nil
}

// NewWithAPI builds a Bot over an already constructed Telegram client.
func NewWithAPI(api BotAPI, deps Deps, logger *zap.Logger) *Bot {
	m := deps.Metrics
	if m == nil {
		m = metrics.New(nil)
	}
	messenger := &telegramMessenger{api: api}

	return &Bot{
		api:       api,
		storage:   deps.Storage,
		sessions:  deps.Sessions,
		tracker:   quota.NewTracker(deps.Storage, logger),
		streamer:  stream.NewStreamer(deps.Backend, deps.BotID, messenger, deps.Storage, m, logger),
		messenger: messenger,
		metrics:   m,
		logger:    logger,
		users:     make(map[int64]*sync.Mutex),
	}
}

// Start long-polls Telegram until ctx is cancelled. Each update is handled on
// its own goroutine.
func (b *Bot) Start(ctx context.Context) error {
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.HandleUpdate(ctx, update)
		}
	}
}

// SetWebhook registers url with Telegram. A non-empty secret is echoed back
// by Telegram in the X-Telegram-Bot-Api-Secret-Token header.
func (b *Bot) SetWebhook(url, secret string) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	if _, err := b.api.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	b.logger.Info("Webhook registered", zap.String("url", url))
	return nil
}

// HandleUpdate processes one inbound update. Updates of the same user are
// handled one at a time so their outbound messages stay in order.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	message := update.Message
	if message == nil || message.From == nil || message.Chat == nil {
		return
	}

	unlock := b.lockUser(message.From.ID)
	defer unlock()

	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	if message.Text == "" {
		return
	}

	b.handleMessage(ctx, message)
}

func (b *Bot) lockUser(userID int64) func() {
	b.mu.Lock()
	l, ok := b.users[userID]
	if !ok {
		l = &sync.Mutex{}
		b.users[userID] = l
	}
	b.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(ctx, message)
	case "profile":
		b.handleProfile(ctx, message)
	case "help":
		b.handleHelp(message)
	default:
		b.sendMessage(message.Chat.ID, msgUnknownCommand)
	}
}

func displayName(user *tgbotapi.User) string {
	return strings.TrimSpace(user.FirstName + " " + user.LastName)
}

// refreshSession loads the user's session and refreshes its cached quota
// from the backend.
func (b *Bot) refreshSession(ctx context.Context, message *tgbotapi.Message) (*models.Session, *models.Quota, error) {
	sess, err := b.sessions.Load(ctx, message.From.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("load session: %w", err)
	}

	q, err := b.tracker.Refresh(ctx, strconv.FormatInt(message.From.ID, 10), displayName(message.From))
	if err != nil {
		return nil, nil, err
	}

	sess.ApplyQuota(q)
	return sess, q, nil
}

func (b *Bot) saveSession(ctx context.Context, sess *models.Session) {
	if err := b.sessions.Save(ctx, sess); err != nil {
		b.logger.Error("Failed to save session",
			zap.Error(err),
			zap.Int64("user_id", sess.TelegramID))
	}
}

func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) {
	sess, q, err := b.refreshSession(ctx, message)
	if err != nil {
		b.logger.Error("Failed to refresh quota",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendMessage(message.Chat.ID, msgSystemError)
		return
	}

	if q.Exhausted() {
		b.metrics.QuotaRefusals.WithLabelValues("start").Inc()
		sess.WaitingForQuestion = false
		b.saveSession(ctx, sess)
		b.sendMessage(message.Chat.ID, msgExhausted)
		return
	}

	sess.WaitingForQuestion = true
	b.saveSession(ctx, sess)
	b.sendMessage(message.Chat.ID, msgPrompt)
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	sess, err := b.sessions.Load(ctx, message.From.ID)
	if err != nil {
		b.logger.Error("Failed to load session",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendMessage(message.Chat.ID, msgSystemError)
		return
	}

	if !sess.WaitingForQuestion {
		b.sendMessage(message.Chat.ID, msgStartFirst)
		return
	}

	// Quota may have been used elsewhere since the prompt.
	sess, q, err := b.refreshSession(ctx, message)
	if err != nil {
		b.logger.Error("Failed to refresh quota",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendMessage(message.Chat.ID, msgSystemError)
		return
	}

	if q.Exhausted() {
		b.metrics.QuotaRefusals.WithLabelValues("question").Inc()
		sess.WaitingForQuestion = false
		b.saveSession(ctx, sess)
		b.sendMessage(message.Chat.ID, msgExhausted)
		return
	}

	question := message.Text
	sess.WaitingForQuestion = false
	b.saveSession(ctx, sess)

	project, err := b.storage.CreateProject(ctx, q.UserID, question)
	if err != nil {
		b.logger.Error("Failed to create project",
			zap.Error(err),
			zap.String("user_id", q.UserID))
		b.sendMessage(message.Chat.ID, msgSystemError)
		return
	}

	b.metrics.Questions.Inc()
	b.logger.Info("Question accepted",
		zap.String("project_id", project.ProjectID),
		zap.String("user_id", q.UserID),
		zap.Int("remaining", q.Remaining-1))

	_, err = b.streamer.Relay(ctx, stream.Request{
		ChatID:    message.Chat.ID,
		Question:  question,
		ProjectID: project.ProjectID,
	})
	if err != nil {
		b.logger.Error("Failed to relay answer",
			zap.Error(err),
			zap.String("project_id", project.ProjectID),
			zap.Int64("chat_id", message.Chat.ID))
		b.sendMessage(message.Chat.ID, msgStreamFailure)
	}
}

func (b *Bot) handleProfile(ctx context.Context, message *tgbotapi.Message) {
	sess, q, err := b.refreshSession(ctx, message)
	if err != nil {
		b.logger.Error("Failed to refresh quota",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendMessage(message.Chat.ID, msgSystemError)
		return
	}
	b.saveSession(ctx, sess)

	membership, err := b.storage.GetUserMembershipInfo(ctx, q.UserID)
	if err != nil {
		b.logger.Error("Failed to get membership info",
			zap.Error(err),
			zap.String("user_id", q.UserID))
		b.sendMessage(message.Chat.ID, msgSystemError)
		return
	}

	b.sendMessage(message.Chat.ID, renderProfile(message.From.FirstName, q, membership))
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `可用命令：
/start - 开始算卦，随后发送你所求之事
/profile - 查看会员等级与今日剩余次数
/help - 显示本帮助`

	b.sendMessage(message.Chat.ID, help)
}

// SendPhoto sends a photo by URL to chatID.
func (b *Bot) SendPhoto(ctx context.Context, chatID int64, photoURL string) error {
	return b.messenger.SendPhoto(ctx, chatID, photoURL)
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
