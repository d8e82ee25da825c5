package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/gua-bot/internal/metrics"
	"go.uber.org/zap"
)

type fakeBot struct {
	mu       sync.Mutex
	updates  []tgbotapi.Update
	photos   []string
	photoErr error
}

func (f *fakeBot) HandleUpdate(_ context.Context, update tgbotapi.Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, update)
}

func (f *fakeBot) SendPhoto(_ context.Context, _ int64, photoURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.photoErr != nil {
		return f.photoErr
	}
	f.photos = append(f.photos, photoURL)
	return nil
}

func newTestServer(t *testing.T, secret string) (*Server, *fakeBot, *httptest.Server) {
	t.Helper()
	bot := &fakeBot{}
	reg := prometheus.NewRegistry()
	metrics.New(reg).Questions.Inc()
	s := New(context.Background(), bot, secret, reg, zap.NewNop())
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, bot, ts
}

const updateJSON = `{"update_id":7,"message":{"message_id":1,"date":1700000000,"text":"今年运势如何","from":{"id":1001,"is_bot":false,"first_name":"San"},"chat":{"id":555,"type":"private"}}}`

func TestIndex(t *testing.T) {
	_, _, ts := newTestServer(t, "")

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body["message"], "webhook")
}

func TestWebhook_DispatchesUpdate(t *testing.T) {
	s, bot, ts := newTestServer(t, "")

	resp, err := http.Post(ts.URL+"/webhook", "application/json", strings.NewReader(updateJSON))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	s.Wait()
	bot.mu.Lock()
	defer bot.mu.Unlock()
	require.Len(t, bot.updates, 1)
	assert.Equal(t, 7, bot.updates[0].UpdateID)
	assert.Equal(t, "今年运势如何", bot.updates[0].Message.Text)
	assert.Equal(t, int64(555), bot.updates[0].Message.Chat.ID)
}

func TestWebhook_Secret(t *testing.T) {
	s, bot, ts := newTestServer(t, "s3cret")

	post := func(token string) int {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/webhook", strings.NewReader(updateJSON))
		require.NoError(t, err)
		if token != "" {
			req.Header.Set(secretHeader, token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusUnauthorized, post(""))
	assert.Equal(t, http.StatusUnauthorized, post("wrong"))
	assert.Equal(t, http.StatusOK, post("s3cret"))

	s.Wait()
	bot.mu.Lock()
	defer bot.mu.Unlock()
	assert.Len(t, bot.updates, 1)
}

func TestWebhook_BadJSON(t *testing.T) {
	_, bot, ts := newTestServer(t, "")

	resp, err := http.Post(ts.URL+"/webhook", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, bot.updates)
}

func TestSendPhoto(t *testing.T) {
	_, bot, ts := newTestServer(t, "")

	resp, err := http.Post(ts.URL+"/send_photo?chat_id=555&photo_url=https://img.example.com/qian.png", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"https://img.example.com/qian.png"}, bot.photos)

	resp, err = http.Post(ts.URL+"/send_photo?chat_id=abc&photo_url=x", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	bot.photoErr = errors.New("chat not found")
	resp, err = http.Post(ts.URL+"/send_photo?chat_id=1&photo_url=x", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	_, _, ts := newTestServer(t, "")

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "guabot_questions_total 1")
}
