// Package server exposes the bot over HTTP: Telegram webhook intake, a
// send-photo endpoint, a greeting and prometheus metrics.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Bot is what the server drives.
type Bot interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update)
	SendPhoto(ctx context.Context, chatID int64, photoURL string) error
}

type Server struct {
	bot      Bot
	secret   string
	gatherer prometheus.Gatherer
	logger   *zap.Logger

	// Updates outlive their webhook request, so they run on baseCtx.
	baseCtx context.Context
	wg      sync.WaitGroup
}

func New(ctx context.Context, bot Bot, secret string, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	return &Server{
		bot:      bot,
		secret:   secret,
		gatherer: gatherer,
		logger:   logger,
		baseCtx:  ctx,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Post("/webhook", s.handleWebhook)
	r.Post("/send_photo", s.handleSendPhoto)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// updates.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Wait()
	return err
}

// Wait blocks until every dispatched update has been handled.
func (s *Server) Wait() {
	s.wg.Wait()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": msg})
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Hello, this is the Telegram bot webhook!"})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.secret != "" {
		token := r.Header.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(s.secret), []byte(token)) != 1 {
			s.logger.Warn("Webhook rejected: bad secret token", zap.String("remote", r.RemoteAddr))
			writeError(w, http.StatusUnauthorized, "invalid secret token")
			return
		}
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.logger.Warn("Error processing update", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid update: "+err.Error())
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.bot.HandleUpdate(s.baseCtx, update)
	}()

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSendPhoto(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(r.URL.Query().Get("chat_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat_id")
		return
	}
	photoURL := r.URL.Query().Get("photo_url")
	if photoURL == "" {
		writeError(w, http.StatusBadRequest, "photo_url is required")
		return
	}

	if err := s.bot.SendPhoto(r.Context(), chatID, photoURL); err != nil {
		s.logger.Error("Failed to send photo",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Photo sent successfully"})
}
