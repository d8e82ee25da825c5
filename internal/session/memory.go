package session

import (
	"context"
	"sync"
	"time"

	"github.com/xaenox/gua-bot/internal/models"
)

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]models.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]models.Session)}
}

func (m *MemoryStore) Load(_ context.Context, telegramID int64) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if s, ok := m.sessions[telegramID]; ok {
		return &s, nil
	}
	return &models.Session{TelegramID: telegramID}, nil
}

func (m *MemoryStore) Save(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.UpdatedAt = time.Now()
	m.sessions[s.TelegramID] = *s
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
