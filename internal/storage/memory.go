package storage

import (
    "context"
    "fmt"
    "sort"
    "sync"
    "time"

    "github.com/google/uuid"
    "github.com/xaenox/gua-bot/internal/models"
)

type MemoryStorage struct {
    mu          sync.RWMutex
    baseTier    BaseTier
    now         func() time.Time
    users       map[string]*models.User // by telegram id
    memberships map[string]*models.Membership
    projects    map[string]*models.Project
}

func NewMemoryStorage(baseTier BaseTier) *MemoryStorage {
    return &MemoryStorage{
        baseTier:    baseTier,
        now:         time.Now,
        users:       make(map[string]*models.User),
        memberships: make(map[string]*models.Membership),
        projects:    make(map[string]*models.Project),
    }
}

// User methods
func (s *MemoryStorage) GetOrCreateUser(ctx context.Context, telegramID, name string) (*models.User, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    if user, exists := s.users[telegramID]; exists {
        if name != "" && user.Name != name {
            user.Name = name
        }
        u := *user
        return &u, nil
    }

    user := &models.User{
        UserID:     uuid.New().String(),
        TelegramID: telegramID,
        Name:       name,
        CreatedAt:  s.now(),
    }
    s.users[telegramID] = user
    u := *user
    return &u, nil
}

func (s *MemoryStorage) GetUserDailyLimit(ctx context.Context, userID string) (int, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()

    if m, ok := s.memberships[userID]; ok && m.Active(s.now()) {
        return m.DailyLimit, nil
    }
    return s.baseTier.DailyLimit, nil
}

func (s *MemoryStorage) GetTodayUsageCount(ctx context.Context, userID string, date string) (int, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()

    count := 0
    for _, p := range s.projects {
        if p.UserID == userID && p.CreatedAt.In(Beijing).Format(DateLayout) == date {
            count++
        }
    }
    return count, nil
}

func (s *MemoryStorage) GetUserMembershipInfo(ctx context.Context, userID string) (*models.Membership, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()

    m, ok := s.memberships[userID]
    if !ok || !m.Active(s.now()) {
        return nil, nil
    }
    mm := *m
    return &mm, nil
}

// SetMembership attaches a membership to userID, replacing any previous one.
func (s *MemoryStorage) SetMembership(userID string, m models.Membership) {
    s.mu.Lock()
    defer s.mu.Unlock()

    s.memberships[userID] = &m
}

// Project methods
func (s *MemoryStorage) CreateProject(ctx context.Context, userID, question string) (*models.Project, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    now := s.now()
    p := &models.Project{
        ProjectID: uuid.New().String(),
        UserID:    userID,
        Question:  question,
        CreatedAt: now,
        UpdatedAt: now,
    }
    s.projects[p.ProjectID] = p
    pp := *p
    return &pp, nil
}

func (s *MemoryStorage) UpdateProjectMessages(ctx context.Context, projectID string, messages []models.TranscriptEntry) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    p, ok := s.projects[projectID]
    if !ok {
        return fmt.Errorf("project %s: %w", projectID, ErrNotFound)
    }
    p.Messages = append([]models.TranscriptEntry(nil), messages...)
    p.UpdatedAt = s.now()
    return nil
}

// GetProject returns a copy of the stored project.
func (s *MemoryStorage) GetProject(projectID string) (*models.Project, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()

    p, ok := s.projects[projectID]
    if !ok {
        return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
    }
    pp := *p
    pp.Messages = append([]models.TranscriptEntry(nil), p.Messages...)
    return &pp, nil
}

func (s *MemoryStorage) Close() error {
    // Nothing to close for in-memory storage
    return nil
}

// SetClock replaces the time source used for creation stamps and membership
// checks.
func (s *MemoryStorage) SetClock(now func() time.Time) {
    s.mu.Lock()
    defer s.mu.Unlock()

    s.now = now
}

// ProjectsByUser returns copies of the user's projects, oldest first.
func (s *MemoryStorage) ProjectsByUser(userID string) []*models.Project {
    s.mu.RLock()
    defer s.mu.RUnlock()

    var out []*models.Project
    for _, p := range s.projects {
        if p.UserID != userID {
            continue
        }
        pp := *p
        pp.Messages = append([]models.TranscriptEntry(nil), p.Messages...)
        out = append(out, &pp)
    }
    sort.Slice(out, func(i, j int) bool {
        return out[i].CreatedAt.Before(out[j].CreatedAt)
    })
    return out
}
