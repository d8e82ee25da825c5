package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/xaenox/gua-bot/internal/models"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, baseTier BaseTier, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	if err := storage.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	if err := storage.initBaseTier(context.Background(), baseTier); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing base tier: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err = s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

// initBaseTier makes sure exactly one tier is marked as the free base tier
// and that it carries the configured limit.
func (s *PostgresStorage) initBaseTier(ctx context.Context, tier BaseTier) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE membership_tiers SET is_base = FALSE WHERE tier_name <> $1`, tier.Name); err != nil {
		return err
	}

	query := `
		INSERT INTO membership_tiers (tier_name, description, daily_limit, is_base)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (tier_name) DO UPDATE
		SET description = EXCLUDED.description, daily_limit = EXCLUDED.daily_limit, is_base = TRUE`
	if _, err := tx.ExecContext(ctx, query, tier.Name, tier.Description, tier.DailyLimit); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *PostgresStorage) GetOrCreateUser(ctx context.Context, telegramID, name string) (*models.User, error) {
	query := `
		INSERT INTO users (user_id, tg_user_id, user_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (tg_user_id) DO UPDATE SET user_name = EXCLUDED.user_name
		RETURNING user_id, tg_user_id, user_name, created_at`

	user := &models.User{}
	err := s.db.QueryRowContext(ctx, query, uuid.New().String(), telegramID, name).
		Scan(&user.UserID, &user.TelegramID, &user.Name, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("error getting or creating user %s: %w", telegramID, err)
	}

	return user, nil
}

func (s *PostgresStorage) GetUserDailyLimit(ctx context.Context, userID string) (int, error) {
	query := `
		SELECT COALESCE(
			(SELECT t.daily_limit
			 FROM user_memberships m
			 JOIN membership_tiers t ON t.tier_id = m.tier_id
			 WHERE m.user_id = $1 AND m.start_time <= NOW() AND m.end_time > NOW()
			 ORDER BY m.end_time DESC
			 LIMIT 1),
			(SELECT daily_limit FROM membership_tiers WHERE is_base LIMIT 1),
			0)`

	var limit int
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&limit); err != nil {
		return 0, fmt.Errorf("error querying daily limit: %w", err)
	}

	return limit, nil
}

func (s *PostgresStorage) GetTodayUsageCount(ctx context.Context, userID string, date string) (int, error) {
	day, err := time.ParseInLocation(DateLayout, date, Beijing)
	if err != nil {
		return 0, fmt.Errorf("invalid usage date %q: %w", date, err)
	}

	query := `
		SELECT COUNT(*)
		FROM projects
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3`

	var count int
	if err := s.db.QueryRowContext(ctx, query, userID, day, day.AddDate(0, 0, 1)).Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting usage: %w", err)
	}

	return count, nil
}

func (s *PostgresStorage) GetUserMembershipInfo(ctx context.Context, userID string) (*models.Membership, error) {
	query := `
		SELECT t.tier_name, t.description, t.daily_limit, m.start_time, m.end_time
		FROM user_memberships m
		JOIN membership_tiers t ON t.tier_id = m.tier_id
		WHERE m.user_id = $1 AND m.start_time <= NOW() AND m.end_time > NOW()
		ORDER BY m.end_time DESC
		LIMIT 1`

	m := &models.Membership{}
	err := s.db.QueryRowContext(ctx, query, userID).
		Scan(&m.TierName, &m.Description, &m.DailyLimit, &m.StartTime, &m.EndTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying membership: %w", err)
	}

	return m, nil
}

func (s *PostgresStorage) CreateProject(ctx context.Context, userID, question string) (*models.Project, error) {
	query := `
		INSERT INTO projects (project_id, user_id, question)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`

	p := &models.Project{
		ProjectID: uuid.New().String(),
		UserID:    userID,
		Question:  question,
	}
	if err := s.db.QueryRowContext(ctx, query, p.ProjectID, userID, question).Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("error creating project: %w", err)
	}

	return p, nil
}

func (s *PostgresStorage) UpdateProjectMessages(ctx context.Context, projectID string, messages []models.TranscriptEntry) error {
	if messages == nil {
		messages = []models.TranscriptEntry{}
	}
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("error encoding messages: %w", err)
	}

	query := `
		UPDATE projects
		SET messages = $1, updated_at = NOW()
		WHERE project_id = $2`

	result, err := s.db.ExecContext(ctx, query, string(payload), projectID)
	if err != nil {
		return fmt.Errorf("error updating project messages: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}

	s.logger.Debug("Project transcript stored",
		zap.String("project_id", projectID),
		zap.Int("messages", len(messages)))

	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
