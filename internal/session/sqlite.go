package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xaenox/gua-bot/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists sessions so a pending question survives a restart.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create session directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping session database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize session schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		tg_user_id INTEGER PRIMARY KEY,
		waiting_for_question INTEGER NOT NULL DEFAULT 0,
		daily_limit INTEGER NOT NULL DEFAULT 0,
		daily_count INTEGER NOT NULL DEFAULT 0,
		last_date TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	);`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, telegramID int64) (*models.Session, error) {
	query := `
		SELECT waiting_for_question, daily_limit, daily_count, last_date, user_id, updated_at
		FROM sessions WHERE tg_user_id = ?`

	sess := &models.Session{TelegramID: telegramID}
	var waiting int
	var updatedAt int64
	err := s.db.QueryRowContext(ctx, query, telegramID).Scan(
		&waiting, &sess.DailyLimit, &sess.DailyCount, &sess.LastDate, &sess.UserID, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return sess, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	sess.WaitingForQuestion = waiting != 0
	sess.UpdatedAt = time.Unix(updatedAt, 0)
	return sess, nil
}

func (s *SQLiteStore) Save(ctx context.Context, sess *models.Session) error {
	query := `
		INSERT INTO sessions (tg_user_id, waiting_for_question, daily_limit, daily_count, last_date, user_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tg_user_id) DO UPDATE SET
			waiting_for_question = excluded.waiting_for_question,
			daily_limit = excluded.daily_limit,
			daily_count = excluded.daily_count,
			last_date = excluded.last_date,
			user_id = excluded.user_id,
			updated_at = excluded.updated_at`

	sess.UpdatedAt = time.Now()
	waiting := 0
	if sess.WaitingForQuestion {
		waiting = 1
	}
	_, err := s.db.ExecContext(ctx, query,
		sess.TelegramID, waiting, sess.DailyLimit, sess.DailyCount, sess.LastDate, sess.UserID, sess.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
