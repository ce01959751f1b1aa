package mapping

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS experiment_mappings (
	key TEXT PRIMARY KEY,
	project TEXT NOT NULL,
	issue_id INTEGER NOT NULL,
	experiment TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_experiment_mappings_experiment ON experiment_mappings(experiment);
`

// SQLiteStore persists mappings in a SQLite file so they survive restarts.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	logger zerolog.Logger
}

// NewSQLiteStore opens (or creates) the database at path and applies the schema.
func NewSQLiteStore(path string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening mapping database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging mapping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating mapping schema: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger.With().Str("component", "mapping.sqlite").Logger(),
	}
	s.logger.Info().Str("path", path).Msg("mapping store opened")
	return s, nil
}

func (s *SQLiteStore) Put(ctx context.Context, project string, issueID uint64, experiment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO experiment_mappings (key, project, issue_id, experiment, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET experiment = excluded.experiment, updated_at = excluded.updated_at`,
		Key(project, issueID), project, int64(issueID), experiment, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("storing mapping for %s: %w", Key(project, issueID), err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, project string, issueID uint64) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var experiment string
	err := s.db.QueryRowContext(ctx,
		`SELECT experiment FROM experiment_mappings WHERE key = ?`,
		Key(project, issueID)).Scan(&experiment)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("loading mapping for %s: %w", Key(project, issueID), err)
	}
	return experiment, true, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
