// Package audit persists one record per run so operators can reconstruct
// what a past invocation did without digging through log files.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id        TEXT PRIMARY KEY,
	bot_name      TEXT NOT NULL,
	status        TEXT NOT NULL,
	stage         TEXT,
	error_kind    TEXT,
	error_detail  TEXT,
	rows_exported INTEGER NOT NULL DEFAULT 0,
	artifact_path TEXT,
	sha256        TEXT,
	started_at    TIMESTAMP NOT NULL,
	finished_at   TIMESTAMP NOT NULL
);
`

// Entry is one run's audit record.
type Entry struct {
	RunID        string
	BotName      string
	Status       string
	Stage        string
	ErrorKind    string
	ErrorDetail  string
	RowsExported int
	ArtifactPath string
	SHA256       string
	StartedAt    time.Time
	FinishedAt   time.Time
}

type Option func(*Store)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (and if needed creates) the audit database.
func Open(path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init audit schema: %w", err)
	}

	s := &Store{
		db:     db,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Record writes the run's terminal outcome. It is called exactly once per
// run, on every exit path.
func (s *Store) Record(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (
			run_id, bot_name, status, stage, error_kind, error_detail,
			rows_exported, artifact_path, sha256, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.BotName, e.Status, e.Stage, e.ErrorKind, e.ErrorDetail,
		e.RowsExported, e.ArtifactPath, e.SHA256, e.StartedAt, e.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", e.RunID, err)
	}

	s.logger.Debug("audit entry recorded",
		zap.String("run_id", e.RunID),
		zap.String("status", e.Status),
	)
	return nil
}

// List returns the most recent runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, bot_name, status, stage, error_kind, error_detail,
		       rows_exported, artifact_path, sha256, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.RunID, &e.BotName, &e.Status, &e.Stage, &e.ErrorKind,
			&e.ErrorDetail, &e.RowsExported, &e.ArtifactPath, &e.SHA256,
			&e.StartedAt, &e.FinishedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
