// Package store persists ingestions, clauses and analyses in a local
// SQLite database. It backs the analysis cache and the status endpoints.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/contractd/internal/logging"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

const schemaVersion = 1

const schema = `
	CREATE TABLE IF NOT EXISTS ingestions (
		id TEXT PRIMARY KEY,
		original_name TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		file_size INTEGER NOT NULL DEFAULT 0,
		contract_type TEXT,
		status TEXT NOT NULL,
		error TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ingestions_status ON ingestions(status);

	CREATE TABLE IF NOT EXISTS clauses (
		ingestion_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		clause_id TEXT NOT NULL,
		category TEXT NOT NULL,
		heading TEXT,
		text TEXT NOT NULL,
		source TEXT NOT NULL,
		PRIMARY KEY (ingestion_id, position)
	);

	CREATE TABLE IF NOT EXISTS analyses (
		ingestion_id TEXT NOT NULL,
		review_type TEXT NOT NULL,
		source TEXT NOT NULL,
		model TEXT,
		overall_risk TEXT NOT NULL,
		score INTEGER NOT NULL,
		degraded INTEGER NOT NULL DEFAULT 0,
		result TEXT NOT NULL,
		generated_at TEXT NOT NULL,
		PRIMARY KEY (ingestion_id, review_type)
	);
	CREATE INDEX IF NOT EXISTS idx_analyses_generated_at ON analyses(generated_at DESC);

	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);
`

// Store is the SQLite-backed persistence layer.
type Store struct {
	db     *sql.DB
	logger *logging.Logger
	path   string
}

// Open opens or creates the database at path. ":memory:" opens a private
// in-memory database.
func Open(path string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	// SQLite serializes writers; one connection also keeps :memory: stable.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to record schema version: %w", err)
	}

	s := &Store{db: db, logger: logger.Named("store"), path: path}
	s.logger.Debug(context.Background(), "store opened", zap.String("path", path))
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path is the database location.
func (s *Store) Path() string {
	return s.path
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Counts summarizes what the store holds.
type Counts struct {
	Ingestions int            `json:"ingestions"`
	ByStatus   map[string]int `json:"byStatus"`
	Clauses    int            `json:"clauses"`
	Analyses   int            `json:"analyses"`
	Fallbacks  int            `json:"fallbacks"`
}

// Counts returns row totals for the status endpoint.
func (s *Store) Counts(ctx context.Context) (*Counts, error) {
	c := &Counts{ByStatus: make(map[string]int)}

	row := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM ingestions),
			(SELECT COUNT(*) FROM clauses),
			(SELECT COUNT(*) FROM analyses),
			(SELECT COUNT(*) FROM analyses WHERE source = 'fallback')
	`)
	if err := row.Scan(&c.Ingestions, &c.Clauses, &c.Analyses, &c.Fallbacks); err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM ingestions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count statuses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		c.ByStatus[status] = n
	}
	return c, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
