package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// EmbeddedStore is the on-device relational store: a single SQLite table of score records.
type EmbeddedStore struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

// NewEmbeddedStore creates a store for the database file at path. The file is opened by Initialize.
func NewEmbeddedStore(path string) *EmbeddedStore {
	return &EmbeddedStore{path: path}
}

// Name identifies the backend in logs and metrics.
func (s *EmbeddedStore) Name() string { return "embedded" }

// Initialize opens the database and creates the schema. It is safe to call more than once.
// An empty path or a database that cannot be opened yields ErrUnsupported.
func (s *EmbeddedStore) Initialize(ctx context.Context) error {
	if s == nil || s.path == "" {
		return ErrUnsupported
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	dsn := "file:" + s.path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	if err := ensureEmbeddedSchema(ctx, db); err != nil {
		db.Close()
		return fmt.Errorf("%w: %w", ErrFailed, err)
	}
	s.db = db
	return nil
}

func ensureEmbeddedSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scores (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			player_name TEXT,
			score INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_scores_score ON scores(score);`,
		`CREATE INDEX IF NOT EXISTS idx_scores_recorded_at ON scores(recorded_at);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *EmbeddedStore) handle() (*sql.DB, error) {
	if s == nil {
		return nil, ErrNotConfigured
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, ErrNotConfigured
	}
	return s.db, nil
}

// Insert stores rec and returns its assigned id. An empty player name is stored as NULL.
func (s *EmbeddedStore) Insert(ctx context.Context, rec ScoreRecord) (int64, error) {
	if rec.Score < 0 {
		return 0, ErrInvalidRecord
	}
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	var name sql.NullString
	if rec.PlayerName != "" {
		name = sql.NullString{String: rec.PlayerName, Valid: true}
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO scores(player_name, score, recorded_at) VALUES(?,?,?)`,
		name, rec.Score, FormatTime(rec.RecordedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: embedded insert: %w", ErrFailed, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: embedded insert id: %w", ErrFailed, err)
	}
	return id, nil
}

// QueryMax returns the highest stored score. ok is false when the table is empty.
func (s *EmbeddedStore) QueryMax(ctx context.Context) (int, bool, error) {
	db, err := s.handle()
	if err != nil {
		return 0, false, err
	}
	var max sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(score) FROM scores`).Scan(&max); err != nil {
		return 0, false, fmt.Errorf("%w: embedded max: %w", ErrFailed, err)
	}
	if !max.Valid {
		return 0, false, nil
	}
	return int(max.Int64), true, nil
}

// QueryOrderedDescending returns up to limit records, best first, ties by earliest recorded.
func (s *EmbeddedStore) QueryOrderedDescending(ctx context.Context, limit int) ([]ScoreRecord, error) {
	return s.queryRecords(ctx, "embedded ordered",
		`SELECT id, player_name, score, recorded_at FROM scores
		 ORDER BY score DESC, recorded_at ASC, id ASC LIMIT ?`, limit)
}

// QueryRecent returns up to limit records, newest first.
func (s *EmbeddedStore) QueryRecent(ctx context.Context, limit int) ([]ScoreRecord, error) {
	return s.queryRecords(ctx, "embedded recent",
		`SELECT id, player_name, score, recorded_at FROM scores
		 ORDER BY recorded_at DESC, id DESC LIMIT ?`, limit)
}

func (s *EmbeddedStore) queryRecords(ctx context.Context, op, query string, limit int) ([]ScoreRecord, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []ScoreRecord{}, nil
	}
	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFailed, op, err)
	}
	defer rows.Close()

	out := make([]ScoreRecord, 0, limit)
	for rows.Next() {
		var (
			rec  ScoreRecord
			name sql.NullString
			at   string
		)
		if err := rows.Scan(&rec.ID, &name, &rec.Score, &at); err != nil {
			return nil, fmt.Errorf("%w: %s scan: %w", ErrFailed, op, err)
		}
		rec.PlayerName = name.String
		if rec.RecordedAt, err = ParseTime(at); err != nil {
			return nil, fmt.Errorf("%w: %s recorded_at: %w", ErrFailed, op, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFailed, op, err)
	}
	return out, nil
}

// QueryCountGreaterThan counts records scoring strictly above value.
func (s *EmbeddedStore) QueryCountGreaterThan(ctx context.Context, value int) (int, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scores WHERE score > ?`, value).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: embedded count: %w", ErrFailed, err)
	}
	return n, nil
}

// Clear deletes every record.
func (s *EmbeddedStore) Clear(ctx context.Context) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM scores`); err != nil {
		return fmt.Errorf("%w: embedded clear: %w", ErrFailed, err)
	}
	return nil
}

// Close releases the database handle.
func (s *EmbeddedStore) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
