package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const createScoresSQL = `
CREATE TABLE IF NOT EXISTS scores (
	id          BIGSERIAL PRIMARY KEY,
	player_name TEXT NOT NULL,
	score       INT  NOT NULL CHECK (score >= 0),
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_scores_rank ON scores(score DESC, recorded_at ASC);
`

// RemoteStore is the shared leaderboard store backed by Postgres.
// A nil *RemoteStore is valid and reports ErrNotConfigured from every operation.
type RemoteStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration

	schemaMu    sync.Mutex
	schemaReady bool
}

// NewRemoteStore prepares a lazily-connecting pool for databaseURL.
// If databaseURL is empty, NewRemoteStore returns (nil, nil) and the remote store is disabled.
func NewRemoteStore(databaseURL string, timeout time.Duration) (*RemoteStore, error) {
	if databaseURL == "" {
		return nil, nil
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	// NewWithConfig does not dial; connections are established on first use.
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &RemoteStore{pool: pool, timeout: timeout}, nil
}

// Name identifies the backend in logs and metrics.
func (s *RemoteStore) Name() string { return "remote" }

// Initialize performs no I/O. Connectivity and schema are checked on first use so startup never blocks on the network.
func (s *RemoteStore) Initialize(_ context.Context) error {
	if s == nil || s.pool == nil {
		return ErrNotConfigured
	}
	return nil
}

// Close closes the connection pool.
func (s *RemoteStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *RemoteStore) ensureSchema(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaReady {
		return nil
	}
	if _, err := s.pool.Exec(ctx, createScoresSQL); err != nil {
		return err
	}
	s.schemaReady = true
	slog.Info("remote schema ready", "tag", "storage")
	return nil
}

// do runs fn under the store timeout, wrapping any failure (including a panic) in ErrFailed.
func (s *RemoteStore) do(ctx context.Context, op string, fn func(ctx context.Context) error) (err error) {
	if s == nil || s.pool == nil {
		return ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: panic: %v", ErrFailed, op, r)
		}
	}()
	if err := s.ensureSchema(ctx); err != nil {
		return fmt.Errorf("%w: %s: schema: %w", ErrFailed, op, err)
	}
	if err := fn(ctx); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFailed, op, err)
	}
	return nil
}

// Insert records a named score. The remote store never holds anonymous or negative scores.
func (s *RemoteStore) Insert(ctx context.Context, rec ScoreRecord) (int64, error) {
	if rec.PlayerName == "" || rec.Score < 0 {
		return 0, ErrInvalidRecord
	}
	var id int64
	err := s.do(ctx, "remote insert", func(ctx context.Context) error {
		return s.pool.QueryRow(ctx,
			`INSERT INTO scores (player_name, score, recorded_at) VALUES ($1, $2, $3) RETURNING id`,
			rec.PlayerName, rec.Score, rec.RecordedAt.UTC()).Scan(&id)
	})
	return id, err
}

// QueryOrderedDescending returns up to limit records ordered by score DESC, recorded_at ASC.
func (s *RemoteStore) QueryOrderedDescending(ctx context.Context, limit int) ([]ScoreRecord, error) {
	out := []ScoreRecord{}
	if limit <= 0 {
		if s == nil || s.pool == nil {
			return nil, ErrNotConfigured
		}
		return out, nil
	}
	err := s.do(ctx, "remote ordered", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT id, player_name, score, recorded_at
			FROM scores
			ORDER BY score DESC, recorded_at ASC, id ASC
			LIMIT $1`,
			limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r ScoreRecord
			if err := rows.Scan(&r.ID, &r.PlayerName, &r.Score, &r.RecordedAt); err != nil {
				return err
			}
			r.RecordedAt = r.RecordedAt.UTC()
			out = append(out, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// QueryCountGreaterThan counts records scoring strictly above value.
func (s *RemoteStore) QueryCountGreaterThan(ctx context.Context, value int) (int, error) {
	var n int
	err := s.do(ctx, "remote count", func(ctx context.Context) error {
		return s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM scores WHERE score > $1`, value).Scan(&n)
	})
	return n, err
}

// Clear deletes every shared record. Used by tests and operator tooling only.
func (s *RemoteStore) Clear(ctx context.Context) error {
	return s.do(ctx, "remote clear", func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `DELETE FROM scores`)
		return err
	})
}
