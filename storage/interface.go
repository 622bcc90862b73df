package storage

import (
	"context"
	"errors"
)

var (
	// ErrUnsupported means the host environment lacks the backend entirely; callers degrade silently.
	ErrUnsupported = errors.New("storage backend unsupported")
	// ErrFailed wraps every transient I/O failure (network, auth, timeout, engine error).
	ErrFailed = errors.New("storage operation failed")
	// ErrNotConfigured is returned by a nil or disabled backend.
	ErrNotConfigured = errors.New("storage backend not configured")
	// ErrInvalidRecord rejects records a backend cannot hold (negative score, missing required name).
	ErrInvalidRecord = errors.New("invalid score record")
)

// Backend is the lifecycle every adapter implements.
type Backend interface {
	Name() string
	// Initialize performs one-time setup. ErrUnsupported means the backend must be skipped.
	Initialize(ctx context.Context) error
	// Clear deletes every record held by the backend.
	Clear(ctx context.Context) error
}

// ScalarStore is the ephemeral key-value capability: single values, no ordering, no counting.
type ScalarStore interface {
	Backend
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
	// Update applies fn atomically. fn receives the current value and returns the new one and whether to write it.
	Update(key string, fn func(current string, ok bool) (string, bool)) error
}

// RecordStore is the multi-record insert capability shared by the embedded and remote stores.
type RecordStore interface {
	Backend
	Insert(ctx context.Context, rec ScoreRecord) (int64, error)
}

// MaxQuerier returns the highest stored score; ok is false when the store is empty.
type MaxQuerier interface {
	QueryMax(ctx context.Context) (max int, ok bool, err error)
}

// RankQuerier serves leaderboard and rank reads.
type RankQuerier interface {
	// QueryOrderedDescending returns at most limit records by score DESC, recorded_at ASC.
	QueryOrderedDescending(ctx context.Context, limit int) ([]ScoreRecord, error)
	// QueryCountGreaterThan counts records with a score strictly greater than value.
	QueryCountGreaterThan(ctx context.Context, value int) (int, error)
}

// RecentQuerier returns the latest records by recorded_at DESC.
type RecentQuerier interface {
	QueryRecent(ctx context.Context, limit int) ([]ScoreRecord, error)
}

// Ensure the adapters implement their capabilities at compile time.
var (
	_ ScalarStore   = (*LocalStore)(nil)
	_ RecordStore   = (*EmbeddedStore)(nil)
	_ MaxQuerier    = (*EmbeddedStore)(nil)
	_ RankQuerier   = (*EmbeddedStore)(nil)
	_ RecentQuerier = (*EmbeddedStore)(nil)
	_ RecordStore   = (*RemoteStore)(nil)
	_ RankQuerier   = (*RemoteStore)(nil)
)
