package score

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"

	"ad-eraser-server/storage"
)

// RankUnknown is returned when the shared leaderboard cannot answer.
const RankUnknown = 0

var (
	ErrInvalidScore      = errors.New("score must be non-negative")
	ErrInvalidPlayerName = errors.New("invalid player name")
)

// Status is the overall result of a save.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// BackendStatus is what happened at one backend during a save.
type BackendStatus string

const (
	BackendWritten     BackendStatus = "written"
	BackendSkipped     BackendStatus = "skipped"
	BackendUnsupported BackendStatus = "unsupported"
	BackendFailed      BackendStatus = "failed"
)

// BackendResult reports one backend's part in a save.
type BackendResult struct {
	Backend string
	Status  BackendStatus
	Err     error
}

// Outcome is the result of RecordScore. Record carries the values written, including recordedAt.
type Outcome struct {
	Status   Status
	Err      error
	Record   storage.ScoreRecord
	Backends []BackendResult
}

// OK reports whether the save succeeded overall.
func (o Outcome) OK() bool { return o.Status == StatusOK }

// Backend returns the result for the named backend.
func (o Outcome) Backend(name string) (BackendResult, bool) {
	return lo.Find(o.Backends, func(r BackendResult) bool { return r.Backend == name })
}

// Publisher is notified after every successful save. shared reports whether the
// shared leaderboard accepted the record.
type Publisher interface {
	PublishScoreRecorded(rec storage.ScoreRecord, shared bool)
}

// Metrics counts backend operations by outcome.
type Metrics interface {
	BackendOp(backend, op, status string)
}

// Embedded is the on-device relational store.
type Embedded interface {
	storage.RecordStore
	storage.MaxQuerier
	storage.RecentQuerier
}

// Remote is the shared leaderboard store.
type Remote interface {
	storage.RecordStore
	storage.RankQuerier
}

// Options configures a Service. Zero values get defaults.
type Options struct {
	Clock               func() time.Time
	MaxNameLength       int
	LeaderboardMaxLimit int
	Events              Publisher
	Metrics             Metrics
}

// Service stores scores across the ephemeral, embedded and remote backends and answers
// personal-best, leaderboard and rank queries. Its public methods never return raw backend errors.
type Service struct {
	local    storage.ScalarStore
	embedded Embedded
	remote   Remote

	embeddedOK bool
	remoteOK   bool

	clock         func() time.Time
	maxNameLength int
	maxLimit      int
	events        Publisher
	metrics       Metrics
	logger        *slog.Logger
}

// NewService builds a service over the given adapters. embedded and remote may be nil.
// A nil local store is replaced by an in-memory one. Call Init before use.
func NewService(local storage.ScalarStore, embedded Embedded, remote Remote, opts Options) *Service {
	if local == nil {
		local = storage.NewLocalStore("")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.MaxNameLength <= 0 {
		opts.MaxNameLength = 24
	}
	if opts.LeaderboardMaxLimit <= 0 {
		opts.LeaderboardMaxLimit = 100
	}
	return &Service{
		local:         local,
		embedded:      embedded,
		remote:        remote,
		clock:         opts.Clock,
		maxNameLength: opts.MaxNameLength,
		maxLimit:      opts.LeaderboardMaxLimit,
		events:        opts.Events,
		metrics:       opts.Metrics,
		logger:        slog.Default().With("tag", "score"),
	}
}

// Init initializes each backend and records which are usable. It never fails;
// a missing or broken backend is skipped from then on.
func (s *Service) Init(ctx context.Context) {
	if err := s.local.Initialize(ctx); err != nil {
		s.logger.Warn("local store init", "err", err)
	}

	if s.embedded != nil {
		err := s.embedded.Initialize(ctx)
		switch {
		case err == nil:
			s.embeddedOK = true
		case errors.Is(err, storage.ErrUnsupported):
			s.logger.Info("embedded storage unavailable; continuing without it", "err", err)
		default:
			s.logger.Warn("embedded storage init failed", "err", err)
		}
	}

	if s.remote != nil {
		err := s.remote.Initialize(ctx)
		switch {
		case err == nil:
			s.remoteOK = true
		case errors.Is(err, storage.ErrNotConfigured):
			s.logger.Info("remote leaderboard not configured")
		default:
			s.logger.Warn("remote leaderboard init failed", "err", err)
		}
	}
}

// RemoteEnabled reports whether a shared leaderboard is configured.
func (s *Service) RemoteEnabled() bool { return s.remoteOK }

// ValidateName trims name and checks its length. It performs no I/O.
func (s *Service) ValidateName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	n := utf8.RuneCountInString(trimmed)
	if n == 0 || n > s.maxNameLength {
		return "", fmt.Errorf("%w: must be 1..%d characters", ErrInvalidPlayerName, s.maxNameLength)
	}
	return trimmed, nil
}

// RecordScore saves score to every available backend in preference order: embedded, remote
// (named players only), then the ephemeral personal-best mirror. Each backend is attempted
// independently. The save succeeds overall iff the mirror succeeded.
func (s *Service) RecordScore(ctx context.Context, playerName *string, score int) Outcome {
	if score < 0 {
		return Outcome{Status: StatusFailed, Err: ErrInvalidScore}
	}
	name := ""
	if playerName != nil {
		valid, err := s.ValidateName(*playerName)
		if err != nil {
			return Outcome{Status: StatusFailed, Err: err}
		}
		name = valid
	}

	rec := storage.ScoreRecord{
		PlayerName: name,
		Score:      score,
		RecordedAt: s.clock().UTC().Truncate(time.Microsecond),
	}
	out := Outcome{Record: rec, Backends: make([]BackendResult, 0, 3)}

	out.Backends = append(out.Backends, s.writeEmbedded(ctx, &out.Record))
	out.Backends = append(out.Backends, s.writeRemote(ctx, rec))

	mirror := s.writeMirror(score)
	out.Backends = append(out.Backends, mirror)
	if mirror.Status != BackendWritten {
		out.Status = StatusFailed
		out.Err = mirror.Err
		return out
	}

	out.Status = StatusOK
	if s.events != nil {
		remote, _ := out.Backend("remote")
		s.events.PublishScoreRecorded(out.Record, remote.Status == BackendWritten)
	}
	return out
}

func (s *Service) writeEmbedded(ctx context.Context, rec *storage.ScoreRecord) BackendResult {
	res := BackendResult{Backend: "embedded"}
	if !s.embeddedOK {
		res.Status = BackendUnsupported
		return res
	}
	id, err := s.embedded.Insert(ctx, *rec)
	if err != nil {
		s.logger.Warn("embedded save failed", "score", rec.Score, "err", err)
		res.Status, res.Err = BackendFailed, err
	} else {
		rec.ID = id
		res.Status = BackendWritten
	}
	s.observe(res.Backend, "insert", err)
	return res
}

func (s *Service) writeRemote(ctx context.Context, rec storage.ScoreRecord) BackendResult {
	res := BackendResult{Backend: "remote"}
	if rec.PlayerName == "" || !s.remoteOK {
		res.Status = BackendSkipped
		return res
	}
	if _, err := s.remote.Insert(ctx, rec); err != nil {
		s.logger.Warn("remote save failed", "player", rec.PlayerName, "score", rec.Score, "err", err)
		res.Status, res.Err = BackendFailed, err
		s.observe(res.Backend, "insert", err)
		return res
	}
	res.Status = BackendWritten
	s.observe(res.Backend, "insert", nil)
	return res
}

func (s *Service) writeMirror(score int) BackendResult {
	res := BackendResult{Backend: "local"}
	err := s.local.Update(storage.KeyHighScore, func(cur string, ok bool) (string, bool) {
		if best, perr := strconv.Atoi(cur); ok && perr == nil && best >= score {
			return cur, false
		}
		return strconv.Itoa(score), true
	})
	if err != nil {
		s.logger.Error("personal best mirror failed", "score", score, "err", err)
		res.Status, res.Err = BackendFailed, err
	} else {
		res.Status = BackendWritten
	}
	s.observe(res.Backend, "mirror", err)
	return res
}

// PersonalBest returns the device's best score: the ephemeral mirror if readable, else the
// embedded maximum, else 0. The first tier that answers wins.
func (s *Service) PersonalBest(ctx context.Context) int {
	if v, ok, err := s.local.Get(storage.KeyHighScore); err == nil && ok {
		if best, perr := strconv.Atoi(v); perr == nil && best >= 0 {
			return best
		}
		s.logger.Warn("ignoring unparseable personal best", "value", v)
	}
	if s.embeddedOK {
		best, ok, err := s.embedded.QueryMax(ctx)
		s.observe("embedded", "max", err)
		if err != nil {
			s.logger.Warn("embedded max failed", "err", err)
		} else if ok {
			return best
		}
	}
	return 0
}

// Leaderboard returns up to limit shared records, best first. An empty result means unavailable.
func (s *Service) Leaderboard(ctx context.Context, limit int) []storage.ScoreRecord {
	if !s.remoteOK {
		return []storage.ScoreRecord{}
	}
	recs, err := s.remote.QueryOrderedDescending(ctx, lo.Clamp(limit, 1, s.maxLimit))
	s.observe("remote", "ordered", err)
	if err != nil {
		s.logger.Warn("leaderboard query failed", "err", err)
		return []storage.ScoreRecord{}
	}
	return recs
}

// Rank returns the 1-based position score would take on the shared leaderboard, or RankUnknown.
func (s *Service) Rank(ctx context.Context, score int) int {
	if !s.remoteOK || score < 0 {
		return RankUnknown
	}
	above, err := s.remote.QueryCountGreaterThan(ctx, score)
	s.observe("remote", "count", err)
	if err != nil {
		s.logger.Warn("rank query failed", "score", score, "err", err)
		return RankUnknown
	}
	return above + 1
}

// RecentScores returns up to limit locally saved records, newest first.
func (s *Service) RecentScores(ctx context.Context, limit int) []storage.ScoreRecord {
	if !s.embeddedOK {
		return []storage.ScoreRecord{}
	}
	recs, err := s.embedded.QueryRecent(ctx, lo.Clamp(limit, 1, s.maxLimit))
	s.observe("embedded", "recent", err)
	if err != nil {
		s.logger.Warn("recent scores query failed", "err", err)
		return []storage.ScoreRecord{}
	}
	return recs
}

// ClearLocal deletes every score held on this device: embedded records and the personal best.
// The shared leaderboard is untouched.
func (s *Service) ClearLocal(ctx context.Context) error {
	var errs []error
	if s.embeddedOK {
		err := s.embedded.Clear(ctx)
		s.observe("embedded", "clear", err)
		if err != nil {
			errs = append(errs, err)
		}
	}
	err := s.local.Delete(storage.KeyHighScore)
	s.observe("local", "clear", err)
	if err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Warn("clearing local scores", "err", err)
		return err
	}
	s.logger.Info("local scores cleared")
	return nil
}

func (s *Service) observe(backend, op string, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.BackendOp(backend, op, status)
}
