package lobby

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"ad-eraser-server/config"
	"ad-eraser-server/prefs"
	"ad-eraser-server/score"
	"ad-eraser-server/session"
	"ad-eraser-server/ws"
	"ad-eraser-server/wsutil"
)

// Lobby starts one session runner per player and saves the result when it ends.
type Lobby struct {
	ctx     context.Context
	config  *config.Config
	scores  *score.Service
	prefs   *prefs.Preferences
	events  session.EventSink
	targets func() session.TargetSource
}

// New creates a lobby. Runners stop when ctx is cancelled. events may be nil.
func New(ctx context.Context, cfg *config.Config, scores *score.Service, p *prefs.Preferences, events session.EventSink) *Lobby {
	return &Lobby{
		ctx:    ctx,
		config: cfg,
		scores: scores,
		prefs:  p,
		events: events,
		targets: func() session.TargetSource {
			return session.NewRandomTargets(cfg.Targets, nil)
		},
	}
}

// Rules converts the configured game parameters into engine rules.
func Rules(cfg *config.Config) session.Rules {
	return session.Rules{
		DurationSec:    cfg.SessionDurationSec,
		BaseIncrement:  cfg.BaseIncrement,
		BonusFactor:    cfg.BonusFactor,
		ComboWindow:    cfg.ComboWindow,
		MissPenaltySec: cfg.MissPenaltySec,
	}
}

// Start begins a new session for c. The personal best shown at start is read before the clock runs.
func (l *Lobby) Start(c *ws.Client) {
	id := uuid.NewString()
	bestBefore := l.scores.PersonalBest(l.ctx)
	sound := l.prefs.SoundEnabled()

	r := session.NewRunner(id, session.NewEngine(Rules(l.config), l.targets()), c.Send, l.config.TickInterval())
	r.Events = l.events
	r.OnStarted = func(s session.Snapshot) {
		send(c, ws.SessionStartedMsg{
			Type:         "session_started",
			SessionID:    id,
			DurationSec:  s.RemainingSec,
			Target:       s.Target,
			SoundEnabled: sound,
			PersonalBest: bestBefore,
		})
	}
	r.OnGameEnd = func(res session.Result) {
		l.finish(c, r, res, bestBefore)
	}

	c.SetRunner(r)
	go r.Run(l.ctx)
	r.Post(session.Action{Type: session.ActionStart})
	slog.Info("session created", "tag", "lobby", "id", id, "named", c.PlayerName() != nil)
}

// Abandon stops c's running session without saving a result.
func (l *Lobby) Abandon(c *ws.Client) {
	r := c.Runner()
	if r == nil {
		return
	}
	r.Abandon()
	c.ClearRunner(r)
}

// finish saves the final score and reports it. It runs on the runner goroutine after the loop exits.
func (l *Lobby) finish(c *ws.Client, r *session.Runner, res session.Result, bestBefore int) {
	name := c.PlayerName()
	out := l.scores.RecordScore(l.ctx, name, res.Score)
	if !out.OK() {
		slog.Warn("score not saved", "tag", "lobby", "id", r.ID, "score", res.Score, "err", out.Err)
	}

	rank := score.RankUnknown
	if remote, ok := out.Backend("remote"); ok && remote.Status == score.BackendWritten {
		rank = l.scores.Rank(l.ctx, res.Score)
	}

	// The player may start again as soon as game_over arrives.
	c.ClearRunner(r)
	send(c, ws.GameOverMsg{
		Type:            "game_over",
		Score:           res.Score,
		Reason:          string(res.Reason),
		PersonalBest:    l.scores.PersonalBest(l.ctx),
		NewPersonalBest: out.OK() && res.Score > bestBefore,
		Rank:            rank,
		RankKnown:       rank != score.RankUnknown,
		Saved:           out.OK(),
	})
}

func send(c *ws.Client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("marshal outbound message", "tag", "lobby", "err", err)
		return
	}
	wsutil.SafeSend(c.Send, data)
}
