package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"ad-eraser-server/wsutil"
)

// ActionType enumerates the inputs a runner feeds to its engine.
type ActionType int

const (
	ActionStart ActionType = iota
	ActionTick
	ActionSuccess
	ActionMiss
	ActionAbandon // player left; stop without a result
)

// Action is one caller-driven event. Hint is only set for ActionSuccess.
type Action struct {
	Type ActionType
	Hint *Position
}

// EventSink receives fire-and-forget notifications. Implementations must not block.
type EventSink interface {
	SessionStarted(sessionID string)
	TargetDismissed(sessionID string, award, combo int)
	TargetMissed(sessionID string, remainingSec int)
	SessionEnded(sessionID string, res Result)
}

// Runner owns the clock for one session and confines its Engine to a single goroutine.
// Ticks, successes and misses are applied strictly in the order they arrive on Actions.
type Runner struct {
	ID     string
	Engine *Engine
	Send   chan []byte

	// TickInterval is the clock period; zero disables the internal clock (ticks must be posted).
	TickInterval time.Duration

	Actions chan Action
	Done    chan struct{}

	Events EventSink

	// OnStarted runs inside the loop right after a successful start.
	OnStarted func(Snapshot)
	// OnGameEnd runs once, after the loop exits, when the session terminated.
	OnGameEnd func(Result)

	stopClock chan struct{}
}

// NewRunner creates a runner for engine that reports to send.
func NewRunner(id string, engine *Engine, send chan []byte, tick time.Duration) *Runner {
	return &Runner{
		ID:           id,
		Engine:       engine,
		Send:         send,
		TickInterval: tick,
		Actions:      make(chan Action, 16),
		Done:         make(chan struct{}),
	}
}

// Post enqueues an action without blocking. It returns false if the runner has stopped or is saturated.
func (r *Runner) Post(a Action) bool {
	select {
	case <-r.Done:
		return false
	default:
	}
	select {
	case r.Actions <- a:
		return true
	case <-r.Done:
		return false
	default:
		return false
	}
}

// Abandon stops the session without a result. Unlike Post it waits for buffer space,
// returning false only if the loop has already exited.
func (r *Runner) Abandon() bool {
	select {
	case r.Actions <- Action{Type: ActionAbandon}:
		return true
	case <-r.Done:
		return false
	}
}

// Run is the session loop. It should be run as a goroutine.
func (r *Runner) Run(ctx context.Context) {
	defer close(r.Done)

	var result *Result
	r.Engine.OnTerminate(func(res Result) {
		result = &res
	})

	defer r.cancelClock()

loop:
	for {
		select {
		case <-ctx.Done():
			return
		case action := <-r.Actions:
			switch action.Type {
			case ActionStart:
				r.handleStart()
			case ActionTick:
				if r.Engine.Tick() {
					r.sendJSON(BuildStateMsg(r.Engine.Snapshot()))
				}
			case ActionSuccess:
				r.handleSuccess(action.Hint)
			case ActionMiss:
				if r.Engine.RegisterMiss() {
					r.notify(func(s EventSink) { s.TargetMissed(r.ID, r.Engine.Remaining()) })
					r.sendJSON(BuildStateMsg(r.Engine.Snapshot()))
				}
			case ActionAbandon:
				slog.Info("session abandoned", "tag", "session", "id", r.ID, "score", r.Engine.Score())
				return
			}
			if result != nil {
				break loop
			}
		}
	}

	r.cancelClock()
	res := *result
	slog.Info("session ended", "tag", "session", "id", r.ID, "score", res.Score, "reason", res.Reason)
	r.notify(func(s EventSink) { s.SessionEnded(r.ID, res) })
	if r.OnGameEnd != nil {
		r.OnGameEnd(res)
	}
}

func (r *Runner) handleStart() {
	if !r.Engine.Start() {
		return
	}
	slog.Info("session started", "tag", "session", "id", r.ID, "duration", r.Engine.Rules().DurationSec)
	r.notify(func(s EventSink) { s.SessionStarted(r.ID) })
	if r.OnStarted != nil {
		r.OnStarted(r.Engine.Snapshot())
	}
	r.startClock()
}

func (r *Runner) handleSuccess(hint *Position) {
	adv, ok := r.Engine.RegisterSuccess(hint)
	if !ok {
		return
	}
	r.notify(func(s EventSink) { s.TargetDismissed(r.ID, adv.Award, adv.Combo) })
	r.sendJSON(AdvanceMsg{Type: "advance", Advance: adv, RemainingSec: r.Engine.Remaining()})
}

// startClock posts ActionTick every TickInterval until cancelClock or the loop exits.
func (r *Runner) startClock() {
	if r.TickInterval <= 0 {
		return
	}
	r.cancelClock()
	cancel := make(chan struct{})
	r.stopClock = cancel
	ticker := time.NewTicker(r.TickInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				select {
				case r.Actions <- Action{Type: ActionTick}:
				case <-cancel:
					return
				case <-r.Done:
					return
				}
			case <-cancel:
				return
			case <-r.Done:
				return
			}
		}
	}()
}

// cancelClock stops the ticker goroutine. Safe if no clock is running.
func (r *Runner) cancelClock() {
	if r.stopClock != nil {
		close(r.stopClock)
		r.stopClock = nil
	}
}

// notify delivers a telemetry event; a panicking sink never reaches the game loop.
func (r *Runner) notify(fn func(EventSink)) {
	if r.Events == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("telemetry sink panicked", "tag", "session", "id", r.ID, "panic", rec)
		}
	}()
	fn(r.Events)
}

func (r *Runner) sendJSON(v any) {
	if r.Send == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("marshaling session message", "tag", "session", "err", err)
		return
	}
	wsutil.SafeSend(r.Send, data)
}
