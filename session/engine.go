package session

// State is the lifecycle state of a session.
type State int

const (
	Idle State = iota
	Running
	Terminated
)

// String returns the protocol string for a State.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// EndReason tells how a session reached zero remaining time.
type EndReason string

const (
	EndTimeout EndReason = "timeout"
	EndPenalty EndReason = "penalty"
)

// Default rule values.
const (
	DefaultDurationSec    = 60
	DefaultBaseIncrement  = 10
	DefaultBonusFactor    = 2
	DefaultComboWindow    = 3
	DefaultMissPenaltySec = 5
)

// Rules holds the scoring and timing parameters of a session.
type Rules struct {
	DurationSec    int
	BaseIncrement  int
	BonusFactor    int
	ComboWindow    int
	MissPenaltySec int
}

// DefaultRules returns the standard 60-second ruleset.
func DefaultRules() Rules {
	return Rules{
		DurationSec:    DefaultDurationSec,
		BaseIncrement:  DefaultBaseIncrement,
		BonusFactor:    DefaultBonusFactor,
		ComboWindow:    DefaultComboWindow,
		MissPenaltySec: DefaultMissPenaltySec,
	}
}

// normalized replaces non-positive values with defaults. BonusFactor may be zero (no combo bonus).
func (r Rules) normalized() Rules {
	d := DefaultRules()
	if r.DurationSec <= 0 {
		r.DurationSec = d.DurationSec
	}
	if r.BaseIncrement <= 0 {
		r.BaseIncrement = d.BaseIncrement
	}
	if r.BonusFactor < 0 {
		r.BonusFactor = d.BonusFactor
	}
	if r.ComboWindow <= 0 {
		r.ComboWindow = d.ComboWindow
	}
	if r.MissPenaltySec <= 0 {
		r.MissPenaltySec = d.MissPenaltySec
	}
	return r
}

// Award returns the points for a success that brings the combo to combo.
func (r Rules) Award(combo int) int {
	return r.BaseIncrement + r.BonusFactor*(combo/r.ComboWindow)
}

// Position is an optional pointer location attached to a success. Cosmetic only.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Advance is returned by RegisterSuccess: the caller must swap the dismissed target for Target.
type Advance struct {
	Seq      int       `json:"seq"`
	Target   Target    `json:"target"`
	Award    int       `json:"award"`
	Combo    int       `json:"combo"`
	Score    int       `json:"score"`
	Feedback *Position `json:"feedback,omitempty"`
}

// Result is emitted once when a session terminates.
type Result struct {
	Score        int       `json:"score"`
	RemainingSec int       `json:"remainingSec"`
	Reason       EndReason `json:"reason"`
	Successes    int       `json:"successes"`
	Misses       int       `json:"misses"`
	BestCombo    int       `json:"bestCombo"`
}

// Engine is the session state machine. It is not safe for concurrent use:
// a single goroutine (see Runner) must own it. The engine holds no timer.
type Engine struct {
	rules   Rules
	targets TargetSource

	state     State
	remaining int
	score     int
	combo     int
	bestCombo int
	successes int
	misses    int
	target    Target
	targetSeq int

	listeners []func(Result)
}

// NewEngine creates an idle engine. A nil TargetSource yields zero-layout targets.
func NewEngine(rules Rules, targets TargetSource) *Engine {
	rules = rules.normalized()
	return &Engine{
		rules:     rules,
		targets:   targets,
		state:     Idle,
		remaining: rules.DurationSec,
	}
}

// OnTerminate registers fn to receive the final Result of each session.
func (e *Engine) OnTerminate(fn func(Result)) {
	if fn != nil {
		e.listeners = append(e.listeners, fn)
	}
}

// Rules returns the normalized rules in effect.
func (e *Engine) Rules() Rules { return e.rules }

// State returns the current lifecycle state.
func (e *Engine) State() State { return e.state }

// Remaining returns the remaining seconds.
func (e *Engine) Remaining() int { return e.remaining }

// Score returns the current score.
func (e *Engine) Score() int { return e.score }

// Combo returns the current combo count.
func (e *Engine) Combo() int { return e.combo }

// Target returns the single active ad target.
func (e *Engine) Target() Target { return e.target }

// Start moves an Idle engine to Running. An engine runs one session; Start returns false
// once it has started, including after termination.
func (e *Engine) Start() bool {
	if e.state != Idle {
		return false
	}
	e.state = Running
	e.remaining = e.rules.DurationSec
	e.target = e.nextTarget()
	return true
}

// Tick consumes one second. It returns false when the engine is not running.
func (e *Engine) Tick() bool {
	if e.state != Running {
		return false
	}
	e.remaining--
	if e.remaining <= 0 {
		e.remaining = 0
		e.terminate(EndTimeout)
	}
	return true
}

// RegisterSuccess records a dismissed target and returns the replacement target.
func (e *Engine) RegisterSuccess(hint *Position) (Advance, bool) {
	if e.state != Running {
		return Advance{}, false
	}
	e.combo++
	if e.combo > e.bestCombo {
		e.bestCombo = e.combo
	}
	e.successes++
	award := e.rules.Award(e.combo)
	e.score += award
	e.target = e.nextTarget()

	adv := Advance{
		Seq:    e.target.Seq,
		Target: e.target,
		Award:  award,
		Combo:  e.combo,
		Score:  e.score,
	}
	if hint != nil {
		h := *hint
		adv.Feedback = &h
	}
	return adv, true
}

// RegisterMiss resets the combo and deducts the penalty. A miss that drains the clock terminates immediately.
func (e *Engine) RegisterMiss() bool {
	if e.state != Running {
		return false
	}
	e.combo = 0
	e.misses++
	e.remaining -= e.rules.MissPenaltySec
	if e.remaining <= 0 {
		e.remaining = 0
		e.terminate(EndPenalty)
	}
	return true
}

// terminate is the only path into Terminated; the state check makes a second emission impossible.
func (e *Engine) terminate(reason EndReason) {
	if e.state != Running {
		return
	}
	e.state = Terminated
	res := Result{
		Score:        e.score,
		RemainingSec: e.remaining,
		Reason:       reason,
		Successes:    e.successes,
		Misses:       e.misses,
		BestCombo:    e.bestCombo,
	}
	for _, fn := range e.listeners {
		fn(res)
	}
}

func (e *Engine) nextTarget() Target {
	e.targetSeq++
	var t Target
	if e.targets != nil {
		t = e.targets.Next()
	}
	t.Seq = e.targetSeq
	return t
}
