package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu        sync.Mutex
	started   int
	dismissed int
	missed    int
	ended     []Result
}

func (s *recordingSink) SessionStarted(string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started++
}

func (s *recordingSink) TargetDismissed(string, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dismissed++
}

func (s *recordingSink) TargetMissed(string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missed++
}

func (s *recordingSink) SessionEnded(_ string, r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = append(s.ended, r)
}

type panickingSink struct{}

func (panickingSink) SessionStarted(string)            { panic("boom") }
func (panickingSink) TargetDismissed(string, int, int) { panic("boom") }
func (panickingSink) TargetMissed(string, int)         { panic("boom") }
func (panickingSink) SessionEnded(string, Result)      { panic("boom") }

// drainChannel reads all available messages from a channel.
func drainChannel(ch chan []byte) [][]byte {
	var msgs [][]byte
	for {
		select {
		case msg := <-ch:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func messageTypes(t *testing.T, msgs [][]byte) []string {
	t.Helper()
	types := make([]string, 0, len(msgs))
	for _, m := range msgs {
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(m, &env); err != nil {
			t.Fatalf("bad message %s: %v", m, err)
		}
		types = append(types, env.Type)
	}
	return types
}

func waitDone(t *testing.T, r *Runner) {
	t.Helper()
	select {
	case <-r.Done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunnerOrderedActionsAndSingleGameEnd(t *testing.T) {
	rules := DefaultRules()
	rules.DurationSec = 3
	send := make(chan []byte, 100)
	r := NewRunner("s-1", NewEngine(rules, nil), send, 0)
	sink := &recordingSink{}
	r.Events = sink

	var ends []Result
	var started []Snapshot
	r.OnStarted = func(s Snapshot) { started = append(started, s) }
	r.OnGameEnd = func(res Result) { ends = append(ends, res) }

	go r.Run(context.Background())

	for _, a := range []Action{
		{Type: ActionStart},
		{Type: ActionSuccess, Hint: &Position{X: 1, Y: 2}},
		{Type: ActionSuccess},
		{Type: ActionTick},
		{Type: ActionSuccess},
		{Type: ActionTick},
		{Type: ActionTick},
	} {
		if !r.Post(a) {
			t.Fatalf("post %v rejected", a.Type)
		}
	}
	waitDone(t, r)

	if r.Post(Action{Type: ActionTick}) {
		t.Error("post after stop should be rejected")
	}
	if len(started) != 1 || started[0].RemainingSec != 3 {
		t.Errorf("expected one start snapshot with 3s remaining, got %+v", started)
	}
	if len(ends) != 1 {
		t.Fatalf("expected exactly one game end, got %d", len(ends))
	}
	if ends[0].Score != 32 || ends[0].Reason != EndTimeout {
		t.Errorf("unexpected result: %+v", ends[0])
	}

	got := messageTypes(t, drainChannel(send))
	want := []string{"advance", "advance", "state", "advance", "state", "state"}
	if len(got) != len(want) {
		t.Fatalf("expected messages %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.started != 1 || sink.dismissed != 3 || len(sink.ended) != 1 {
		t.Errorf("unexpected telemetry: %+v", sink)
	}
}

func TestRunnerClockDrivesTimeout(t *testing.T) {
	rules := DefaultRules()
	rules.DurationSec = 3
	r := NewRunner("s-2", NewEngine(rules, nil), make(chan []byte, 100), 5*time.Millisecond)

	ended := make(chan Result, 1)
	r.OnGameEnd = func(res Result) { ended <- res }
	go r.Run(context.Background())
	r.Post(Action{Type: ActionStart})

	select {
	case res := <-ended:
		if res.RemainingSec != 0 || res.Reason != EndTimeout {
			t.Errorf("unexpected result: %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("clock did not drive the session to timeout")
	}
	waitDone(t, r)
}

func TestRunnerAbandonStopsWithoutResult(t *testing.T) {
	r := NewRunner("s-3", NewEngine(DefaultRules(), nil), make(chan []byte, 100), 5*time.Millisecond)
	called := false
	r.OnGameEnd = func(Result) { called = true }

	go r.Run(context.Background())
	r.Post(Action{Type: ActionStart})
	r.Post(Action{Type: ActionSuccess})
	r.Post(Action{Type: ActionAbandon})
	waitDone(t, r)

	if called {
		t.Error("abandoned session must not emit a game end")
	}
}

func TestRunnerAbandonWaitsForFullBuffer(t *testing.T) {
	r := NewRunner("s-5", NewEngine(DefaultRules(), nil), make(chan []byte, 100), 0)
	called := false
	r.OnGameEnd = func(Result) { called = true }

	r.Post(Action{Type: ActionStart})
	for r.Post(Action{Type: ActionSuccess}) {
	}
	if r.Post(Action{Type: ActionAbandon}) {
		t.Fatal("expected Post to report a saturated buffer")
	}

	abandoned := make(chan bool, 1)
	go func() { abandoned <- r.Abandon() }()
	go r.Run(context.Background())
	waitDone(t, r)

	select {
	case ok := <-abandoned:
		if !ok {
			t.Error("abandon should have been delivered")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("abandon did not return")
	}
	if called {
		t.Error("abandoned session must not emit a game end")
	}
	if r.Engine.Score() == 0 {
		t.Error("queued successes should have been applied before the abandon")
	}
	if r.Abandon() {
		t.Error("abandon after the loop exited should report false")
	}
}

func TestRunnerMissPenaltyEndsEarly(t *testing.T) {
	rules := DefaultRules()
	rules.DurationSec = 8
	r := NewRunner("s-4", NewEngine(rules, nil), make(chan []byte, 100), 0)
	var ends []Result
	r.OnGameEnd = func(res Result) { ends = append(ends, res) }
	r.Events = panickingSink{}

	go r.Run(context.Background())
	r.Post(Action{Type: ActionStart})
	r.Post(Action{Type: ActionMiss})
	r.Post(Action{Type: ActionMiss})
	waitDone(t, r)

	if len(ends) != 1 || ends[0].Reason != EndPenalty || ends[0].Misses != 2 {
		t.Errorf("expected a single penalty ending after two misses, got %+v", ends)
	}
}
