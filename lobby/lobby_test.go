package lobby

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"ad-eraser-server/config"
	"ad-eraser-server/prefs"
	"ad-eraser-server/score"
	"ad-eraser-server/session"
	"ad-eraser-server/storage"
	"ad-eraser-server/ws"
)

// fixedRemote is a shared leaderboard that already holds some scores.
type fixedRemote struct {
	scores []int
}

func (f *fixedRemote) Name() string                     { return "remote" }
func (f *fixedRemote) Initialize(context.Context) error { return nil }

func (f *fixedRemote) Clear(context.Context) error {
	f.scores = nil
	return nil
}

func (f *fixedRemote) Insert(_ context.Context, rec storage.ScoreRecord) (int64, error) {
	f.scores = append(f.scores, rec.Score)
	return int64(len(f.scores)), nil
}

func (f *fixedRemote) QueryOrderedDescending(context.Context, int) ([]storage.ScoreRecord, error) {
	return nil, nil
}

func (f *fixedRemote) QueryCountGreaterThan(_ context.Context, value int) (int, error) {
	n := 0
	for _, s := range f.scores {
		if s > value {
			n++
		}
	}
	return n, nil
}

// testConfig ends a session on the first miss and never ticks during a test.
func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.SessionDurationSec = 5
	cfg.MissPenaltySec = 5
	cfg.TickIntervalMS = 60_000
	return cfg
}

func newLobby(t *testing.T, remote score.Remote) (*Lobby, *score.Service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	local := storage.NewLocalStore(filepath.Join(t.TempDir(), "local.json"))
	embedded := storage.NewEmbeddedStore(filepath.Join(t.TempDir(), "scores.db"))
	t.Cleanup(func() { embedded.Close() })

	svc := score.NewService(local, embedded, remote, score.Options{})
	svc.Init(ctx)
	return New(ctx, testConfig(), svc, prefs.New(local), nil), svc
}

// waitFor reads messages from ch until one of type want arrives.
func waitFor(t *testing.T, ch chan []byte, want string) []byte {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-ch:
			var env struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(msg, &env); err != nil {
				t.Fatalf("bad message %s: %v", msg, err)
			}
			if env.Type == want {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func play(t *testing.T, l *Lobby, c *ws.Client, successes int) ws.GameOverMsg {
	t.Helper()
	l.Start(c)

	var started ws.SessionStartedMsg
	if err := json.Unmarshal(waitFor(t, c.Send, "session_started"), &started); err != nil {
		t.Fatal(err)
	}
	if started.SessionID == "" || started.DurationSec != 5 || !started.SoundEnabled {
		t.Errorf("unexpected session_started: %+v", started)
	}

	r := c.Runner()
	if r == nil {
		t.Fatal("expected an active runner")
	}
	for i := 0; i < successes; i++ {
		r.Post(session.Action{Type: session.ActionSuccess})
	}
	r.Post(session.Action{Type: session.ActionMiss})

	var over ws.GameOverMsg
	if err := json.Unmarshal(waitFor(t, c.Send, "game_over"), &over); err != nil {
		t.Fatal(err)
	}
	<-r.Done
	return over
}

func TestAnonymousSessionSavesLocally(t *testing.T) {
	l, svc := newLobby(t, nil)
	c := &ws.Client{Send: make(chan []byte, 100)}

	over := play(t, l, c, 2)
	if over.Score != 20 || over.Reason != "penalty" {
		t.Errorf("unexpected result: %+v", over)
	}
	if !over.Saved || !over.NewPersonalBest || over.PersonalBest != 20 {
		t.Errorf("expected a saved new personal best of 20, got %+v", over)
	}
	if over.RankKnown || over.Rank != score.RankUnknown {
		t.Errorf("anonymous player must not get a rank, got %+v", over)
	}
	if got := svc.PersonalBest(context.Background()); got != 20 {
		t.Errorf("expected stored personal best 20, got %d", got)
	}
	if c.Runner() != nil {
		t.Error("runner should be cleared after game over")
	}
}

func TestNamedSessionGetsRank(t *testing.T) {
	remote := &fixedRemote{scores: []int{100, 50}}
	l, _ := newLobby(t, remote)
	c := &ws.Client{Send: make(chan []byte, 100)}
	c.SetName("ann")

	over := play(t, l, c, 3)
	if over.Score != 32 {
		t.Errorf("expected score 32, got %d", over.Score)
	}
	if !over.RankKnown || over.Rank != 3 {
		t.Errorf("expected rank 3 behind 100 and 50, got %+v", over)
	}

	again := play(t, l, c, 0)
	if again.NewPersonalBest || again.PersonalBest != 32 {
		t.Errorf("a lower score must keep the personal best, got %+v", again)
	}
	if again.Rank != 4 {
		t.Errorf("expected rank 4 for a zero score, got %d", again.Rank)
	}
}

func TestAbandonSkipsSave(t *testing.T) {
	l, svc := newLobby(t, nil)
	c := &ws.Client{Send: make(chan []byte, 100)}

	l.Start(c)
	waitFor(t, c.Send, "session_started")
	r := c.Runner()
	r.Post(session.Action{Type: session.ActionSuccess})
	l.Abandon(c)

	select {
	case <-r.Done:
	case <-time.After(2 * time.Second):
		t.Fatal("abandoned runner did not stop")
	}
	if c.Runner() != nil {
		t.Error("runner should be cleared after abandon")
	}
	if got := svc.PersonalBest(context.Background()); got != 0 {
		t.Errorf("abandoned session must not be saved, got personal best %d", got)
	}
}
