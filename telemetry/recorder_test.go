package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"ad-eraser-server/session"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.SessionStarted("s")
	r.TargetDismissed("s", 10, 1)
	r.TargetDismissed("s", 10, 2)
	r.TargetMissed("s", 20)
	r.SessionEnded("s", session.Result{Score: 20, Reason: session.EndTimeout})
	r.BackendOp("remote", "insert", "error")

	if got := testutil.ToFloat64(r.sessionsStarted); got != 1 {
		t.Errorf("sessions started: expected 1, got %v", got)
	}
	if got := testutil.ToFloat64(r.targetsDismissed); got != 2 {
		t.Errorf("targets dismissed: expected 2, got %v", got)
	}
	if got := testutil.ToFloat64(r.misses); got != 1 {
		t.Errorf("misses: expected 1, got %v", got)
	}
	if got := testutil.ToFloat64(r.sessionsEnded.WithLabelValues("timeout")); got != 1 {
		t.Errorf("sessions ended: expected 1, got %v", got)
	}
	if got := testutil.ToFloat64(r.backendOps.WithLabelValues("remote", "insert", "error")); got != 1 {
		t.Errorf("backend ops: expected 1, got %v", got)
	}
	if n := testutil.CollectAndCount(r.finalScore); n != 1 {
		t.Errorf("expected final score histogram to be collected, got %d", n)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.SessionStarted("s")
	r.TargetDismissed("s", 1, 1)
	r.TargetMissed("s", 1)
	r.SessionEnded("s", session.Result{})
	r.BackendOp("local", "mirror", "ok")
}
