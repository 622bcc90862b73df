package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"ad-eraser-server/session"
)

// Recorder turns gameplay and storage events into Prometheus metrics.
// A nil *Recorder is valid and records nothing; no method can fail or block gameplay.
type Recorder struct {
	sessionsStarted  prometheus.Counter
	sessionsEnded    *prometheus.CounterVec
	targetsDismissed prometheus.Counter
	misses           prometheus.Counter
	backendOps       *prometheus.CounterVec
	finalScore       prometheus.Histogram
}

// New creates a recorder and registers its collectors with reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ad_eraser_sessions_started_total",
			Help: "Sessions started.",
		}),
		sessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ad_eraser_sessions_ended_total",
			Help: "Sessions that reached the terminal state, by end reason.",
		}, []string{"reason"}),
		targetsDismissed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ad_eraser_targets_dismissed_total",
			Help: "Ads dismissed through their close control.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ad_eraser_misses_total",
			Help: "Clicks that missed the close control.",
		}),
		backendOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ad_eraser_backend_operations_total",
			Help: "Storage backend operations, by backend, operation and status.",
		}, []string{"backend", "op", "status"}),
		finalScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ad_eraser_final_score",
			Help:    "Final score of finished sessions.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(r.sessionsStarted, r.sessionsEnded, r.targetsDismissed, r.misses, r.backendOps, r.finalScore)
	}
	return r
}

// SessionStarted implements session.EventSink.
func (r *Recorder) SessionStarted(string) {
	if r == nil {
		return
	}
	r.sessionsStarted.Inc()
}

// TargetDismissed implements session.EventSink.
func (r *Recorder) TargetDismissed(string, int, int) {
	if r == nil {
		return
	}
	r.targetsDismissed.Inc()
}

// TargetMissed implements session.EventSink.
func (r *Recorder) TargetMissed(string, int) {
	if r == nil {
		return
	}
	r.misses.Inc()
}

// SessionEnded implements session.EventSink.
func (r *Recorder) SessionEnded(_ string, res session.Result) {
	if r == nil {
		return
	}
	r.sessionsEnded.WithLabelValues(string(res.Reason)).Inc()
	r.finalScore.Observe(float64(res.Score))
}

// BackendOp counts one storage operation.
func (r *Recorder) BackendOp(backend, op, status string) {
	if r == nil {
		return
	}
	r.backendOps.WithLabelValues(backend, op, status).Inc()
}

var _ session.EventSink = (*Recorder)(nil)
