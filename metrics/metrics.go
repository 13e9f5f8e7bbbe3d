// Package metrics exposes Prometheus counters for the dictation workflow.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "phishcheck"

var (
	verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verifications_total",
		Help:      "Completed verification requests by outcome",
	}, []string{"outcome"}) // outcome: scored, transport, status, decode

	verifyLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "verification_latency_seconds",
		Help:      "Round-trip time of verification requests",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
	})

	lastScore = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_score",
		Help:      "Score of the most recent successful verification",
	})

	escalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "escalations_total",
		Help:      "Escalation actions by clipboard result",
	}, []string{"copied"})

	listening = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "listening",
		Help:      "1 while the microphone is capturing",
	})

	listeningSessions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "listening_sessions_total",
		Help:      "Number of times capture was started",
	})

	rejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verify_rejected_total",
		Help:      "Submissions refused before any request was sent",
	}, []string{"reason"}) // reason: empty, in_flight

	permissionDenials = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "permission_denied_total",
		Help:      "Microphone permission requests that failed",
	})
)

// RecordVerification records a finished request. outcome is "scored" or an
// error kind.
func RecordVerification(outcome string, elapsed time.Duration) {
	verifications.WithLabelValues(outcome).Inc()
	verifyLatency.Observe(elapsed.Seconds())
}

func RecordScore(score float64) {
	lastScore.Set(score)
}

func RecordEscalation(copied bool) {
	label := "false"
	if copied {
		label = "true"
	}
	escalations.WithLabelValues(label).Inc()
}

func RecordListening(on bool) {
	if on {
		listening.Set(1)
		listeningSessions.Inc()
		return
	}
	listening.Set(0)
}

func RecordRejected(reason string) {
	rejected.WithLabelValues(reason).Inc()
}

func RecordPermissionDenied() {
	permissionDenials.Inc()
}
