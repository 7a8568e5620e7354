package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	IntakeCounter    = prometheus.NewCounter(prometheus.CounterOpts{Name: "triage_intake_total", Help: "Patients registered into the queue"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "triage_rate_limit_rejects_total", Help: "Intake requests rejected by rate limiter"})
	Claims           = prometheus.NewCounter(prometheus.CounterOpts{Name: "triage_claims_total", Help: "Successful claimNext calls"})
	ClaimConflicts   = prometheus.NewCounter(prometheus.CounterOpts{Name: "triage_claim_conflicts_total", Help: "Claim attempts that lost a race and were retried"})
	Transitions      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "triage_transitions_total", Help: "Committed status transitions by target status"}, []string{"status"})
	Notifications    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "triage_notifications_total", Help: "Notification outcomes by result"}, []string{"result"})
	UnknownCategory  = prometheus.NewCounter(prometheus.CounterOpts{Name: "triage_unknown_category_total", Help: "Entries ordered with the fallback severity"})
	QueueDepthGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "triage_queue_depth", Help: "Entries currently waiting"})
	BreachedGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "triage_breached", Help: "Waiting entries past their category wait budget"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			IntakeCounter,
			RateLimitRejects,
			Claims,
			ClaimConflicts,
			Transitions,
			Notifications,
			UnknownCategory,
			QueueDepthGauge,
			BreachedGauge,
		)
	})
	return promhttp.Handler()
}
