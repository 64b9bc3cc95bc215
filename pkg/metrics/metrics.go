package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors recorded by the client.
type Metrics struct {
	Registry           *prometheus.Registry
	GenerationOutcomes *prometheus.CounterVec
	Polls              *prometheus.CounterVec
	SessionStates      *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// New registers every collector on a dedicated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		GenerationOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mealplanner_generation_outcomes_total",
				Help: "Terminal outcomes of meal plan generation workflows",
			},
			[]string{"outcome"},
		),
		Polls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mealplanner_generation_polls_total",
				Help: "Latest plan polls issued while awaiting generation",
			},
			[]string{"result"},
		),
		SessionStates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mealplanner_session_transitions_total",
				Help: "Session state machine transitions by target state",
			},
			[]string{"state"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mealplanner_http_requests_total",
				Help: "Total number of HTTP requests served to the UI",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mealplanner_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Generation records a terminal generation outcome.
func (m *Metrics) Generation(outcome string) {
	if m == nil {
		return
	}
	m.GenerationOutcomes.WithLabelValues(outcome).Inc()
}

// Poll records a single latest-plan poll.
func (m *Metrics) Poll(result string) {
	if m == nil {
		return
	}
	m.Polls.WithLabelValues(result).Inc()
}

// SessionState records a session transition.
func (m *Metrics) SessionState(state string) {
	if m == nil {
		return
	}
	m.SessionStates.WithLabelValues(state).Inc()
}
