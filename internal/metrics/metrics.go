// Package metrics exports game activity counters to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mot"

// Metrics holds the engine's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	submissions     *prometheus.CounterVec
	ratings         *prometheus.CounterVec
	completed       *prometheus.CounterVec
	sessionsCreated prometheus.Counter
	playersJoined   prometheus.Counter
	requestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers the collectors with reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{gatherer: reg}
	var err error

	if m.submissions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "step_submissions_total",
		Help:      "Step submissions by step and outcome.",
	}, []string{"step", "outcome"})); err != nil {
		return nil, err
	}

	if m.ratings, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "step_ratings_total",
		Help:      "Accepted step submissions by step and star rating.",
	}, []string{"step", "stars"})); err != nil {
		return nil, err
	}

	if m.completed, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "games_completed_total",
		Help:      "Completed play-throughs by overall tier.",
	}, []string{"tier"})); err != nil {
		return nil, err
	}

	if m.sessionsCreated, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_created_total",
		Help:      "Game sessions opened by facilitators.",
	})); err != nil {
		return nil, err
	}

	if m.playersJoined, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "players_joined_total",
		Help:      "New players joining a session. Resumed paths are not counted.",
	})); err != nil {
		return nil, err
	}

	if m.requestDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route pattern and status code.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})); err != nil {
		return nil, err
	}

	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, fmt.Errorf("register metric: %w", err)
	}
	return c, nil
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// StepAccepted records a successful submission and its rating
func (m *Metrics) StepAccepted(step string, stars int) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(step, "accepted").Inc()
	m.ratings.WithLabelValues(step, strconv.Itoa(stars)).Inc()
}

// StepRejected records a submission that failed validation
func (m *Metrics) StepRejected(step string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(step, "rejected").Inc()
}

// GameCompleted records a finished play-through
func (m *Metrics) GameCompleted(tier int) {
	if m == nil {
		return
	}
	m.completed.WithLabelValues(strconv.Itoa(tier)).Inc()
}

// SessionCreated records a newly opened session
func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
}

// PlayerJoined records a new player path
func (m *Metrics) PlayerJoined() {
	if m == nil {
		return
	}
	m.playersJoined.Inc()
}

// ObserveRequest records one served HTTP request
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
