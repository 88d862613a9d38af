// Package metrics exposes protocol activity to Prometheus.
package metrics

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/brp/internal/brp"
	"github.com/roach88/brp/internal/session"
)

// OutcomeOK labels successful exchanges. Failures are labelled with their
// error code.
const OutcomeOK = "ok"

// Metrics holds the collectors. It implements session.Observer.
type Metrics struct {
	requests     *prometheus.CounterVec
	dispatch     *prometheus.HistogramVec
	httpRequests *prometheus.CounterVec
	sessions     prometheus.GaugeFunc
}

var _ session.Observer = (*Metrics)(nil)

// New creates the collectors and registers them with reg. openSessions
// reports the current number of open sessions; it may be nil.
func New(reg prometheus.Registerer, openSessions func() int) (*Metrics, error) {
	if openSessions == nil {
		openSessions = func() int { return 0 }
	}
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "brp",
				Name:      "requests_total",
				Help:      "Answered requests by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		dispatch: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "brp",
				Name:      "dispatch_seconds",
				Help:      "Time from receiving a request to answering it.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "brp",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by status code.",
			},
			[]string{"status"},
		),
		sessions: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "brp",
				Name:      "sessions_open",
				Help:      "Open sessions.",
			},
			func() float64 { return float64(openSessions()) },
		),
	}
	for _, c := range []prometheus.Collector{m.requests, m.dispatch, m.httpRequests, m.sessions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Observe records one exchange.
func (m *Metrics) Observe(_ context.Context, ex session.Exchange) error {
	kind := string(ex.Request.Kind())
	m.requests.WithLabelValues(kind, Outcome(ex.Response)).Inc()
	m.dispatch.WithLabelValues(kind).Observe(ex.Duration.Seconds())
	return nil
}

// RecordHTTP counts one HTTP response.
func (m *Metrics) RecordHTTP(status int) {
	m.httpRequests.WithLabelValues(strconv.Itoa(status)).Inc()
}

// Outcome returns the outcome label for a response.
func Outcome(resp brp.Response) string {
	if e := resp.Err(); e != nil {
		return string(e.Code)
	}
	return OutcomeOK
}
