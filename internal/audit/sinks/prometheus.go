package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/buzzcrawl/internal/audit"
)

// PrometheusSink counts audit events. It owns its collectors so tests can
// register it against an isolated registry.
type PrometheusSink struct {
	requests       *prometheus.CounterVec
	errors         *prometheus.CounterVec
	sourceFailures *prometheus.CounterVec
	resultItems    prometheus.Histogram
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buzzcrawl_audit_requests_total",
			Help: "Audited crawl requests partitioned by origin (new or cache).",
		}, []string{"origin"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buzzcrawl_audit_errors_total",
			Help: "Audited crawl errors partitioned by kind.",
		}, []string{"kind"}),
		sourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buzzcrawl_audit_source_failures_total",
			Help: "Per-source fetch failures seen inside otherwise handled crawls.",
		}, []string{"source"}),
		resultItems: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "buzzcrawl_audit_result_items",
			Help:    "Number of items returned by genuine crawls.",
			Buckets: []float64{0, 1, 5, 10, 20, 30},
		}),
	}
	for _, c := range []prometheus.Collector{s.requests, s.errors, s.sourceFailures, s.resultItems} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register audit collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []audit.Event) error {
	for _, evt := range batch {
		switch evt.Type {
		case audit.TypeRequest:
			origin := "new"
			if evt.FromCache {
				origin = "cache"
			}
			s.requests.WithLabelValues(origin).Inc()
		case audit.TypeError:
			s.errors.WithLabelValues(string(evt.ErrorKind)).Inc()
		case audit.TypeSourceFailure:
			s.sourceFailures.WithLabelValues(evt.SourceID).Inc()
		case audit.TypeHistory:
			if evt.Result != nil {
				s.resultItems.Observe(float64(evt.Result.Meta.TotalCount))
			}
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
