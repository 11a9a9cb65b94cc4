package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/buzzcrawl/internal/audit"
	"github.com/JakeFAU/buzzcrawl/internal/crawler"
)

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	batch := []audit.Event{
		{TS: now, Type: audit.TypeRequest},
		{TS: now, Type: audit.TypeRequest, FromCache: true},
		{TS: now, Type: audit.TypeRequest, FromCache: true},
		{TS: now, Type: audit.TypeError, ErrorKind: crawler.ErrKindRateLimited},
		{TS: now, Type: audit.TypeSourceFailure, SourceID: "clien"},
		{TS: now, Type: audit.TypeHistory, RequestID: "r", Result: &crawler.CrawlResult{Meta: crawler.Meta{TotalCount: 12}}},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.requests.WithLabelValues("new")))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.requests.WithLabelValues("cache")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.errors.WithLabelValues("rate_limited")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.sourceFailures.WithLabelValues("clien")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.resultItems))
	require.NoError(t, sink.Close(context.Background()))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
