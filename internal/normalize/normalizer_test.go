package normalize

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/buzzcrawl/internal/crawler"
	"github.com/JakeFAU/buzzcrawl/internal/source"
)

func newTestNormalizer(cfg Config) *Normalizer {
	return New(source.MustDefault(), cfg)
}

func items(n int, prefix string) []crawler.RawItem {
	out := make([]crawler.RawItem, n)
	for i := range out {
		out[i] = crawler.RawItem{
			Title:   fmt.Sprintf("%s title %02d", prefix, i),
			Content: fmt.Sprintf("%s body text number %02d", prefix, i),
			URL:     fmt.Sprintf("https://example.com/%s/%d", prefix, i),
		}
	}
	return out
}

func TestProcessLabelsItems(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer(Config{})
	got, stats := n.Process([]crawler.SourceBatch{{
		SourceID: "reddit",
		Items:    []crawler.RawItem{{Title: "Go generics", Content: "are they worth it?", URL: "u"}},
	}})

	require.Len(t, got, 1)
	require.Equal(t, "[Reddit] Go generics", got[0].Title)
	require.Equal(t, "[Reddit] are they worth it?", got[0].Content)
	require.Equal(t, "reddit", got[0].SourceID)
	require.Equal(t, 1, stats.TotalCount)
}

func TestProcessDeduplicatesAcrossBatchesKeepingFirst(t *testing.T) {
	t.Parallel()

	dup := crawler.RawItem{Title: "same headline", Content: "same body text", URL: "first"}
	again := dup
	again.URL = "second"
	n := newTestNormalizer(Config{})
	got, stats := n.Process([]crawler.SourceBatch{
		{SourceID: "clien", Items: []crawler.RawItem{dup, again}},
		{SourceID: "clien", Items: []crawler.RawItem{{Title: " same headline ", Content: "same body text "}}},
	})

	require.Len(t, got, 1)
	require.Equal(t, "first", got[0].URL)
	require.Equal(t, 2, stats.Duplicates)
}

func TestProcessFiltersShortItems(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer(Config{MinLength: 10})
	got, stats := n.Process([]crawler.SourceBatch{{
		SourceID: "reddit",
		Items: []crawler.RawItem{
			{Title: "hi", Content: "yo"},
			{Title: "a proper title", Content: "with some content"},
			{Title: "", Content: ""},
		},
	}})

	require.Len(t, got, 1)
	require.Equal(t, 1, stats.Filtered)
	require.Equal(t, 3, stats.PerSourceCounts["reddit"])
}

func TestProcessCapWithoutSampling(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer(Config{DisplayCap: 30, SampleCap: 30})
	got, stats := n.Process([]crawler.SourceBatch{{SourceID: "reddit", Items: items(40, "r")}})

	require.Len(t, got, 30)
	require.False(t, stats.WasSampled)
	require.Equal(t, 30, stats.TotalCount)
	require.Equal(t, 30, stats.OriginalCount)
	require.Equal(t, 30, stats.SampledCount)
	require.Equal(t, "[Reddit] r title 00", got[0].Title)
	require.Equal(t, "[Reddit] r title 29", got[29].Title)
}

func TestProcessSamplesBelowDisplayCap(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer(Config{DisplayCap: 30, SampleCap: 20})
	got, stats := n.Process([]crawler.SourceBatch{{SourceID: "reddit", Items: items(40, "r")}})

	require.Len(t, got, 20)
	require.True(t, stats.WasSampled)
	require.Equal(t, 30, stats.TotalCount)
	require.Equal(t, 30, stats.OriginalCount)
	require.Equal(t, 20, stats.SampledCount)
}

func TestProcessFailureStats(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer(Config{})
	got, stats := n.Process([]crawler.SourceBatch{
		{SourceID: "clien", Err: errors.New("timeout")},
		{SourceID: "dcinside", Err: errors.New("boom")},
		{SourceID: "reddit", Items: items(5, "r")},
	})

	require.Len(t, got, 5)
	require.Equal(t, map[string]int{"clien": 0, "dcinside": 0, "reddit": 5}, stats.PerSourceCounts)
	require.Equal(t, 1, stats.SuccessCount)
	require.Equal(t, 2, stats.FailureCount)
	require.InDelta(t, 66.7, stats.FailRatePercent, 0.001)
}

func TestProcessAverageLength(t *testing.T) {
	t.Parallel()

	n := New(labelerFunc(func(_, text string) string { return text }), Config{MinLength: 1})
	_, stats := n.Process([]crawler.SourceBatch{{
		SourceID: "x",
		Items: []crawler.RawItem{
			{Title: "abc", Content: "defg"},
			{Title: "hello", Content: "world"},
			{Title: "zz", Content: "z"},
		},
	}})

	// (7 + 10 + 3) / 3 = 6.666...
	require.InDelta(t, 6.7, stats.AverageLength, 0.001)
	require.Equal(t, 20, stats.TotalLength)
}

func TestProcessEmptyInput(t *testing.T) {
	t.Parallel()

	got, stats := newTestNormalizer(Config{}).Process(nil)
	require.Empty(t, got)
	require.Zero(t, stats.TotalCount)
	require.Zero(t, stats.AverageLength)
	require.Zero(t, stats.FailRatePercent)
}

type labelerFunc func(id, text string) string

func (f labelerFunc) FormatLabel(id, text string) string { return f(id, text) }
