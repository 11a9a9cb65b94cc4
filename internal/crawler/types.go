// Package crawler defines core types shared across subsystems.
package crawler

import "time"

// SourceKind groups sources by the kind of platform they crawl.
type SourceKind string

// Source kinds understood by the orchestrator. Only community sources are
// crawlable; sns sources are catalogued but rejected at validation time.
const (
	KindCommunity SourceKind = "community"
	KindSNS       SourceKind = "sns"
)

// Source describes one entry of the channel catalogue.
type Source struct {
	ID    string     `json:"key"`
	Label string     `json:"label"`
	Kind  SourceKind `json:"type"`
}

// CrawlRequest is one incoming crawl call.
type CrawlRequest struct {
	UserID    string   `json:"user_id"`
	InputText string   `json:"input_text"`
	Sources   []string `json:"sources"`
}

// RawItem is a single post produced by a Fetcher.
type RawItem struct {
	SourceID string `json:"source_id,omitempty"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	URL      string `json:"url"`
}

// NormalizedItem is a RawItem whose title and content carry the source label.
type NormalizedItem struct {
	SourceID string `json:"source_id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	URL      string `json:"url"`
}

// SourceBatch is the outcome of fetching a single source.
type SourceBatch struct {
	SourceID string
	Items    []RawItem
	Err      error
	Duration time.Duration
}

// Failed reports whether the fetch for this source failed or timed out.
func (b SourceBatch) Failed() bool {
	return b.Err != nil
}

// Meta is the summary block returned with every crawl result.
type Meta struct {
	TotalCount      int     `json:"total_count"`
	AverageLength   float64 `json:"average_length"`
	WasSampled      bool    `json:"was_sampled"`
	FailRatePercent float64 `json:"fail_rate_percent"`
}

// Stats carries everything the normalizer measured while processing a crawl.
type Stats struct {
	TotalCount      int            `json:"total_count"`
	AverageLength   float64        `json:"average_length"`
	TotalLength     int            `json:"total_length"`
	PerSourceCounts map[string]int `json:"per_source_counts"`
	SuccessCount    int            `json:"success_count"`
	FailureCount    int            `json:"failure_count"`
	FailRatePercent float64        `json:"fail_rate_percent"`
	WasSampled      bool           `json:"was_sampled"`
	OriginalCount   int            `json:"original_count"`
	SampledCount    int            `json:"sampled_count"`
	Duplicates      int            `json:"duplicates"`
	Filtered        int            `json:"filtered"`
}

// Meta projects the response metadata out of the full stats.
func (s Stats) Meta() Meta {
	return Meta{
		TotalCount:      s.TotalCount,
		AverageLength:   s.AverageLength,
		WasSampled:      s.WasSampled,
		FailRatePercent: s.FailRatePercent,
	}
}

// CreditCharge records what a single crawl cost the caller.
type CreditCharge struct {
	UserID      string `json:"user_id"`
	FinalCredit int    `json:"final_credit"`
	FreeTrial   bool   `json:"free_trial"`
	Waived      bool   `json:"waived"`
	Balance     int    `json:"balance"`
}

// CrawlResult is the response returned to callers and stored in the cache.
type CrawlResult struct {
	FromCache       bool             `json:"from_cache"`
	FinalCredit     int              `json:"final_credit"`
	FreeTrial       bool             `json:"free_trial"`
	UsedSources     []string         `json:"used_sources"`
	Results         []NormalizedItem `json:"results"`
	PerSourceCounts map[string]int   `json:"per_source_counts"`
	Meta            Meta             `json:"meta"`
}

// RateUsage summarizes a user's position inside the sliding window.
type RateUsage struct {
	CurrentRequests   int        `json:"current_requests"`
	RequestLimit      int        `json:"request_limit"`
	RemainingRequests int        `json:"remaining_requests"`
	WindowSeconds     int64      `json:"window_seconds"`
	ResetTime         *time.Time `json:"reset_time,omitempty"`
}
