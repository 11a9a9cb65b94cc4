// Package normalize turns per-source fetch batches into the final, labeled,
// deduplicated and capped result list.
package normalize

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/buzzcrawl/internal/crawler"
)

const (
	defaultMinLength  = 10
	defaultDisplayCap = 30
	defaultSampleCap  = 30
)

// Labeler renders the "[Label] text" prefix for a source.
type Labeler interface {
	FormatLabel(sourceID, text string) string
}

// Config controls the filtering and capping thresholds.
//   - MinLength: items whose unlabeled title+content is shorter are dropped.
//   - DisplayCap: maximum number of items kept after filtering.
//   - SampleCap: maximum number of items handed to downstream analysis.
type Config struct {
	MinLength  int
	DisplayCap int
	SampleCap  int
}

// Normalizer applies labeling, deduplication, filtering, capping and sampling.
type Normalizer struct {
	labeler Labeler
	cfg     Config
}

// New constructs a Normalizer, filling zero config values with defaults.
func New(labeler Labeler, cfg Config) *Normalizer {
	if cfg.MinLength <= 0 {
		cfg.MinLength = defaultMinLength
	}
	if cfg.DisplayCap <= 0 {
		cfg.DisplayCap = defaultDisplayCap
	}
	if cfg.SampleCap <= 0 {
		cfg.SampleCap = defaultSampleCap
	}
	return &Normalizer{labeler: labeler, cfg: cfg}
}

// Process consumes batches in the order given and returns the sampled item
// list plus the statistics describing how it was produced.
func (n *Normalizer) Process(batches []crawler.SourceBatch) ([]crawler.NormalizedItem, crawler.Stats) {
	stats := crawler.Stats{PerSourceCounts: make(map[string]int, len(batches))}
	seen := make(map[string]struct{})
	kept := make([]crawler.NormalizedItem, 0)

	for _, batch := range batches {
		if batch.Failed() {
			stats.FailureCount++
			stats.PerSourceCounts[batch.SourceID] = 0
			continue
		}
		stats.SuccessCount++
		stats.PerSourceCounts[batch.SourceID] = len(batch.Items)

		for _, item := range batch.Items {
			title := strings.TrimSpace(item.Title)
			content := strings.TrimSpace(item.Content)
			if title == "" && content == "" {
				continue
			}
			labeled := crawler.NormalizedItem{
				SourceID: batch.SourceID,
				Title:    n.labeler.FormatLabel(batch.SourceID, title),
				Content:  n.labeler.FormatLabel(batch.SourceID, content),
				URL:      item.URL,
			}
			key := dedupKey(labeled.Title, labeled.Content)
			if _, dup := seen[key]; dup {
				stats.Duplicates++
				continue
			}
			seen[key] = struct{}{}
			if utf8.RuneCountInString(dedupKey(title, content)) < n.cfg.MinLength {
				stats.Filtered++
				continue
			}
			kept = append(kept, labeled)
		}
	}

	if len(kept) > n.cfg.DisplayCap {
		kept = kept[:n.cfg.DisplayCap]
	}

	sampled := kept
	if len(kept) > n.cfg.SampleCap {
		sampled = kept[:n.cfg.SampleCap]
		stats.WasSampled = true
	}

	stats.TotalCount = len(kept)
	for _, item := range kept {
		stats.TotalLength += utf8.RuneCountInString(item.Title) + utf8.RuneCountInString(item.Content)
	}
	if stats.TotalCount > 0 {
		stats.AverageLength = round1(float64(stats.TotalLength) / float64(stats.TotalCount))
	}
	if attempted := stats.SuccessCount + stats.FailureCount; attempted > 0 {
		stats.FailRatePercent = round1(float64(stats.FailureCount) / float64(attempted) * 100)
	}
	stats.OriginalCount = len(kept)
	stats.SampledCount = len(sampled)

	out := make([]crawler.NormalizedItem, len(sampled))
	copy(out, sampled)
	return out, stats
}

func dedupKey(title, content string) string {
	return strings.TrimSpace(title + " " + content)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
