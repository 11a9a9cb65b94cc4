// Package static provides a deterministic fetcher for development and tests.
package static

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/buzzcrawl/internal/crawler"
)

// Fetcher fabricates Count posts that mention the phrase. It never touches
// the network.
type Fetcher struct {
	SourceID string
	Count    int
	Delay    time.Duration
	Err      error
}

// Fetch returns the canned posts, honoring Delay and ctx.
func (f *Fetcher) Fetch(ctx context.Context, phrase string) ([]crawler.RawItem, error) {
	if f.Delay > 0 {
		timer := time.NewTimer(f.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("static fetch: %w", ctx.Err())
		case <-timer.C:
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	phrase = strings.TrimSpace(phrase)
	items := make([]crawler.RawItem, f.Count)
	for i := range items {
		items[i] = crawler.RawItem{
			Title:   fmt.Sprintf("%s post #%d about %s", f.SourceID, i+1, phrase),
			Content: fmt.Sprintf("sample discussion of %s from %s, entry %d", phrase, f.SourceID, i+1),
			URL:     fmt.Sprintf("https://example.invalid/%s/%d", f.SourceID, i+1),
		}
	}
	return items, nil
}
