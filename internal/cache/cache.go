// Package cache derives response cache keys and defines the maintenance
// surface shared by the memory and redis backends.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/buzzcrawl/internal/crawler"
	"github.com/JakeFAU/buzzcrawl/internal/source"
)

// DefaultTTL is how long a crawl result stays servable from the cache.
const DefaultTTL = 600 * time.Second

// Store is a ResponseCache that can also be emptied and swept.
type Store interface {
	crawler.ResponseCache
	// Clear drops every entry.
	Clear(ctx context.Context) error
	// Cleanup removes expired entries and reports how many were removed.
	Cleanup(ctx context.Context) (int, error)
}

// Key derives the cache key for a phrase and source selection. The phrase is
// trimmed and lowercased and the sources are canonicalized, so selections that
// differ only in order, case or duplicates share a key.
func Key(h crawler.Hasher, phrase string, sources []string) (string, error) {
	parts := append([]string{strings.ToLower(strings.TrimSpace(phrase))}, source.Canonical(sources)...)
	digest, err := h.Hash([]byte(strings.Join(parts, ":")))
	if err != nil {
		return "", fmt.Errorf("hash cache key: %w", err)
	}
	return digest, nil
}

// RunJanitor calls Cleanup every interval until ctx is canceled.
func RunJanitor(ctx context.Context, store Store, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.Cleanup(ctx)
			if err != nil {
				logger.Warn("cache cleanup failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Debug("cache cleanup", zap.Int("removed", removed))
			}
		}
	}
}
