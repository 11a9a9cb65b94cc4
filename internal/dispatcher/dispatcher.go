// Package dispatcher fans one search phrase out to the selected source
// fetchers on a bounded pool.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/buzzcrawl/internal/crawler"
	"github.com/JakeFAU/buzzcrawl/internal/metrics"
)

const (
	defaultMaxWorkers   = 4
	defaultFetchTimeout = 10 * time.Second
)

// FetcherLookup resolves the fetcher for a source id.
type FetcherLookup interface {
	Fetcher(id string) (crawler.Fetcher, bool)
}

// Config bounds the fan-out.
//   - MaxWorkers: fetches allowed in flight per call (default 4).
//   - FetchTimeout: deadline applied to every individual fetch (default 10s).
type Config struct {
	MaxWorkers   int
	FetchTimeout time.Duration
}

// Dispatcher runs fetchers concurrently and collects their outcomes.
type Dispatcher struct {
	fetchers FetcherLookup
	cfg      Config
	logger   *zap.Logger
}

// New creates a Dispatcher.
func New(fetchers FetcherLookup, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = defaultMaxWorkers
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Dispatcher{
		fetchers: fetchers,
		cfg:      cfg,
		logger:   logger.Named("dispatcher"),
	}
}

// Dispatch fetches phrase from every source and returns one batch per source,
// in the order the sources were given. A failing or slow source never cancels
// its siblings.
func (d *Dispatcher) Dispatch(ctx context.Context, phrase string, sources []string) []crawler.SourceBatch {
	batches := make([]crawler.SourceBatch, len(sources))
	sem := semaphore.NewWeighted(int64(d.cfg.MaxWorkers))
	var wg sync.WaitGroup

	for i, id := range sources {
		batches[i].SourceID = id
		if err := sem.Acquire(ctx, 1); err != nil {
			batches[i].Err = fmt.Errorf("acquire worker: %w", err)
			continue
		}
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			defer sem.Release(1)
			batches[i] = d.fetchOne(ctx, id, phrase)
		}(i, id)
	}
	wg.Wait()
	return batches
}

type fetchResult struct {
	items []crawler.RawItem
	err   error
}

func (d *Dispatcher) fetchOne(ctx context.Context, id, phrase string) (batch crawler.SourceBatch) {
	batch.SourceID = id
	start := time.Now()
	defer func() {
		batch.Duration = time.Since(start)
		status := "ok"
		if batch.Err != nil {
			status = "error"
		}
		metrics.ObserveSourceFetch(id, status, len(batch.Items), batch.Duration)
	}()

	f, ok := d.fetchers.Fetcher(id)
	if !ok {
		batch.Err = fmt.Errorf("no fetcher registered for %q", id)
		return batch
	}

	fctx, cancel := context.WithTimeout(ctx, d.cfg.FetchTimeout)
	defer cancel()
	if err := fctx.Err(); err != nil {
		batch.Err = fmt.Errorf("fetch %s: %w", id, err)
		return batch
	}

	done := make(chan fetchResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fetchResult{err: fmt.Errorf("fetcher panic: %v", r)}
			}
		}()
		items, err := f.Fetch(fctx, phrase)
		done <- fetchResult{items: items, err: err}
	}()

	select {
	case res := <-done:
		batch.Items, batch.Err = res.items, res.err
	case <-fctx.Done():
		batch.Err = fmt.Errorf("fetch %s: %w", id, fctx.Err())
	}
	if batch.Err != nil {
		batch.Items = nil
		d.logger.Warn("source fetch failed",
			zap.String("source", id),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(batch.Err),
		)
		return batch
	}
	for i := range batch.Items {
		batch.Items[i].SourceID = id
	}
	d.logger.Debug("source fetched", zap.String("source", id), zap.Int("items", len(batch.Items)))
	return batch
}
