package server

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/JakeFAU/buzzcrawl/internal/config"
	"github.com/JakeFAU/buzzcrawl/internal/crawler"
	collyfetcher "github.com/JakeFAU/buzzcrawl/internal/fetcher/colly"
	"github.com/JakeFAU/buzzcrawl/internal/fetcher/static"
	"github.com/JakeFAU/buzzcrawl/internal/policy/ratelimit"
	"github.com/JakeFAU/buzzcrawl/internal/source"
)

const defaultStaticCount = 5

// buildRegistry registers a fetcher for every enabled source in cfg. All
// fetchers share one per-host throttle.
func buildRegistry(cfg config.Config, logger *zap.Logger) (*source.Registry, error) {
	registry := source.NewRegistry(source.MustDefault())
	throttle := ratelimit.NewThrottle(ratelimit.ThrottleConfig{
		RPS:   cfg.Crawler.HostRPS,
		Burst: cfg.Crawler.HostBurst,
	})
	fetchCfg := collyfetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		Timeout:       cfg.Crawler.FetchTimeout,
		MaxItems:      cfg.Crawler.MaxItems,
		RespectRobots: cfg.Crawler.RespectRobots,
	}

	ids := make([]string, 0, len(cfg.Sources))
	for id := range cfg.Sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		sc := cfg.Sources[id]
		if !sc.Enabled {
			logger.Debug("source disabled", zap.String("source", id))
			continue
		}
		f, err := newFetcher(id, sc, fetchCfg, throttle)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", id, err)
		}
		if err := registry.Register(id, f); err != nil {
			return nil, fmt.Errorf("register source: %w", err)
		}
		logger.Info("source registered", zap.String("source", id), zap.String("kind", sc.Kind))
	}
	if len(registry.Supported()) == 0 {
		logger.Warn("no crawlable sources registered")
	}
	return registry, nil
}

func newFetcher(
	id string,
	sc config.SourceConfig,
	fetchCfg collyfetcher.Config,
	throttle *ratelimit.Throttle,
) (crawler.Fetcher, error) {
	switch sc.Kind {
	case config.SourceKindReddit:
		return collyfetcher.NewReddit(fetchCfg, sc.SearchURL, throttle)
	case config.SourceKindBoard:
		return collyfetcher.NewBoard(fetchCfg, collyfetcher.BoardConfig{
			SearchURL: sc.SearchURL,
			Selectors: collyfetcher.Selectors{
				Item:    sc.Selectors.Item,
				Title:   sc.Selectors.Title,
				Content: sc.Selectors.Content,
				Link:    sc.Selectors.Link,
			},
		}, throttle)
	case config.SourceKindStatic:
		count := sc.StaticCount
		if count <= 0 {
			count = defaultStaticCount
		}
		return &static.Fetcher{SourceID: source.NormalizeID(id), Count: count}, nil
	default:
		return nil, fmt.Errorf("unknown fetcher kind %q", sc.Kind)
	}
}
