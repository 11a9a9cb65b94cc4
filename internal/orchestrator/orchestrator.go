// Package orchestrator runs one crawl request end to end: validation,
// admission, cache lookup, charging, fan-out, normalization and caching.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/buzzcrawl/internal/audit"
	"github.com/JakeFAU/buzzcrawl/internal/cache"
	"github.com/JakeFAU/buzzcrawl/internal/crawler"
	"github.com/JakeFAU/buzzcrawl/internal/metrics"
	"github.com/JakeFAU/buzzcrawl/internal/policy/ratelimit"
	"github.com/JakeFAU/buzzcrawl/internal/source"
)

// DefaultMaxInputLength is the longest accepted search phrase, in characters.
const DefaultMaxInputLength = 500

// Classifier validates a source selection against what can be crawled.
type Classifier interface {
	Classify(ids []string) source.Classification
	Supported() []string
}

// Admitter performs sliding-window admission.
type Admitter interface {
	CheckAndAdmit(userID string) (*ratelimit.Reservation, error)
}

// Charger settles the credit cost of a crawl.
type Charger interface {
	Charge(ctx context.Context, userID string, textBytes int, sources []string) (crawler.CreditCharge, error)
}

// Dispatcher fetches a phrase from several sources concurrently.
type Dispatcher interface {
	Dispatch(ctx context.Context, phrase string, sources []string) []crawler.SourceBatch
}

// Normalizer turns fetch batches into the final item list.
type Normalizer interface {
	Process(batches []crawler.SourceBatch) ([]crawler.NormalizedItem, crawler.Stats)
}

// Config tunes validation.
type Config struct {
	MaxInputLength int
}

// Deps groups the collaborators of an Orchestrator. Cache, Audit, IDs and
// Clock are optional.
type Deps struct {
	Sources    Classifier
	Limiter    Admitter
	Credits    Charger
	Dispatcher Dispatcher
	Normalizer Normalizer
	Cache      crawler.ResponseCache
	Hasher     crawler.Hasher
	IDs        crawler.IDGenerator
	Clock      crawler.Clock
	Audit      audit.Emitter
}

// Orchestrator executes crawl requests.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// New validates deps and returns an Orchestrator.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	switch {
	case deps.Sources == nil:
		return nil, errors.New("orchestrator: source classifier is required")
	case deps.Limiter == nil:
		return nil, errors.New("orchestrator: rate limiter is required")
	case deps.Credits == nil:
		return nil, errors.New("orchestrator: credit ledger is required")
	case deps.Dispatcher == nil:
		return nil, errors.New("orchestrator: dispatcher is required")
	case deps.Normalizer == nil:
		return nil, errors.New("orchestrator: normalizer is required")
	case deps.Cache != nil && deps.Hasher == nil:
		return nil, errors.New("orchestrator: hasher is required when a cache is configured")
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if deps.Audit == nil {
		deps.Audit = audit.Nop{}
	}
	if cfg.MaxInputLength <= 0 {
		cfg.MaxInputLength = DefaultMaxInputLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Orchestrator{deps: deps, cfg: cfg, logger: logger.Named("orchestrator")}, nil
}

// call carries the per-request state shared by the pipeline steps.
type call struct {
	requestID string
	started   time.Time
	req       crawler.CrawlRequest
	phrase    string
	sources   []string
	logger    *zap.Logger
}

// Run executes req and returns the crawl result. Every error is a
// *crawler.Error.
func (o *Orchestrator) Run(ctx context.Context, req crawler.CrawlRequest) (crawler.CrawlResult, error) {
	metrics.IncActiveCrawls()
	defer metrics.DecActiveCrawls()

	c := &call{
		requestID: o.requestID(ctx),
		started:   o.deps.Clock.Now(),
		req:       req,
	}
	c.logger = o.logger.With(zap.String("request_id", c.requestID), zap.String("user_id", req.UserID))

	res, err := o.run(ctx, c)
	outcome := "success"
	switch {
	case err != nil:
		outcome = string(crawler.KindOf(err))
		o.emitError(c, err)
		c.logger.Info("crawl rejected", zap.String("kind", outcome), zap.Error(err))
	case res.FromCache:
		outcome = "cache_hit"
	}
	metrics.ObserveCrawl(outcome, o.deps.Clock.Now().Sub(c.started))
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, c *call) (crawler.CrawlResult, error) {
	if err := o.validate(c); err != nil {
		return crawler.CrawlResult{}, err
	}

	reservation, err := o.deps.Limiter.CheckAndAdmit(c.req.UserID)
	if err != nil {
		metrics.ObserveRateLimitRejection()
		return crawler.CrawlResult{}, asCrawlError("rate limiter", err)
	}

	key := o.cacheKey(c)
	if cached, ok := o.lookup(ctx, c, key); ok {
		// Cache hits do not consume the caller's window.
		reservation.Cancel()
		o.emit(audit.Event{
			RequestID:   c.requestID,
			TS:          o.deps.Clock.Now(),
			Type:        audit.TypeRequest,
			UserID:      c.req.UserID,
			InputText:   c.phrase,
			Sources:     c.sources,
			FromCache:   true,
			FinalCredit: cached.FinalCredit,
			Dur:         o.deps.Clock.Now().Sub(c.started),
		})
		return cached, nil
	}

	charge, err := o.deps.Credits.Charge(ctx, c.req.UserID, len(c.phrase), c.sources)
	if err != nil {
		reservation.Cancel()
		return crawler.CrawlResult{}, asCrawlError("charge credits", err)
	}
	c.logger.Debug("credits charged",
		zap.Int("final_credit", charge.FinalCredit),
		zap.Bool("free_trial", charge.FreeTrial),
		zap.Bool("waived", charge.Waived),
	)

	batches := o.deps.Dispatcher.Dispatch(ctx, c.phrase, c.sources)
	var failed []string
	for _, b := range batches {
		if !b.Failed() {
			continue
		}
		failed = append(failed, b.SourceID)
		o.emit(audit.Event{
			RequestID: c.requestID,
			TS:        o.deps.Clock.Now(),
			Type:      audit.TypeSourceFailure,
			UserID:    c.req.UserID,
			SourceID:  b.SourceID,
			Message:   b.Err.Error(),
			Dur:       b.Duration,
		})
	}
	if len(failed) == len(batches) {
		// The charge stands but the run does not count against the window.
		reservation.Cancel()
		return crawler.CrawlResult{}, crawler.NewAllSourcesFailedError(failed)
	}

	items, stats := o.deps.Normalizer.Process(batches)
	res := crawler.CrawlResult{
		FromCache:       false,
		FinalCredit:     charge.FinalCredit,
		FreeTrial:       charge.FreeTrial,
		UsedSources:     c.sources,
		Results:         items,
		PerSourceCounts: stats.PerSourceCounts,
		Meta:            stats.Meta(),
	}
	o.store(ctx, c, key, res)

	now := o.deps.Clock.Now()
	o.emit(audit.Event{
		RequestID:   c.requestID,
		TS:          now,
		Type:        audit.TypeRequest,
		UserID:      c.req.UserID,
		InputText:   c.phrase,
		Sources:     c.sources,
		FinalCredit: charge.FinalCredit,
		Dur:         now.Sub(c.started),
	})
	history := res
	o.emit(audit.Event{
		RequestID: c.requestID,
		TS:        now,
		Type:      audit.TypeHistory,
		UserID:    c.req.UserID,
		InputText: c.phrase,
		Sources:   c.sources,
		Result:    &history,
	})
	c.logger.Info("crawl complete",
		zap.Strings("sources", c.sources),
		zap.Strings("failed", failed),
		zap.Int("items", len(items)),
		zap.Int("final_credit", charge.FinalCredit),
		zap.Duration("elapsed", now.Sub(c.started)),
	)
	return res, nil
}

// validate checks the request without side effects and fills c.phrase and
// c.sources.
func (o *Orchestrator) validate(c *call) error {
	if strings.TrimSpace(c.req.UserID) == "" {
		return crawler.NewValidationError("user_id is required")
	}
	c.phrase = strings.TrimSpace(c.req.InputText)
	if c.phrase == "" {
		return crawler.NewEmptyInputError(o.cfg.MaxInputLength)
	}
	if n := utf8.RuneCountInString(c.phrase); n > o.cfg.MaxInputLength {
		return crawler.NewInputTooLongError(n, o.cfg.MaxInputLength)
	}

	cls := o.deps.Sources.Classify(c.req.Sources)
	supported := o.deps.Sources.Supported()
	switch {
	case len(cls.Selected) == 0:
		return crawler.NewNoSourcesError(supported)
	case len(cls.SNS) == len(cls.Selected):
		return crawler.NewSNSOnlyError(cls.SNS, supported)
	case len(cls.SNS) > 0:
		return crawler.NewUnsupportedSourceError(cls.SNS, supported)
	case len(cls.Unknown) > 0:
		return crawler.NewUnsupportedSourceError(cls.Unknown, supported)
	}
	c.sources = cls.Community
	return nil
}

func (o *Orchestrator) cacheKey(c *call) string {
	if o.deps.Cache == nil {
		return ""
	}
	key, err := cache.Key(o.deps.Hasher, c.phrase, c.sources)
	if err != nil {
		c.logger.Warn("cache key derivation failed", zap.Error(err))
		return ""
	}
	return key
}

func (o *Orchestrator) lookup(ctx context.Context, c *call, key string) (crawler.CrawlResult, bool) {
	if key == "" {
		return crawler.CrawlResult{}, false
	}
	data, ok, err := o.deps.Cache.Get(ctx, key)
	if err != nil {
		metrics.ObserveCacheLookup("error")
		c.logger.Warn("cache lookup failed; treating as miss", zap.Error(err))
		return crawler.CrawlResult{}, false
	}
	if !ok {
		metrics.ObserveCacheLookup("miss")
		return crawler.CrawlResult{}, false
	}
	var res crawler.CrawlResult
	if err := json.Unmarshal(data, &res); err != nil {
		metrics.ObserveCacheLookup("error")
		c.logger.Warn("cached payload undecodable; treating as miss", zap.Error(err))
		return crawler.CrawlResult{}, false
	}
	metrics.ObserveCacheLookup("hit")
	res.FromCache = true
	return res, true
}

func (o *Orchestrator) store(ctx context.Context, c *call, key string, res crawler.CrawlResult) {
	if key == "" {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		c.logger.Warn("encode result for cache", zap.Error(err))
		return
	}
	if err := o.deps.Cache.Set(ctx, key, data); err != nil {
		c.logger.Warn("cache write failed", zap.Error(err))
	}
}

func (o *Orchestrator) emit(evt audit.Event) {
	o.deps.Audit.Emit(evt)
}

func (o *Orchestrator) emitError(c *call, err error) {
	o.emit(audit.Event{
		RequestID: c.requestID,
		TS:        o.deps.Clock.Now(),
		Type:      audit.TypeError,
		UserID:    c.req.UserID,
		InputText: c.phrase,
		Sources:   c.sources,
		ErrorKind: crawler.KindOf(err),
		Message:   err.Error(),
		Dur:       o.deps.Clock.Now().Sub(c.started),
	})
}

type requestIDKey struct{}

// WithRequestID attaches a caller-assigned request id to ctx. Run uses it
// instead of generating one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id stored by WithRequestID.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (o *Orchestrator) requestID(ctx context.Context) string {
	if id := RequestIDFrom(ctx); id != "" {
		return id
	}
	if o.deps.IDs == nil {
		return ""
	}
	id, err := o.deps.IDs.NewID()
	if err != nil {
		o.logger.Warn("request id generation failed", zap.Error(err))
		return ""
	}
	return id
}

// asCrawlError keeps typed errors and wraps anything else as internal.
func asCrawlError(op string, err error) error {
	var ce *crawler.Error
	if errors.As(err, &ce) {
		return ce
	}
	return crawler.NewInternalError(op, err)
}
