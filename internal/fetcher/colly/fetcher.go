// Package collyfetcher implements source fetchers on top of gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

const (
	defaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	defaultTimeout     = 8 * time.Second
	defaultMaxItems    = 30
	defaultMaxBodySize = 4 << 20
)

// Throttle spaces requests to the same host.
type Throttle interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config holds settings shared by every colly-backed fetcher.
type Config struct {
	UserAgent     string
	Timeout       time.Duration
	MaxItems      int
	RespectRobots bool
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxItems <= 0 {
		c.MaxItems = defaultMaxItems
	}
	return c
}

type base struct {
	cfg       Config
	transport http.RoundTripper
	throttle  Throttle
}

func newBase(cfg Config, throttle Throttle) base {
	return base{
		cfg:       cfg.withDefaults(),
		transport: newHTTPTransport(),
		throttle:  throttle,
	}
}

func (b base) newCollector(ctx context.Context) *colly.Collector {
	opts := []colly.CollectorOption{
		colly.StdlibContext(ctx),
		colly.UserAgent(b.cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(defaultMaxBodySize),
	}
	if !b.cfg.RespectRobots {
		opts = append(opts, colly.IgnoreRobotsTxt())
	}
	c := colly.NewCollector(opts...)
	c.WithTransport(b.transport)
	c.SetRequestTimeout(b.cfg.Timeout)
	return c
}

// visit throttles, then runs the collector against target and waits for it
// or for ctx.
func (b base) visit(ctx context.Context, c *colly.Collector, target string, fetchErr *error) error {
	if b.throttle != nil {
		if err := b.throttle.Wait(ctx, target); err != nil {
			return err
		}
	}
	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- c.Visit(target)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

// expandQuery substitutes the escaped phrase into a "{query}" template.
func expandQuery(template, phrase string) (string, error) {
	if !strings.Contains(template, "{query}") {
		return "", fmt.Errorf("search url %q has no {query} placeholder", template)
	}
	target := strings.ReplaceAll(template, "{query}", url.QueryEscape(strings.TrimSpace(phrase)))
	if _, err := url.ParseRequestURI(target); err != nil {
		return "", fmt.Errorf("invalid search url: %w", err)
	}
	return target, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
