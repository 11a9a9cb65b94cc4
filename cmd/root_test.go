package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/buzzcrawl/internal/config"
	"github.com/JakeFAU/buzzcrawl/internal/crawler"
	"github.com/JakeFAU/buzzcrawl/internal/orchestrator"
)

type fakeApp struct {
	ran       bool
	closed    bool
	req       crawler.CrawlRequest
	requestID string
	result    crawler.CrawlResult
	crawlErr  error
	quote     int
	quoteIn   int
}

func (f *fakeApp) Run(context.Context) error {
	f.ran = true
	return nil
}

func (f *fakeApp) Close(context.Context) error {
	f.closed = true
	return nil
}

func (f *fakeApp) Crawl(ctx context.Context, req crawler.CrawlRequest) (crawler.CrawlResult, error) {
	f.req = req
	f.requestID = orchestrator.RequestIDFrom(ctx)
	return f.result, f.crawlErr
}

func (f *fakeApp) Quote(textBytes int, _ []string) int {
	f.quoteIn = textBytes
	return f.quote
}

// withFakeApp swaps newApp for the duration of the test. Tests using it must
// not run in parallel.
func withFakeApp(t *testing.T, app *fakeApp, buildErr error) {
	t.Helper()
	orig := newApp
	newApp = func(context.Context, config.Config, *zap.Logger) (App, error) {
		if buildErr != nil {
			return nil, buildErr
		}
		return app, nil
	}
	t.Cleanup(func() { newApp = orig })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCrawlCommandPrintsJSON(t *testing.T) {
	app := &fakeApp{result: crawler.CrawlResult{
		FinalCredit:     2,
		UsedSources:     []string{"clien", "reddit"},
		PerSourceCounts: map[string]int{"reddit": 1, "clien": 1},
	}}
	withFakeApp(t, app, nil)

	out, err := execute(t, "crawl", "--user", "u1", "--sources", "reddit,clien", "--request-id", "req-1", "galaxy", "s24")
	require.NoError(t, err)
	require.Equal(t, crawler.CrawlRequest{
		UserID:    "u1",
		InputText: "galaxy s24",
		Sources:   []string{"reddit", "clien"},
	}, app.req)
	require.Equal(t, "req-1", app.requestID)
	require.True(t, app.closed)

	var got crawler.CrawlResult
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, 2, got.FinalCredit)
	require.Equal(t, []string{"clien", "reddit"}, got.UsedSources)
}

func TestCrawlCommandDefaults(t *testing.T) {
	app := &fakeApp{}
	withFakeApp(t, app, nil)

	_, err := execute(t, "crawl", "phrase")
	require.NoError(t, err)
	require.Equal(t, defaultCLIUser, app.req.UserID)
	require.Equal(t, []string{"reddit"}, app.req.Sources)
	require.Empty(t, app.requestID)
}

func TestCrawlCommandSurfacesCrawlErrors(t *testing.T) {
	app := &fakeApp{crawlErr: crawler.NewRateLimitedError(100, 3600, crawler.RateUsage{})}
	withFakeApp(t, app, nil)

	_, err := execute(t, "crawl", "phrase")
	require.Error(t, err)
	var ce *crawler.Error
	require.True(t, errors.As(err, &ce))
	require.Equal(t, crawler.ErrKindRateLimited, ce.Kind)
}

func TestCrawlCommandRequiresPhrase(t *testing.T) {
	withFakeApp(t, &fakeApp{}, nil)
	_, err := execute(t, "crawl")
	require.Error(t, err)
}

func TestQuoteCommand(t *testing.T) {
	app := &fakeApp{quote: 7}
	withFakeApp(t, app, nil)

	out, err := execute(t, "quote", "--sources", "Reddit,clien,reddit", " galaxy", "s24 ")
	require.NoError(t, err)
	require.Equal(t, 10, app.quoteIn)
	require.Equal(t, "7 credits (10 bytes, sources: clien,reddit)\n", out)
}

func TestServeCommandRunsApp(t *testing.T) {
	app := &fakeApp{}
	withFakeApp(t, app, nil)

	_, err := execute(t, "serve")
	require.NoError(t, err)
	require.True(t, app.ran)
	require.True(t, app.closed)
}

func TestBuildFailureIsReported(t *testing.T) {
	withFakeApp(t, nil, errors.New("redis down"))

	_, err := execute(t, "serve")
	require.ErrorContains(t, err, "failed to initialize application services")
	require.ErrorContains(t, err, "redis down")
}

func TestMissingConfigFile(t *testing.T) {
	withFakeApp(t, &fakeApp{}, nil)

	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "serve")
	require.ErrorContains(t, err, "load config")
}
