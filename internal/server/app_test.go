package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/buzzcrawl/internal/config"
	"github.com/JakeFAU/buzzcrawl/internal/crawler"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Sources = map[string]config.SourceConfig{
		"reddit":  {Enabled: true, Kind: config.SourceKindStatic, StaticCount: 3},
		"clien":   {Enabled: true, Kind: config.SourceKindStatic, StaticCount: 2},
		"ruliweb": {Enabled: false, Kind: config.SourceKindBoard},
	}
	cfg.Audit.Archive = false
	cfg.Audit.BatchWait = 10 * time.Millisecond
	return cfg
}

func build(t *testing.T, cfg config.Config) *App {
	t.Helper()
	app, err := Build(context.Background(), cfg, zaptest.NewLogger(t), WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	return app
}

func postCrawl(t *testing.T, h http.Handler, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/crawl", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBuildRegistersEnabledSources(t *testing.T) {
	t.Parallel()
	app := build(t, testConfig(t))
	require.Equal(t, []string{"clien", "reddit"}, sortedCopy(app.Registry().Supported()))
	_, ok := app.Registry().Fetcher("ruliweb")
	require.False(t, ok)
}

func TestBuildRejectsUncataloguedSource(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Sources["myspace"] = config.SourceConfig{Enabled: true, Kind: config.SourceKindStatic}
	_, err := Build(context.Background(), cfg, zaptest.NewLogger(t), WithRegisterer(prometheus.NewRegistry()))
	require.ErrorContains(t, err, "myspace")
}

func TestBuildRejectsUnknownRole(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Credit.Roles = map[string]string{"alice": "overlord"}
	_, err := Build(context.Background(), cfg, zaptest.NewLogger(t), WithRegisterer(prometheus.NewRegistry()))
	require.ErrorContains(t, err, "credit.roles.alice")
}

func TestCrawlEndToEnd(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Credit.FreeTrial = false
	app := build(t, cfg)

	rec := postCrawl(t, app.Handler(), map[string]any{
		"user_id":    "u1",
		"input_text": "galaxy s24",
		"sources":    []string{"reddit", "clien"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res crawler.CrawlResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.False(t, res.FromCache)
	require.Equal(t, 2, res.FinalCredit)
	require.Equal(t, map[string]int{"reddit": 3, "clien": 2}, res.PerSourceCounts)
	require.Len(t, res.Results, 5)

	acct, err := app.Ledger().Balance(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, cfg.Credit.InitialBalance-2, acct.Balance)

	rec = postCrawl(t, app.Handler(), map[string]any{
		"user_id":    "u1",
		"input_text": "  Galaxy S24 ",
		"sources":    []string{"clien", "reddit"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.True(t, res.FromCache)

	acct, err = app.Ledger().Balance(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, cfg.Credit.InitialBalance-2, acct.Balance)
}

func TestSeededRoleIsWaived(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Credit.FreeTrial = false
	cfg.Credit.Roles = map[string]string{"qa": "tester"}
	app := build(t, cfg)

	rec := postCrawl(t, app.Handler(), map[string]any{
		"user_id":    "qa",
		"input_text": "anything",
		"sources":    []string{"reddit"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var res crawler.CrawlResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Zero(t, res.FinalCredit)
}

func TestArchiveWritesHistoryToLocalStorage(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := testConfig(t)
	cfg.Audit.Archive = true
	cfg.Storage.Backend = "local"
	cfg.Storage.Dir = dir
	app, err := Build(context.Background(), cfg, zaptest.NewLogger(t), WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)

	rec := postCrawl(t, app.Handler(), map[string]any{
		"user_id":    "u1",
		"input_text": "archive me",
		"sources":    []string{"reddit"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	requestID := rec.Header().Get("X-Request-ID")
	require.NotEmpty(t, requestID)

	require.NoError(t, app.Close(context.Background()))
	require.NoError(t, app.Close(context.Background()))

	matches, err := filepath.Glob(filepath.Join(dir, "crawl_results", "*", "*", "*", "*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, requestID+".json", filepath.Base(matches[0]))
}

func TestAdminRoutesFollowConfig(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Auth.AdminKey = "root"
	app := build(t, cfg)

	req := httptest.NewRequest(http.MethodPost, "/v1/credits/u9/topup", bytes.NewBufferString(`{"amount":5}`))
	req.Header.Set("X-Admin-Key", "root")
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	acct, err := app.Ledger().Balance(context.Background(), "u9")
	require.NoError(t, err)
	require.Equal(t, cfg.Credit.InitialBalance+5, acct.Balance)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Server.Port = freePort(t)
	app, err := Build(context.Background(), cfg, zaptest.NewLogger(t), WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}
