package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 500, cfg.Crawler.MaxInputLength)
	require.Equal(t, 10*time.Second, cfg.Crawler.FetchTimeout)
	require.Equal(t, 30, cfg.Crawler.DisplayCap)
	require.Equal(t, 30, cfg.Crawler.SampleCap)
	require.Equal(t, 600*time.Second, cfg.Cache.TTL)
	require.Equal(t, "memory", cfg.Cache.Backend)
	require.Equal(t, 100, cfg.RateLimit.Limit)
	require.Equal(t, 24*time.Hour, cfg.RateLimit.Window)
	require.True(t, cfg.Credit.FreeTrial)
	require.Contains(t, cfg.Sources, "reddit")
	require.Equal(t, SourceKindReddit, cfg.Sources["reddit"].Kind)
	require.Equal(t, SourceKindBoard, cfg.Sources["clien"].Kind)
	require.NotEmpty(t, cfg.Sources["clien"].Selectors.Item)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
  admin_key: root
crawler:
  max_workers: 6
  fetch_timeout: 3s
  display_cap: 40
  sample_cap: 20
cache:
  backend: REDIS
  ttl: 5m
  redis:
    addr: redis:6379
credit:
  backend: postgres
  dsn: postgres://localhost/buzz
  roles:
    alice: admin
ratelimit:
  limit: 10
  window: 1h
  overrides:
    bob: 3
sources:
  reddit:
    enabled: false
  theqoo:
    enabled: true
    kind: static
    static_count: 4
logging:
  development: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "root", cfg.Auth.AdminKey)
	require.Equal(t, 6, cfg.Crawler.MaxWorkers)
	require.Equal(t, 3*time.Second, cfg.Crawler.FetchTimeout)
	require.Equal(t, "redis", cfg.Cache.Backend)
	require.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	require.Equal(t, "admin", cfg.Credit.Roles["alice"])
	require.Equal(t, 3, cfg.RateLimit.Overrides["bob"])
	require.False(t, cfg.Sources["reddit"].Enabled)
	require.Equal(t, 4, cfg.Sources["theqoo"].StaticCount)
	require.True(t, cfg.Sources["clien"].Enabled)
	require.False(t, cfg.Logging.Development)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BUZZCRAWL_SERVER_PORT", "7070")
	t.Setenv("BUZZCRAWL_CACHE_TTL", "30s")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, 30*time.Second, cfg.Cache.TTL)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func validConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := Load("")
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"auth key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"caps", func(c *Config) { c.Crawler.DisplayCap = 10; c.Crawler.SampleCap = 20 }, "crawler.display_cap (10) must be >= crawler.sample_cap (20)"},
		{"workers", func(c *Config) { c.Crawler.MaxWorkers = 0 }, "crawler.max_workers"},
		{"cache backend", func(c *Config) { c.Cache.Backend = "memcached" }, "cache.backend"},
		{"credit dsn", func(c *Config) { c.Credit.Backend = "postgres" }, "credit.dsn"},
		{"override", func(c *Config) { c.RateLimit.Overrides = map[string]int{"bob": 0} }, "ratelimit.overrides.bob"},
		{"board selectors", func(c *Config) {
			c.Sources = map[string]SourceConfig{"clien": {Enabled: true, Kind: SourceKindBoard, SearchURL: "https://x/{query}"}}
		}, "sources.clien.selectors"},
		{"source kind", func(c *Config) {
			c.Sources = map[string]SourceConfig{"clien": {Enabled: true, Kind: "rss"}}
		}, "sources.clien.kind"},
		{"no sources", func(c *Config) { c.Sources = nil }, "at least one source"},
		{"pubsub", func(c *Config) { c.Audit.PubSub = true }, "pubsub.project_id"},
		{"archive bucket", func(c *Config) { c.Audit.Archive = true; c.Storage.Backend = "gcs" }, "storage.bucket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig(t)
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	t.Parallel()

	cfg := validConfig(t)
	cfg.Server.Port = 0
	cfg.RateLimit.Limit = 0
	err := cfg.Validate()
	require.ErrorContains(t, err, "server.port")
	require.ErrorContains(t, err, "ratelimit.limit")
}
