// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig            `mapstructure:"server"`
	Auth      AuthConfig              `mapstructure:"auth"`
	Crawler   CrawlerConfig           `mapstructure:"crawler"`
	Cache     CacheConfig             `mapstructure:"cache"`
	Credit    CreditConfig            `mapstructure:"credit"`
	RateLimit RateLimitConfig         `mapstructure:"ratelimit"`
	Sources   map[string]SourceConfig `mapstructure:"sources"`
	Audit     AuditConfig             `mapstructure:"audit"`
	Storage   StorageConfig           `mapstructure:"storage"`
	PubSub    PubSubConfig            `mapstructure:"pubsub"`
	Logging   LoggingConfig           `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles. AdminKey guards the credit
// top-up and rate limit override endpoints.
type AuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	APIKey   string `mapstructure:"api_key"`
	AdminKey string `mapstructure:"admin_key"`
}

// CrawlerConfig governs validation, fan-out and normalization.
type CrawlerConfig struct {
	MaxInputLength int           `mapstructure:"max_input_length"`
	MaxWorkers     int           `mapstructure:"max_workers"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	MinLength      int           `mapstructure:"min_length"`
	DisplayCap     int           `mapstructure:"display_cap"`
	SampleCap      int           `mapstructure:"sample_cap"`
	UserAgent      string        `mapstructure:"user_agent"`
	RespectRobots  bool          `mapstructure:"respect_robots"`
	MaxItems       int           `mapstructure:"max_items"`
	HostRPS        float64       `mapstructure:"host_rps"`
	HostBurst      int           `mapstructure:"host_burst"`
}

// CacheConfig selects and tunes the response cache.
type CacheConfig struct {
	Backend       string        `mapstructure:"backend"`
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Redis         RedisConfig   `mapstructure:"redis"`
}

// RedisConfig locates the Redis server used by the redis cache backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// CreditConfig selects the balance store and pricing waivers.
type CreditConfig struct {
	Backend        string            `mapstructure:"backend"`
	DSN            string            `mapstructure:"dsn"`
	Table          string            `mapstructure:"table"`
	MaxConns       int32             `mapstructure:"max_conns"`
	InitialBalance int               `mapstructure:"initial_balance"`
	FreeTrial      bool              `mapstructure:"free_trial"`
	Roles          map[string]string `mapstructure:"roles"`
}

// RateLimitConfig sets the per-user sliding window.
type RateLimitConfig struct {
	Limit     int            `mapstructure:"limit"`
	Window    time.Duration  `mapstructure:"window"`
	Overrides map[string]int `mapstructure:"overrides"`
}

// Fetcher kinds accepted in SourceConfig.Kind.
const (
	SourceKindReddit = "reddit"
	SourceKindBoard  = "board"
	SourceKindStatic = "static"
)

// SourceConfig configures the fetcher registered for one community source.
type SourceConfig struct {
	Enabled     bool            `mapstructure:"enabled"`
	Kind        string          `mapstructure:"kind"`
	SearchURL   string          `mapstructure:"search_url"`
	Selectors   SelectorsConfig `mapstructure:"selectors"`
	StaticCount int             `mapstructure:"static_count"`
}

// SelectorsConfig holds the CSS selectors used by board fetchers.
type SelectorsConfig struct {
	Item    string `mapstructure:"item"`
	Title   string `mapstructure:"title"`
	Content string `mapstructure:"content"`
	Link    string `mapstructure:"link"`
}

// AuditConfig toggles audit sinks and hub batching.
type AuditConfig struct {
	Log        bool          `mapstructure:"log"`
	Metrics    bool          `mapstructure:"metrics"`
	PubSub     bool          `mapstructure:"pubsub"`
	Archive    bool          `mapstructure:"archive"`
	BufferSize int           `mapstructure:"buffer_size"`
	BatchSize  int           `mapstructure:"batch_size"`
	BatchWait  time.Duration `mapstructure:"batch_wait"`
}

// StorageConfig sets where archived crawl results are written.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// PubSubConfig holds the audit topic location.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from defaults, an optional file and BUZZCRAWL_*
// environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BUZZCRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.request_timeout", 45*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("auth.enabled", false)

	v.SetDefault("crawler.max_input_length", 500)
	v.SetDefault("crawler.max_workers", 4)
	v.SetDefault("crawler.fetch_timeout", 10*time.Second)
	v.SetDefault("crawler.min_length", 10)
	v.SetDefault("crawler.display_cap", 30)
	v.SetDefault("crawler.sample_cap", 30)
	v.SetDefault("crawler.user_agent", "buzzcrawl/0.1 (+https://github.com/JakeFAU/buzzcrawl)")
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.max_items", 30)
	v.SetDefault("crawler.host_rps", 1.0)
	v.SetDefault("crawler.host_burst", 2)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", 600*time.Second)
	v.SetDefault("cache.sweep_interval", time.Minute)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.prefix", "buzzcrawl:cache:")

	v.SetDefault("credit.backend", "memory")
	v.SetDefault("credit.table", "credit_accounts")
	v.SetDefault("credit.max_conns", 8)
	v.SetDefault("credit.initial_balance", 100)
	v.SetDefault("credit.free_trial", true)

	v.SetDefault("ratelimit.limit", 100)
	v.SetDefault("ratelimit.window", 24*time.Hour)

	v.SetDefault("sources", map[string]any{
		"reddit": map[string]any{
			"enabled":    true,
			"kind":       SourceKindReddit,
			"search_url": "https://www.reddit.com/search.json?q={query}&sort=relevance&limit=100",
		},
		"clien": map[string]any{
			"enabled":    true,
			"kind":       SourceKindBoard,
			"search_url": "https://www.clien.net/service/search?q={query}&sort=recency&boardCd=&isBoard=false",
			"selectors": map[string]any{
				"item":    "div.list_item.symph_row",
				"title":   "span.subject_fixed",
				"content": "div.list_summary",
				"link":    "a.subject_fixed",
			},
		},
		"ruliweb": map[string]any{
			"enabled":    true,
			"kind":       SourceKindBoard,
			"search_url": "https://bbs.ruliweb.com/search?q={query}",
			"selectors": map[string]any{
				"item":    "div.search_result_list li.search_result_item",
				"title":   "a.title",
				"content": "div.text",
				"link":    "a.title",
			},
		},
	})

	v.SetDefault("audit.log", true)
	v.SetDefault("audit.metrics", true)
	v.SetDefault("audit.pubsub", false)
	v.SetDefault("audit.archive", false)
	v.SetDefault("audit.buffer_size", 1024)
	v.SetDefault("audit.batch_size", 100)
	v.SetDefault("audit.batch_wait", time.Second)

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.dir", "data/crawl_results")
	v.SetDefault("storage.prefix", "crawl_results")

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

func (c *Config) normalize() {
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	c.Credit.Backend = strings.ToLower(strings.TrimSpace(c.Credit.Backend))
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	for id, src := range c.Sources {
		src.Kind = strings.ToLower(strings.TrimSpace(src.Kind))
		c.Sources[id] = src
	}
}

// Validate enforces required values and reasonable limits. All problems are
// reported together.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port > 0, "server.port must be > 0")
	check(c.Server.RequestTimeout > 0, "server.request_timeout must be > 0")
	check(!c.Auth.Enabled || c.Auth.APIKey != "", "auth.api_key must be set when auth is enabled")

	check(c.Crawler.MaxInputLength > 0, "crawler.max_input_length must be > 0")
	check(c.Crawler.MaxWorkers > 0, "crawler.max_workers must be > 0")
	check(c.Crawler.FetchTimeout > 0, "crawler.fetch_timeout must be > 0")
	check(c.Crawler.MinLength >= 0, "crawler.min_length must be >= 0")
	check(c.Crawler.DisplayCap > 0, "crawler.display_cap must be > 0")
	check(c.Crawler.SampleCap > 0, "crawler.sample_cap must be > 0")
	check(c.Crawler.DisplayCap >= c.Crawler.SampleCap,
		"crawler.display_cap (%d) must be >= crawler.sample_cap (%d)", c.Crawler.DisplayCap, c.Crawler.SampleCap)

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		check(c.Cache.Redis.Addr != "", "cache.redis.addr is required for the redis backend")
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q must be memory or redis", c.Cache.Backend))
	}
	check(c.Cache.TTL > 0, "cache.ttl must be > 0")

	switch c.Credit.Backend {
	case "memory":
	case "postgres":
		check(c.Credit.DSN != "", "credit.dsn is required for the postgres backend")
	default:
		errs = append(errs, fmt.Errorf("credit.backend %q must be memory or postgres", c.Credit.Backend))
	}
	check(c.Credit.InitialBalance >= 0, "credit.initial_balance must be >= 0")

	check(c.RateLimit.Limit > 0, "ratelimit.limit must be > 0")
	check(c.RateLimit.Window > 0, "ratelimit.window must be > 0")
	for user, limit := range c.RateLimit.Overrides {
		check(limit > 0, "ratelimit.overrides.%s must be > 0", user)
	}

	enabled := 0
	for id, src := range c.Sources {
		if !src.Enabled {
			continue
		}
		enabled++
		switch src.Kind {
		case SourceKindReddit, SourceKindStatic:
		case SourceKindBoard:
			check(src.SearchURL != "", "sources.%s.search_url is required for board sources", id)
			check(src.Selectors.Item != "" && src.Selectors.Title != "",
				"sources.%s.selectors.item and selectors.title are required for board sources", id)
		default:
			errs = append(errs, fmt.Errorf("sources.%s.kind %q must be reddit, board or static", id, src.Kind))
		}
	}
	check(enabled > 0, "at least one source must be enabled")

	check(!c.Audit.PubSub || (c.PubSub.ProjectID != "" && c.PubSub.Topic != ""),
		"pubsub.project_id and pubsub.topic are required when audit.pubsub is enabled")
	if c.Audit.Archive {
		switch c.Storage.Backend {
		case "memory":
		case "local":
			check(c.Storage.Dir != "", "storage.dir is required for the local backend")
		case "gcs":
			check(c.Storage.Bucket != "", "storage.bucket is required for the gcs backend")
		default:
			errs = append(errs, fmt.Errorf("storage.backend %q must be local, gcs or memory", c.Storage.Backend))
		}
	}
	return errors.Join(errs...)
}
