package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/buzzcrawl/internal/config"
	"github.com/JakeFAU/buzzcrawl/internal/crawler"
	"github.com/JakeFAU/buzzcrawl/internal/logging"
	"github.com/JakeFAU/buzzcrawl/internal/server"
)

const closeTimeout = 10 * time.Second

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// App is the surface the subcommands need. Tests inject a fake through newApp.
type App interface {
	Run(ctx context.Context) error
	Close(ctx context.Context) error
	Crawl(ctx context.Context, req crawler.CrawlRequest) (crawler.CrawlResult, error)
	Quote(textBytes int, sources []string) int
}

type serverApp struct {
	*server.App
}

func (a serverApp) Crawl(ctx context.Context, req crawler.CrawlRequest) (crawler.CrawlResult, error) {
	return a.Orchestrator().Run(ctx, req)
}

func (a serverApp) Quote(textBytes int, sources []string) int {
	return a.Ledger().Quote(textBytes, sources)
}

// newApp builds the application graph. It is a variable so tests can swap it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	a, err := server.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return serverApp{a}, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "buzzcrawl",
		Short: "Keyword buzz crawler for online communities.",
		Long: `buzzcrawl searches community boards for a phrase, charges the caller in
credits, and returns a labeled, deduplicated and sampled list of posts.
Run "buzzcrawl serve" for the HTTP API or "buzzcrawl crawl" for a one-shot
crawl printed as JSON.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, ok := cmd.Context().Value(appKey).(App)
			if !ok || appInstance == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), closeTimeout)
			defer cancel()
			return appInstance.Close(ctx)
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newQuoteCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		zap.L().Error("command execution failed", zap.Error(err))
		os.Exit(1)
	}
}
