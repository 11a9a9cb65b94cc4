// Package cmd defines the buzzcrawl command line.
package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/buzzcrawl/internal/crawler"
	"github.com/JakeFAU/buzzcrawl/internal/orchestrator"
	"github.com/JakeFAU/buzzcrawl/internal/source"
)

const defaultCLIUser = "cli"

func newCrawlCmd() *cobra.Command {
	var (
		userID  string
		sources []string
	)
	cmd := &cobra.Command{
		Use:   "crawl <phrase...>",
		Short: "Run one crawl and print the result as JSON",
		Long: `Runs a single crawl through the same pipeline as the HTTP API: rate
limiting, credit charging, caching and normalization all apply. The words
after the flags form the search phrase.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if requestID, _ := cmd.Flags().GetString("request-id"); requestID != "" {
				ctx = orchestrator.WithRequestID(ctx, requestID)
			}
			res, err := appInstance.Crawl(ctx, crawler.CrawlRequest{
				UserID:    userID,
				InputText: strings.Join(args, " "),
				Sources:   sources,
			})
			if err != nil {
				return fmt.Errorf("crawl: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", defaultCLIUser, "user id charged for the crawl")
	cmd.Flags().StringSliceVar(&sources, "sources", []string{"reddit"}, "comma separated source ids")
	cmd.Flags().String("request-id", "", "request id recorded in audit events")
	return cmd
}

func newQuoteCmd() *cobra.Command {
	var sources []string
	cmd := &cobra.Command{
		Use:   "quote <phrase...>",
		Short: "Print the credit cost of a crawl without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			text := strings.TrimSpace(strings.Join(args, " "))
			canonical := source.Canonical(sources)
			required := appInstance.Quote(len(text), canonical)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d credits (%d bytes, sources: %s)\n",
				required, len(text), strings.Join(canonical, ","))
			return err
		},
	}
	cmd.Flags().StringSliceVar(&sources, "sources", []string{"reddit"}, "comma separated source ids")
	return cmd
}
