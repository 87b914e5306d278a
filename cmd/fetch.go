package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newFetchCmd creates the 'fetch' subcommand, which crawls the archive index
// and downloads every thread newer than the oldest date.
func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Crawl the archive index and download thread mboxes",
		Example: `  harvester fetch --base-url https://lore.kernel.org/netdev/ --start 2024-12-10 --oldest 2024-12-01
  harvester fetch --base-url https://lore.kernel.org/bpf/ --oldest 2024-11-01 --no-cache`,
		RunE: runFetchCommand,
	}
	fs := cmd.Flags()
	fs.String("base-url", "", "archive base URL, e.g. https://lore.kernel.org/netdev/")
	fs.String("start", "", "newest day to crawl from (YYYY-MM-DD, default today)")
	fs.String("oldest", "", "oldest day to crawl back to (YYYY-MM-DD)")
	fs.String("output-dir", "b4_threads", "directory receiving one subdirectory per thread")
	fs.Int("concurrency", 10, "parallel thread downloads")
	fs.Float64("rps", 0, "per-host request cap for archive downloads (0 = unlimited)")
	fs.String("metrics-addr", "", "serve /metrics on this address while fetching")
	fs.Bool("no-cache", false, "ignore and do not write the page cache")
	configKeys(cmd, map[string]string{
		"crawl.base_url":            "base-url",
		"crawl.start_date":          "start",
		"crawl.oldest_date":         "oldest",
		"fetch.output_dir":          "output-dir",
		"fetch.concurrency":         "concurrency",
		"fetch.requests_per_second": "rps",
		"metrics.listen_addr":       "metrics-addr",
	})
	return cmd
}

func runFetchCommand(cmd *cobra.Command, _ []string) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	if err := rt.cfg.ValidateFetch(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a, err := newApp(cmd.Context(), rt.cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer a.Close()

	rep, err := a.Fetch(cmd.Context())
	if err != nil {
		return err
	}
	rt.logger.Info("fetch command finished",
		zap.String("run_id", rep.RunID),
		zap.Int("links", rep.Links),
		zap.Int("fetched", rep.Summary.Fetched),
		zap.Int("cached", rep.Summary.Cached),
		zap.Int("skipped", rep.Summary.Skipped),
		zap.Int("still_failing", len(rep.StillFailing)),
	)
	return nil
}
