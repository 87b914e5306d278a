package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newAnalyzeCmd creates the 'analyze' subcommand, which aggregates downloaded
// archives, prints the report and exports the message rows.
func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Aggregate downloaded threads into a report and tabular export",
		Example: `  harvester analyze --input-dir b4_threads
  harvester analyze --report report.md --export-format sqlite --export-path rows.db`,
		RunE: runAnalyzeCommand,
	}
	fs := cmd.Flags()
	addAnalyzeFlags(cmd)
	fs.String("report", "", "write the Markdown report here instead of stdout")
	fs.String("export-format", "none", "row export: none, csv, sqlite or postgres")
	fs.String("export-path", "", "file for csv or sqlite export")
	fs.String("export-dsn", "", "connection string for postgres export")
	configKeys(cmd, map[string]string{
		"analyze.report_path": "report",
		"export.format":       "export-format",
		"export.path":         "export-path",
		"export.dsn":          "export-dsn",
	})
	return cmd
}

func runAnalyzeCommand(cmd *cobra.Command, _ []string) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	if err := rt.cfg.ValidateAnalyze(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a, err := newApp(cmd.Context(), rt.cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer a.Close()

	res, err := a.Analyze(cmd.Context())
	if err != nil {
		return err
	}
	rt.logger.Info("analyze command finished",
		zap.String("run_id", res.RunID),
		zap.Int("files", len(res.Files)),
		zap.Int("threads", res.Summary.Threads),
		zap.Int64("exported_rows", res.Exported),
	)
	return nil
}
