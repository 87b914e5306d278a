package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/lore-harvester/internal/api"
	"github.com/JakeFAU/lore-harvester/internal/report"
)

// newServeCmd creates the 'serve' subcommand, which aggregates the archives
// once and serves the result read-only over HTTP.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Aggregate downloaded threads and serve the statistics over HTTP",
		RunE:  runServeCommand,
	}
	fs := cmd.Flags()
	addAnalyzeFlags(cmd)
	fs.Int("port", 8080, "HTTP listen port")
	configKeys(cmd, map[string]string{"server.port": "port"})
	return cmd
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	if err := rt.cfg.ValidateServer(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	// Serving never exports rows.
	cfg := rt.cfg
	cfg.Export.Format = "none"
	a, err := newApp(cmd.Context(), cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer a.Close()

	ctx := cmd.Context()
	state, _, err := a.BuildState(ctx)
	if err != nil {
		return err
	}
	apiServer := api.NewServer(state, report.Build(state, cfg.Analyze.TopCount), rt.logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		rt.logger.Info("shutdown initiated")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		rt.logger.Error("server shutdown error", zap.Error(err))
	}
	rt.logger.Info("shutdown complete")
	return nil
}
