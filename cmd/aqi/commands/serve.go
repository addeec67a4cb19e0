package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/air-quality-etl/internal/adapter/http"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/scheduler"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query API over HTTP",
	Long: `Serves the aggregate over a JSON API with health, readiness and Prometheus
metrics endpoints. POST /api/v1/reprocess rebuilds the aggregate from the input
table; REPROCESS_SCHEDULE triggers the same run on a cron schedule.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	logger := a.logger

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing aggregate is not fatal: readiness stays down until a
	// reprocess succeeds.
	if err := a.session.Reload(ctx); err != nil {
		if !errors.Is(err, domain.ErrMissingInput) {
			return err
		}
		logger.Warn("aggregate not found, waiting for reprocess", "path", a.store.Path())
	}

	p, closeFn := a.pipeline()
	defer closeFn()

	var sched *scheduler.Scheduler
	if a.cfg.ReprocessSchedule != "" {
		sched, err = scheduler.New("reprocess", a.cfg.ReprocessSchedule, func(ctx context.Context) error {
			_, err := p.Run(ctx)
			return err
		}, logger)
		if err != nil {
			return err
		}
		sched.Start()
	}

	srv := httpadapter.NewServer(a.cfg.HTTPAddr, a.session, httpadapter.Options{
		DefaultHorizon: a.cfg.ForecastHorizon,
		Reprocessor:    p,
	}, logger, a.metrics)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		logger.Error("http server error", "error", serveErr)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if sched != nil {
		sched.Stop()
	}

	logger.Info("shutdown complete")
	return serveErr
}
