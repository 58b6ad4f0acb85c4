package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/drivescan/internal/api"
	"github.com/tonimelisma/drivescan/internal/config"
	"github.com/tonimelisma/drivescan/internal/results"
	"github.com/tonimelisma/drivescan/internal/scan"
)

// readHeaderTimeout bounds slow clients sending request headers.
const readHeaderTimeout = 10 * time.Second

// cleanupInterval is how often expired local artifacts are swept.
const cleanupInterval = time.Hour

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scan HTTP service",
		Long: `Start the HTTP API that accepts scan jobs, reports their progress and
serves the exported CSV.

SIGINT or SIGTERM stops accepting requests and waits for running scans up to
server.shutdown_timeout. SIGHUP, 'drivescan reload', or saving the config file
reloads the log level.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("listen", "", "listen address (host:port), overrides server.listen")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd)
	logger := cc.Logger
	cfg := cc.Cfg

	gin.SetMode(gin.ReleaseMode)

	cleanupPID, err := writePIDFile(cfg.Server.PIDFile)
	if err != nil {
		return err
	}
	defer cleanupPID()

	ctx := shutdownContext(cmd.Context(), logger)

	httpClient := newHTTPClient(cfg)

	auth, err := newAuthenticator(cc, httpClient)
	if err != nil {
		return err
	}

	jobs, closeJobs, err := openJobStore(ctx, cc)
	if err != nil {
		return err
	}
	defer closeJobs()

	// Holding the pid lock makes this the only process running jobs.
	if s, ok := jobs.(*scan.SQLiteStore); ok {
		if _, err := s.RecoverInterrupted(ctx); err != nil {
			return err
		}
	}

	store, err := openResultStore(ctx, cc)
	if err != nil {
		return err
	}

	coord := scan.NewCoordinator(scan.Config{
		Store:         jobs,
		Results:       store,
		Credentials:   auth,
		NewLister:     listerFactory(cc, httpClient),
		MaxConcurrent: cfg.Jobs.MaxConcurrent,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           api.New(coord, auth, api.Options{}, logger).Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	holder := config.NewHolder(cfg, cc.CfgPath)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", srv.Addr))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return shutdown(srv, coord, cfg.ShutdownTimeout(), logger)
	})

	g.Go(func() error {
		reloadLoop(gctx, cc, holder)
		return nil
	})

	if local, ok := store.(*results.LocalStore); ok && cfg.ResultRetention() > 0 {
		g.Go(func() error {
			sweepResults(gctx, local, cfg.ResultRetention(), logger)
			return nil
		})
	}

	return g.Wait()
}

// shutdown stops accepting requests, then waits for running jobs. Both
// share one deadline.
func shutdown(srv *http.Server, coord *scan.Coordinator, timeout time.Duration, logger *slog.Logger) error {
	logger.Info("shutting down", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http server shutdown", slog.String("error", err.Error()))
	}

	done := make(chan struct{})

	go func() {
		coord.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all scans finished")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scans still running after %s; exiting anyway", timeout)
	}
}

// reloadLoop re-reads the config on SIGHUP or when the file changes. Only
// the log level takes effect live; other settings need a restart.
func reloadLoop(ctx context.Context, cc *CLIContext, holder *config.Holder) {
	hup, stop := reloadSignals()
	defer stop()

	changed := make(chan struct{}, 1)

	go func() {
		err := config.Watch(ctx, holder.Path(), config.DefaultWatchDebounce, cc.Logger, func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
		if err != nil {
			// A missing config directory is normal when running on defaults.
			cc.Logger.Debug("config file watch disabled", slog.String("error", err.Error()))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			cc.Logger.Info("received SIGHUP, reloading config")
			reloadConfig(cc, holder)
		case <-changed:
			reloadConfig(cc, holder)
		}
	}
}

func reloadConfig(cc *CLIContext, holder *config.Holder) {
	cfg, _, err := config.Resolve(config.ReadEnvOverrides(), config.CLIOverrides{ConfigPath: holder.Path()})
	if err != nil {
		cc.Logger.Warn("config reload failed, keeping previous settings",
			slog.String("path", holder.Path()),
			slog.String("error", err.Error()),
		)

		return
	}

	// Editors and touch fire the watcher without changing anything.
	if *holder.Config() == *cfg {
		cc.Logger.Debug("config unchanged", slog.String("path", holder.Path()))
		return
	}

	prev := holder.Swap(cfg)

	if prev.Logging.LogLevel != cfg.Logging.LogLevel {
		cc.Level.Set(effectiveLevel(cfg.Logging.LogLevel, cc.Flags))
	}

	cc.Logger.Info("config reloaded",
		slog.String("log_level", cfg.Logging.LogLevel),
		slog.String("effective_level", cc.Level.Level().String()),
	)
}

// sweepResults removes local artifacts older than retention, once at start
// and then every cleanupInterval.
func sweepResults(ctx context.Context, store *results.LocalStore, retention time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		n, err := store.CleanStale(retention)
		if err != nil {
			logger.Warn("result cleanup failed", slog.String("error", err.Error()))
		} else if n > 0 {
			logger.Info("removed expired results", slog.Int("count", n))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
