package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/courselink/internal/config"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Interval      time.Duration
	MetricsListen string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the event dispatcher and periodic reconciliation",
		Long: `Run the long-lived sync process.

Starts the event dispatcher, reconciles every link at once and then on the
configured interval, and serves Prometheus metrics when metrics.listen is
set. SIGHUP reloads the enabled flag and the no-sync role list from the
config file. SIGINT or SIGTERM stops the process.

Example:
  courselink serve --config courselink.yaml
  courselink serve --db ./courselink.db --interval 15m --metrics-listen :9464`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "reconcile interval (overrides config)")
	cmd.Flags().StringVar(&opts.MetricsListen, "metrics-listen", "", "metrics listen address (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	interval := a.cfg.ReconcileInterval.Duration
	if opts.Interval > 0 {
		if opts.Interval < config.MinReconcileInterval {
			return NewExitError(ExitCommandError, fmt.Sprintf("interval must be at least %s", config.MinReconcileInterval))
		}
		interval = opts.Interval
	}
	listen := a.cfg.Metrics.Listen
	if opts.MetricsListen != "" {
		listen = opts.MetricsListen
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.bus.Run(gctx) })
	g.Go(func() error { return a.engine.RunPeriodic(gctx, interval) })
	g.Go(func() error { return a.watchReload(gctx, opts.ConfigPath) })
	if listen != "" {
		serveMetrics(gctx, g, a, listen)
	}

	a.logger.Info("courselink serving", "db", a.cfg.Database, "interval", interval, "enabled", a.engine.Enabled())
	fmt.Fprintln(cmd.OutOrStdout(), "courselink started. Press Ctrl-C to stop.")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "serve failed", err)
	}
	a.logger.Info("courselink stopped")
	return nil
}

func serveMetrics(ctx context.Context, g *errgroup.Group, a *app, listen string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		a.logger.Info("metrics endpoint listening", "addr", listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// watchReload applies the enabled flag and the no-sync list from the
// config file on SIGHUP. Nothing already applied is rewritten; the next
// reconciliation converges to the new settings.
func (a *app) watchReload(ctx context.Context, path string) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			a.reload(path)
		}
	}
}

func (a *app) reload(path string) {
	if path == "" {
		a.logger.Warn("reload requested but no config file is in use")
		return
	}
	cfg, err := config.Load(path)
	if err != nil {
		a.logger.Error("config reload failed, keeping current settings", "error", err)
		return
	}
	a.engine.Policy().Set(cfg.Policy(a.logger))
	a.engine.SetEnabled(cfg.Enabled)
	a.logger.Info("config reloaded", "enabled", cfg.Enabled, "nosync_roles", cfg.NoSyncRoles)
}
