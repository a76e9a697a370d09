package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/courselink/internal/config"
	"github.com/roach88/courselink/internal/domain"
	"github.com/roach88/courselink/internal/engine"
	"github.com/roach88/courselink/internal/events"
	"github.com/roach88/courselink/internal/links"
	"github.com/roach88/courselink/internal/policy"
	"github.com/roach88/courselink/internal/store"
)

// app is the wiring every database command shares: the SQLite store behind
// a notifying decorator, the event bus feeding the engine, and the link
// service.
//
// Writes made through app.store publish the events the platform would
// emit. One-shot commands call settle before returning so the engine's
// incremental handlers run in-process.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	backend *store.Store
	store   *events.NotifyingStore
	bus     *events.Bus
	engine  *engine.Engine
	links   *links.Service
}

func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func openApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := cfg.NewLogger(cmd.ErrOrStderr())

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open database %s", cfg.Database), err)
	}

	a := &app{cfg: cfg, logger: logger, backend: st}
	a.store = events.NewNotifyingStore(st, publisherFunc(func(ev domain.Event) bool {
		return a.bus.Publish(ev)
	}))
	a.engine = engine.NewFromStores(a.store,
		engine.WithLogger(logger),
		engine.WithPolicy(policy.NewSource(cfg.Policy(logger))),
		engine.WithEnabled(cfg.Enabled),
	)
	a.bus = events.NewBus(a.engine, events.WithLogger(logger))
	a.links = links.NewService(a.store, a.store, a.engine,
		links.WithHiddenTargets(cfg.Links.AllowHiddenTargets),
		links.WithLogger(logger),
	)
	return a, nil
}

// settle dispatches every pending event, including the ones the handlers
// publish while running.
func (a *app) settle(ctx context.Context) error {
	if err := a.bus.Drain(ctx); err != nil {
		return WrapExitError(ExitFailure, "event dispatch interrupted", err)
	}
	return nil
}

func (a *app) Close() {
	a.bus.Close()
	if err := a.backend.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

type publisherFunc func(domain.Event) bool

func (f publisherFunc) Publish(ev domain.Event) bool { return f(ev) }
