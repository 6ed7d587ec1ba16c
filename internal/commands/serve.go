package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fixl-developer/tma-automation/internal/action"
	"github.com/fixl-developer/tma-automation/internal/archiver"
	"github.com/fixl-developer/tma-automation/internal/config"
	"github.com/fixl-developer/tma-automation/internal/dispatch"
	"github.com/fixl-developer/tma-automation/internal/health"
	"github.com/fixl-developer/tma-automation/internal/notify"
	"github.com/fixl-developer/tma-automation/internal/schedule"
	"github.com/fixl-developer/tma-automation/internal/server"
	"github.com/fixl-developer/tma-automation/internal/store"
	pgstore "github.com/fixl-developer/tma-automation/internal/store/postgres"
	"github.com/fixl-developer/tma-automation/internal/workflow"
	"github.com/fixl-developer/tma-automation/pkg/types"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the automation engine and HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.Default()
	ctx := context.Background()

	// Store, wrapped with the dispatch read cache.
	backend, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	if err := backend.Start(ctx); err != nil {
		return fmt.Errorf("connecting to store: %w", err)
	}
	st := store.NewCached(backend, store.DefaultCacheTTL)

	// Seed packs
	if err := seedPacks(ctx, cfg, st); err != nil {
		return err
	}

	// Notification sinks
	sinks := make([]notify.SinkConfig, 0, len(cfg.Notify))
	for _, nc := range cfg.Notify {
		sinks = append(sinks, notify.SinkConfig{Type: nc.Type, URL: nc.URL, Path: nc.Path})
	}
	notifier, err := notify.NewDispatcher(sinks, logger)
	if err != nil {
		return fmt.Errorf("creating notification dispatcher: %w", err)
	}

	// Action executor
	registry := action.NewRegistry()
	executor := action.NewExecutor(registry, logger)
	if cfg.Executor != nil {
		if d, err := time.ParseDuration(cfg.Executor.DefaultTimeout); err == nil && d > 0 {
			executor.SetDefaultTimeout(d)
		}
		for at, raw := range cfg.Executor.ActionTimeouts {
			if d, err := time.ParseDuration(raw); err == nil && d > 0 {
				executor.SetTimeout(types.ActionType(at), d)
			}
		}
	}

	// Workflow machine
	machine := workflow.NewMachine(st, executor, logger)

	registry.Register(types.ActionNotify, action.NewNotifyHandler(notifier))
	registry.Register(types.ActionWebhook, action.NewWebhookHandler())
	registry.Register(types.ActionStateChange, action.NewStateChangeHandler(machine))
	registry.Register(types.ActionAssign, action.NewAssignHandler(notifier))

	// Dispatcher
	dispatcher := dispatch.New(st, executor, cfg.Dispatcher, logger)
	machine.SetEmitter(dispatcher.Enqueue)
	dispatcher.Start(ctx)

	// Scheduler
	var sched *schedule.Scheduler
	if cfg.Scheduler == nil || cfg.Scheduler.Enabled {
		tick := schedule.DefaultTickInterval
		if cfg.Scheduler != nil {
			tick = parseDuration(cfg.Scheduler.TickInterval, tick)
		}
		sched = schedule.New(st, dispatcher, tick, logger)
		sched.Start(ctx)
	}

	// Health aggregator
	aggregator := health.New(st, cfg.Health, cfg.SLA, logger)
	aggregator.Start(ctx)

	// Archiver
	var arc *archiver.Archiver
	if cfg.Archiver != nil && cfg.Archiver.Enabled {
		pg, err := pgstore.New(ctx, cfg.Archiver.DSN)
		if err != nil {
			return fmt.Errorf("connecting to Postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return fmt.Errorf("migrating Postgres: %w", err)
		}
		arc = archiver.New(st, pg, parseDuration(cfg.Archiver.Interval, 5*time.Minute), logger)
		arc.Start(ctx)
	}

	// Server
	addr := ":3000"
	var apiKey string
	if cfg.Server != nil {
		if cfg.Server.Addr != "" {
			addr = cfg.Server.Addr
		}
		apiKey = cfg.Server.APIKey
	}
	srv := server.New(addr, server.Deps{
		Store:      st,
		Dispatcher: dispatcher,
		Machine:    machine,
		Health:     aggregator,
		APIKey:     apiKey,
	})

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	logger.Info("automation server listening", "addr", addr, "provider", cfg.Provider)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		color.Yellow("\nReceived %s, shutting down...", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		if sched != nil {
			sched.Stop()
		}
		aggregator.Stop()
		dispatcher.Stop()
		if arc != nil {
			arc.Stop()
		}
		_ = st.Stop(shutdownCtx)
		color.Green("Server stopped gracefully")
		return nil
	}
}
