// Package app provides the top-level application lifecycle for the execution
// service. It wires the stores, caches, feed, kill switch, and pipeline
// together and runs the intake, monitoring, and archival goroutines until
// shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradexec/internal/adapter"
	"github.com/alanyoungcy/tradexec/internal/config"
	"github.com/alanyoungcy/tradexec/internal/domain"
	"github.com/alanyoungcy/tradexec/internal/feed"
	"github.com/alanyoungcy/tradexec/internal/killswitch"
	"github.com/alanyoungcy/tradexec/internal/pipeline"
	"github.com/alanyoungcy/tradexec/internal/portfolio"
	"github.com/alanyoungcy/tradexec/internal/risk"
)

// registryCleanupInterval is how often expired recorded results are evicted
// from the in-process registry.
const registryCleanupInterval = time.Minute

// staticLivePolicy is the governance flag as granted by configuration.
type staticLivePolicy bool

func (p staticLivePolicy) LiveEnabled() bool { return bool(p) }

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, assembles the
// pipeline, starts the background goroutines, and blocks until the context is
// cancelled. On return it runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting execution service",
		slog.String("mode", a.cfg.Execution.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	logger := a.logger

	// Portfolio tracker seeded with the configured equity. The return window
	// matches the VaR window so the gate always sees exactly what it needs.
	tracker := portfolio.NewTracker(a.cfg.Risk.InitialEquity, a.cfg.Risk.VaRWindow, logger)

	// Market data feed marks the tracker and feeds the health probes.
	priceFeed := feed.NewPriceFeed(a.cfg.Feed.WsURL, a.cfg.Feed.Symbols, tracker, logger)

	// Kill switch: health checker, durable state, background monitor.
	probes := []killswitch.Probe{
		killswitch.MemoryProbe{MinAvailableBytes: uint64(a.cfg.KillSwitch.MinAvailableMemMB) * 1024 * 1024},
		&killswitch.CPUProbe{MaxPercent: a.cfg.KillSwitch.MaxCPUPercent},
	}
	if a.cfg.Feed.WsURL != "" {
		probes = append(probes,
			killswitch.ConnectivityProbe{Feed: priceFeed},
			killswitch.StalenessProbe{Feed: priceFeed, MaxStaleness: a.cfg.Feed.MaxStaleness.Duration},
		)
	}
	checker := killswitch.NewChecker(probes...)

	stateStore := killswitch.NewFileStore(
		a.cfg.KillSwitch.StatePath,
		a.cfg.KillSwitch.BackupDir,
		a.cfg.KillSwitch.BackupRetain,
	)
	safety, err := killswitch.New(killswitch.Config{
		ApprovalToken: a.cfg.KillSwitch.ApprovalToken,
		Cooldown:      a.cfg.KillSwitch.Cooldown.Duration,
		Stage2After:   a.cfg.KillSwitch.Stage2After.Duration,
		FullAfter:     a.cfg.KillSwitch.FullAfter.Duration,
	}, stateStore, checker, deps.Audit, logger)
	if err != nil {
		return fmt.Errorf("app: kill switch: %w", err)
	}

	monitor := killswitch.NewMonitor(safety, checker, deps.Notifier, killswitch.MonitorConfig{
		Interval:            a.cfg.KillSwitch.MonitorInterval.Duration,
		MaxDispatchFailures: a.cfg.KillSwitch.MaxDispatchFailures,
	}, logger)

	// Execution adapters and routing.
	adapters := map[pipeline.ExecutionMode]adapter.ExecutionAdapter{
		pipeline.ModePaper:  adapter.NewPaperAdapter(priceFeed, a.cfg.Execution.PaperFeeRate, logger),
		pipeline.ModeShadow: adapter.NewShadowAdapter(logger),
	}
	mode := pipeline.ExecutionMode(strings.ToLower(a.cfg.Execution.Mode))
	router := pipeline.NewRouter(mode, staticLivePolicy(a.cfg.Execution.LiveEnabled), adapters)

	dispatcher := adapter.NewDispatcher(adapter.DispatchConfig{
		MaxAttempts:    a.cfg.Dispatch.MaxAttempts,
		AttemptTimeout: a.cfg.Dispatch.AttemptTimeout.Duration,
		InitialBackoff: a.cfg.Dispatch.InitialBackoff.Duration,
		MaxBackoff:     a.cfg.Dispatch.MaxBackoff.Duration,
	}, logger)

	registry := pipeline.NewRegistry(deps.ResultCache, a.cfg.Redis.ResultTTL.Duration, logger)

	orch := pipeline.NewOrchestrator(pipeline.Deps{
		Registry:   registry,
		Safety:     safety,
		Gate:       risk.NewGate(risk.HistoricalVaR{}),
		Snapshots:  tracker,
		Limits:     a.riskLimits(),
		Router:     router,
		Dispatcher: dispatcher,
		Portfolio:  tracker,
		Audit:      deps.Audit,
		OrderLog:   deps.OrderLog,
		Positions:  deps.Positions,
		Recon:      deps.Recon,
		Reporter:   monitor,
		Logger:     logger,
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return monitor.Run(ctx) })

	if a.cfg.Feed.WsURL != "" {
		g.Go(func() error { return priceFeed.Run(ctx) })
	}

	if deps.Archiver != nil {
		g.Go(func() error { return deps.Archiver.Run(ctx) })
	}

	intake := NewIntake(deps.Intents, orch, logger)
	g.Go(func() error { return intake.Run(ctx) })

	admin := NewAdmin(deps.Commands, safety, logger)
	g.Go(func() error { return admin.Run(ctx) })

	g.Go(func() error {
		ticker := time.NewTicker(registryCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				registry.Cleanup()
			}
		}
	})

	return g.Wait()
}

// riskLimits builds the base (unscaled) limits handed to the orchestrator.
func (a *App) riskLimits() domain.RiskLimits {
	return domain.RiskLimits{
		MaxPositionWeight: a.cfg.Risk.MaxPositionWeight,
		MaxGrossExposure:  a.cfg.Risk.MaxGrossExposure,
		MaxNetExposure:    a.cfg.Risk.MaxNetExposure,
		MaxVaR:            a.cfg.Risk.MaxVaR,
		MaxCVaR:           a.cfg.Risk.MaxCVaR,
		VaRAlpha:          a.cfg.Risk.VaRAlpha,
		VaRWindow:         a.cfg.Risk.VaRWindow,
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down execution service")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
