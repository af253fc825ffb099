package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/hedgebot/internal/engine"
	"github.com/alanyoungcy/hedgebot/internal/server"
	"github.com/alanyoungcy/hedgebot/internal/server/handler"
)

// HedgeMode runs the full trading stack: both order-book replicas, the hedge
// engine, and the optional HTTP status server.
func (a *App) HedgeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting hedge mode")

	g, ctx := errgroup.WithContext(ctx)

	eng := engine.New(a.cfg.Trade, a.cfg.Risk,
		a.cfg.Exchange1.TakerFeeRate, a.cfg.Exchange2.TakerFeeRate,
		deps.Replica1, deps.Replica2,
		deps.Trader1, deps.Trader2,
		engine.EngineOptions{
			Events:  deps.Events,
			Store:   deps.ExecStore,
			Funding: deps.FundingCache,
		}, a.logger)

	g.Go(func() error { return deps.Replica1.Run(ctx) })
	g.Go(func() error { return deps.Replica2.Run(ctx) })
	g.Go(func() error { return eng.Run(ctx) })

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, eng)
	}

	return g.Wait()
}

// MonitorMode runs both replicas and the status server without placing any
// orders. Useful for validating feed connectivity and book quality before
// funding an account.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return deps.Replica1.Run(ctx) })
	g.Go(func() error { return deps.Replica2.Run(ctx) })

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, &replicaReporter{
			symbol: a.cfg.Trade.Symbol,
			deps:   deps,
		})
	}

	return g.Wait()
}

// ArchiveMode exports completed executions to object storage and exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("app: archive mode requires s3 and postgres to be enabled")
	}

	cutoff := time.Now().UTC()
	n, err := deps.Archiver.ArchiveExecutions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("app: archive executions: %w", err)
	}
	a.logger.InfoContext(ctx, "archive complete",
		slog.Int("count", n),
		slog.Time("cutoff", cutoff))
	return nil
}

// startHTTPServer registers the status API on the run group and shuts it
// down when the group context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, reporter handler.Reporter) {
	checks := map[string]handler.HealthChecker{}
	if deps.Postgres != nil {
		checks["postgres"] = deps.Postgres.Pool().Ping
	}
	if deps.Redis != nil {
		checks["redis"] = deps.Redis.Ping
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(checks),
		Status: handler.NewStatusHandler(a.cfg.Mode, reporter),
	}
	if deps.ExecStore != nil {
		handlers.Executions = handler.NewExecutionHandler(deps.ExecStore, a.logger)
	}

	srv := server.NewServer(server.Config{Port: a.cfg.Server.Port}, handlers, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// replicaReporter satisfies handler.Reporter in monitor mode, where no
// engine is running: only the connection health fields are populated.
type replicaReporter struct {
	symbol string
	deps   *Dependencies
}

func (r *replicaReporter) Report() engine.EngineReport {
	return engine.EngineReport{
		Symbol: r.symbol,
		Conn1:  r.deps.Replica1.Status(),
		Conn2:  r.deps.Replica2.Status(),
	}
}
