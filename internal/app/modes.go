package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nexusx/nexus/internal/server"
	"github.com/nexusx/nexus/internal/server/handler"
	"github.com/nexusx/nexus/internal/server/middleware"
	"github.com/nexusx/nexus/internal/server/ws"
	"github.com/nexusx/nexus/internal/service"
)

const (
	shutdownTimeout = 5 * time.Second
	idempotencyTTL  = 10 * time.Minute
)

// ServeMode runs the HTTP API, the WebSocket hub and the price ticker until
// ctx is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	a.startTicker(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)

	if deps.Archiver != nil && a.cfg.S3.ArchiveCron != "" {
		job := service.NewArchiveJob(deps.Archiver, a.logger)
		g.Go(func() error {
			return job.RunCron(ctx, a.cfg.S3.ArchiveCron)
		})
	}

	return g.Wait()
}

// TickerMode runs the price simulation without an HTTP surface. Ticks are
// still persisted and published on the bus, so WebSocket clients of a serve
// process sharing Redis receive them.
func (a *App) TickerMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	a.startTicker(ctx, g, deps)
	return g.Wait()
}

// ArchiveMode exports every ledger to object storage once and returns.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return errors.New("app: archive mode requires s3.enabled")
	}
	if _, err := service.NewArchiveJob(deps.Archiver, a.logger).Run(ctx); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	return nil
}

func (a *App) startTicker(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	ticker := service.NewTicker(deps.Quotes, a.cfg.Market.TickInterval.Duration, a.logger)
	g.Go(func() error {
		return ticker.Run(ctx)
	})
}

// startHTTPServer adds the HTTP server and the WebSocket hub to g. The
// server is shut down gracefully when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	startedAt := time.Now().UTC()

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:           a.cfg.Mode,
		StartedAt:      startedAt,
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	var archiver handler.Archiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		AdminAPIKey: a.cfg.Server.AdminAPIKey,
		Limiter:     deps.RateLimiter,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
		Tokens:      deps.Tokens,
		Sessions:    deps.Sessions,
		Dedup:       middleware.NewDedup(idempotencyTTL),

		ActiveFallback: a.cfg.Auth.DemoMode,
	}, server.Handlers{
		Health: handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Status: handler.NewStatusHandler(handler.StatusInfo{
			Mode:      a.cfg.Mode,
			Storage:   a.cfg.Storage.Driver,
			DemoMode:  a.cfg.Auth.DemoMode,
			StartedAt: startedAt,
		}),
		Markets:  handler.NewMarketHandler(deps.Quotes, a.logger),
		Trades:   handler.NewTradeHandler(deps.Ledgers, a.logger),
		Sessions: handler.NewSessionHandler(deps.Sessions, deps.Tokens, a.logger),
		Insights: handler.NewInsightHandler(deps.Insights, a.logger),
		Admin:    handler.NewAdminHandler(deps.Ledgers, deps.Quotes, deps.Sessions, archiver, deps.AuditStore, a.logger),
	}, hub, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
