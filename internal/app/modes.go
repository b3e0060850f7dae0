package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/paperbot/internal/server"
	"github.com/alanyoungcy/paperbot/internal/server/handler"
	"github.com/alanyoungcy/paperbot/internal/server/ws"
)

// ServerMode runs the HTTP + WebSocket API until the context is cancelled.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode",
		slog.Int("port", a.cfg.Server.Port),
	)

	g, ctx := errgroup.WithContext(ctx)

	// WebSocket hub only works with an event bus behind it.
	var hub *ws.Hub
	if deps.EventBus != nil {
		hub = ws.NewHub(deps.EventBus, a.logger)
		g.Go(func() error {
			if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		})
	} else {
		a.logger.InfoContext(ctx, "redis disabled; /ws endpoint not registered")
	}

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(a.logger),
		Profiles: handler.NewProfileHandler(deps.Ledger, a.logger),
		Orders:   handler.NewOrderHandler(deps.Ledger, a.logger),
		TPSL:     handler.NewTPSLHandler(deps.Ledger, a.logger),
		Archive:  handler.NewArchiveHandler(deps.Archiver, deps.BlobReader, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:           a.cfg.Server.Port,
		CORSOrigins:    a.cfg.Server.CORSOrigins,
		APIKey:         a.cfg.Server.APIKey,
		RateLimit:      a.cfg.Server.RateLimit,
		RateLimitBurst: a.cfg.Server.RateLimitWindowS,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// CheckMode runs a single trigger evaluation pass against the cached price
// snapshot and exits. It is intended for cron-style invocation.
func (a *App) CheckMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting check mode")

	events, err := deps.Ledger.EvaluateFromCache(ctx)
	if err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "trigger evaluation complete",
		slog.Int("triggered", len(events)),
	)
	for _, ev := range events {
		a.logger.InfoContext(ctx, "trigger fired",
			slog.String("order_id", ev.OrderID),
			slog.String("type", string(ev.Type)),
			slog.Float64("pnl", ev.PnL),
		)
	}
	return nil
}
