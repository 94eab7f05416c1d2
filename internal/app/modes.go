package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/ledger"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/lifecycle"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/server"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/server/handler"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/server/ws"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/service"
)

// limiterSweepInterval is how often idle in-process rate limit buckets are
// dropped.
const limiterSweepInterval = 5 * time.Minute

// services holds the engine services shared by the HTTP handlers.
type services struct {
	trades     *service.TradeService
	challenges *service.ChallengeService
}

// buildServices constructs the trade orchestrator and the challenge service
// on top of the wired stores.
func (a *App) buildServices(deps *Dependencies) (*services, error) {
	eng := a.cfg.Engine

	model, err := ledger.NewModel(ledger.ModelConfig{
		Name:        eng.PnLModel,
		FixedAmount: eng.PnLFixedAmount,
		RandomBound: eng.PnLRandomBound,
		Seed:        eng.PnLSeed,
	})
	if err != nil {
		return nil, fmt.Errorf("app: pnl model: %w", err)
	}

	trades := service.NewTradeService(service.TradeDeps{
		Challenges: deps.ChallengeStore,
		Ledger:     ledger.New(deps.LedgerStore, model),
		Committer:  deps.Committer,
		Events:     deps.EventStore,
		Machine:    lifecycle.New(),
		Cache:      deps.Cache,
		Locks:      deps.LockManager,
		Bus:        deps.SignalBus,
		Audit:      deps.AuditStore,
		Notifier:   deps.Notifier,
	}, service.TradeConfig{
		DayLocation:   eng.Location(),
		LocalFallback: eng.LocalFallback,
		LockTTL:       eng.LockTTL.Duration,
		LockRetry:     eng.LockRetry.Duration,
		DedupTTL:      eng.DedupTTL.Duration,
	}, a.logger)

	challenges := service.NewChallengeService(
		deps.ChallengeStore,
		deps.LedgerStore,
		deps.EventStore,
		trades,
		deps.SignalBus,
		deps.AuditStore,
		eng.DomainPlans(),
		eng.Limits(),
		a.logger,
	)

	return &services{trades: trades, challenges: challenges}, nil
}

// ServerMode serves the HTTP and websocket API. Alongside it run the local
// tier resync loop, notification delivery and, when enabled, the archive loop.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering server mode")

	svcs, err := a.buildServices(deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Notifier.Run(ctx)
	})

	g.Go(func() error {
		return ignoreCanceled(svcs.trades.RunResync(ctx, a.cfg.Engine.ResyncInterval.Duration))
	})

	if deps.LocalLimiter != nil {
		g.Go(func() error {
			ticker := time.NewTicker(limiterSweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if n := deps.LocalLimiter.Sweep(); n > 0 {
						a.logger.DebugContext(ctx, "rate limiter: idle buckets dropped", slog.Int("count", n))
					}
				}
			}
		})
	}

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiveLoop(ctx, deps.Archiver)
		})
	}

	a.startHTTPServer(ctx, g, deps, svcs)

	return g.Wait()
}

// ArchiveMode runs one archive pass over every challenge that has been
// terminal for longer than the retention period, then returns.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering archive mode")
	if deps.Archiver == nil {
		return errors.New("app: archive mode requires s3 configuration")
	}

	n, err := archiveAll(ctx, deps.Archiver, a.archiveCutoff(), a.cfg.Archive.BatchSize)
	if err != nil {
		return fmt.Errorf("app: archive: %w", err)
	}
	a.logger.InfoContext(ctx, "archive pass complete", slog.Int64("archived", n))
	return nil
}

// MigrateMode applies schema changes and exits. Wire has already run the
// postgres migrations or opened the sqlite database with its schema.
func (a *App) MigrateMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "migrations applied", slog.String("storage", deps.Storage))
	return nil
}

// runArchiveLoop archives on every tick until ctx is cancelled. Failed passes
// are logged and retried on the next tick.
func (a *App) runArchiveLoop(ctx context.Context, archiver domain.Archiver) error {
	ticker := time.NewTicker(a.cfg.Archive.Interval.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := archiveAll(ctx, archiver, a.archiveCutoff(), a.cfg.Archive.BatchSize)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				a.logger.ErrorContext(ctx, "archive pass failed",
					slog.Int64("archived", n),
					slog.String("error", err.Error()),
				)
				continue
			}
			if n > 0 {
				a.logger.InfoContext(ctx, "archive pass complete", slog.Int64("archived", n))
			}
		}
	}
}

func (a *App) archiveCutoff() time.Time {
	return time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)
}

// archiveAll calls ArchiveCompleted until a batch comes back short.
func archiveAll(ctx context.Context, archiver domain.Archiver, before time.Time, batchSize int) (int64, error) {
	var total int64
	for {
		n, err := archiver.ArchiveCompleted(ctx, before)
		total += n
		if err != nil {
			return total, err
		}
		if batchSize <= 0 || n < int64(batchSize) {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

// startHTTPServer adds the websocket hub, the HTTP listener and its graceful
// shutdown to the errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	startedAt := time.Now().UTC()

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:           a.cfg.Mode,
		StartedAt:      startedAt,
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(deps.StorePinger, a.logger),
		Status:     handler.NewStatusHandler(a.cfg.Mode, deps.Storage, startedAt, svcs.trades),
		Challenges: handler.NewChallengeHandler(svcs.challenges, a.logger),
		Trades:     handler.NewTradeHandler(svcs.trades, svcs.challenges, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		timeout := a.cfg.Server.ShutdownTimeout.Duration
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		err := srv.Shutdown(shutCtx)

		// Commits still in the local tier get one last chance to become durable.
		if pending := svcs.trades.PendingCount(); pending > 0 {
			flushed := svcs.trades.Resync(shutCtx)
			a.logger.InfoContext(shutCtx, "final resync",
				slog.Int("flushed", flushed),
				slog.Int("still_pending", svcs.trades.PendingCount()),
			)
		}
		return err
	})
}

// ignoreCanceled maps context cancellation to a clean exit.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
