// Package app assembles the challenge engine from configuration and runs one
// operating mode: server, archive or migrate.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/config"
)

type modeFunc func(*App, context.Context, *Dependencies) error

var modes = map[string]modeFunc{
	"server":  (*App).ServerMode,
	"archive": (*App).ArchiveMode,
	"migrate": (*App).MigrateMode,
}

// App holds the configuration and the cleanups registered while wiring.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies and blocks in the configured mode. The mode is
// checked before anything is connected.
func (a *App) Run(ctx context.Context) error {
	run, ok := modes[strings.ToLower(a.cfg.Mode)]
	if !ok {
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}

	a.logger.InfoContext(ctx, "starting",
		slog.String("mode", a.cfg.Mode),
		slog.String("storage", a.cfg.Storage.Driver),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	return run(a, ctx, deps)
}

// Close runs cleanups newest first. Later calls do nothing.
func (a *App) Close() {
	if len(a.closers) == 0 {
		return
	}
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
