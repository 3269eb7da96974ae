package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/knowlode/knowlode/internal/capability"
	"github.com/knowlode/knowlode/internal/config"
)

// system bundles the loaded configuration and the assembled memory system a
// subcommand needs to do its work.
type system struct {
	cfg     *config.Config
	factory *capability.Factory
	memory  *capability.MemorySystem
	pool    *pgxpool.Pool
}

// bootstrap loads the configuration named by --config, connects to Postgres
// if configured, and assembles the full memory system through a fresh
// capability factory. Callers must defer Close.
func bootstrap(ctx context.Context) (*system, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("knowlode: config file %q not found — create it or pass --config with an existing file", configPath)
		}
		return nil, fmt.Errorf("knowlode: %w", err)
	}
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	var pool *pgxpool.Pool
	if cfg.Store.PostgresDSN != "" {
		pool, err = pgxpool.New(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("knowlode: connect to postgres: %w", err)
		}
	}

	f := capability.New()
	mem, err := f.CreateMemorySystem(cfg, pool)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, fmt.Errorf("knowlode: assemble memory system: %w", err)
	}

	return &system{cfg: cfg, factory: f, memory: mem, pool: pool}, nil
}

// Close releases the Postgres pool, if one was opened.
func (s *system) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
