// Command cultivationctl operates the cultivation progression core:
// schema migrations, character progression and operator rollbacks.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/udisondev/cultivation/internal/config"
	"github.com/udisondev/cultivation/internal/db"
	"github.com/udisondev/cultivation/internal/game/cultivation"
	"github.com/udisondev/cultivation/internal/notify"
)

// DefaultConfigPath is used when neither --config nor CULTIVATION_CONFIG is set.
const DefaultConfigPath = "config/cultivation.yaml"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		msg := err.Error()
		if cultivation.IsRejection(err) {
			msg = cultivation.Message(err)
		}
		fmt.Fprintln(os.Stderr, "error:", msg)
		os.Exit(1)
	}
}

// app — зависимости, общие для всех подкоманд.
type app struct {
	cfg   config.Config
	db    *db.DB
	store *db.Store
	hub   *notify.Hub
	svc   *cultivation.Service
}

func configPath(flag string) string {
	if flag != "" {
		return flag
	}
	if p := os.Getenv("CULTIVATION_CONFIG"); p != "" {
		return p
	}
	return DefaultConfigPath
}

// loadConfig reads config and installs the slog default handler.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(configPath(path))
	if err != nil {
		return cfg, fmt.Errorf("loading config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	return cfg, nil
}

// connect opens the pool without touching the schema.
func connect(ctx context.Context, cfg config.Config) (*app, error) {
	database, err := db.New(ctx, cfg.Database.DSN(), db.PoolOptions{MaxConns: cfg.Database.MaxConns})
	if err != nil {
		return nil, err
	}
	slog.Debug("database connected", "host", cfg.Database.Host, "dbname", cfg.Database.DBName)

	return &app{
		cfg: cfg,
		db:  database,
		store: db.NewStore(database.Pool(), db.RetryOptions{
			MaxRetries:      cfg.Store.MaxRetries,
			InitialInterval: cfg.Store.InitialInterval,
			MaxInterval:     cfg.Store.MaxInterval,
		}),
	}, nil
}

// open connects and builds the service from the ladder stored in the database.
func open(ctx context.Context, cfg config.Config) (*app, error) {
	a, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ladder, err := a.store.Realms().LoadLadder(ctx)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("loading realm ladder (run migrate first?): %w", err)
	}
	policies, err := cfg.Progression.Policies()
	if err != nil {
		a.close()
		return nil, err
	}

	a.hub = notify.NewHub()
	a.hub.Subscribe(notify.LogSink(slog.Default()))

	a.svc, err = cultivation.New(a.store, cultivation.Options{
		Ladder:            ladder,
		Policies:          policies,
		BaseStats:         cfg.Progression.BaseStats.Stats(),
		RollbackTimeLimit: cfg.Progression.RollbackTimeLimit,
		Notifier:          a.hub,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("creating cultivation service: %w", err)
	}
	return a, nil
}

func (a *app) close() {
	a.db.Close()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
