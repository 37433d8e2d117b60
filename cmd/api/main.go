package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iwongu/pottery-app/internal/config"
	"github.com/iwongu/pottery-app/internal/db"
	"github.com/iwongu/pottery-app/internal/server"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain
var exitFn = os.Exit

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	args            []string
	loadConfig      func(envFile string) config.Config
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) *redis.Client
	newMigrator     func(*pgxpool.Pool) (migrator, error)
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, *pgxpool.Pool, *redis.Client, <-chan os.Signal, ListenFunc) error
}

type migrator interface {
	MigrateUp(ctx context.Context) error
	MigrateDown(ctx context.Context) (int, error)
	Status(ctx context.Context) (db.MigrationStatus, error)
}

func defaultDeps() mainDeps {
	return mainDeps{
		args:            os.Args[1:],
		loadConfig:      config.Load,
		connectPostgres: db.ConnectPostgres,
		connectRedis:    db.ConnectRedis,
		newMigrator: func(pg *pgxpool.Pool) (migrator, error) {
			m, err := db.NewMigrator(pg)
			if err != nil {
				return nil, err
			}
			return m.WithLogger(slog.Default().With("component", "migrator")), nil
		},
		notify: signal.Notify,
		run:    Run,
	}
}

func realMain(deps mainDeps) {
	cmd := newRootCmd(deps)
	cmd.SetArgs(deps.args)
	if err := cmd.Execute(); err != nil {
		log.Printf("api: %v", err)
		exitFn(1)
	}
}

func serve(deps mainDeps, envFile string) error {
	cfg := deps.loadConfig(envFile)

	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		log.Printf("postgres connection failed: %v", err)
	}

	rdb := deps.connectRedis(cfg)

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	return deps.run(context.Background(), cfg, pg, rdb, signals, nil)
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run starts the HTTP server and waits for termination signals.
func Run(ctx context.Context, cfg config.Config, pg *pgxpool.Pool, rdb *redis.Client, signals <-chan os.Signal, listen ListenFunc) error {
	srv := server.NewServer(cfg, pg, rdb)

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			_ = srv.Close()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := shutdownFn(srv.App, shutdownCtx); err != nil {
		return err
	}
	if err := srv.Close(); err != nil {
		log.Printf("activity hub close: %v", err)
	}
	if pg != nil {
		pg.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	return nil
}
