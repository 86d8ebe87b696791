package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"

	"github.com/commentgig/backend/internal/auth"
	"github.com/commentgig/backend/internal/config"
	"github.com/commentgig/backend/internal/events"
	"github.com/commentgig/backend/internal/execution"
	"github.com/commentgig/backend/internal/repository"
	"github.com/commentgig/backend/internal/repository/memstore"
)

// backend is the storage-dependent half of the process: the store, the user
// directory and, for postgres, the River job queue.
type backend struct {
	store  repository.Store
	users  auth.Repository
	health func(ctx context.Context) error
	logger *slog.Logger

	pool *pgxpool.Pool

	// River's client needs the workers, the workers need the services, and
	// the webhook publisher needs the client, so inserts go through a late
	// bound func.
	insertMu sync.Mutex
	insertFn execution.InsertDeliverEventFunc
	river    *river.Client[pgx.Tx]

	cancelSweeper context.CancelFunc
	sweeperDone   chan struct{}
}

func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	b := &backend{logger: logger}
	if cfg.Storage == config.StorageMemory {
		slog.Warn("Using in-memory storage; data is lost on restart")
		b.store = memstore.New()
		b.users = auth.NewMemoryRepository()
		return b, nil
	}

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	slog.Info("Connected to PostgreSQL database successfully!")
	b.pool = pool

	if err := repository.RunMigrations(cfg.DatabaseURL, repository.Migrations()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("schema migrations: %w", err)
	}

	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create River migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		pool.Close()
		return nil, fmt.Errorf("River migrate up: %w", err)
	}
	slog.Info("River migrations applied")

	b.store = repository.NewPGStore(pool)
	b.users = auth.NewRepository(pool)
	b.health = pool.Ping
	return b, nil
}

func (b *backend) insertDeliverEvent(ctx context.Context, args execution.DeliverEventArgs) error {
	b.insertMu.Lock()
	fn := b.insertFn
	b.insertMu.Unlock()
	if fn == nil {
		return fmt.Errorf("job queue not started")
	}
	return fn(ctx, args)
}

func (b *backend) webhookPublisher(url string) events.Publisher {
	return execution.WebhookPublisher{URL: url, Insert: b.insertDeliverEvent}
}

// startJobs runs the claim sweep: as a River periodic job on postgres, or as
// an in-process ticker on the memory store.
func (b *backend) startJobs(ctx context.Context, releaser execution.Releaser, interval time.Duration) error {
	if b.pool == nil {
		sweepCtx, cancel := context.WithCancel(ctx)
		b.cancelSweeper = cancel
		b.sweeperDone = make(chan struct{})
		go func() {
			defer close(b.sweeperDone)
			execution.RunSweeper(sweepCtx, releaser, interval, b.logger)
		}()
		return nil
	}

	client, err := river.NewClient(riverpgxv5.New(b.pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers:      execution.NewWorkers(releaser, b.logger),
		PeriodicJobs: execution.PeriodicJobs(interval),
	})
	if err != nil {
		return fmt.Errorf("create River client: %w", err)
	}
	b.river = client

	b.insertMu.Lock()
	b.insertFn = func(ctx context.Context, args execution.DeliverEventArgs) error {
		_, err := client.Insert(ctx, args, nil)
		return err
	}
	b.insertMu.Unlock()

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("start River client: %w", err)
	}
	return nil
}

func (b *backend) stopJobs(ctx context.Context) {
	if b.cancelSweeper != nil {
		b.cancelSweeper()
		<-b.sweeperDone
	}
	if b.river != nil {
		if err := b.river.Stop(ctx); err != nil {
			slog.Error("River client stop failed", "error", err)
		}
	}
}

func (b *backend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
}
