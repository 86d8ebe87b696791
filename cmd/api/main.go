package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/commentgig/backend/internal/audit"
	"github.com/commentgig/backend/internal/auth"
	"github.com/commentgig/backend/internal/catalog"
	"github.com/commentgig/backend/internal/config"
	"github.com/commentgig/backend/internal/dashboard"
	"github.com/commentgig/backend/internal/events"
	"github.com/commentgig/backend/internal/handlers"
	"github.com/commentgig/backend/internal/ledger"
	"github.com/commentgig/backend/internal/middleware"
	"github.com/commentgig/backend/internal/orders"
	"github.com/commentgig/backend/internal/router"
	"github.com/commentgig/backend/internal/submission"
	"github.com/commentgig/backend/internal/withdrawal"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DefaultSecret() {
		slog.Warn("JWT_SECRET is not set, using the development default")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, err := loadCatalog(cfg.CatalogFile)
	if err != nil {
		return err
	}

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	authSvc := auth.NewService(b.users, []byte(cfg.JWTSecret), cfg.AdminIDs)

	publishers, closePublishers, err := eventPublishers(cfg, b, logger)
	if err != nil {
		return err
	}
	defer closePublishers()
	notifier := events.NewAsync(1024, logger, publishers...)
	defer notifier.Close()

	ledgerSvc := ledger.NewService(b.store, ledger.ReferralCommission{
		Rate:      cfg.CommissionRate,
		Referrals: authSvc,
	}, logger)
	submissionSvc := submission.NewService(b.store, cat, cfg.ClaimTimeout, logger)
	api := &handlers.API{
		Orders:      orders.NewService(b.store, cat, cfg.MaxParticipants, logger),
		Submissions: submissionSvc,
		Audit:       audit.NewService(b.store, ledgerSvc, notifier, logger),
		Ledger:      ledgerSvc,
		Withdrawals: withdrawal.NewService(b.store, cfg.WithdrawalPolicy(), notifier, logger),
		Templates:   cat,
		Logger:      logger,
	}

	if err := b.startJobs(ctx, submissionSvc, cfg.ClaimSweepInterval); err != nil {
		return err
	}

	idem, err := idempotencyStore(cfg)
	if err != nil {
		return err
	}

	h := router.New(router.Deps{
		Auth:           auth.NewHandler(authSvc, logger),
		Tokens:         authSvc,
		API:            api,
		Dashboard:      dashboard.NewHandler(b.users, ledgerSvc, submissionSvc, api.Orders, logger),
		Idempotency:    idem,
		IdempotencyTTL: cfg.IdempotencyTTL,
		Health:         b.health,
		Logger:         logger,
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.HeaderIdempotencyKey},
		ExposedHeaders:   []string{"Idempotent-Replayed"},
		AllowCredentials: true,
	}).Handler(h)

	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "addr", srv.Addr, "storage", cfg.Storage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	b.stopJobs(shutdownCtx)
	return nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	cat, err := catalog.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog %q: %w", path, err)
	}
	return cat, nil
}

// eventPublishers builds one publisher per configured NOTIFY_SINK.
func eventPublishers(cfg *config.Config, b *backend, logger *slog.Logger) ([]events.Publisher, func(), error) {
	var pubs []events.Publisher
	closers := []func(){}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	if cfg.SinkEnabled("log") {
		pubs = append(pubs, events.LogPublisher{Logger: logger})
	}
	if cfg.SinkEnabled("kafka") {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopicPrefix)
		if err != nil {
			return nil, closeAll, fmt.Errorf("kafka publisher: %w", err)
		}
		closers = append(closers, func() {
			if err := kp.Close(); err != nil {
				slog.Warn("kafka writer close failed", "error", err)
			}
		})
		pubs = append(pubs, kp)
	}
	if cfg.SinkEnabled("webhook") {
		pubs = append(pubs, b.webhookPublisher(cfg.NotifyWebhookURL))
	}
	return pubs, closeAll, nil
}

func idempotencyStore(cfg *config.Config) (middleware.IdempotencyStore, error) {
	if cfg.RedisURL == "" {
		return middleware.NewMemoryIdempotencyStore(), nil
	}
	client, err := middleware.ConnectRedis(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	slog.Info("Connected to Redis for idempotency keys")
	return middleware.NewRedisIdempotencyStore(client), nil
}
