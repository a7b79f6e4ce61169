package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/robertarktes/showtime-booking/internal/adapters/crdb"
	"github.com/robertarktes/showtime-booking/internal/booking"
	"github.com/robertarktes/showtime-booking/internal/clock"
	"github.com/robertarktes/showtime-booking/internal/config"
	"github.com/robertarktes/showtime-booking/internal/observability"
	"github.com/robertarktes/showtime-booking/internal/payment"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Store != config.StoreCRDB {
		log.Fatalf("expiry worker needs STORE=%s; memory mode sweeps inside the api", config.StoreCRDB)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg, "showtime-expiry-worker")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	manager := booking.NewManager(repo, repo, payment.NewMockGateway(), cfg.PriceTable(), clock.NewSystem(), logger,
		booking.WithHoldTTL(cfg.HoldTTL),
		booking.WithExpiryBatch(cfg.ExpiryBatchSize),
	)

	logger.WithField("interval", cfg.ExpirySweepInterval.String()).Info("expiry worker started")
	booking.NewSweeper(manager, logger, cfg.ExpirySweepInterval).Run(ctx)
	logger.Info("Shutdown expiry worker")
}
