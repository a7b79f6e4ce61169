package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/robertarktes/showtime-booking/internal/adapters/crdb"
	"github.com/robertarktes/showtime-booking/internal/adapters/rabbit"
	"github.com/robertarktes/showtime-booking/internal/clock"
	"github.com/robertarktes/showtime-booking/internal/config"
	"github.com/robertarktes/showtime-booking/internal/observability"
	"github.com/robertarktes/showtime-booking/internal/outbox"
)

const batchSize = 100

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Store != config.StoreCRDB {
		log.Fatalf("outbox publisher needs STORE=%s", config.StoreCRDB)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg, "showtime-outbox-publisher")
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

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	rabbitPub, err := rabbit.NewPublisher(conn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}
	defer rabbitPub.Close()

	publisher := outbox.NewPublisher(repo, rabbitPub, clock.NewSystem(), logger, cfg.OutboxInterval, batchSize)

	logger.WithField("exchange", rabbit.Exchange).Info("Outbox publisher started")
	publisher.Run(ctx)
	logger.Info("Shutdown outbox publisher")
}
