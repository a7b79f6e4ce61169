package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mongoadapter "github.com/robertarktes/showtime-booking/internal/adapters/mongo"
	"github.com/robertarktes/showtime-booking/internal/adapters/rabbit"
	"github.com/robertarktes/showtime-booking/internal/config"
	"github.com/robertarktes/showtime-booking/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg, "showtime-audit-consumer")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	audit := mongoadapter.NewAuditLogger(mongoClient.Database(cfg.MongoDB), logger)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	consumer, err := rabbit.NewConsumer(conn, cfg.AuditQueue, logger)
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}
	defer consumer.Close()

	logger.WithField("queue", cfg.AuditQueue).Info("audit consumer started")
	err = consumer.Run(ctx, func(ctx context.Context, d amqp.Delivery) error {
		action := d.Type
		if action == "" {
			action = d.RoutingKey
		}
		return audit.LogBookingEvent(ctx, d.MessageId, action, d.Body)
	})
	if err != nil {
		logger.WithError(err).Error("consumer stopped")
	}
	logger.Info("Shutdown audit consumer")
}
