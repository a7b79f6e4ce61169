package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/robertarktes/showtime-booking/internal/adapters/crdb"
	"github.com/robertarktes/showtime-booking/internal/adapters/memory"
	mongoadapter "github.com/robertarktes/showtime-booking/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/showtime-booking/internal/adapters/redis"
	"github.com/robertarktes/showtime-booking/internal/booking"
	"github.com/robertarktes/showtime-booking/internal/clock"
	"github.com/robertarktes/showtime-booking/internal/config"
	"github.com/robertarktes/showtime-booking/internal/domain"
	"github.com/robertarktes/showtime-booking/internal/eligibility"
	httphandler "github.com/robertarktes/showtime-booking/internal/http"
	"github.com/robertarktes/showtime-booking/internal/idempotency"
	"github.com/robertarktes/showtime-booking/internal/ledger"
	"github.com/robertarktes/showtime-booking/internal/observability"
	"github.com/robertarktes/showtime-booking/internal/payment"
	"github.com/robertarktes/showtime-booking/internal/rateLimit"
	"github.com/robertarktes/showtime-booking/internal/schedule"
	"github.com/robertarktes/showtime-booking/internal/seatmap"
)

type backend struct {
	store    schedule.Store
	ledger   ledger.Ledger
	counter  ledger.Counter
	occ      seatmap.OccupancyReader
	catalog  eligibility.Catalog
	idemp    *idempotency.Idempotency
	limiter  rateLimit.Limiter
	pingers  []httphandler.Pinger
	closers  []func()
	inMemory bool
}

func (b *backend) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

type mongoPinger struct{ client *mongo.Client }

func (p mongoPinger) Ping(ctx context.Context) error { return p.client.Ping(ctx, readpref.Primary()) }

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg, "showtime-api")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger(cfg.LogLevel)
	clk := clock.NewSystem()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var be *backend
	if cfg.Store == config.StoreMemory {
		be, err = memoryBackend(ctx, cfg, clk)
	} else {
		be, err = crdbBackend(ctx, cfg, logger)
	}
	if err != nil {
		logger.WithError(err).Error("failed to initialise backend")
		os.Exit(1)
	}
	defer be.close()

	pricing := cfg.PriceTable()
	manager := booking.NewManager(be.store, be.ledger, payment.NewMockGateway(), pricing, clk, logger,
		booking.WithHoldTTL(cfg.HoldTTL),
		booking.WithMaxSeats(cfg.MaxSeatsPerBooking),
		booking.WithExpiryBatch(cfg.ExpiryBatchSize),
	)
	classifier := eligibility.NewClassifier(be.store, be.counter, be.catalog, clk, logger,
		eligibility.WithLookaheadDays(cfg.LookaheadDays),
		eligibility.WithTrendingWindow(cfg.TrendingWindow),
		eligibility.WithLocation(cfg.Location()),
	)
	resolver := seatmap.NewResolver(be.store, be.occ, pricing, clk)

	if be.inMemory {
		go booking.NewSweeper(manager, logger, cfg.ExpirySweepInterval).Run(ctx)
	}

	handlers := httphandler.NewHandlers(classifier, resolver, manager, logger, be.pingers...)
	r := httphandler.SetupRouter(handlers, logger, be.limiter, be.idemp)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.WithFields(map[string]interface{}{"addr": cfg.HTTPAddr, "store": cfg.Store}).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("listen failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown Server ...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown")
	}
	logger.Info("Server exiting")
}

func memoryBackend(ctx context.Context, cfg *config.Config, clk clock.Clock) (*backend, error) {
	store := memory.New()
	if err := memory.SeedDemo(ctx, store, domain.DateOf(clk.Now().In(cfg.Location()))); err != nil {
		return nil, err
	}
	return &backend{
		store:    store,
		ledger:   store,
		counter:  store,
		occ:      store,
		catalog:  store,
		idemp:    idempotency.NewIdempotency(idempotency.NewMemoryStore(), cfg.IdempotencyTTL),
		pingers:  []httphandler.Pinger{store},
		inMemory: true,
	}, nil
}

func crdbBackend(ctx context.Context, cfg *config.Config, logger observability.Logger) (*backend, error) {
	be := &backend{}

	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		return nil, err
	}
	be.closers = append(be.closers, pool.Close)
	repo := crdb.NewRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		be.close()
		return nil, err
	}

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	be.closers = append(be.closers, func() { _ = redisClient.Close() })
	cache := redisadapter.NewCache(redisClient)

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		be.close()
		return nil, err
	}
	be.closers = append(be.closers, func() { _ = mongoClient.Disconnect(context.Background()) })

	be.store = redisadapter.NewLayoutCache(repo, cache, cfg.LayoutCacheTTL, logger)
	be.ledger = repo
	be.counter = repo
	be.occ = repo
	be.catalog = mongoadapter.NewCatalogRepository(mongoClient.Database(cfg.MongoDB), logger)
	be.idemp = idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempotencyTTL)
	be.limiter = rateLimit.NewRateLimiter(cache, cfg.RateLimitPerMinute, time.Minute)
	be.pingers = []httphandler.Pinger{repo, cache, mongoPinger{client: mongoClient}}
	return be, nil
}
