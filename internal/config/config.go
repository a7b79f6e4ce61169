package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/robertarktes/showtime-booking/internal/domain"
)

const (
	StoreCRDB   = "crdb"
	StoreMemory = "memory"
)

type Config struct {
	CRDBDSN      string
	MongoURI     string
	MongoDB      string
	RedisAddr    string
	RabbitURL    string
	AuditQueue   string
	OTLPEndpoint string
	HTTPAddr     string
	LogLevel     string
	Store        string

	HoldTTL             time.Duration
	MaxSeatsPerBooking  int
	LookaheadDays       int
	TrendingWindow      time.Duration
	ExpirySweepInterval time.Duration
	ExpiryBatchSize     int
	OutboxInterval      time.Duration
	SeatPriceDeltas     map[domain.SeatCategory]decimal.Decimal
	MinSeatPrice        decimal.Decimal
	DefaultTimeZone     string
	LayoutCacheTTL      time.Duration
	IdempotencyTTL      time.Duration
	RateLimitPerMinute  int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		CRDBDSN:         os.Getenv("CRDB_DSN"),
		MongoURI:        os.Getenv("MONGO_URI"),
		MongoDB:         envOr("MONGO_DB", "showtime"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RabbitURL:       os.Getenv("RABBIT_URL"),
		AuditQueue:      envOr("AUDIT_QUEUE", "showtime.audit"),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		HTTPAddr:        envOr("HTTP_ADDR", ":8080"),
		LogLevel:        envOr("LOG_LEVEL", "info"),
		Store:           strings.ToLower(envOr("STORE", StoreCRDB)),
		DefaultTimeZone: envOr("DEFAULT_TIMEZONE", "UTC"),
	}

	var err error
	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"HOLD_TTL", 10 * time.Minute, &cfg.HoldTTL},
		{"TRENDING_WINDOW", 7 * 24 * time.Hour, &cfg.TrendingWindow},
		{"EXPIRY_SWEEP_INTERVAL", 30 * time.Second, &cfg.ExpirySweepInterval},
		{"OUTBOX_INTERVAL", 5 * time.Second, &cfg.OutboxInterval},
		{"LAYOUT_CACHE_TTL", 10 * time.Minute, &cfg.LayoutCacheTTL},
		{"IDEMPOTENCY_TTL", 24 * time.Hour, &cfg.IdempotencyTTL},
	}
	for _, d := range durations {
		if *d.dst, err = durationEnv(d.key, d.def); err != nil {
			return nil, err
		}
	}

	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"MAX_SEATS_PER_BOOKING", 10, &cfg.MaxSeatsPerBooking},
		{"UPCOMING_LOOKAHEAD_DAYS", 7, &cfg.LookaheadDays},
		{"EXPIRY_BATCH_SIZE", 200, &cfg.ExpiryBatchSize},
		{"RATE_LIMIT_PER_MINUTE", 120, &cfg.RateLimitPerMinute},
	}
	for _, i := range ints {
		if *i.dst, err = intEnv(i.key, i.def); err != nil {
			return nil, err
		}
	}

	if cfg.SeatPriceDeltas, err = ParsePriceDeltas(envOr("SEAT_PRICE_DELTAS", "regular:0,executive:50,premium:120")); err != nil {
		return nil, err
	}
	if cfg.MinSeatPrice, err = decimal.NewFromString(envOr("MIN_SEAT_PRICE", "1")); err != nil {
		return nil, errors.Wrap(err, "MIN_SEAT_PRICE")
	}
	if !cfg.MinSeatPrice.IsPositive() {
		return nil, errors.New("MIN_SEAT_PRICE must be positive")
	}
	if _, err := time.LoadLocation(cfg.DefaultTimeZone); err != nil {
		return nil, errors.Wrapf(err, "DEFAULT_TIMEZONE %q", cfg.DefaultTimeZone)
	}
	if cfg.Store != StoreCRDB && cfg.Store != StoreMemory {
		return nil, errors.Newf("STORE must be %s or %s, got %q", StoreCRDB, StoreMemory, cfg.Store)
	}
	if cfg.Store == StoreCRDB && cfg.CRDBDSN == "" {
		return nil, errors.New("CRDB_DSN is required when STORE=crdb")
	}
	return cfg, nil
}

// Location is the zone used when a request carries no date.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) PriceTable() domain.PriceTable {
	return domain.NewPriceTable(c.SeatPriceDeltas, c.MinSeatPrice)
}

// ParsePriceDeltas reads "category:delta" pairs separated by commas.
func ParsePriceDeltas(v string) (map[domain.SeatCategory]decimal.Decimal, error) {
	out := make(map[domain.SeatCategory]decimal.Decimal)
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, amount, ok := strings.Cut(pair, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, errors.Newf("SEAT_PRICE_DELTAS: malformed pair %q", pair)
		}
		d, err := decimal.NewFromString(strings.TrimSpace(amount))
		if err != nil {
			return nil, errors.Wrapf(err, "SEAT_PRICE_DELTAS: %q", pair)
		}
		out[domain.SeatCategory(strings.ToLower(strings.TrimSpace(name)))] = d
	}
	return out, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "%s", key)
	}
	if d <= 0 {
		return 0, errors.Newf("%s must be positive", key)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "%s", key)
	}
	if n <= 0 {
		return 0, errors.Newf("%s must be positive", key)
	}
	return n, nil
}
