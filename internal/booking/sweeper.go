package booking

import (
	"context"
	"time"

	"github.com/robertarktes/showtime-booking/internal/observability"
)

// Sweeper runs ExpireStaleHolds on a fixed interval until ctx is done.
type Sweeper struct {
	manager    *Manager
	logger     observability.Logger
	interval   time.Duration
	maxRetries int
}

func NewSweeper(m *Manager, logger observability.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{manager: m, logger: logger, interval: interval, maxRetries: 3}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sweepWithRetry(ctx); err != nil && ctx.Err() == nil {
				s.logger.WithError(err).Error("expiry sweep failed after retries")
			}
		}
	}
}

func (s *Sweeper) sweepWithRetry(ctx context.Context) error {
	var err error
	for i := 0; i < s.maxRetries; i++ {
		if _, err = s.manager.ExpireStaleHolds(ctx); err == nil {
			return nil
		}
		s.logger.WithError(err).WithField("attempt", i+1).Warn("expiry sweep failed")
		backoff := time.Duration(1<<i) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}
