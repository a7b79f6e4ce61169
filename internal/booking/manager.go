package booking

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/robertarktes/showtime-booking/internal/clock"
	"github.com/robertarktes/showtime-booking/internal/domain"
	"github.com/robertarktes/showtime-booking/internal/ledger"
	"github.com/robertarktes/showtime-booking/internal/observability"
	"github.com/robertarktes/showtime-booking/internal/payment"
	"github.com/robertarktes/showtime-booking/internal/schedule"
	"github.com/robertarktes/showtime-booking/internal/seatmap"
)

type HoldRequest struct {
	ShowtimeID  uuid.UUID
	Seats       []string
	CustomerRef string
}

type HoldResult struct {
	BookingID uuid.UUID
	ExpiresAt time.Time
	Seats     []domain.BookedSeat
	Total     decimal.Decimal
}

type Result struct {
	BookingID  uuid.UUID
	Status     domain.BookingStatus
	TotalPrice decimal.Decimal
	SeatLabels []string
}

func resultOf(b domain.Booking) Result {
	return Result{BookingID: b.ID, Status: b.Status, TotalPrice: b.TotalPrice, SeatLabels: b.Labels()}
}

type Manager struct {
	store    schedule.Store
	ledger   ledger.Ledger
	payments payment.Gateway
	pricing  domain.PriceTable
	clock    clock.Clock
	logger   observability.Logger

	holdTTL     time.Duration
	maxSeats    int
	expiryBatch int
	parallelism int
}

type Option func(*Manager)

func WithHoldTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.holdTTL = d
		}
	}
}

func WithMaxSeats(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxSeats = n
		}
	}
}

// WithExpiryBatch caps how many stale holds one sweep releases.
func WithExpiryBatch(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.expiryBatch = n
		}
	}
}

func NewManager(store schedule.Store, l ledger.Ledger, payments payment.Gateway, pricing domain.PriceTable, clk clock.Clock, logger observability.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		ledger:      l,
		payments:    payments,
		pricing:     pricing,
		clock:       clk,
		logger:      logger,
		holdTTL:     10 * time.Minute,
		maxSeats:    10,
		expiryBatch: 200,
		parallelism: 4,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) inShowtime(ctx context.Context, showtimeID uuid.UUID, fn func(ctx context.Context, tx ledger.Tx) error) error {
	start := time.Now()
	err := m.ledger.InShowtime(ctx, showtimeID, fn)
	observability.DBTxDuration.Observe(time.Since(start).Seconds())
	return err
}

// Hold reserves seats for a customer as a pending booking. The availability
// check and the insert share one locked transaction per showtime.
func (m *Manager) Hold(ctx context.Context, req HoldRequest) (HoldResult, error) {
	switch n := len(req.Seats); {
	case n == 0:
		return HoldResult{}, errors.Wrap(domain.ErrInvalidSeatSelection, "no seats requested")
	case n > m.maxSeats:
		return HoldResult{}, errors.Wrapf(domain.ErrSelectionLimitExceeded, "%d seats requested, at most %d allowed", n, m.maxSeats)
	}

	ids := make([]domain.SeatID, 0, len(req.Seats))
	seen := make(map[domain.SeatID]bool, len(req.Seats))
	for _, label := range req.Seats {
		id, err := domain.ParseSeatLabel(label)
		if err != nil {
			return HoldResult{}, err
		}
		if seen[id] {
			return HoldResult{}, errors.Wrapf(domain.ErrInvalidSeatSelection, "seat %s requested twice", id.Label())
		}
		seen[id] = true
		ids = append(ids, id)
	}
	domain.SortSeats(ids)

	listing, err := m.store.GetShowtime(ctx, req.ShowtimeID)
	if err != nil {
		return HoldResult{}, err
	}
	if listing.Started(m.clock.Now()) {
		return HoldResult{}, errors.Wrapf(domain.ErrInvalidSeatSelection, "showtime %s started at %s", req.ShowtimeID, listing.StartsAt().UTC().Format(time.RFC3339))
	}
	layout, err := m.store.GetScreenLayout(ctx, listing.Showtime.ScreenID)
	if err != nil {
		return HoldResult{}, err
	}
	var invalid []string
	for _, id := range ids {
		if !layout.Sellable(id) {
			invalid = append(invalid, id.Label())
		}
	}
	if len(invalid) > 0 {
		return HoldResult{}, errors.Wrapf(domain.ErrInvalidSeatSelection, "not sellable on this screen: %v", invalid)
	}
	prices, err := m.pricing.ForLayout(listing.Showtime.BasePrice, layout)
	if err != nil {
		return HoldResult{}, errors.Wrapf(err, "showtime %s", req.ShowtimeID)
	}

	var held domain.Booking
	err = m.inShowtime(ctx, req.ShowtimeID, func(ctx context.Context, tx ledger.Tx) error {
		now := m.clock.Now()
		if _, err := m.expireLocked(ctx, tx, now); err != nil {
			return err
		}
		occ, err := tx.Occupancy(ctx, now)
		if err != nil {
			return err
		}
		current := seatmap.Build(listing, layout, prices, occ)
		var taken []domain.SeatID
		seats := make([]domain.BookedSeat, 0, len(ids))
		for _, id := range ids {
			s, _ := current.Seat(id)
			if s.State != domain.SeatAvailable {
				taken = append(taken, id)
				continue
			}
			seats = append(seats, domain.BookedSeat{Seat: id, Category: s.Category, Price: s.Price})
		}
		if len(taken) > 0 {
			return &domain.SeatUnavailableError{Seats: taken}
		}

		held = domain.NewPendingBooking(req.ShowtimeID, req.CustomerRef, seats, now, m.holdTTL)
		if err := tx.InsertBooking(ctx, held); err != nil {
			return err
		}
		return m.appendEvent(ctx, tx, EventHeld, held, now)
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSeatUnavailable):
			observability.HoldConflicts.WithLabelValues("seat_unavailable").Inc()
		case errors.Is(err, domain.ErrConcurrencyConflict):
			observability.HoldConflicts.WithLabelValues("concurrency").Inc()
		}
		return HoldResult{}, err
	}

	observability.HoldsCreated.Inc()
	m.logger.WithFields(map[string]interface{}{
		"booking_id":  held.ID,
		"showtime_id": held.ShowtimeID,
		"seats":       held.Labels(),
	}).Info("seats held")
	return HoldResult{BookingID: held.ID, ExpiresAt: held.ExpiresAt, Seats: held.Seats, Total: held.SeatTotal()}, nil
}

// ConfirmPayment charges the frozen seat total and confirms the booking.
// Confirming an already confirmed booking returns its stored result.
func (m *Manager) ConfirmPayment(ctx context.Context, bookingID uuid.UUID, paymentToken string) (Result, error) {
	b, err := m.ledger.Booking(ctx, bookingID)
	if err != nil {
		return Result{}, err
	}
	switch b.Status {
	case domain.StatusConfirmed:
		return resultOf(b), nil
	case domain.StatusCancelled:
		return Result{}, errors.Wrapf(domain.ErrBookingNotPending, "booking %s was cancelled (%s)", b.ID, b.CancelReason)
	}
	listing, err := m.store.GetShowtime(ctx, b.ShowtimeID)
	if err != nil {
		return Result{}, err
	}
	if now := m.clock.Now(); b.HoldExpired(now) || listing.Started(now) {
		if _, err := m.release(ctx, b.ShowtimeID, b.ID, domain.ReasonExpired); err != nil {
			return Result{}, err
		}
		return Result{}, errors.Wrapf(domain.ErrBookingNotPending, "hold of booking %s expired", b.ID)
	}

	charge, err := m.payments.Charge(ctx, payment.ChargeRequest{
		IdempotencyKey: b.ID.String(),
		Amount:         b.SeatTotal(),
		Token:          paymentToken,
		CustomerRef:    b.CustomerRef,
	})
	if err != nil {
		return Result{}, errors.Wrapf(err, "charge booking %s", b.ID)
	}
	if !charge.Succeeded {
		final, err := m.release(ctx, b.ShowtimeID, b.ID, domain.ReasonPaymentFailed)
		if err != nil {
			return Result{}, err
		}
		if final.Status == domain.StatusConfirmed {
			return resultOf(final), nil
		}
		return Result{}, errors.Wrapf(domain.ErrPaymentFailed, "booking %s: %s", b.ID, charge.FailureReason)
	}

	var (
		confirmed domain.Booking
		outcome   error
	)
	err = m.inShowtime(ctx, b.ShowtimeID, func(ctx context.Context, tx ledger.Tx) error {
		cur, err := tx.Booking(ctx, b.ID)
		if err != nil {
			return err
		}
		switch cur.Status {
		case domain.StatusConfirmed:
			confirmed = cur
			return nil
		case domain.StatusCancelled:
			outcome = errors.Wrapf(domain.ErrBookingNotPending, "booking %s was cancelled (%s)", cur.ID, cur.CancelReason)
			return nil
		}

		now := m.clock.Now()
		reason := domain.CancelReason("")
		if cur.HoldExpired(now) || listing.Started(now) {
			reason = domain.ReasonExpired
		} else {
			occ, err := tx.Occupancy(ctx, now)
			if err != nil {
				return err
			}
			for _, s := range cur.Seats {
				if occ[s.Seat].BookingID != cur.ID {
					reason = domain.ReasonSeatConflict
					break
				}
			}
		}
		if reason != "" {
			// The charge was captured; keep its reference for the refund.
			cur.PaymentRef = charge.Reference
			if err := m.cancelLocked(ctx, tx, &cur, reason, now); err != nil {
				return err
			}
			outcome = errors.Wrapf(domain.ErrBookingNotPending, "booking %s cancelled at confirmation (%s)", cur.ID, reason)
			return nil
		}

		if err := cur.Confirm(now, charge.Reference); err != nil {
			return err
		}
		if err := tx.UpdateBooking(ctx, cur); err != nil {
			return err
		}
		confirmed = cur
		return m.appendEvent(ctx, tx, EventConfirmed, cur, now)
	})
	if err != nil {
		return Result{}, err
	}
	if outcome != nil {
		m.logger.WithFields(map[string]interface{}{
			"booking_id":  b.ID,
			"payment_ref": charge.Reference,
		}).Warn("payment captured for a booking that could not be confirmed")
		return Result{}, outcome
	}

	observability.BookingsConfirmed.Inc()
	m.logger.WithFields(map[string]interface{}{
		"booking_id": confirmed.ID,
		"total":      confirmed.TotalPrice.String(),
	}).Info("booking confirmed")
	return resultOf(confirmed), nil
}

// Cancel releases a pending booking. Cancelling twice is a no-op; confirmed
// bookings need the refund workflow instead.
func (m *Manager) Cancel(ctx context.Context, bookingID uuid.UUID) (Result, error) {
	b, err := m.ledger.Booking(ctx, bookingID)
	if err != nil {
		return Result{}, err
	}
	if b.Status == domain.StatusConfirmed {
		return Result{}, errors.Wrapf(domain.ErrBookingNotPending, "booking %s is confirmed", b.ID)
	}
	final, err := m.release(ctx, b.ShowtimeID, b.ID, domain.ReasonCustomer)
	if err != nil {
		return Result{}, err
	}
	if final.Status == domain.StatusConfirmed {
		return Result{}, errors.Wrapf(domain.ErrBookingNotPending, "booking %s is confirmed", b.ID)
	}
	return resultOf(final), nil
}

func (m *Manager) Get(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error) {
	return m.ledger.Booking(ctx, bookingID)
}

// ExpireStaleHolds cancels pending bookings whose hold elapsed and returns
// how many were released. Showtimes are processed in parallel; each one under
// its own lock.
func (m *Manager) ExpireStaleHolds(ctx context.Context) (int, error) {
	now := m.clock.Now()
	stale, err := m.ledger.ExpiredPending(ctx, now, m.expiryBatch)
	if err != nil {
		return 0, err
	}
	showtimes := make(map[uuid.UUID]struct{})
	for _, b := range stale {
		showtimes[b.ShowtimeID] = struct{}{}
	}

	var released int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallelism)
	for id := range showtimes {
		id := id
		g.Go(func() error {
			var n int
			err := m.inShowtime(gctx, id, func(ctx context.Context, tx ledger.Tx) error {
				var err error
				n, err = m.expireLocked(ctx, tx, m.clock.Now())
				return err
			})
			if err != nil {
				return errors.Wrapf(err, "expire holds of showtime %s", id)
			}
			atomic.AddInt64(&released, int64(n))
			return nil
		})
	}
	err = g.Wait()
	if released > 0 {
		m.logger.WithField("released", released).Info("expired stale holds")
	}
	return int(released), err
}

// release cancels a pending booking under the showtime lock and returns the
// stored booking. Terminal bookings are returned unchanged.
func (m *Manager) release(ctx context.Context, showtimeID, bookingID uuid.UUID, reason domain.CancelReason) (domain.Booking, error) {
	var final domain.Booking
	err := m.inShowtime(ctx, showtimeID, func(ctx context.Context, tx ledger.Tx) error {
		cur, err := tx.Booking(ctx, bookingID)
		if err != nil {
			return err
		}
		final = cur
		if cur.Status != domain.StatusPending {
			return nil
		}
		now := m.clock.Now()
		if reason == domain.ReasonCustomer && cur.HoldExpired(now) {
			reason = domain.ReasonExpired
		}
		if err := m.cancelLocked(ctx, tx, &cur, reason, now); err != nil {
			return err
		}
		final = cur
		return nil
	})
	return final, err
}

func (m *Manager) expireLocked(ctx context.Context, tx ledger.Tx, now time.Time) (int, error) {
	stale, err := tx.ExpiredPending(ctx, now)
	if err != nil {
		return 0, err
	}
	for i := range stale {
		if err := m.cancelLocked(ctx, tx, &stale[i], domain.ReasonExpired, now); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

// cancelLocked is the single seat release path shared by cancel, expiry and
// failed confirmation.
func (m *Manager) cancelLocked(ctx context.Context, tx ledger.Tx, b *domain.Booking, reason domain.CancelReason, now time.Time) error {
	if err := b.Cancel(now, reason); err != nil {
		return err
	}
	if err := tx.UpdateBooking(ctx, *b); err != nil {
		return err
	}
	if err := m.appendEvent(ctx, tx, EventCancelled, *b, now); err != nil {
		return err
	}
	observability.BookingsCancelled.WithLabelValues(string(reason)).Inc()
	if reason == domain.ReasonExpired {
		observability.HoldsExpired.Inc()
	}
	return nil
}

func (m *Manager) appendEvent(ctx context.Context, tx ledger.Tx, eventType string, b domain.Booking, now time.Time) error {
	e, err := newEvent(eventType, b, now)
	if err != nil {
		return err
	}
	return tx.AppendOutbox(ctx, e)
}
