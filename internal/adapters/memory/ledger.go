package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/robertarktes/showtime-booking/internal/domain"
	"github.com/robertarktes/showtime-booking/internal/ledger"
)

func (s *Store) showtimeLock(id uuid.UUID) *sync.Mutex {
	l, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return l.(*sync.Mutex)
}

// InShowtime serialises callers per showtime. Writes are staged and applied
// together once fn returns nil.
func (s *Store) InShowtime(ctx context.Context, showtimeID uuid.UUID, fn func(ctx context.Context, tx ledger.Tx) error) error {
	s.mu.RLock()
	_, ok := s.showtimes[showtimeID]
	s.mu.RUnlock()
	if !ok {
		return errors.Wrapf(domain.ErrNotFound, "showtime %s", showtimeID)
	}

	lock := s.showtimeLock(showtimeID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{store: s, showtimeID: showtimeID, staged: make(map[uuid.UUID]domain.Booking)}
	if err := fn(ctx, t); err != nil {
		return err
	}
	return s.apply(t)
}

func (s *Store) apply(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range t.order {
		b := t.staged[id]
		if _, exists := s.bookings[id]; !exists {
			for _, seat := range b.Seats {
				if owner, taken := s.claims[seatKey{b.ShowtimeID, seat.Seat}]; taken && owner != id && !t.releases(owner) {
					return errors.Wrapf(domain.ErrConcurrencyConflict, "seat %s already claimed", seat.Seat.Label())
				}
			}
		}
	}

	for _, id := range t.order {
		b := t.staged[id]
		if _, exists := s.bookings[id]; !exists {
			s.byShowtime[b.ShowtimeID] = append(s.byShowtime[b.ShowtimeID], id)
		}
		s.bookings[id] = b.Clone()
		if b.Status == domain.StatusCancelled {
			for _, seat := range b.Seats {
				k := seatKey{b.ShowtimeID, seat.Seat}
				if s.claims[k] == id {
					delete(s.claims, k)
				}
			}
		}
	}
	for _, id := range t.order {
		b := t.staged[id]
		if b.Status == domain.StatusCancelled {
			continue
		}
		for _, seat := range b.Seats {
			s.claims[seatKey{b.ShowtimeID, seat.Seat}] = id
		}
	}
	for _, e := range t.events {
		s.outbox = append(s.outbox, outboxRow{event: e})
	}
	return nil
}

type tx struct {
	store      *Store
	showtimeID uuid.UUID
	staged     map[uuid.UUID]domain.Booking
	order      []uuid.UUID
	events     []ledger.Event
}

func (t *tx) releases(id uuid.UUID) bool {
	b, ok := t.staged[id]
	return ok && b.Status == domain.StatusCancelled
}

func (t *tx) stage(b domain.Booking) {
	if _, ok := t.staged[b.ID]; !ok {
		t.order = append(t.order, b.ID)
	}
	t.staged[b.ID] = b.Clone()
}

func (t *tx) showtimeBookings() []domain.Booking {
	t.store.mu.RLock()
	out := make([]domain.Booking, 0, len(t.store.byShowtime[t.showtimeID])+len(t.staged))
	seen := make(map[uuid.UUID]bool)
	for _, id := range t.store.byShowtime[t.showtimeID] {
		b := t.store.bookings[id]
		if staged, ok := t.staged[id]; ok {
			b = staged
		}
		seen[id] = true
		out = append(out, b.Clone())
	}
	t.store.mu.RUnlock()
	for _, id := range t.order {
		if !seen[id] {
			out = append(out, t.staged[id].Clone())
		}
	}
	return out
}

func (t *tx) Occupancy(_ context.Context, now time.Time) (domain.Occupancy, error) {
	return domain.OccupancyFrom(t.showtimeBookings(), now), nil
}

func (t *tx) Booking(_ context.Context, id uuid.UUID) (domain.Booking, error) {
	if b, ok := t.staged[id]; ok {
		return b.Clone(), nil
	}
	t.store.mu.RLock()
	b, ok := t.store.bookings[id]
	t.store.mu.RUnlock()
	if !ok || b.ShowtimeID != t.showtimeID {
		return domain.Booking{}, errors.Wrapf(domain.ErrNotFound, "booking %s", id)
	}
	return b.Clone(), nil
}

func (t *tx) InsertBooking(_ context.Context, b domain.Booking) error {
	if b.ShowtimeID != t.showtimeID {
		return errors.Newf("booking %s belongs to showtime %s", b.ID, b.ShowtimeID)
	}
	if _, ok := t.staged[b.ID]; ok {
		return errors.Wrapf(domain.ErrConcurrencyConflict, "booking %s exists", b.ID)
	}
	t.store.mu.RLock()
	_, exists := t.store.bookings[b.ID]
	t.store.mu.RUnlock()
	if exists {
		return errors.Wrapf(domain.ErrConcurrencyConflict, "booking %s exists", b.ID)
	}
	t.stage(b)
	return nil
}

// UpdateBooking only moves pending bookings, so terminal ones never change.
func (t *tx) UpdateBooking(ctx context.Context, b domain.Booking) error {
	cur, err := t.Booking(ctx, b.ID)
	if err != nil {
		return err
	}
	if cur.Status != domain.StatusPending {
		return errors.Wrapf(domain.ErrBookingNotPending, "booking %s", b.ID)
	}
	t.stage(b)
	return nil
}

func (t *tx) ExpiredPending(_ context.Context, now time.Time) ([]domain.Booking, error) {
	var out []domain.Booking
	for _, b := range t.showtimeBookings() {
		if b.HoldExpired(now) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (t *tx) AppendOutbox(_ context.Context, e ledger.Event) error {
	t.events = append(t.events, e)
	return nil
}

func (s *Store) Snapshot(_ context.Context, showtimeID uuid.UUID, now time.Time) (domain.Occupancy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bookings := make([]domain.Booking, 0, len(s.byShowtime[showtimeID]))
	for _, id := range s.byShowtime[showtimeID] {
		bookings = append(bookings, s.bookings[id])
	}
	return domain.OccupancyFrom(bookings, now), nil
}

func (s *Store) Booking(_ context.Context, id uuid.UUID) (domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return domain.Booking{}, errors.Wrapf(domain.ErrNotFound, "booking %s", id)
	}
	return b.Clone(), nil
}

func (s *Store) ExpiredPending(_ context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	s.mu.RLock()
	var out []domain.Booking
	for _, b := range s.bookings {
		if b.HoldExpired(now) {
			out = append(out, b.Clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ConfirmedCountsByMovie(_ context.Context, city string, movieIDs []uuid.UUID, since, until time.Time) (map[uuid.UUID]int, error) {
	wanted := make(map[uuid.UUID]bool, len(movieIDs))
	for _, id := range movieIDs {
		wanted[id] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[uuid.UUID]int)
	for _, b := range s.bookings {
		if b.Status != domain.StatusConfirmed || b.CreatedAt.Before(since) || b.CreatedAt.After(until) {
			continue
		}
		st, ok := s.showtimes[b.ShowtimeID]
		if !ok || !wanted[st.MovieID] {
			continue
		}
		l, ok := s.listingLocked(st)
		if !ok || !l.Theater.Active || !strings.EqualFold(l.Theater.City, strings.TrimSpace(city)) {
			continue
		}
		counts[st.MovieID]++
	}
	return counts, nil
}
