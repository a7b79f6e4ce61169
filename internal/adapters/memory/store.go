package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/robertarktes/showtime-booking/internal/domain"
	"github.com/robertarktes/showtime-booking/internal/ledger"
)

type seatKey struct {
	showtime uuid.UUID
	seat     domain.SeatID
}

type outboxRow struct {
	event       ledger.Event
	publishedAt *time.Time
}

// Store keeps schedule, catalog and ledger data in process. It backs
// STORE=memory and the service tests.
type Store struct {
	mu        sync.RWMutex
	theaters  map[uuid.UUID]domain.Theater
	screens   map[uuid.UUID]domain.Screen
	showtimes map[uuid.UUID]domain.Showtime
	movies    map[uuid.UUID]domain.Movie

	bookings   map[uuid.UUID]domain.Booking
	byShowtime map[uuid.UUID][]uuid.UUID
	claims     map[seatKey]uuid.UUID
	outbox     []outboxRow

	locks sync.Map
}

func New() *Store {
	return &Store{
		theaters:   make(map[uuid.UUID]domain.Theater),
		screens:    make(map[uuid.UUID]domain.Screen),
		showtimes:  make(map[uuid.UUID]domain.Showtime),
		movies:     make(map[uuid.UUID]domain.Movie),
		bookings:   make(map[uuid.UUID]domain.Booking),
		byShowtime: make(map[uuid.UUID][]uuid.UUID),
		claims:     make(map[seatKey]uuid.UUID),
	}
}

func (s *Store) UpsertTheater(_ context.Context, t domain.Theater) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.theaters[t.ID] = t
	return nil
}

func (s *Store) UpsertScreen(_ context.Context, sc domain.Screen) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.theaters[sc.TheaterID]; !ok {
		return errors.Wrapf(domain.ErrNotFound, "theater %s", sc.TheaterID)
	}
	s.screens[sc.ID] = sc
	return nil
}

func (s *Store) UpsertShowtime(_ context.Context, st domain.Showtime) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.screens[st.ScreenID]; !ok {
		return errors.Wrapf(domain.ErrNotFound, "screen %s", st.ScreenID)
	}
	s.showtimes[st.ID] = st
	return nil
}

func (s *Store) UpsertMovie(_ context.Context, m domain.Movie) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movies[m.ID] = m
	return nil
}

// Movies returns the catalog entries it knows among ids.
func (s *Store) Movies(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Movie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]domain.Movie, len(ids))
	for _, id := range ids {
		if m, ok := s.movies[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }
