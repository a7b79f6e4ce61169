package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/robertarktes/showtime-booking/internal/domain"
	"github.com/robertarktes/showtime-booking/internal/schedule"
)

func (s *Store) CityHasActiveTheaters(_ context.Context, city string) (bool, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.theaters {
		if t.Active && strings.EqualFold(t.City, city) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListShowtimes(_ context.Context, q schedule.Query) ([]schedule.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []schedule.Listing
	for _, st := range s.showtimes {
		l, ok := s.listingLocked(st)
		if ok && q.Matches(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Showtime, out[j].Showtime
		if a.ShowDate != b.ShowDate {
			return a.ShowDate.Before(b.ShowDate)
		}
		if a.ShowTime != b.ShowTime {
			return a.ShowTime < b.ShowTime
		}
		return a.ID.String() < b.ID.String()
	})
	return out, nil
}

func (s *Store) GetShowtime(_ context.Context, id uuid.UUID) (schedule.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.showtimes[id]
	if !ok {
		return schedule.Listing{}, errors.Wrapf(domain.ErrNotFound, "showtime %s", id)
	}
	l, ok := s.listingLocked(st)
	if !ok || !l.Theater.Active {
		return schedule.Listing{}, errors.Wrapf(domain.ErrNotFound, "showtime %s", id)
	}
	return l, nil
}

func (s *Store) GetScreenLayout(_ context.Context, screenID uuid.UUID) (domain.SeatLayout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.screens[screenID]
	if !ok {
		return domain.SeatLayout{}, errors.Wrapf(domain.ErrNotFound, "screen %s", screenID)
	}
	return sc.Layout, nil
}

func (s *Store) listingLocked(st domain.Showtime) (schedule.Listing, bool) {
	sc, ok := s.screens[st.ScreenID]
	if !ok {
		return schedule.Listing{}, false
	}
	t, ok := s.theaters[sc.TheaterID]
	if !ok {
		return schedule.Listing{}, false
	}
	return schedule.Listing{Showtime: st, Theater: t, ScreenName: sc.Name}, true
}
