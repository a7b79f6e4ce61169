package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/robertarktes/showtime-booking/internal/domain"
)

// SeedDemo loads one theater with a single screen and a week of evening
// shows so memory mode is usable straight away.
func SeedDemo(ctx context.Context, s *Store, today domain.Date) error {
	theater := domain.Theater{
		ID:       uuid.MustParse("6f1c2a3e-1d2b-4c5d-8e9f-0a1b2c3d4e5f"),
		Name:     "Riverside Cinema",
		City:     "Pune",
		TimeZone: "Asia/Kolkata",
		Active:   true,
	}
	layout, err := domain.LayoutFromRows(
		"RRRR_RRRR",
		"RRRR_RRRR",
		"EEEE_EEEE",
		"EEEE_EEEE",
		"PPP___PPP",
	)
	if err != nil {
		return err
	}
	screen := domain.Screen{
		ID:        uuid.MustParse("7a2d3b4f-2e3c-4d6e-9f0a-1b2c3d4e5f60"),
		TheaterID: theater.ID,
		Name:      "Hall 1",
		Layout:    layout,
	}
	nocturne := domain.Movie{
		ID:             uuid.MustParse("8b3e4c50-3f4d-4e7f-a01b-2c3d4e5f6071"),
		Title:          "Nocturne",
		Genre:          "drama",
		RuntimeMinutes: 124,
		Rating:         "UA",
	}
	horizon := domain.Movie{
		ID:             uuid.MustParse("9c4f5d61-405e-4f80-b12c-3d4e5f607182"),
		Title:          "Horizon Line",
		Genre:          "sci-fi",
		RuntimeMinutes: 141,
		Rating:         "U",
	}

	if err := s.UpsertTheater(ctx, theater); err != nil {
		return err
	}
	if err := s.UpsertScreen(ctx, screen); err != nil {
		return err
	}
	for _, m := range []domain.Movie{nocturne, horizon} {
		if err := s.UpsertMovie(ctx, m); err != nil {
			return err
		}
	}
	for day := 0; day < 7; day++ {
		movie := nocturne
		if day >= 3 {
			movie = horizon
		}
		st := domain.Showtime{
			ID:        uuid.NewSHA1(screen.ID, []byte(today.AddDays(day).String())),
			ScreenID:  screen.ID,
			MovieID:   movie.ID,
			ShowDate:  today.AddDays(day),
			ShowTime:  19*time.Hour + 30*time.Minute,
			BasePrice: decimal.NewFromInt(250),
		}
		if err := s.UpsertShowtime(ctx, st); err != nil {
			return err
		}
	}
	return nil
}
