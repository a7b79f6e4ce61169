package crdb_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/robertarktes/showtime-booking/internal/adapters/crdb"
	"github.com/robertarktes/showtime-booking/internal/domain"
	"github.com/robertarktes/showtime-booking/internal/ledger"
	"github.com/robertarktes/showtime-booking/internal/schedule"
)

func startCockroach(t *testing.T) *crdb.Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("container test")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp", "8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.Endpoint(ctx, "postgresql")
	require.NoError(t, err)
	pool, err := pgxpool.New(ctx, dsn+"/defaultdb?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := crdb.NewRepository(pool)
	require.NoError(t, repo.Migrate(ctx))
	return repo
}

func seedShowtime(t *testing.T, repo *crdb.Repository) domain.Showtime {
	t.Helper()
	ctx := context.Background()
	layout, err := domain.LayoutFromRows("RR_RR", "PPPPP")
	require.NoError(t, err)

	theater := domain.Theater{ID: uuid.New(), Name: "Riverside", City: "Pune", TimeZone: "Asia/Kolkata", Active: true}
	screen := domain.Screen{ID: uuid.New(), TheaterID: theater.ID, Name: "Hall 1", Layout: layout}
	st := domain.Showtime{
		ID:        uuid.New(),
		ScreenID:  screen.ID,
		MovieID:   uuid.New(),
		ShowDate:  domain.Date{Year: 2026, Month: time.March, Day: 1},
		ShowTime:  19*time.Hour + 30*time.Minute,
		BasePrice: decimal.RequireFromString("250.50"),
	}
	require.NoError(t, repo.UpsertTheater(ctx, theater))
	require.NoError(t, repo.UpsertScreen(ctx, screen))
	require.NoError(t, repo.UpsertShowtime(ctx, st))
	return st
}

func TestRepository_Schedule(t *testing.T) {
	repo := startCockroach(t)
	ctx := context.Background()
	st := seedShowtime(t, repo)

	ok, err := repo.CityHasActiveTheaters(ctx, "pune")
	require.NoError(t, err)
	assert.True(t, ok)

	q, err := schedule.NewQuery("PUNE", schedule.OnDates(st.ShowDate, st.ShowDate), schedule.ForMovies(st.MovieID))
	require.NoError(t, err)
	listings, err := repo.ListShowtimes(ctx, q)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	got := listings[0].Showtime
	assert.Equal(t, st.ShowDate, got.ShowDate)
	assert.Equal(t, st.ShowTime, got.ShowTime)
	assert.True(t, st.BasePrice.Equal(got.BasePrice))
	assert.Equal(t, "Hall 1", listings[0].ScreenName)

	layout, err := repo.GetScreenLayout(ctx, st.ScreenID)
	require.NoError(t, err)
	assert.Equal(t, 9, layout.SellableCount())

	_, err = repo.GetShowtime(ctx, uuid.New())
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRepository_LedgerClaims(t *testing.T) {
	repo := startCockroach(t)
	ctx := context.Background()
	st := seedShowtime(t, repo)
	now := time.Now().UTC().Truncate(time.Microsecond)
	seat := domain.BookedSeat{Seat: domain.SeatID{Row: 1, Slot: 2}, Category: domain.CategoryPremium, Price: decimal.NewFromInt(300)}

	first := domain.NewPendingBooking(st.ID, "a", []domain.BookedSeat{seat}, now, 10*time.Minute)
	require.NoError(t, repo.InShowtime(ctx, st.ID, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.InsertBooking(ctx, first); err != nil {
			return err
		}
		return tx.AppendOutbox(ctx, ledger.Event{ID: uuid.New(), AggregateID: first.ID, Type: "booking.held", Payload: []byte(`{}`), CreatedAt: now})
	}))

	occ, err := repo.Snapshot(ctx, st.ID, now)
	require.NoError(t, err)
	assert.Equal(t, domain.SeatHeld, occ.State(seat.Seat))

	// The partial unique index rejects a second live claim even without the
	// occupancy check.
	second := domain.NewPendingBooking(st.ID, "b", []domain.BookedSeat{seat}, now, 10*time.Minute)
	err = repo.InShowtime(ctx, st.ID, func(ctx context.Context, tx ledger.Tx) error {
		return tx.InsertBooking(ctx, second)
	})
	assert.True(t, errors.Is(err, domain.ErrConcurrencyConflict), "got %v", err)

	require.NoError(t, repo.InShowtime(ctx, st.ID, func(ctx context.Context, tx ledger.Tx) error {
		b, err := tx.Booking(ctx, first.ID)
		if err != nil {
			return err
		}
		if err := b.Confirm(now, "pay-1"); err != nil {
			return err
		}
		return tx.UpdateBooking(ctx, b)
	}))

	stored, err := repo.Booking(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, stored.Status)
	assert.True(t, decimal.NewFromInt(300).Equal(stored.TotalPrice))
	require.Len(t, stored.Seats, 1)
	assert.Equal(t, seat.Seat, stored.Seats[0].Seat)

	counts, err := repo.ConfirmedCountsByMovie(ctx, "Pune", []uuid.UUID{st.MovieID}, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, counts[st.MovieID])

	records, err := repo.Unpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NoError(t, repo.MarkPublished(ctx, records[0].ID, now))
	records, err = repo.Unpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRepository_ExpiredPending(t *testing.T) {
	repo := startCockroach(t)
	ctx := context.Background()
	st := seedShowtime(t, repo)
	now := time.Now().UTC().Truncate(time.Microsecond)

	stale := domain.NewPendingBooking(st.ID, "a", []domain.BookedSeat{{Seat: domain.SeatID{Row: 0, Slot: 0}, Category: domain.CategoryRegular, Price: decimal.NewFromInt(250)}}, now.Add(-20*time.Minute), 10*time.Minute)
	require.NoError(t, repo.InShowtime(ctx, st.ID, func(ctx context.Context, tx ledger.Tx) error {
		return tx.InsertBooking(ctx, stale)
	}))

	expired, err := repo.ExpiredPending(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, stale.ID, expired[0].ID)

	occ, err := repo.Snapshot(ctx, st.ID, now)
	require.NoError(t, err)
	assert.Equal(t, domain.SeatAvailable, occ.State(domain.SeatID{Row: 0, Slot: 0}))

	require.NoError(t, repo.InShowtime(ctx, st.ID, func(ctx context.Context, tx ledger.Tx) error {
		b := expired[0]
		if err := b.Cancel(now, domain.ReasonExpired); err != nil {
			return err
		}
		return tx.UpdateBooking(ctx, b)
	}))
	expired, err = repo.ExpiredPending(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, expired)
}
