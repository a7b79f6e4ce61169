package seatmap

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/robertarktes/showtime-booking/internal/clock"
	"github.com/robertarktes/showtime-booking/internal/domain"
	"github.com/robertarktes/showtime-booking/internal/schedule"
)

type Seat struct {
	ID       domain.SeatID       `json:"-"`
	Index    int                 `json:"index"`
	Label    string              `json:"label"`
	Category domain.SeatCategory `json:"category"`
	Price    decimal.Decimal     `json:"price"`
	State    domain.SeatState    `json:"state"`
}

type Row struct {
	Label string `json:"row_label"`
	Seats []Seat `json:"seats"`
}

type SeatMap struct {
	ShowtimeID uuid.UUID `json:"showtime_id"`
	MovieID    uuid.UUID `json:"movie_id"`
	Rows       []Row     `json:"rows"`
}

// Counts tallies seats per state. The values sum to the sellable slot count.
func (m SeatMap) Counts() map[domain.SeatState]int {
	out := map[domain.SeatState]int{
		domain.SeatAvailable: 0,
		domain.SeatHeld:      0,
		domain.SeatConfirmed: 0,
	}
	for _, r := range m.Rows {
		for _, s := range r.Seats {
			out[s.State]++
		}
	}
	return out
}

func (m SeatMap) Seat(id domain.SeatID) (Seat, bool) {
	for _, r := range m.Rows {
		for _, s := range r.Seats {
			if s.ID == id {
				return s, true
			}
		}
	}
	return Seat{}, false
}

// Build projects a layout, its prices and one occupancy read into a seat map.
// Gaps are left out but keep their position in the numbering.
func Build(l schedule.Listing, layout domain.SeatLayout, prices map[domain.SeatCategory]decimal.Decimal, occ domain.Occupancy) SeatMap {
	m := SeatMap{
		ShowtimeID: l.Showtime.ID,
		MovieID:    l.Showtime.MovieID,
		Rows:       make([]Row, 0, len(layout.Rows)),
	}
	for r, slots := range layout.Rows {
		row := Row{Label: domain.RowLabel(r), Seats: make([]Seat, 0, len(slots))}
		for i, c := range slots {
			if c == domain.Gap {
				continue
			}
			id := domain.SeatID{Row: r, Slot: i}
			row.Seats = append(row.Seats, Seat{
				ID:       id,
				Index:    i + 1,
				Label:    id.Label(),
				Category: c,
				Price:    prices[c],
				State:    occ.State(id),
			})
		}
		m.Rows = append(m.Rows, row)
	}
	return m
}

// OccupancyReader is the read side of the booking ledger.
type OccupancyReader interface {
	Snapshot(ctx context.Context, showtimeID uuid.UUID, now time.Time) (domain.Occupancy, error)
}

type Resolver struct {
	store   schedule.Store
	ledger  OccupancyReader
	pricing domain.PriceTable
	clock   clock.Clock
}

func NewResolver(store schedule.Store, ledger OccupancyReader, pricing domain.PriceTable, clk clock.Clock) *Resolver {
	return &Resolver{store: store, ledger: ledger, pricing: pricing, clock: clk}
}

func (r *Resolver) Resolve(ctx context.Context, showtimeID uuid.UUID) (SeatMap, error) {
	l, err := r.store.GetShowtime(ctx, showtimeID)
	if err != nil {
		return SeatMap{}, err
	}
	layout, err := r.store.GetScreenLayout(ctx, l.Showtime.ScreenID)
	if err != nil {
		return SeatMap{}, err
	}
	prices, err := r.pricing.ForLayout(l.Showtime.BasePrice, layout)
	if err != nil {
		return SeatMap{}, errors.Wrapf(err, "showtime %s", showtimeID)
	}
	occ, err := r.ledger.Snapshot(ctx, showtimeID, r.clock.Now())
	if err != nil {
		return SeatMap{}, err
	}
	return Build(l, layout, prices, occ), nil
}
