package eligibility

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/robertarktes/showtime-booking/internal/clock"
	"github.com/robertarktes/showtime-booking/internal/domain"
	"github.com/robertarktes/showtime-booking/internal/ledger"
	"github.com/robertarktes/showtime-booking/internal/observability"
	"github.com/robertarktes/showtime-booking/internal/schedule"
)

// Catalog decorates movie IDs with display metadata. Unknown IDs are
// simply absent from the result.
type Catalog interface {
	Movies(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Movie, error)
}

type RankedMovie struct {
	domain.Movie
	Bookings int `json:"bookings"`
}

type Classification struct {
	City       string         `json:"city"`
	Date       domain.Date    `json:"-"`
	Trending   []RankedMovie  `json:"trending"`
	NowShowing []domain.Movie `json:"now_showing"`
	Upcoming   []domain.Movie `json:"upcoming"`
}

type Classifier struct {
	store     schedule.Store
	counter   ledger.Counter
	catalog   Catalog
	clock     clock.Clock
	logger    observability.Logger
	loc       *time.Location
	lookahead int
	window    time.Duration
}

type Option func(*Classifier)

func WithLookaheadDays(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.lookahead = n
		}
	}
}

func WithTrendingWindow(d time.Duration) Option {
	return func(c *Classifier) {
		if d > 0 {
			c.window = d
		}
	}
}

// WithLocation sets the zone that decides "today" when no date is given.
func WithLocation(loc *time.Location) Option {
	return func(c *Classifier) {
		if loc != nil {
			c.loc = loc
		}
	}
}

func NewClassifier(store schedule.Store, counter ledger.Counter, catalog Catalog, clk clock.Clock, logger observability.Logger, opts ...Option) *Classifier {
	c := &Classifier{
		store:     store,
		counter:   counter,
		catalog:   catalog,
		clock:     clk,
		logger:    logger,
		loc:       time.UTC,
		lookahead: 7,
		window:    7 * 24 * time.Hour,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify splits the city's movies into trending, now showing and upcoming
// for refDate. A zero refDate means today. Eligibility comes from showtimes
// alone; the catalog is only read to fill in titles.
func (c *Classifier) Classify(ctx context.Context, city string, refDate domain.Date) (Classification, error) {
	now := c.clock.Now()
	if refDate.IsZero() {
		refDate = domain.DateOf(now.In(c.loc))
	}
	city = strings.TrimSpace(city)

	q, err := schedule.NewQuery(city, schedule.OnDates(refDate, refDate.AddDays(c.lookahead)))
	if err != nil {
		return Classification{}, err
	}
	ok, err := c.store.CityHasActiveTheaters(ctx, city)
	if err != nil {
		return Classification{}, err
	}
	if !ok {
		return Classification{}, errors.Wrapf(domain.ErrInvalidCity, "no active theaters in %q", city)
	}

	listings, err := c.store.ListShowtimes(ctx, q)
	if err != nil {
		return Classification{}, err
	}

	showingToday := make(map[uuid.UUID]bool)
	later := make(map[uuid.UUID]bool)
	for _, l := range listings {
		if l.Showtime.ShowDate == refDate {
			showingToday[l.Showtime.MovieID] = true
		} else if l.Showtime.ShowDate.After(refDate) {
			later[l.Showtime.MovieID] = true
		}
	}
	nowIDs := keys(showingToday)
	var upcomingIDs []uuid.UUID
	for id := range later {
		if !showingToday[id] {
			upcomingIDs = append(upcomingIDs, id)
		}
	}

	var (
		counts map[uuid.UUID]int
		movies map[uuid.UUID]domain.Movie
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if len(nowIDs) == 0 {
			return nil
		}
		var err error
		counts, err = c.counter.ConfirmedCountsByMovie(gctx, city, nowIDs, now.Add(-c.window), now)
		return err
	})
	g.Go(func() error {
		ids := append(append([]uuid.UUID(nil), nowIDs...), upcomingIDs...)
		if len(ids) == 0 {
			return nil
		}
		var err error
		movies, err = c.catalog.Movies(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return Classification{}, err
	}

	// Trending movies are taken out of now showing so the three lists
	// never share a movie.
	res := Classification{
		City:     city,
		Date:     refDate,
		Trending: []RankedMovie{},
		Upcoming: decorate(upcomingIDs, movies),
	}
	var rest []uuid.UUID
	for _, id := range nowIDs {
		if n := counts[id]; n > 0 {
			res.Trending = append(res.Trending, RankedMovie{Movie: movieOrID(id, movies), Bookings: n})
			continue
		}
		rest = append(rest, id)
	}
	res.NowShowing = decorate(rest, movies)
	sort.Slice(res.Trending, func(i, j int) bool {
		a, b := res.Trending[i], res.Trending[j]
		if a.Bookings != b.Bookings {
			return a.Bookings > b.Bookings
		}
		return a.ID.String() < b.ID.String()
	})

	c.logger.WithFields(map[string]interface{}{
		"city":        city,
		"date":        refDate.String(),
		"listings":    len(listings),
		"now_showing": len(res.NowShowing),
		"upcoming":    len(res.Upcoming),
		"trending":    len(res.Trending),
	}).Debug("classified movies")
	return res, nil
}

func keys(m map[uuid.UUID]bool) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}

func movieOrID(id uuid.UUID, movies map[uuid.UUID]domain.Movie) domain.Movie {
	if m, ok := movies[id]; ok {
		return m
	}
	return domain.Movie{ID: id}
}

func decorate(ids []uuid.UUID, movies map[uuid.UUID]domain.Movie) []domain.Movie {
	out := make([]domain.Movie, 0, len(ids))
	for _, id := range ids {
		out = append(out, movieOrID(id, movies))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
