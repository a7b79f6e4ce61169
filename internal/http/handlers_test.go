package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertarktes/showtime-booking/internal/adapters/memory"
	"github.com/robertarktes/showtime-booking/internal/booking"
	"github.com/robertarktes/showtime-booking/internal/clock"
	"github.com/robertarktes/showtime-booking/internal/config"
	"github.com/robertarktes/showtime-booking/internal/domain"
	"github.com/robertarktes/showtime-booking/internal/eligibility"
	api "github.com/robertarktes/showtime-booking/internal/http"
	"github.com/robertarktes/showtime-booking/internal/idempotency"
	"github.com/robertarktes/showtime-booking/internal/observability"
	"github.com/robertarktes/showtime-booking/internal/payment"
	"github.com/robertarktes/showtime-booking/internal/rateLimit"
	"github.com/robertarktes/showtime-booking/internal/seatmap"
)

var start = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

var demoScreen = uuid.MustParse("7a2d3b4f-2e3c-4d6e-9f0a-1b2c3d4e5f60")

type server struct {
	srv   *httptest.Server
	clock *clock.Manual
	hook  *test.Hook
	today uuid.UUID
}

type options struct {
	limiter  rateLimit.Limiter
	bookings api.Bookings
	pingers  []api.Pinger
}

func newServer(t *testing.T, opts options) *server {
	t.Helper()
	ctx := context.Background()

	store := memory.New()
	today := domain.DateOf(start)
	require.NoError(t, memory.SeedDemo(ctx, store, today))

	deltas, err := config.ParsePriceDeltas("regular:0,executive:50,premium:120")
	require.NoError(t, err)
	pricing := domain.NewPriceTable(deltas, decimal.NewFromInt(1))

	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	logger := observability.FromLogrus(log)
	clk := clock.NewManual(start)

	manager := booking.NewManager(store, store, payment.NewMockGateway(), pricing, clk, logger)
	classifier := eligibility.NewClassifier(store, store, store, clk, logger)
	resolver := seatmap.NewResolver(store, store, pricing, clk)

	var bookings api.Bookings = manager
	if opts.bookings != nil {
		bookings = opts.bookings
	}
	pingers := append([]api.Pinger{store}, opts.pingers...)
	h := api.NewHandlers(classifier, resolver, bookings, logger, pingers...)
	idemp := idempotency.NewIdempotency(idempotency.NewMemoryStore(), time.Hour)

	srv := httptest.NewServer(api.SetupRouter(h, logger, opts.limiter, idemp))
	t.Cleanup(srv.Close)

	return &server{
		srv:   srv,
		clock: clk,
		hook:  hook,
		today: uuid.NewSHA1(demoScreen, []byte(today.String())),
	}
}

func (s *server) do(t *testing.T, method, path, body string, headers ...string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, s.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func titles(t *testing.T, v interface{}) []string {
	t.Helper()
	list, ok := v.([]interface{})
	require.True(t, ok, "want list, got %T", v)
	out := make([]string, len(list))
	for i, item := range list {
		out[i] = item.(map[string]interface{})["title"].(string)
	}
	return out
}

func seatState(t *testing.T, seatMap map[string]interface{}, label string) string {
	t.Helper()
	for _, row := range seatMap["rows"].([]interface{}) {
		for _, seat := range row.(map[string]interface{})["seats"].([]interface{}) {
			s := seat.(map[string]interface{})
			if s["label"] == label {
				return s["state"].(string)
			}
		}
	}
	t.Fatalf("seat %s not in map", label)
	return ""
}

func TestBookingFlow_EndToEnd(t *testing.T) {
	s := newServer(t, options{})
	holds := "/v1/showtimes/" + s.today.String() + "/holds"

	resp, body := s.do(t, http.MethodPost, holds, `{"seats":["A2","A1"],"customer_ref":"cust-1"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	bookingID := body["booking_id"].(string)
	assert.Equal(t, "500", body["total_price"])
	assert.Equal(t, []interface{}{"A1", "A2"}, body["seats"])
	expires, err := time.Parse(time.RFC3339, body["expires_at"].(string))
	require.NoError(t, err)
	assert.Equal(t, start.Add(10*time.Minute), expires)

	resp, body = s.do(t, http.MethodPost, holds, `{"seats":["A1","A3"],"customer_ref":"cust-2"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, []interface{}{"A1"}, body["seats"])

	resp, body = s.do(t, http.MethodGet, "/v1/showtimes/"+s.today.String()+"/seats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "held", seatState(t, body, "A1"))
	assert.Equal(t, "available", seatState(t, body, "A3"))

	resp, body = s.do(t, http.MethodPost, "/v1/bookings/"+bookingID+"/confirm", `{"payment_token":"tok_visa"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "confirmed", body["status"])
	assert.Equal(t, "500", body["total_price"])
	assert.Equal(t, []interface{}{"A1", "A2"}, body["seats"])

	resp, body = s.do(t, http.MethodGet, "/v1/showtimes/"+s.today.String()+"/seats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "confirmed", seatState(t, body, "A2"))
	counts := body["counts"].(map[string]interface{})
	assert.Equal(t, float64(2), counts["confirmed"])

	resp, body = s.do(t, http.MethodGet, "/v1/bookings/"+bookingID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cust-1", body["customer_ref"])
	assert.Equal(t, "confirmed", body["status"])
	assert.NotContains(t, body, "expires_at")

	resp, body = s.do(t, http.MethodPost, "/v1/bookings/"+bookingID+"/cancel", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Nil(t, body["retry"])

	resp, body = s.do(t, http.MethodGet, "/v1/cities/Pune/movies", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2026-03-01", body["date"])
	assert.Equal(t, []string{"Nocturne"}, titles(t, body["trending"]))
	assert.Equal(t, float64(1), body["trending"].([]interface{})[0].(map[string]interface{})["bookings"])
	assert.Empty(t, body["now_showing"], "a trending movie is listed only once")
	assert.Equal(t, []string{"Horizon Line"}, titles(t, body["upcoming"]))

	for _, entry := range s.hook.AllEntries() {
		assert.NotEqual(t, logrus.ErrorLevel, entry.Level, "business outcomes are not errors: %s", entry.Message)
	}
}

func TestListMovies_Errors(t *testing.T) {
	s := newServer(t, options{})

	resp, _ := s.do(t, http.MethodGet, "/v1/cities/Atlantis/movies", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, "/v1/cities/Pune/movies?date=03-01-2026", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := s.do(t, http.MethodGet, "/v1/cities/pune/movies?date=2026-03-05", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Horizon Line"}, titles(t, body["now_showing"]))
}

func TestHold_ErrorMapping(t *testing.T) {
	s := newServer(t, options{})
	holds := "/v1/showtimes/" + s.today.String() + "/holds"

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{name: "bad id", path: "/v1/showtimes/nope/holds", body: `{"seats":["A1"]}`, want: http.StatusBadRequest},
		{name: "unknown showtime", path: "/v1/showtimes/" + uuid.NewString() + "/holds", body: `{"seats":["A1"]}`, want: http.StatusNotFound},
		{name: "malformed body", path: holds, body: `{"seats":`, want: http.StatusBadRequest},
		{name: "empty selection", path: holds, body: `{"seats":[]}`, want: http.StatusUnprocessableEntity},
		{name: "aisle", path: holds, body: `{"seats":["A5"]}`, want: http.StatusUnprocessableEntity},
		{name: "too many", path: holds, body: `{"seats":["A1","A2","A3","A4","A6","A7","A8","A9","B1","B2","B3"]}`, want: http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := s.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}

	resp, _ := s.do(t, http.MethodGet, "/v1/bookings/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConfirm_DeclinedPayment(t *testing.T) {
	s := newServer(t, options{})

	resp, body := s.do(t, http.MethodPost, "/v1/showtimes/"+s.today.String()+"/holds", `{"seats":["E1"],"customer_ref":"cust-1"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "370", body["total_price"])

	resp, _ = s.do(t, http.MethodPost, "/v1/bookings/"+body["booking_id"].(string)+"/confirm", `{"payment_token":"fail_card"}`)
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
}

func TestIdempotentHoldReplaysResponse(t *testing.T) {
	s := newServer(t, options{})
	holds := "/v1/showtimes/" + s.today.String() + "/holds"
	key := "hold-" + uuid.NewString()

	first, firstBody := s.do(t, http.MethodPost, holds, `{"seats":["B1"],"customer_ref":"cust-1"}`, "Idempotency-Key", key)
	require.Equal(t, http.StatusCreated, first.StatusCode)

	second, secondBody := s.do(t, http.MethodPost, holds, `{"seats":["B1"],"customer_ref":"cust-1"}`, "Idempotency-Key", key)
	require.Equal(t, http.StatusCreated, second.StatusCode)
	assert.Equal(t, "true", second.Header.Get("Idempotent-Replayed"))
	assert.Equal(t, firstBody["booking_id"], secondBody["booking_id"])

	third, _ := s.do(t, http.MethodPost, holds, `{"seats":["B1"],"customer_ref":"cust-1"}`, "Idempotency-Key", "other-"+uuid.NewString())
	assert.Equal(t, http.StatusConflict, third.StatusCode)

	long, _ := s.do(t, http.MethodPost, holds, `{"seats":["B2"]}`, "Idempotency-Key", strings.Repeat("k", 200))
	assert.Equal(t, http.StatusBadRequest, long.StatusCode)
}

type quotaLimiter struct {
	left int32
	err  error
}

func (q *quotaLimiter) Allow(context.Context, string) (bool, error) {
	if q.err != nil {
		return false, q.err
	}
	return atomic.AddInt32(&q.left, -1) >= 0, nil
}

func TestRateLimit(t *testing.T) {
	s := newServer(t, options{limiter: &quotaLimiter{left: 1}})

	resp, _ := s.do(t, http.MethodGet, "/v1/cities/Pune/movies", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = s.do(t, http.MethodGet, "/v1/cities/Pune/movies", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, "/v1/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	open := newServer(t, options{limiter: &quotaLimiter{err: errors.New("redis down")}})
	resp, _ = open.do(t, http.MethodGet, "/v1/cities/Pune/movies", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

type failingBookings struct {
	api.Bookings
	err error
}

func (f failingBookings) Cancel(context.Context, uuid.UUID) (booking.Result, error) {
	return booking.Result{}, f.err
}

func TestCancel_InfrastructureAndConflictErrors(t *testing.T) {
	s := newServer(t, options{bookings: failingBookings{err: errors.New("connection reset")}})
	resp, body := s.do(t, http.MethodPost, "/v1/bookings/"+uuid.NewString()+"/cancel", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "service unavailable", body["error"])

	var logged bool
	for _, entry := range s.hook.AllEntries() {
		if entry.Level == logrus.ErrorLevel && entry.Message == "request failed" {
			logged = true
		}
	}
	assert.True(t, logged)

	conflict := newServer(t, options{bookings: failingBookings{err: errors.Wrap(domain.ErrConcurrencyConflict, "commit")}})
	resp, body = conflict.do(t, http.MethodPost, "/v1/bookings/"+uuid.NewString()+"/cancel", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, true, body["retry"])
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("unreachable") }

func TestHealthAndReadiness(t *testing.T) {
	s := newServer(t, options{})
	resp, _ := s.do(t, http.MethodGet, "/v1/readyz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = s.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	down := newServer(t, options{pingers: []api.Pinger{downPinger{}}})
	resp, _ = down.do(t, http.MethodGet, "/v1/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp, _ = down.do(t, http.MethodGet, "/v1/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHold_StartedShowtime(t *testing.T) {
	s := newServer(t, options{})
	s.clock.Set(start.Add(9 * time.Hour))

	resp, body := s.do(t, http.MethodPost, "/v1/showtimes/"+s.today.String()+"/holds", `{"seats":["A1"],"customer_ref":"late"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body["error"], "started")
}
