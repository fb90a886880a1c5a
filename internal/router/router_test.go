package router

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/transit-seat-reservation/internal/clock"
	"github.com/iliyamo/transit-seat-reservation/internal/config"
	"github.com/iliyamo/transit-seat-reservation/internal/handler"
	"github.com/iliyamo/transit-seat-reservation/internal/inventory"
	"github.com/iliyamo/transit-seat-reservation/internal/middleware"
	"github.com/iliyamo/transit-seat-reservation/internal/service"
	"github.com/iliyamo/transit-seat-reservation/internal/utils"
)

const secret = "router-test-secret"

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

type testServer struct {
	e   *echo.Echo
	clk *clock.Manual
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newCachedTestServer(t, nil)
}

// newCachedTestServer wires listings in front of GET /v1/tickets and as the
// inventory's change observer, the way the server does.  A nil cache is a
// pass-through.
func newCachedTestServer(t *testing.T, listings *middleware.ListingCache) *testServer {
	t.Helper()
	logger := log.New("test")
	logger.SetOutput(io.Discard)

	clk := clock.NewManual(time.Now().UTC())
	inv := inventory.New(inventory.NewMemoryStore(), clk,
		inventory.WithLogger(logger), inventory.WithChangeObserver(listings))
	catalog := service.NewCatalogService(inv)
	holds := service.NewHoldService(inv, service.WithHoldTTL(15*time.Minute), service.WithHoldLogger(logger))
	payments := service.NewPaymentService(inv, service.WithPaymentLogger(logger))

	e := echo.New()
	e.Logger.SetOutput(io.Discard)
	tickets := handler.NewTicketHandler(catalog)
	RegisterRoutes(e)
	RegisterPublic(e, tickets, listings.Middleware())
	RegisterHolder(e, handler.NewHoldHandler(holds), handler.NewPaymentHandler(payments), secret, passThrough)
	RegisterAdmin(e, tickets, secret)
	return &testServer{e: e, clk: clk}
}

func token(t *testing.T, holderID uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, holderID, role, time.Hour)
	require.NoError(t, err)
	return tok.Token
}

func (s *testServer) do(t *testing.T, method, path, tok, body string, out any) int {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if tok != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	if out != nil && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

type ticketItem struct {
	TicketID          uint64 `json:"ticket_id"`
	RemainingCapacity uint32 `json:"remaining_capacity"`
	VehicleType       string `json:"vehicle_type"`
}

type seatItem struct {
	SeatNumber uint32 `json:"seat_number"`
	Status     string `json:"status"`
	HoldID     uint64 `json:"hold_id"`
}

type holdItem struct {
	ID         uint64 `json:"id"`
	SeatNumber uint32 `json:"seat_number"`
}

type reservationItem struct {
	HoldID        uint64 `json:"hold_id"`
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method"`
	AmountPaid    uint64 `json:"amount_paid"`
}

func (s *testServer) createBus(t *testing.T, capacity int) uint64 {
	t.Helper()
	dep := s.clk.Now().Add(24 * time.Hour).Format(time.RFC3339)
	arr := s.clk.Now().Add(30 * time.Hour).Format(time.RFC3339)
	body := fmt.Sprintf(`{
		"origin_city": "Tehran", "destination_city": "Mashhad",
		"total_capacity": %d, "price": 750000,
		"departure_start": %q, "departure_end": %q,
		"ticket_status": true,
		"vehicle_type": "BUS",
		"vehicle_details": {"company_name": "Hamsafar", "bus_type": "VIP", "number_of_chairs": %d}
	}`, capacity, dep, arr, capacity)
	var created struct {
		Item ticketItem `json:"item"`
	}
	code := s.do(t, http.MethodPost, "/v1/admin/tickets", token(t, 1, middleware.RoleAdmin), body, &created)
	require.Equal(t, http.StatusCreated, code)
	require.NotZero(t, created.Item.TicketID)
	assert.Equal(t, "BUS", created.Item.VehicleType)
	return created.Item.TicketID
}

func (s *testServer) hold(t *testing.T, tok string, ticketID uint64, seat uint32) (int, holdItem) {
	t.Helper()
	var out struct {
		Item holdItem `json:"item"`
	}
	code := s.do(t, http.MethodPost, fmt.Sprintf("/v1/tickets/%d/holds", ticketID), tok,
		fmt.Sprintf(`{"seat_number": %d}`, seat), &out)
	return code, out.Item
}

func (s *testServer) pay(t *testing.T, tok string, holdID uint64, method string) (int, reservationItem) {
	t.Helper()
	var out struct {
		Item reservationItem `json:"item"`
	}
	code := s.do(t, http.MethodPost, "/v1/payments", tok,
		fmt.Sprintf(`{"hold_id": %d, "payment_method": %q}`, holdID, method), &out)
	return code, out.Item
}

func (s *testServer) remaining(t *testing.T) uint32 {
	t.Helper()
	var list struct {
		Items []ticketItem `json:"items"`
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/tickets", "", "", &list))
	require.Len(t, list.Items, 1)
	return list.Items[0].RemainingCapacity
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", "", "", nil))
}

func TestHoldAndPayFlow(t *testing.T) {
	s := newTestServer(t)
	ticketID := s.createBus(t, 3)
	alice := token(t, 7, middleware.RoleUser)
	bob := token(t, 8, middleware.RoleUser)

	code, h := s.hold(t, alice, ticketID, 1)
	require.Equal(t, http.StatusCreated, code)
	require.NotZero(t, h.ID)

	code, _ = s.hold(t, bob, ticketID, 1)
	assert.Equal(t, http.StatusConflict, code, "seat already held")

	var detail struct {
		Item  ticketItem `json:"item"`
		Seats []seatItem `json:"seats"`
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, fmt.Sprintf("/v1/tickets/%d", ticketID), "", "", &detail))
	assert.Equal(t, uint32(2), detail.Item.RemainingCapacity)
	require.Len(t, detail.Seats, 3)
	assert.Equal(t, "HELD", detail.Seats[0].Status)
	assert.Equal(t, h.ID, detail.Seats[0].HoldID)

	code, _ = s.pay(t, bob, h.ID, "wallet")
	assert.Equal(t, http.StatusForbidden, code, "only the owner pays")

	code, _ = s.pay(t, alice, h.ID, "cash")
	assert.Equal(t, http.StatusBadRequest, code)

	code, r := s.pay(t, alice, h.ID, "credit_card")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "PAID", r.Status)
	assert.Equal(t, "CREDIT_CARD", r.PaymentMethod)
	assert.Equal(t, uint64(750000), r.AmountPaid)

	code, again := s.pay(t, alice, h.ID, "credit_card")
	assert.Equal(t, http.StatusOK, code, "retry returns the same reservation")
	assert.Equal(t, r.HoldID, again.HoldID)

	var list struct {
		Items []ticketItem `json:"items"`
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/tickets", "", "", &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, uint32(2), list.Items[0].RemainingCapacity)
}

func TestExpiredHold(t *testing.T) {
	s := newTestServer(t)
	ticketID := s.createBus(t, 2)
	alice := token(t, 7, middleware.RoleUser)
	bob := token(t, 8, middleware.RoleUser)

	_, h := s.hold(t, alice, ticketID, 2)
	s.clk.Advance(15 * time.Minute)

	code, _ := s.pay(t, alice, h.ID, "wallet")
	assert.Equal(t, http.StatusGone, code)

	code, next := s.hold(t, bob, ticketID, 2)
	require.Equal(t, http.StatusCreated, code)
	assert.Greater(t, next.ID, h.ID)
}

func TestReleaseAndListHolds(t *testing.T) {
	s := newTestServer(t)
	ticketID := s.createBus(t, 2)
	alice := token(t, 7, middleware.RoleUser)

	_, h1 := s.hold(t, alice, ticketID, 1)
	_, h2 := s.hold(t, alice, ticketID, 2)

	var mine struct {
		Items []holdItem `json:"items"`
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/my-holds", alice, "", &mine))
	assert.Len(t, mine.Items, 2)

	assert.Equal(t, http.StatusForbidden,
		s.do(t, http.MethodDelete, fmt.Sprintf("/v1/holds/%d", h1.ID), token(t, 9, middleware.RoleUser), "", nil))
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, fmt.Sprintf("/v1/holds/%d", h1.ID), alice, "", nil))

	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/my-holds", alice, "", &mine))
	require.Len(t, mine.Items, 1)
	assert.Equal(t, h2.ID, mine.Items[0].ID)
}

func TestRouteErrors(t *testing.T) {
	s := newTestServer(t)
	ticketID := s.createBus(t, 1)
	user := token(t, 7, middleware.RoleUser)

	cases := []struct {
		name   string
		method string
		path   string
		tok    string
		body   string
		status int
	}{
		{"hold without token", http.MethodPost, fmt.Sprintf("/v1/tickets/%d/holds", ticketID), "", `{"seat_number":1}`, http.StatusUnauthorized},
		{"admin cannot hold", http.MethodPost, fmt.Sprintf("/v1/tickets/%d/holds", ticketID), token(t, 1, middleware.RoleAdmin), `{"seat_number":1}`, http.StatusForbidden},
		{"user cannot create tickets", http.MethodPost, "/v1/admin/tickets", user, `{}`, http.StatusForbidden},
		{"unknown ticket", http.MethodGet, "/v1/tickets/999", "", "", http.StatusNotFound},
		{"bad ticket id", http.MethodGet, "/v1/tickets/abc", "", "", http.StatusBadRequest},
		{"seat out of range", http.MethodPost, fmt.Sprintf("/v1/tickets/%d/holds", ticketID), user, `{"seat_number":5}`, http.StatusNotFound},
		{"missing seat number", http.MethodPost, fmt.Sprintf("/v1/tickets/%d/holds", ticketID), user, `{}`, http.StatusBadRequest},
		{"unknown hold", http.MethodPost, "/v1/payments", user, `{"hold_id":77,"payment_method":"WALLET"}`, http.StatusNotFound},
		{"invalid ticket body", http.MethodPost, "/v1/admin/tickets", token(t, 1, middleware.RoleAdmin), `{"total_capacity":0,"vehicle_type":"BUS","vehicle_details":{}}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.status, s.do(t, tc.method, tc.path, tc.tok, tc.body, nil))
		})
	}
}

func TestListingCacheTracksSeatChanges(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	listings := middleware.NewListingCache(config.ListingCacheConfig{
		Enabled: true, TTL: time.Hour, Prefix: "listing", MaxBytes: 1 << 20,
	}, rdb, nil)
	s := newCachedTestServer(t, listings)

	ticketID := s.createBus(t, 3)
	alice := token(t, 7, middleware.RoleUser)
	bob := token(t, 8, middleware.RoleUser)

	assert.Equal(t, uint32(3), s.remaining(t))
	assert.True(t, mr.Exists("listing:v1:/v1/tickets"), "listing is cached")
	assert.Equal(t, uint32(3), s.remaining(t))

	code, h := s.hold(t, alice, ticketID, 1)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, uint32(2), s.remaining(t), "hold shows up despite the one hour ttl")

	code, _ = s.pay(t, alice, h.ID, "wallet")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, uint32(2), s.remaining(t))

	_, hb := s.hold(t, bob, ticketID, 2)
	assert.Equal(t, uint32(1), s.remaining(t))
	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, fmt.Sprintf("/v1/holds/%d", hb.ID), bob, "", nil))
	assert.Equal(t, uint32(2), s.remaining(t), "release shows up")

	s.hold(t, bob, ticketID, 3)
	assert.Equal(t, uint32(1), s.remaining(t))
	s.clk.Advance(16 * time.Minute)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, fmt.Sprintf("/v1/tickets/%d", ticketID), "", "", nil))
	assert.Equal(t, uint32(2), s.remaining(t), "reclaimed hold shows up")
}

func TestMyReservations(t *testing.T) {
	s := newTestServer(t)
	ticketID := s.createBus(t, 3)
	alice := token(t, 7, middleware.RoleUser)

	var mine struct {
		Items []reservationItem `json:"items"`
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/my-reservations", alice, "", &mine))
	assert.Empty(t, mine.Items)

	_, h1 := s.hold(t, alice, ticketID, 3)
	_, h2 := s.hold(t, alice, ticketID, 1)
	_, h3 := s.hold(t, alice, ticketID, 2)
	code, _ := s.pay(t, alice, h2.ID, "wallet")
	require.Equal(t, http.StatusOK, code)
	code, _ = s.pay(t, alice, h1.ID, "credit_card")
	require.Equal(t, http.StatusOK, code)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/my-reservations", alice, "", &mine))
	require.Len(t, mine.Items, 2, "unpaid hold %d is not a reservation", h3.ID)
	assert.Equal(t, h2.ID, mine.Items[0].HoldID)
	assert.Equal(t, "WALLET", mine.Items[0].PaymentMethod)
	assert.Equal(t, h1.ID, mine.Items[1].HoldID)
	assert.Equal(t, "PAID", mine.Items[1].Status)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/v1/my-reservations", "", "", nil))
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/my-reservations", token(t, 8, middleware.RoleUser), "", &mine))
	assert.Empty(t, mine.Items)
}
