package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/transit-seat-reservation/internal/clock"
	"github.com/iliyamo/transit-seat-reservation/internal/inventory"
	"github.com/iliyamo/transit-seat-reservation/internal/model"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

const (
	holderA uint64 = 101
	holderB uint64 = 102
	holderC uint64 = 103
)

type recordingEvents struct {
	mu   sync.Mutex
	paid []model.Reservation
}

func (r *recordingEvents) ReservationPaid(_ context.Context, res model.Reservation) {
	r.mu.Lock()
	r.paid = append(r.paid, res)
	r.mu.Unlock()
}

type fixture struct {
	clk     *clock.Manual
	inv     *inventory.Inventory
	holds   *HoldService
	pay     *PaymentService
	catalog *CatalogService
	events  *recordingEvents
	ticket  model.Ticket
}

func quiet() *log.Logger {
	l := log.New("test")
	l.SetOutput(io.Discard)
	return l
}

func newFixture(t *testing.T, capacity uint32, opts ...HoldServiceOption) *fixture {
	t.Helper()
	clk := clock.NewManual(t0)
	inv := inventory.New(inventory.NewMemoryStore(), clk, inventory.WithLogger(quiet()))
	events := &recordingEvents{}
	f := &fixture{
		clk:     clk,
		inv:     inv,
		holds:   NewHoldService(inv, append([]HoldServiceOption{WithHoldTTL(15 * time.Minute), WithHoldLogger(quiet())}, opts...)...),
		pay:     NewPaymentService(inv, WithEventPublisher(events), WithPaymentLogger(quiet())),
		catalog: NewCatalogService(inv),
		events:  events,
	}
	tk, err := f.catalog.CreateTicket(context.Background(), model.Ticket{
		Route:          model.Route{OriginCity: "Tehran", DestinationCity: "Tabriz"},
		TotalCapacity:  capacity,
		Price:          750000,
		DepartureStart: t0.Add(24 * time.Hour),
		DepartureEnd:   t0.Add(26 * time.Hour),
		Active:         true,
		Vehicle:        model.Flight{AirlineName: "Iran Air", FlightCode: "IR-451"},
	})
	require.NoError(t, err)
	f.ticket = tk
	return f
}

func (f *fixture) remaining(t *testing.T) uint32 {
	t.Helper()
	tk, seats, err := f.catalog.TicketDetail(context.Background(), f.ticket.ID)
	require.NoError(t, err)
	var occupied uint32
	for _, s := range seats {
		if s.Status == model.SeatHeld || s.Status == model.SeatPaid {
			occupied++
		}
	}
	require.Equal(t, tk.TotalCapacity-occupied, tk.RemainingCapacity)
	return tk.RemainingCapacity
}

func TestCreateHold_ConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	const n = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		refused int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(holder uint64) {
			defer wg.Done()
			<-start
			_, err := f.holds.CreateHold(ctx, f.ticket.ID, 1, holder)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, model.ErrSeatUnavailable):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(uint64(1000 + i))
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, refused)
	assert.Equal(t, uint32(0), f.remaining(t))
}

func TestCreateHold_Validation(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	_, err := f.holds.CreateHold(ctx, f.ticket.ID, 1, 0)
	assert.ErrorIs(t, err, model.ErrUnauthenticated)

	_, err = f.holds.CreateHold(ctx, f.ticket.ID+1, 1, holderA)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = f.holds.CreateHold(ctx, f.ticket.ID, 3, holderA)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = f.holds.CreateHold(ctx, f.ticket.ID, 0, holderA)
	assert.ErrorIs(t, err, model.ErrNotFound)

	f.clk.Set(f.ticket.DepartureStart)
	_, err = f.holds.CreateHold(ctx, f.ticket.ID, 1, holderA)
	assert.ErrorIs(t, err, model.ErrTicketClosed)
}

func TestCreateHold_HoldLimit(t *testing.T) {
	f := newFixture(t, 3, WithMaxHoldsPerHolder(1))
	ctx := context.Background()

	_, err := f.holds.CreateHold(ctx, f.ticket.ID, 1, holderA)
	require.NoError(t, err)
	_, err = f.holds.CreateHold(ctx, f.ticket.ID, 2, holderA)
	assert.ErrorIs(t, err, model.ErrHoldLimitReached)

	// once the first hold lapses it no longer counts
	f.clk.Advance(15 * time.Minute)
	_, err = f.holds.CreateHold(ctx, f.ticket.ID, 2, holderA)
	assert.NoError(t, err)
}

func TestScenario_ContendedSeatThenOtherSeat(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	_, err := f.holds.CreateHold(ctx, f.ticket.ID, 1, holderA)
	require.NoError(t, err)

	_, err = f.holds.CreateHold(ctx, f.ticket.ID, 1, holderB)
	assert.ErrorIs(t, err, model.ErrSeatUnavailable)

	hb, err := f.holds.CreateHold(ctx, f.ticket.ID, 2, holderB)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), hb.SeatNumber)
	assert.Equal(t, t0.Add(15*time.Minute), hb.HeldUntil)

	assert.Equal(t, uint32(0), f.remaining(t))
}

func TestHoldTTLBoundary(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	_, err := f.holds.CreateHold(ctx, f.ticket.ID, 1, holderA)
	require.NoError(t, err)

	f.clk.Advance(15*time.Minute - time.Nanosecond)
	_, err = f.holds.CreateHold(ctx, f.ticket.ID, 1, holderB)
	assert.ErrorIs(t, err, model.ErrSeatUnavailable, "not reclaimable before the deadline")

	f.clk.Advance(time.Nanosecond)
	_, err = f.holds.CreateHold(ctx, f.ticket.ID, 1, holderB)
	assert.NoError(t, err, "reclaimed lazily at the deadline")
}

func TestScenario_SweepThenFinalizeExpired(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	ha, err := f.holds.CreateHold(ctx, f.ticket.ID, 1, holderA)
	require.NoError(t, err)

	f.clk.Advance(16 * time.Minute)
	n, err := f.inv.ReclaimExpired(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	seat, err := f.inv.Read(ctx, f.ticket.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.SeatAvailable, seat.Status)

	_, err = f.pay.Finalize(ctx, ha.ID, holderA, "WALLET")
	assert.ErrorIs(t, err, model.ErrHoldExpired)

	hc, err := f.holds.CreateHold(ctx, f.ticket.ID, 1, holderC)
	require.NoError(t, err)
	assert.Greater(t, hc.ID, ha.ID, "hold ids are never reused")

	// A's stale hold still cannot be paid while C holds the seat
	_, err = f.pay.Finalize(ctx, ha.ID, holderA, "WALLET")
	assert.ErrorIs(t, err, model.ErrHoldExpired)
}

func TestFinalize_ExpiredWithoutSweepNeverPays(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	ha, err := f.holds.CreateHold(ctx, f.ticket.ID, 1, holderA)
	require.NoError(t, err)
	f.clk.Advance(15 * time.Minute)

	_, err = f.pay.Finalize(ctx, ha.ID, holderA, "CREDIT_CARD")
	assert.ErrorIs(t, err, model.ErrHoldExpired)

	seat, err := f.inv.Read(ctx, f.ticket.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.SeatAvailable, seat.Status, "finalize reclaims the lapsed hold")
	assert.Empty(t, f.events.paid)
}

func TestScenario_FinalizeIdempotentAndSweepLeavesPaid(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	ha, err := f.holds.CreateHold(ctx, f.ticket.ID, 1, holderA)
	require.NoError(t, err)
	f.clk.Advance(5 * time.Minute)

	first, err := f.pay.Finalize(ctx, ha.ID, holderA, "wallet")
	require.NoError(t, err)
	assert.Equal(t, model.SeatPaid, first.Status)
	assert.Equal(t, model.PaymentWallet, first.PaymentMethod)
	assert.Equal(t, uint32(1), first.SeatNumber)
	assert.Equal(t, uint64(750000), first.AmountPaid)
	assert.Equal(t, uint32(1), f.remaining(t))

	second, err := f.pay.Finalize(ctx, ha.ID, holderA, "WALLET")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, uint32(1), f.remaining(t), "capacity decremented exactly once")
	assert.Len(t, f.events.paid, 1, "replay publishes nothing")

	f.clk.Advance(time.Hour)
	n, err := f.inv.ReclaimExpired(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, n)
	seat, err := f.inv.Read(ctx, f.ticket.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.SeatPaid, seat.Status)

	third, err := f.pay.Finalize(ctx, ha.ID, holderA, "WALLET")
	require.NoError(t, err, "paid holds stay finalized after their deadline")
	assert.Equal(t, first, third)
}

func TestFinalize_ConcurrentSameHold(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	ha, err := f.holds.CreateHold(ctx, f.ticket.ID, 1, holderA)
	require.NoError(t, err)

	const n = 16
	results := make([]model.Reservation, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.pay.Finalize(ctx, ha.ID, holderA, "CRYPTOCURRENCY")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
	assert.Len(t, f.events.paid, 1)
}

func TestFinalize_Errors(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	ha, err := f.holds.CreateHold(ctx, f.ticket.ID, 1, holderA)
	require.NoError(t, err)

	cases := []struct {
		name   string
		holdID uint64
		holder uint64
		method string
		want   error
	}{
		{"unauthenticated", ha.ID, 0, "WALLET", model.ErrUnauthenticated},
		{"bad method", ha.ID, holderA, "CASH", model.ErrInvalidPaymentMethod},
		{"unknown hold", ha.ID + 100, holderA, "WALLET", model.ErrNotFound},
		{"other holder", ha.ID, holderB, "WALLET", model.ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.pay.Finalize(ctx, tc.holdID, tc.holder, tc.method)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestFinalize_AfterDepartureRefused(t *testing.T) {
	f := newFixture(t, 1, WithHoldTTL(48*time.Hour))
	ctx := context.Background()
	ha, err := f.holds.CreateHold(ctx, f.ticket.ID, 1, holderA)
	require.NoError(t, err)

	f.clk.Set(f.ticket.DepartureStart.Add(time.Minute))
	_, err = f.pay.Finalize(ctx, ha.ID, holderA, "WALLET")
	assert.ErrorIs(t, err, model.ErrTicketClosed)

	seat, err := f.inv.Read(ctx, f.ticket.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.SeatHeld, seat.Status)
}

func TestReleaseHold(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	ha, err := f.holds.CreateHold(ctx, f.ticket.ID, 1, holderA)
	require.NoError(t, err)

	assert.ErrorIs(t, f.holds.ReleaseHold(ctx, ha.ID, holderB), model.ErrForbidden)
	require.NoError(t, f.holds.ReleaseHold(ctx, ha.ID, holderA))
	assert.Equal(t, uint32(2), f.remaining(t))
	assert.ErrorIs(t, f.holds.ReleaseHold(ctx, ha.ID, holderA), model.ErrHoldExpired)

	_, err = f.pay.Finalize(ctx, ha.ID, holderA, "WALLET")
	assert.ErrorIs(t, err, model.ErrHoldExpired, "released holds cannot be paid")

	hb, err := f.holds.CreateHold(ctx, f.ticket.ID, 2, holderB)
	require.NoError(t, err)
	_, err = f.pay.Finalize(ctx, hb.ID, holderB, "WALLET")
	require.NoError(t, err)
	assert.ErrorIs(t, f.holds.ReleaseHold(ctx, hb.ID, holderB), model.ErrAlreadyPaid)
}

func TestListHolds(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	_, err := f.holds.ListHolds(ctx, 0)
	assert.ErrorIs(t, err, model.ErrUnauthenticated)

	h1, err := f.holds.CreateHold(ctx, f.ticket.ID, 1, holderA)
	require.NoError(t, err)
	f.clk.Advance(10 * time.Minute)
	h2, err := f.holds.CreateHold(ctx, f.ticket.ID, 2, holderA)
	require.NoError(t, err)
	h3, err := f.holds.CreateHold(ctx, f.ticket.ID, 3, holderA)
	require.NoError(t, err)
	_, err = f.pay.Finalize(ctx, h3.ID, holderA, "WALLET")
	require.NoError(t, err)

	holds, err := f.holds.ListHolds(ctx, holderA)
	require.NoError(t, err)
	assert.Len(t, holds, 2, "paid holds are not live")

	f.clk.Advance(5 * time.Minute)
	holds, err = f.holds.ListHolds(ctx, holderA)
	require.NoError(t, err)
	require.Len(t, holds, 1)
	assert.Equal(t, h2.ID, holds[0].ID)

	seat, err := f.inv.Read(ctx, f.ticket.ID, h1.SeatNumber)
	require.NoError(t, err)
	assert.Equal(t, model.SeatAvailable, seat.Status, "listing reclaims lapsed holds")

	holds, err = f.holds.ListHolds(ctx, holderB)
	require.NoError(t, err)
	assert.Empty(t, holds)
	assert.NotNil(t, holds)
}

func TestTicketDetail_LazyExpiry(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	_, err := f.holds.CreateHold(ctx, f.ticket.ID, 2, holderA)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), f.remaining(t))

	f.clk.Advance(20 * time.Minute)
	tk, seats, err := f.catalog.TicketDetail(ctx, f.ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), tk.RemainingCapacity)
	assert.Equal(t, model.SeatAvailable, seats[1].Status)

	list, err := f.catalog.ListTickets(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, uint32(2), list[0].RemainingCapacity)
	assert.Equal(t, model.VehicleFlight, list[0].VehicleType())
}

func TestListReservations(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	h1, err := f.holds.CreateHold(ctx, f.ticket.ID, 1, holderA)
	require.NoError(t, err)
	h2, err := f.holds.CreateHold(ctx, f.ticket.ID, 2, holderA)
	require.NoError(t, err)
	_, err = f.holds.CreateHold(ctx, f.ticket.ID, 3, holderB)
	require.NoError(t, err)

	_, err = f.pay.Finalize(ctx, h2.ID, holderA, "wallet")
	require.NoError(t, err)
	f.clk.Advance(time.Second)
	_, err = f.pay.Finalize(ctx, h1.ID, holderA, "credit_card")
	require.NoError(t, err)

	got, err := f.pay.ListReservations(ctx, holderA)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, h2.ID, got[0].HoldID, "oldest payment first")
	assert.Equal(t, model.PaymentCreditCard, got[1].PaymentMethod)
	assert.Equal(t, uint64(750000), got[1].AmountPaid)

	none, err := f.pay.ListReservations(ctx, holderB)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none, "an unpaid hold is not a reservation")

	_, err = f.pay.ListReservations(ctx, 0)
	assert.ErrorIs(t, err, model.ErrUnauthenticated)
}
