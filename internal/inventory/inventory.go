package inventory

import (
    "context"
    "errors"
    "time"

    "github.com/labstack/gommon/log"

    "github.com/iliyamo/transit-seat-reservation/internal/clock"
    "github.com/iliyamo/transit-seat-reservation/internal/model"
)

// ReclaimNotifier is told about every hold the inventory reclaims.  The
// seat passed in is the HELD state that was reclaimed.
type ReclaimNotifier interface {
    HoldReclaimed(ctx context.Context, seat model.Seat, at time.Time)
}

// ChangeObserver is told, after the fact, that a ticket's seat state or
// catalog entry changed.  It runs on the caller's goroutine and must return
// quickly.
type ChangeObserver interface {
    InventoryChanged(ctx context.Context, ticketID uint64)
}

// Inventory wraps a Store with lazy expiry: every read path that touches a
// seat first reclaims it when its hold deadline has passed, so correctness
// never depends on the background sweep running on time.
type Inventory struct {
    store    Store
    clock    clock.Clock
    notifier ReclaimNotifier
    observer ChangeObserver
    logger   *log.Logger
}

// Option configures an Inventory.
type Option func(*Inventory)

// WithReclaimNotifier registers n to be told about reclaimed holds.
func WithReclaimNotifier(n ReclaimNotifier) Option {
    return func(i *Inventory) { i.notifier = n }
}

// WithChangeObserver registers o to be told about every successful
// transition and every created ticket.
func WithChangeObserver(o ChangeObserver) Option {
    return func(i *Inventory) { i.observer = o }
}

// WithLogger replaces the default logger.
func WithLogger(l *log.Logger) Option {
    return func(i *Inventory) {
        if l != nil {
            i.logger = l
        }
    }
}

// New returns an Inventory over store.
func New(store Store, clk clock.Clock, opts ...Option) *Inventory {
    inv := &Inventory{store: store, clock: clk, logger: log.New("inventory")}
    for _, opt := range opts {
        opt(inv)
    }
    return inv
}

// Store exposes the underlying store for ticket and hold lookups.
func (i *Inventory) Store() Store { return i.store }

// Now returns the inventory's notion of the current time.
func (i *Inventory) Now() time.Time { return i.clock.Now() }

// Transition is the sole mutation primitive; see Store.Transition.
func (i *Inventory) Transition(ctx context.Context, t Transition) (model.Seat, error) {
    s, err := i.store.Transition(ctx, t)
    if err == nil {
        i.changed(ctx, t.TicketID)
    }
    return s, err
}

// CreateTicket stores t with all seats AVAILABLE.
func (i *Inventory) CreateTicket(ctx context.Context, t model.Ticket) (model.Ticket, error) {
    out, err := i.store.CreateTicket(ctx, t)
    if err == nil {
        i.changed(ctx, out.ID)
    }
    return out, err
}

func (i *Inventory) changed(ctx context.Context, ticketID uint64) {
    if i.observer != nil {
        i.observer.InventoryChanged(ctx, ticketID)
    }
}

// Read returns a point-in-time snapshot of one seat without applying expiry.
func (i *Inventory) Read(ctx context.Context, ticketID uint64, seatNumber uint32) (model.Seat, error) {
    return i.store.GetSeat(ctx, ticketID, seatNumber)
}

// Touch reads one seat and reclaims it first when its hold has expired.
func (i *Inventory) Touch(ctx context.Context, ticketID uint64, seatNumber uint32) (model.Seat, error) {
    s, err := i.store.GetSeat(ctx, ticketID, seatNumber)
    if err != nil {
        return model.Seat{}, err
    }
    s, _, err = i.Reclaim(ctx, s)
    return s, err
}

// ListSeats returns every seat of a ticket, reclaiming expired holds on the
// way.
func (i *Inventory) ListSeats(ctx context.Context, ticketID uint64) ([]model.Seat, error) {
    seats, err := i.store.ListSeats(ctx, ticketID)
    if err != nil {
        return nil, err
    }
    now := i.clock.Now()
    for idx, s := range seats {
        if !s.Expired(now) {
            continue
        }
        fresh, _, err := i.Reclaim(ctx, s)
        if err != nil {
            return nil, err
        }
        seats[idx] = fresh
    }
    return seats, nil
}

// RemainingCapacity counts the seats that are neither HELD nor PAID.
func RemainingCapacity(seats []model.Seat) uint32 {
    var n uint32
    for _, s := range seats {
        if !s.Status.Occupied() {
            n++
        }
    }
    return n
}

// Reclaim moves s back to AVAILABLE when its hold has expired.  It returns
// the seat's current state and whether this call performed the
// reclamation.  Losing the race to another reclaimer or to a payment is not
// an error: the seat is re-read and returned as found.
func (i *Inventory) Reclaim(ctx context.Context, s model.Seat) (model.Seat, bool, error) {
    now := i.clock.Now()
    if !s.Expired(now) {
        return s, false, nil
    }
    out, err := i.Transition(ctx, Transition{
        TicketID:   s.TicketID,
        SeatNumber: s.SeatNumber,
        From:       State{Status: model.SeatHeld, HoldID: s.HoldID},
        To:         State{Status: model.SeatAvailable},
    })
    if errors.Is(err, ErrStaleState) {
        cur, rerr := i.store.GetSeat(ctx, s.TicketID, s.SeatNumber)
        return cur, false, rerr
    }
    if err != nil {
        return s, false, err
    }
    i.logger.Infoj(log.JSON{
        "msg":         "hold reclaimed",
        "ticket_id":   s.TicketID,
        "seat_number": s.SeatNumber,
        "hold_id":     s.HoldID,
    })
    if i.notifier != nil {
        i.notifier.HoldReclaimed(ctx, s, now)
    }
    return out, true, nil
}

// ReclaimExpired performs one sweep pass over at most limit expired seats
// across all tickets and returns how many this pass reclaimed.  Seats moved
// concurrently by someone else are skipped.  Store failures on individual
// seats are collected and returned together after the pass.
func (i *Inventory) ReclaimExpired(ctx context.Context, limit int) (int, error) {
    seats, err := i.store.ListExpiredSeats(ctx, i.clock.Now(), limit)
    if err != nil {
        return 0, err
    }
    var (
        reclaimed int
        errs      []error
    )
    for _, s := range seats {
        if ctx.Err() != nil {
            errs = append(errs, ctx.Err())
            break
        }
        _, ok, err := i.Reclaim(ctx, s)
        if err != nil {
            errs = append(errs, err)
            continue
        }
        if ok {
            reclaimed++
        }
    }
    return reclaimed, errors.Join(errs...)
}
