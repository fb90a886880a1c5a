// Package inventory owns the authoritative seat state of every ticket.  All
// seat mutations go through Store.Transition, a conditional
// (compare-and-swap) state change keyed by (ticket_id, seat_number); it is
// the single linearization point that makes holds, reclamation and
// payments race-safe.  Two Store implementations exist: MemoryStore in this
// package and the MySQL store in the repository package.
package inventory

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/iliyamo/transit-seat-reservation/internal/model"
)

// ErrStaleState is returned by Transition when the seat's current
// (status, hold_id) does not match the expected pair.  Callers resolve it
// into a domain error; it is never surfaced to clients as-is.
var ErrStaleState = errors.New("seat state does not match expectation")

// ErrInvalidTransition is returned for edges the seat lifecycle does not
// allow (anything leaving PAID, HELD to HELD, and so on).
var ErrInvalidTransition = errors.New("invalid seat transition")

// State is the (status, hold_id) pair a transition compares and sets.
// HoldID is zero when no hold owns the seat.
type State struct {
    Status model.SeatStatus
    HoldID uint64
}

// Transition describes one conditional seat state change.  The change
// applies only if the seat currently is in From.  Attribute fields are
// applied according to To.Status; Hold, when set, is persisted in the same
// atomic step as the seat change.
type Transition struct {
    TicketID   uint64
    SeatNumber uint32
    From       State
    To         State

    HolderID      uint64              // new owner when To is HELD
    HeldAt        time.Time           // hold start when To is HELD
    HeldUntil     time.Time           // hold deadline when To is HELD
    PaymentMethod model.PaymentMethod // required when To is PAID
    PaidAt        time.Time           // payment time when To is PAID

    Hold *model.Hold
}

// Validate rejects edges outside AVAILABLE→HELD, HELD→PAID (same hold) and
// HELD→AVAILABLE.
func (t Transition) Validate() error {
    switch {
    case t.From.Status == model.SeatAvailable && t.To.Status == model.SeatHeld:
        if t.From.HoldID != 0 || t.To.HoldID == 0 || t.HolderID == 0 || t.HeldUntil.IsZero() {
            return fmt.Errorf("%w: hold needs a hold id, holder and deadline", ErrInvalidTransition)
        }
        if t.Hold != nil && t.Hold.ID != t.To.HoldID {
            return fmt.Errorf("%w: hold record id mismatch", ErrInvalidTransition)
        }
        return nil
    case t.From.Status == model.SeatHeld && t.To.Status == model.SeatPaid:
        if t.From.HoldID == 0 || t.To.HoldID != t.From.HoldID || t.PaymentMethod == "" {
            return fmt.Errorf("%w: payment keeps the hold id and needs a method", ErrInvalidTransition)
        }
        return nil
    case t.From.Status == model.SeatHeld && t.To.Status == model.SeatAvailable:
        if t.From.HoldID == 0 || t.To.HoldID != 0 {
            return fmt.Errorf("%w: release clears the hold id", ErrInvalidTransition)
        }
        return nil
    }
    return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.From.Status, t.To.Status)
}

// Matches reports whether seat s is in the From state of t.
func (t Transition) Matches(s model.Seat) bool {
    return s.Status == t.From.Status && s.HoldID == t.From.HoldID
}

// Apply returns s moved into the To state of t.
func (t Transition) Apply(s model.Seat) model.Seat {
    out := model.Seat{TicketID: s.TicketID, SeatNumber: s.SeatNumber, Status: t.To.Status}
    switch t.To.Status {
    case model.SeatHeld:
        out.HoldID = t.To.HoldID
        out.HolderID = t.HolderID
        out.HeldAt = timePtr(t.HeldAt)
        out.HeldUntil = timePtr(t.HeldUntil)
    case model.SeatPaid:
        out.HoldID = t.To.HoldID
        out.HolderID = s.HolderID
        out.HeldAt = s.HeldAt
        out.PaymentMethod = t.PaymentMethod
        out.PaidAt = timePtr(t.PaidAt)
    }
    return out
}

func timePtr(t time.Time) *time.Time {
    if t.IsZero() {
        return nil
    }
    v := t.UTC()
    return &v
}

// TicketStore reads and creates tickets.  Returned tickets carry a
// RemainingCapacity derived from their seats at read time.
type TicketStore interface {
    CreateTicket(ctx context.Context, t model.Ticket) (model.Ticket, error)
    GetTicket(ctx context.Context, id uint64) (model.Ticket, error)
    ListTickets(ctx context.Context) ([]model.Ticket, error)
}

// SeatStore holds seat records and performs conditional transitions.
type SeatStore interface {
    GetSeat(ctx context.Context, ticketID uint64, seatNumber uint32) (model.Seat, error)
    ListSeats(ctx context.Context, ticketID uint64) ([]model.Seat, error)
    // ListExpiredSeats returns up to limit HELD seats, across all tickets,
    // whose deadline is at or before now.
    ListExpiredSeats(ctx context.Context, now time.Time, limit int) ([]model.Seat, error)
    // ListPaidSeats returns the holder's PAID seats in payment order.
    ListPaidSeats(ctx context.Context, holderID uint64) ([]model.Seat, error)
    Transition(ctx context.Context, t Transition) (model.Seat, error)
}

// HoldStore allocates hold ids and reads persisted holds.
type HoldStore interface {
    NextHoldID(ctx context.Context) (uint64, error)
    GetHold(ctx context.Context, id uint64) (model.Hold, error)
    // ListLiveHolds returns the holder's holds whose seat is still HELD
    // under that hold, regardless of deadline.
    ListLiveHolds(ctx context.Context, holderID uint64) ([]model.Hold, error)
}

// Store is the full persistence contract of the seat inventory.
type Store interface {
    TicketStore
    SeatStore
    HoldStore
}
