package model

import "time"

// SeatStatus is the lifecycle state of a single seat on a ticket.
type SeatStatus string

const (
    SeatAvailable SeatStatus = "AVAILABLE" // free to be held
    SeatHeld      SeatStatus = "HELD"      // temporarily claimed by a hold
    SeatPaid      SeatStatus = "PAID"      // terminal; converted into a reservation
)

// Valid reports whether s is one of the known statuses.
func (s SeatStatus) Valid() bool {
    switch s {
    case SeatAvailable, SeatHeld, SeatPaid:
        return true
    }
    return false
}

// Occupied reports whether the seat counts against remaining capacity.
func (s SeatStatus) Occupied() bool { return s == SeatHeld || s == SeatPaid }

// Seat describes one numbered seat of a ticket.  A seat is identified by
// the pair (TicketID, SeatNumber) and SeatNumber ranges over
// [1, total_capacity] of its ticket.
//
// Fields:
//  TicketID      – ticket the seat belongs to.
//  SeatNumber    – 1-based seat number.
//  Status        – AVAILABLE, HELD or PAID.
//  HoldID        – hold that owns the seat (0 iff AVAILABLE).
//  HolderID      – holder that owns the seat (0 iff AVAILABLE).
//  HeldAt        – when the current hold was taken.
//  HeldUntil     – deadline of the current hold (set iff HELD).
//  PaymentMethod – how the seat was paid for (set iff PAID).
//  PaidAt        – when the seat was paid for (set iff PAID).
type Seat struct {
    TicketID      uint64        `json:"ticket_id"`
    SeatNumber    uint32        `json:"seat_number"`
    Status        SeatStatus    `json:"status"`
    HoldID        uint64        `json:"hold_id,omitempty"`
    HolderID      uint64        `json:"-"`
    HeldAt        *time.Time    `json:"held_at,omitempty"`
    HeldUntil     *time.Time    `json:"held_until,omitempty"`
    PaymentMethod PaymentMethod `json:"payment_method,omitempty"`
    PaidAt        *time.Time    `json:"paid_at,omitempty"`
}

// Expired reports whether the seat is HELD and its deadline has passed at now.
// A hold whose deadline equals now is already expired.
func (s Seat) Expired(now time.Time) bool {
    return s.Status == SeatHeld && s.HeldUntil != nil && !now.Before(*s.HeldUntil)
}
