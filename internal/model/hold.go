package model

import "time"

// Hold is a time-limited, exclusive claim on one seat pending payment.  A
// hold is immutable once created: it either matures into a paid
// reservation or its seat is reclaimed when the deadline passes.  Hold IDs
// increase monotonically and are never reused.
type Hold struct {
    ID         uint64        `json:"id"`
    TicketID   uint64        `json:"ticket_id"`
    SeatNumber uint32        `json:"seat_number"`
    HolderID   uint64        `json:"holder_id"`
    CreatedAt  time.Time     `json:"created_at"`
    TTL        time.Duration `json:"-"`
    HeldUntil  time.Time     `json:"held_until"`
}

// Expired reports whether the hold's deadline has passed at now.
func (h Hold) Expired(now time.Time) bool { return !now.Before(h.HeldUntil) }
