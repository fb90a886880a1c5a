// Package queue carries seat lifecycle events over RabbitMQ: a publisher
// used by the hold and payment paths, and a consumer that appends every
// event to an audit log.
package queue

import "time"

// Queue names.  Both are durable and fed through the default exchange.
const (
    QueueHoldReclaimed   = "hold.reclaimed"
    QueueReservationPaid = "reservation.paid"
)

// HoldReclaimedEvent is published when an expired hold is returned to the
// pool, whether by lazy expiry or by the sweep.
type HoldReclaimedEvent struct {
    HoldID      uint64    `json:"hold_id"`
    TicketID    uint64    `json:"ticket_id"`
    SeatNumber  uint32    `json:"seat_number"`
    HolderID    uint64    `json:"holder_id"`
    HeldUntil   time.Time `json:"held_until"`
    ReclaimedAt time.Time `json:"reclaimed_at"`
}

// ReservationPaidEvent is published once per hold when it is finalized.
// Idempotent replays of the same payment do not publish again.
type ReservationPaidEvent struct {
    HoldID        uint64    `json:"hold_id"`
    TicketID      uint64    `json:"ticket_id"`
    SeatNumber    uint32    `json:"seat_number"`
    HolderID      uint64    `json:"holder_id"`
    PaymentMethod string    `json:"payment_method"`
    AmountPaid    uint64    `json:"amount_paid"`
    PaidAt        time.Time `json:"paid_at"`
}
