package model

import (
    "strings"
    "time"
)

// PaymentMethod names how a hold was paid for.
type PaymentMethod string

const (
    PaymentWallet         PaymentMethod = "WALLET"
    PaymentCryptocurrency PaymentMethod = "CRYPTOCURRENCY"
    PaymentCreditCard     PaymentMethod = "CREDIT_CARD"
)

// ParsePaymentMethod normalises raw (case-insensitive) into a known
// PaymentMethod.  Unknown values return ErrInvalidPaymentMethod.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
    switch m := PaymentMethod(strings.ToUpper(strings.TrimSpace(raw))); m {
    case PaymentWallet, PaymentCryptocurrency, PaymentCreditCard:
        return m, nil
    }
    return "", ErrInvalidPaymentMethod
}

// Reservation is the permanent, paid outcome of a hold.  It is derived from
// the PAID seat and its hold, so finalizing the same hold twice yields the
// same Reservation.
//
// Fields:
//  HoldID        – hold that was finalized.
//  TicketID      – ticket of the seat.
//  SeatNumber    – seat that was paid for.
//  HolderID      – holder who paid.
//  Status        – always PAID.
//  PaymentMethod – method recorded on the seat.
//  PaidAt        – time of the successful transition.
//  AmountPaid    – ticket price at finalization.
type Reservation struct {
    HoldID        uint64        `json:"hold_id"`
    TicketID      uint64        `json:"ticket_id"`
    SeatNumber    uint32        `json:"seat_number"`
    HolderID      uint64        `json:"holder_id"`
    Status        SeatStatus    `json:"status"`
    PaymentMethod PaymentMethod `json:"payment_method"`
    PaidAt        time.Time     `json:"paid_at"`
    AmountPaid    uint64        `json:"amount_paid"`
}
