package repository

import (
    "database/sql"

    "github.com/iliyamo/transit-seat-reservation/internal/inventory"
)

// Store combines the ticket, seat and hold repositories into an
// inventory.Store backed by MySQL.
type Store struct {
    *TicketRepo
    *SeatRepo
    *HoldRepo
}

var _ inventory.Store = (*Store)(nil)

// NewStore returns a MySQL-backed inventory store.
func NewStore(db *sql.DB) *Store {
    return &Store{
        TicketRepo: NewTicketRepo(db),
        SeatRepo:   NewSeatRepo(db),
        HoldRepo:   NewHoldRepo(db),
    }
}
