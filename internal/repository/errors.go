// Package repository is the MySQL implementation of the seat inventory
// store.  Every seat mutation is a conditional UPDATE keyed by
// (ticket_id, seat_number) and the expected (status, hold_id); a hold row is
// inserted in the same transaction as the seat change that creates it.
package repository

import (
    "errors"
    "fmt"

    "github.com/go-sql-driver/mysql"

    "github.com/iliyamo/transit-seat-reservation/internal/model"
)

// MySQL server error numbers the store translates.
const (
    errDupEntry      = 1062 // ER_DUP_ENTRY
    errNoReferenced2 = 1452 // ER_NO_REFERENCED_ROW_2
)

// translate maps driver errors onto the domain taxonomy.  Anything it does
// not recognise is returned unchanged.
func translate(err error, what string) error {
    var me *mysql.MySQLError
    if !errors.As(err, &me) {
        return err
    }
    switch me.Number {
    case errDupEntry:
        return fmt.Errorf("%w: %s already exists", model.ErrValidation, what)
    case errNoReferenced2:
        return fmt.Errorf("%s: %w", what, model.ErrNotFound)
    }
    return err
}
