package repository

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "time"

    "github.com/iliyamo/transit-seat-reservation/internal/inventory"
    "github.com/iliyamo/transit-seat-reservation/internal/model"
)

// SeatRepo provides the seat half of the inventory store: point reads,
// listings and the conditional transition.
type SeatRepo struct {
    db *sql.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo {
    return &SeatRepo{db: db}
}

const seatColumns = `ticket_id, seat_number, status, hold_id, holder_id, held_at, held_until, payment_method, paid_at`

type queryer interface {
    QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanSeat(row rowScanner) (model.Seat, error) {
    var (
        s        model.Seat
        status   string
        holdID   sql.NullInt64
        holderID sql.NullInt64
        heldAt   sql.NullTime
        until    sql.NullTime
        method   sql.NullString
        paidAt   sql.NullTime
    )
    if err := row.Scan(&s.TicketID, &s.SeatNumber, &status, &holdID, &holderID, &heldAt, &until, &method, &paidAt); err != nil {
        return model.Seat{}, err
    }
    s.Status = model.SeatStatus(status)
    s.HoldID = uint64(holdID.Int64)
    s.HolderID = uint64(holderID.Int64)
    s.HeldAt = timeOrNil(heldAt)
    s.HeldUntil = timeOrNil(until)
    s.PaymentMethod = model.PaymentMethod(method.String)
    s.PaidAt = timeOrNil(paidAt)
    return s, nil
}

func getSeat(ctx context.Context, q queryer, ticketID uint64, seatNumber uint32) (model.Seat, error) {
    s, err := scanSeat(q.QueryRowContext(ctx,
        `SELECT `+seatColumns+` FROM seats WHERE ticket_id = ? AND seat_number = ?`, ticketID, seatNumber))
    if errors.Is(err, sql.ErrNoRows) {
        return model.Seat{}, fmt.Errorf("seat %d of ticket %d: %w", seatNumber, ticketID, model.ErrNotFound)
    }
    return s, err
}

// GetSeat returns a snapshot of one seat.
func (r *SeatRepo) GetSeat(ctx context.Context, ticketID uint64, seatNumber uint32) (model.Seat, error) {
    return getSeat(ctx, r.db, ticketID, seatNumber)
}

// ListSeats returns every seat of a ticket ordered by seat number.  An
// unknown ticket yields model.ErrNotFound.
func (r *SeatRepo) ListSeats(ctx context.Context, ticketID uint64) ([]model.Seat, error) {
    out, err := r.querySeats(ctx,
        `SELECT `+seatColumns+` FROM seats WHERE ticket_id = ? ORDER BY seat_number`, ticketID)
    if err != nil {
        return nil, err
    }
    if len(out) == 0 {
        return nil, fmt.Errorf("ticket %d: %w", ticketID, model.ErrNotFound)
    }
    return out, nil
}

// ListExpiredSeats returns up to limit HELD seats whose deadline is at or
// before now, oldest deadline first.
func (r *SeatRepo) ListExpiredSeats(ctx context.Context, now time.Time, limit int) ([]model.Seat, error) {
    if limit <= 0 {
        limit = 1000
    }
    return r.querySeats(ctx,
        `SELECT `+seatColumns+` FROM seats WHERE status = 'HELD' AND held_until <= ? ORDER BY held_until LIMIT ?`,
        now.UTC(), limit)
}

// ListPaidSeats returns the holder's PAID seats, oldest payment first.
func (r *SeatRepo) ListPaidSeats(ctx context.Context, holderID uint64) ([]model.Seat, error) {
    return r.querySeats(ctx,
        `SELECT `+seatColumns+` FROM seats WHERE holder_id = ? AND status = 'PAID' ORDER BY paid_at, hold_id`,
        holderID)
}

func (r *SeatRepo) querySeats(ctx context.Context, q string, args ...any) ([]model.Seat, error) {
    rows, err := r.db.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []model.Seat
    for rows.Next() {
        s, err := scanSeat(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, s)
    }
    return out, rows.Err()
}

// Transition performs the conditional state change of one seat.  The
// UPDATE only matches the row while it still carries the expected
// (status, hold_id); zero affected rows means another actor got there
// first and ErrStaleState is returned with the seat as it now is.  When
// t carries a hold, the holds row is inserted in the same transaction.
func (r *SeatRepo) Transition(ctx context.Context, t inventory.Transition) (model.Seat, error) {
    if err := t.Validate(); err != nil {
        return model.Seat{}, err
    }
    q, args := transitionUpdate(t)

    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return model.Seat{}, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    res, err := tx.ExecContext(ctx, q, args...)
    if err != nil {
        return model.Seat{}, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return model.Seat{}, err
    }
    if n == 0 {
        cur, err := getSeat(ctx, tx, t.TicketID, t.SeatNumber)
        if err != nil {
            return model.Seat{}, err
        }
        return cur, inventory.ErrStaleState
    }
    if t.Hold != nil {
        if err := insertHold(ctx, tx, *t.Hold); err != nil {
            return model.Seat{}, translate(err, "hold")
        }
    }
    out, err := getSeat(ctx, tx, t.TicketID, t.SeatNumber)
    if err != nil {
        return model.Seat{}, err
    }
    if err := tx.Commit(); err != nil {
        return model.Seat{}, err
    }
    committed = true
    return out, nil
}

// transitionUpdate builds the conditional UPDATE for t.  hold_id is compared
// with <=> so an expected "no hold" matches NULL.
func transitionUpdate(t inventory.Transition) (string, []any) {
    const where = ` WHERE ticket_id = ? AND seat_number = ? AND status = ? AND hold_id <=> ?`
    var (
        set  string
        args []any
    )
    switch t.To.Status {
    case model.SeatHeld:
        set = `UPDATE seats SET status = 'HELD', hold_id = ?, holder_id = ?, held_at = ?, held_until = ?, payment_method = NULL, paid_at = NULL`
        args = []any{t.To.HoldID, t.HolderID, t.HeldAt.UTC(), t.HeldUntil.UTC()}
    case model.SeatPaid:
        set = `UPDATE seats SET status = 'PAID', held_until = NULL, payment_method = ?, paid_at = ?`
        args = []any{string(t.PaymentMethod), t.PaidAt.UTC()}
    default:
        set = `UPDATE seats SET status = 'AVAILABLE', hold_id = NULL, holder_id = NULL, held_at = NULL, held_until = NULL, payment_method = NULL, paid_at = NULL`
    }
    args = append(args, t.TicketID, t.SeatNumber, string(t.From.Status), nullID(t.From.HoldID))
    return set + where, args
}

func nullID(id uint64) any {
    if id == 0 {
        return nil
    }
    return id
}

func nullTime(t *time.Time) any {
    if t == nil {
        return nil
    }
    return t.UTC()
}

func timeOrNil(t sql.NullTime) *time.Time {
    if !t.Valid {
        return nil
    }
    v := t.Time.UTC()
    return &v
}
