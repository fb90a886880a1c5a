package repository

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "fmt"
    "strings"

    "github.com/iliyamo/transit-seat-reservation/internal/model"
)

// TicketRepo reads and creates tickets.  Remaining capacity is computed in
// the query from the seats table; it is never stored on the ticket row.
type TicketRepo struct {
    db *sql.DB
}

// NewTicketRepo returns a TicketRepo bound to db.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

const selectTicket = `SELECT t.id, t.origin_city, t.origin_province, t.destination_city, t.destination_province,
       t.vehicle_type, t.vehicle_details, t.total_capacity, t.price,
       t.departure_start, t.departure_end, t.is_round_trip, t.return_start, t.return_end, t.active,
       t.total_capacity - (SELECT COUNT(*) FROM seats s WHERE s.ticket_id = t.id AND s.status IN ('HELD','PAID'))
  FROM tickets t`

type rowScanner interface {
    Scan(dest ...any) error
}

func scanTicket(row rowScanner) (model.Ticket, error) {
    var (
        t           model.Ticket
        vehicleType string
        details     []byte
        retStart    sql.NullTime
        retEnd      sql.NullTime
    )
    err := row.Scan(
        &t.ID, &t.OriginCity, &t.OriginProvince, &t.DestinationCity, &t.DestinationProvince,
        &vehicleType, &details, &t.TotalCapacity, &t.Price,
        &t.DepartureStart, &t.DepartureEnd, &t.IsRoundTrip, &retStart, &retEnd, &t.Active,
        &t.RemainingCapacity,
    )
    if err != nil {
        return model.Ticket{}, err
    }
    v, err := model.DecodeVehicle(model.VehicleType(vehicleType), details)
    if err != nil {
        return model.Ticket{}, fmt.Errorf("ticket %d: %w", t.ID, err)
    }
    t.Vehicle = v
    if retStart.Valid {
        rs := retStart.Time.UTC()
        t.ReturnStart = &rs
    }
    if retEnd.Valid {
        re := retEnd.Time.UTC()
        t.ReturnEnd = &re
    }
    t.DepartureStart = t.DepartureStart.UTC()
    t.DepartureEnd = t.DepartureEnd.UTC()
    return t, nil
}

// GetTicket returns one ticket or model.ErrNotFound.
func (r *TicketRepo) GetTicket(ctx context.Context, id uint64) (model.Ticket, error) {
    t, err := scanTicket(r.db.QueryRowContext(ctx, selectTicket+` WHERE t.id = ?`, id))
    if errors.Is(err, sql.ErrNoRows) {
        return model.Ticket{}, fmt.Errorf("ticket %d: %w", id, model.ErrNotFound)
    }
    return t, err
}

// ListTickets returns all tickets ordered by departure, then id.
func (r *TicketRepo) ListTickets(ctx context.Context) ([]model.Ticket, error) {
    rows, err := r.db.QueryContext(ctx, selectTicket+` ORDER BY t.departure_start, t.id`)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []model.Ticket
    for rows.Next() {
        t, err := scanTicket(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, t)
    }
    return out, rows.Err()
}

// CreateTicket inserts t and its seats (1..TotalCapacity, all AVAILABLE)
// in one transaction.  A zero ID lets the database assign one.
func (r *TicketRepo) CreateTicket(ctx context.Context, t model.Ticket) (model.Ticket, error) {
    if err := t.Validate(); err != nil {
        return model.Ticket{}, err
    }
    details, err := json.Marshal(t.Vehicle)
    if err != nil {
        return model.Ticket{}, err
    }

    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return model.Ticket{}, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    const q = `INSERT INTO tickets (id, origin_city, origin_province, destination_city, destination_province,
        vehicle_type, vehicle_details, total_capacity, price, departure_start, departure_end,
        is_round_trip, return_start, return_end, active)
        VALUES (NULLIF(?, 0), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
    res, err := tx.ExecContext(ctx, q,
        t.ID, t.OriginCity, t.OriginProvince, t.DestinationCity, t.DestinationProvince,
        string(t.VehicleType()), details, t.TotalCapacity, t.Price,
        t.DepartureStart.UTC(), t.DepartureEnd.UTC(), t.IsRoundTrip,
        nullTime(t.ReturnStart), nullTime(t.ReturnEnd), t.Active,
    )
    if err != nil {
        return model.Ticket{}, translate(err, "ticket")
    }
    if t.ID == 0 {
        id, err := res.LastInsertId()
        if err != nil {
            return model.Ticket{}, err
        }
        t.ID = uint64(id)
    }
    if err := insertSeats(ctx, tx, t.ID, t.TotalCapacity); err != nil {
        return model.Ticket{}, err
    }
    if err := tx.Commit(); err != nil {
        return model.Ticket{}, err
    }
    committed = true
    t.RemainingCapacity = t.TotalCapacity
    return t, nil
}

// seatInsertBatch bounds the placeholders of one multi-row INSERT.
const seatInsertBatch = 500

func insertSeats(ctx context.Context, tx *sql.Tx, ticketID uint64, capacity uint32) error {
    for start := uint32(1); start <= capacity; start += seatInsertBatch {
        end := start + seatInsertBatch - 1
        if end > capacity {
            end = capacity
        }
        var sb strings.Builder
        sb.WriteString(`INSERT INTO seats (ticket_id, seat_number, status) VALUES `)
        args := make([]any, 0, int(end-start+1)*3)
        for n := start; n <= end; n++ {
            if n > start {
                sb.WriteString(",")
            }
            sb.WriteString("(?, ?, ?)")
            args = append(args, ticketID, n, string(model.SeatAvailable))
        }
        if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
            return err
        }
    }
    return nil
}
