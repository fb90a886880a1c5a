package repository

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "time"

    "github.com/iliyamo/transit-seat-reservation/internal/model"
)

// HoldRepo allocates hold ids and reads the holds table.  Hold rows are
// written only by SeatRepo.Transition, together with the seat they claim.
type HoldRepo struct {
    db *sql.DB
}

// NewHoldRepo returns a HoldRepo bound to db.
func NewHoldRepo(db *sql.DB) *HoldRepo { return &HoldRepo{db: db} }

const holdColumns = `h.id, h.ticket_id, h.seat_number, h.holder_id, h.created_at, h.ttl_ms, h.held_until`

func scanHold(row rowScanner) (model.Hold, error) {
    var (
        h     model.Hold
        ttlMS int64
    )
    if err := row.Scan(&h.ID, &h.TicketID, &h.SeatNumber, &h.HolderID, &h.CreatedAt, &ttlMS, &h.HeldUntil); err != nil {
        return model.Hold{}, err
    }
    h.TTL = time.Duration(ttlMS) * time.Millisecond
    h.CreatedAt = h.CreatedAt.UTC()
    h.HeldUntil = h.HeldUntil.UTC()
    return h, nil
}

// NextHoldID draws a fresh id from the hold_sequence table.  AUTO_INCREMENT
// values are never handed out twice, so ids stay unique across restarts and
// reclamations.
func (r *HoldRepo) NextHoldID(ctx context.Context) (uint64, error) {
    res, err := r.db.ExecContext(ctx, `INSERT INTO hold_sequence () VALUES ()`)
    if err != nil {
        return 0, err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return 0, err
    }
    return uint64(id), nil
}

// GetHold returns the hold with the given id or model.ErrNotFound.
func (r *HoldRepo) GetHold(ctx context.Context, id uint64) (model.Hold, error) {
    h, err := scanHold(r.db.QueryRowContext(ctx, `SELECT `+holdColumns+` FROM holds h WHERE h.id = ?`, id))
    if errors.Is(err, sql.ErrNoRows) {
        return model.Hold{}, fmt.Errorf("hold %d: %w", id, model.ErrNotFound)
    }
    return h, err
}

// ListLiveHolds returns the holder's holds whose seat is still HELD under
// that hold id.  Deadlines are not checked here.
func (r *HoldRepo) ListLiveHolds(ctx context.Context, holderID uint64) ([]model.Hold, error) {
    const q = `SELECT ` + holdColumns + `
  FROM holds h
  JOIN seats s ON s.ticket_id = h.ticket_id AND s.seat_number = h.seat_number AND s.hold_id = h.id
 WHERE h.holder_id = ? AND s.status = 'HELD'
 ORDER BY h.id`
    rows, err := r.db.QueryContext(ctx, q, holderID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []model.Hold
    for rows.Next() {
        h, err := scanHold(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, h)
    }
    return out, rows.Err()
}

func insertHold(ctx context.Context, tx *sql.Tx, h model.Hold) error {
    const q = `INSERT INTO holds (id, ticket_id, seat_number, holder_id, created_at, ttl_ms, held_until)
        VALUES (?, ?, ?, ?, ?, ?, ?)`
    _, err := tx.ExecContext(ctx, q, h.ID, h.TicketID, h.SeatNumber, h.HolderID,
        h.CreatedAt.UTC(), h.TTL.Milliseconds(), h.HeldUntil.UTC())
    return err
}
