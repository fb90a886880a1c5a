package inventory

import (
    "context"
    "fmt"
    "sort"
    "sync"
    "sync/atomic"
    "time"

    "github.com/iliyamo/transit-seat-reservation/internal/model"
)

// MemoryStore is an in-process Store.  Every seat carries its own mutex so
// transitions on distinct seats never contend; the ticket map and the hold
// index have their own locks.  Lock order is ticket cut, then seat, then
// holds.
type MemoryStore struct {
    mu           sync.RWMutex // guards tickets and nextTicketID
    tickets      map[uint64]*memTicket
    nextTicketID uint64

    holdsMu  sync.RWMutex // guards holds, byHolder and paidBy
    holds    map[uint64]model.Hold
    byHolder map[uint64]map[uint64]struct{} // holder -> ids of holds whose seat is HELD
    paidBy   map[uint64][]seatKey           // holder -> PAID seats in payment order

    lastHoldID atomic.Uint64
}

type seatKey struct {
    ticketID   uint64
    seatNumber uint32
}

// memTicket.cut is read-locked by every transition on the ticket and
// write-locked by whole-ticket reads, so a seat map or capacity count is
// always a state the ticket actually passed through.  Transitions still
// only share it, so distinct seats do not wait on each other.
type memTicket struct {
    cut    sync.RWMutex
    ticket model.Ticket
    seats  []*memSeat // index = seat_number - 1
}

type memSeat struct {
    mu   sync.Mutex
    seat model.Seat
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
    return &MemoryStore{
        tickets:  make(map[uint64]*memTicket),
        holds:    make(map[uint64]model.Hold),
        byHolder: make(map[uint64]map[uint64]struct{}),
        paidBy:   make(map[uint64][]seatKey),
    }
}

// CreateTicket stores t and creates its seats as AVAILABLE.  A zero ID is
// replaced by the next free identifier.
func (m *MemoryStore) CreateTicket(_ context.Context, t model.Ticket) (model.Ticket, error) {
    if err := t.Validate(); err != nil {
        return model.Ticket{}, err
    }
    m.mu.Lock()
    defer m.mu.Unlock()
    if t.ID == 0 {
        m.nextTicketID++
        for m.tickets[m.nextTicketID] != nil {
            m.nextTicketID++
        }
        t.ID = m.nextTicketID
    } else if _, exists := m.tickets[t.ID]; exists {
        return model.Ticket{}, fmt.Errorf("%w: ticket %d already exists", model.ErrValidation, t.ID)
    }
    seats := make([]*memSeat, t.TotalCapacity)
    for i := range seats {
        seats[i] = &memSeat{seat: model.Seat{TicketID: t.ID, SeatNumber: uint32(i + 1), Status: model.SeatAvailable}}
    }
    t.RemainingCapacity = t.TotalCapacity
    m.tickets[t.ID] = &memTicket{ticket: t, seats: seats}
    return t, nil
}

func (m *MemoryStore) lookup(id uint64) (*memTicket, error) {
    m.mu.RLock()
    mt, ok := m.tickets[id]
    m.mu.RUnlock()
    if !ok {
        return nil, fmt.Errorf("ticket %d: %w", id, model.ErrNotFound)
    }
    return mt, nil
}

func (mt *memTicket) seat(n uint32) (*memSeat, error) {
    if !mt.ticket.HasSeat(n) {
        return nil, fmt.Errorf("seat %d of ticket %d: %w", n, mt.ticket.ID, model.ErrNotFound)
    }
    return mt.seats[n-1], nil
}

func (mt *memTicket) snapshot() model.Ticket {
    mt.cut.Lock()
    defer mt.cut.Unlock()
    t := mt.ticket
    var occupied uint32
    for _, s := range mt.seats {
        s.mu.Lock()
        if s.seat.Status.Occupied() {
            occupied++
        }
        s.mu.Unlock()
    }
    t.RemainingCapacity = t.TotalCapacity - occupied
    return t
}

func (m *MemoryStore) GetTicket(_ context.Context, id uint64) (model.Ticket, error) {
    mt, err := m.lookup(id)
    if err != nil {
        return model.Ticket{}, err
    }
    return mt.snapshot(), nil
}

// ListTickets returns all tickets ordered by departure, then id.
func (m *MemoryStore) ListTickets(_ context.Context) ([]model.Ticket, error) {
    m.mu.RLock()
    all := make([]*memTicket, 0, len(m.tickets))
    for _, mt := range m.tickets {
        all = append(all, mt)
    }
    m.mu.RUnlock()
    out := make([]model.Ticket, 0, len(all))
    for _, mt := range all {
        out = append(out, mt.snapshot())
    }
    sort.Slice(out, func(i, j int) bool {
        if !out[i].DepartureStart.Equal(out[j].DepartureStart) {
            return out[i].DepartureStart.Before(out[j].DepartureStart)
        }
        return out[i].ID < out[j].ID
    })
    return out, nil
}

func (m *MemoryStore) GetSeat(_ context.Context, ticketID uint64, seatNumber uint32) (model.Seat, error) {
    mt, err := m.lookup(ticketID)
    if err != nil {
        return model.Seat{}, err
    }
    ms, err := mt.seat(seatNumber)
    if err != nil {
        return model.Seat{}, err
    }
    ms.mu.Lock()
    defer ms.mu.Unlock()
    return ms.seat, nil
}

func (m *MemoryStore) ListSeats(_ context.Context, ticketID uint64) ([]model.Seat, error) {
    mt, err := m.lookup(ticketID)
    if err != nil {
        return nil, err
    }
    mt.cut.Lock()
    defer mt.cut.Unlock()
    out := make([]model.Seat, 0, len(mt.seats))
    for _, ms := range mt.seats {
        ms.mu.Lock()
        out = append(out, ms.seat)
        ms.mu.Unlock()
    }
    return out, nil
}

// ListPaidSeats returns the holder's PAID seats in payment order.
func (m *MemoryStore) ListPaidSeats(ctx context.Context, holderID uint64) ([]model.Seat, error) {
    m.holdsMu.RLock()
    keys := append([]seatKey(nil), m.paidBy[holderID]...)
    m.holdsMu.RUnlock()

    out := make([]model.Seat, 0, len(keys))
    for _, k := range keys {
        s, err := m.GetSeat(ctx, k.ticketID, k.seatNumber)
        if err != nil {
            return nil, err
        }
        out = append(out, s)
    }
    return out, nil
}

func (m *MemoryStore) ListExpiredSeats(_ context.Context, now time.Time, limit int) ([]model.Seat, error) {
    m.mu.RLock()
    all := make([]*memTicket, 0, len(m.tickets))
    for _, mt := range m.tickets {
        all = append(all, mt)
    }
    m.mu.RUnlock()
    var out []model.Seat
    for _, mt := range all {
        for _, ms := range mt.seats {
            ms.mu.Lock()
            s := ms.seat
            ms.mu.Unlock()
            if s.Expired(now) {
                out = append(out, s)
                if limit > 0 && len(out) >= limit {
                    return out, nil
                }
            }
        }
    }
    return out, nil
}

// Transition applies t under the seat's mutex.  When t carries a hold it is
// indexed before the seat lock is released, so no reader can observe the
// seat HELD without its hold record.  A seat leaving HELD drops its hold
// from the holder's live index.
func (m *MemoryStore) Transition(_ context.Context, t Transition) (model.Seat, error) {
    if err := t.Validate(); err != nil {
        return model.Seat{}, err
    }
    mt, err := m.lookup(t.TicketID)
    if err != nil {
        return model.Seat{}, err
    }
    ms, err := mt.seat(t.SeatNumber)
    if err != nil {
        return model.Seat{}, err
    }
    mt.cut.RLock()
    defer mt.cut.RUnlock()
    ms.mu.Lock()
    defer ms.mu.Unlock()
    if !t.Matches(ms.seat) {
        return ms.seat, ErrStaleState
    }
    prev := ms.seat
    m.holdsMu.Lock()
    if t.Hold != nil {
        m.holds[t.Hold.ID] = *t.Hold
        live := m.byHolder[t.Hold.HolderID]
        if live == nil {
            live = make(map[uint64]struct{})
            m.byHolder[t.Hold.HolderID] = live
        }
        live[t.Hold.ID] = struct{}{}
    }
    if prev.Status == model.SeatHeld {
        if live := m.byHolder[prev.HolderID]; live != nil {
            delete(live, prev.HoldID)
            if len(live) == 0 {
                delete(m.byHolder, prev.HolderID)
            }
        }
        if t.To.Status == model.SeatPaid {
            m.paidBy[prev.HolderID] = append(m.paidBy[prev.HolderID], seatKey{prev.TicketID, prev.SeatNumber})
        }
    }
    m.holdsMu.Unlock()
    ms.seat = t.Apply(ms.seat)
    return ms.seat, nil
}

func (m *MemoryStore) NextHoldID(_ context.Context) (uint64, error) {
    return m.lastHoldID.Add(1), nil
}

func (m *MemoryStore) GetHold(_ context.Context, id uint64) (model.Hold, error) {
    m.holdsMu.RLock()
    defer m.holdsMu.RUnlock()
    h, ok := m.holds[id]
    if !ok {
        return model.Hold{}, fmt.Errorf("hold %d: %w", id, model.ErrNotFound)
    }
    return h, nil
}

func (m *MemoryStore) ListLiveHolds(ctx context.Context, holderID uint64) ([]model.Hold, error) {
    m.holdsMu.RLock()
    live := m.byHolder[holderID]
    candidates := make([]model.Hold, 0, len(live))
    for id := range live {
        candidates = append(candidates, m.holds[id])
    }
    m.holdsMu.RUnlock()
    sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

    out := make([]model.Hold, 0, len(candidates))
    for _, h := range candidates {
        s, err := m.GetSeat(ctx, h.TicketID, h.SeatNumber)
        if err != nil {
            return nil, err
        }
        if s.Status == model.SeatHeld && s.HoldID == h.ID {
            out = append(out, h)
        }
    }
    return out, nil
}
