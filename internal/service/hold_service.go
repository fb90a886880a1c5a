// Package service implements the hold and payment lifecycle on top of the
// seat inventory: creating, releasing and listing holds, finalizing
// payments, and the ticket catalog views.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/transit-seat-reservation/internal/inventory"
	"github.com/iliyamo/transit-seat-reservation/internal/model"
)

type HoldService struct {
	inv      *inventory.Inventory
	holdTTL  time.Duration
	maxHolds int
	logger   *log.Logger
}

const defaultHoldTTL = 15 * time.Minute

func NewHoldService(inv *inventory.Inventory, opts ...HoldServiceOption) *HoldService {
	svc := &HoldService{
		inv:     inv,
		holdTTL: defaultHoldTTL,
		logger:  log.New("holds"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type HoldServiceOption func(*HoldService)

// WithHoldTTL overrides the default TTL for new holds.
func WithHoldTTL(d time.Duration) HoldServiceOption {
	return func(s *HoldService) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

// WithMaxHoldsPerHolder caps the live holds of one holder; 0 disables the cap.
func WithMaxHoldsPerHolder(n int) HoldServiceOption {
	return func(s *HoldService) {
		if n >= 0 {
			s.maxHolds = n
		}
	}
}

func WithHoldLogger(l *log.Logger) HoldServiceOption {
	return func(s *HoldService) {
		if l != nil {
			s.logger = l
		}
	}
}

// CreateHold places an exclusive, time-limited hold on one seat.  A seat
// whose previous hold has lapsed is reclaimed first.  Losing the race for a
// seat yields model.ErrSeatUnavailable; nothing is retried.
func (s *HoldService) CreateHold(ctx context.Context, ticketID uint64, seatNumber uint32, holderID uint64) (model.Hold, error) {
	if holderID == 0 {
		return model.Hold{}, model.ErrUnauthenticated
	}
	store := s.inv.Store()
	ticket, err := store.GetTicket(ctx, ticketID)
	if err != nil {
		return model.Hold{}, err
	}
	if !ticket.HasSeat(seatNumber) {
		return model.Hold{}, fmt.Errorf("seat %d of ticket %d: %w", seatNumber, ticketID, model.ErrNotFound)
	}
	if !ticket.OpenForSale(s.inv.Now()) {
		return model.Hold{}, model.ErrTicketClosed
	}
	if s.maxHolds > 0 {
		live, err := s.liveHolds(ctx, holderID)
		if err != nil {
			return model.Hold{}, err
		}
		// soft cap: concurrent requests of one holder may overshoot it
		if len(live) >= s.maxHolds {
			return model.Hold{}, model.ErrHoldLimitReached
		}
	}

	seat, err := s.inv.Touch(ctx, ticketID, seatNumber)
	if err != nil {
		return model.Hold{}, err
	}
	if seat.Status != model.SeatAvailable {
		return model.Hold{}, model.ErrSeatUnavailable
	}

	id, err := store.NextHoldID(ctx)
	if err != nil {
		return model.Hold{}, err
	}
	now := s.inv.Now()
	hold := model.Hold{
		ID:         id,
		TicketID:   ticketID,
		SeatNumber: seatNumber,
		HolderID:   holderID,
		CreatedAt:  now,
		TTL:        s.holdTTL,
		HeldUntil:  now.Add(s.holdTTL),
	}
	_, err = s.inv.Transition(ctx, inventory.Transition{
		TicketID:   ticketID,
		SeatNumber: seatNumber,
		From:       inventory.State{Status: model.SeatAvailable},
		To:         inventory.State{Status: model.SeatHeld, HoldID: id},
		HolderID:   holderID,
		HeldAt:     now,
		HeldUntil:  hold.HeldUntil,
		Hold:       &hold,
	})
	if errors.Is(err, inventory.ErrStaleState) {
		return model.Hold{}, model.ErrSeatUnavailable
	}
	if err != nil {
		return model.Hold{}, err
	}
	s.logger.Infoj(log.JSON{
		"msg":         "hold created",
		"hold_id":     hold.ID,
		"ticket_id":   ticketID,
		"seat_number": seatNumber,
		"holder_id":   holderID,
		"held_until":  hold.HeldUntil.Format(time.RFC3339),
	})
	return hold, nil
}

// ReleaseHold cancels a live hold on behalf of its holder and frees the
// seat.  A hold that has lapsed or was already released yields
// model.ErrHoldExpired; a paid one yields model.ErrAlreadyPaid.
func (s *HoldService) ReleaseHold(ctx context.Context, holdID, holderID uint64) error {
	if holderID == 0 {
		return model.ErrUnauthenticated
	}
	h, err := s.inv.Store().GetHold(ctx, holdID)
	if err != nil {
		return err
	}
	if h.HolderID != holderID {
		return model.ErrForbidden
	}
	seat, err := s.inv.Touch(ctx, h.TicketID, h.SeatNumber)
	if err != nil {
		return err
	}
	if err := heldBy(seat, h.ID); err != nil {
		return err
	}
	_, err = s.inv.Transition(ctx, inventory.Transition{
		TicketID:   h.TicketID,
		SeatNumber: h.SeatNumber,
		From:       inventory.State{Status: model.SeatHeld, HoldID: h.ID},
		To:         inventory.State{Status: model.SeatAvailable},
	})
	if errors.Is(err, inventory.ErrStaleState) {
		cur, rerr := s.inv.Read(ctx, h.TicketID, h.SeatNumber)
		if rerr != nil {
			return rerr
		}
		if err := heldBy(cur, h.ID); err != nil {
			return err
		}
		return model.ErrHoldExpired
	}
	if err != nil {
		return err
	}
	s.logger.Infoj(log.JSON{"msg": "hold released", "hold_id": h.ID, "holder_id": holderID})
	return nil
}

// heldBy reports why seat s no longer carries hold id, or nil when it does.
func heldBy(s model.Seat, id uint64) error {
	switch {
	case s.Status == model.SeatPaid && s.HoldID == id:
		return model.ErrAlreadyPaid
	case s.Status != model.SeatHeld || s.HoldID != id:
		return model.ErrHoldExpired
	}
	return nil
}

// ListHolds returns the holder's live holds: seat still HELD under the hold
// and deadline not yet reached.  Lapsed holds are reclaimed on the way and
// left out.
func (s *HoldService) ListHolds(ctx context.Context, holderID uint64) ([]model.Hold, error) {
	if holderID == 0 {
		return nil, model.ErrUnauthenticated
	}
	return s.liveHolds(ctx, holderID)
}

func (s *HoldService) liveHolds(ctx context.Context, holderID uint64) ([]model.Hold, error) {
	holds, err := s.inv.Store().ListLiveHolds(ctx, holderID)
	if err != nil {
		return nil, err
	}
	now := s.inv.Now()
	out := make([]model.Hold, 0, len(holds))
	for _, h := range holds {
		if h.Expired(now) {
			if _, err := s.inv.Touch(ctx, h.TicketID, h.SeatNumber); err != nil {
				return nil, err
			}
			continue
		}
		out = append(out, h)
	}
	return out, nil
}
