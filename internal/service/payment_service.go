package service

import (
	"context"
	"errors"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/transit-seat-reservation/internal/inventory"
	"github.com/iliyamo/transit-seat-reservation/internal/model"
)

// EventPublisher receives successfully finalized reservations.  It must not
// block for long and cannot fail the payment.
type EventPublisher interface {
	ReservationPaid(ctx context.Context, r model.Reservation)
}

// PaymentService converts live holds into paid reservations.
type PaymentService struct {
	inv    *inventory.Inventory
	events EventPublisher
	logger *log.Logger
}

type PaymentServiceOption func(*PaymentService)

func WithEventPublisher(p EventPublisher) PaymentServiceOption {
	return func(s *PaymentService) { s.events = p }
}

func WithPaymentLogger(l *log.Logger) PaymentServiceOption {
	return func(s *PaymentService) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewPaymentService(inv *inventory.Inventory, opts ...PaymentServiceOption) *PaymentService {
	svc := &PaymentService{inv: inv, logger: log.New("payments")}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Finalize pays for a hold.  It is idempotent: finalizing a hold whose seat
// is already PAID under that same hold returns the existing reservation
// without a second transition or event.
//
// Outcomes, in order of precedence:
//  seat PAID under this hold     – existing reservation
//  hold deadline reached         – ErrHoldExpired (seat reclaimed if still held)
//  seat PAID under another hold  – ErrConflict
//  seat no longer held by hold   – ErrHoldExpired (released)
//  ticket departed or inactive   – ErrTicketClosed
func (s *PaymentService) Finalize(ctx context.Context, holdID, holderID uint64, method string) (model.Reservation, error) {
	if holderID == 0 {
		return model.Reservation{}, model.ErrUnauthenticated
	}
	pm, err := model.ParsePaymentMethod(method)
	if err != nil {
		return model.Reservation{}, err
	}
	store := s.inv.Store()
	h, err := store.GetHold(ctx, holdID)
	if err != nil {
		return model.Reservation{}, err
	}
	if h.HolderID != holderID {
		return model.Reservation{}, model.ErrForbidden
	}
	ticket, err := store.GetTicket(ctx, h.TicketID)
	if err != nil {
		return model.Reservation{}, err
	}
	seat, err := s.inv.Read(ctx, h.TicketID, h.SeatNumber)
	if err != nil {
		return model.Reservation{}, err
	}
	if seat.Status == model.SeatPaid && seat.HoldID == h.ID {
		return reservationOf(seat, ticket), nil
	}

	now := s.inv.Now()
	if h.Expired(now) {
		if _, _, err := s.inv.Reclaim(ctx, seat); err != nil {
			return model.Reservation{}, err
		}
		return model.Reservation{}, model.ErrHoldExpired
	}
	if seat.Status == model.SeatPaid {
		s.logger.Errorj(log.JSON{
			"msg":          "seat paid under another hold while hold is live",
			"hold_id":      h.ID,
			"seat_hold_id": seat.HoldID,
			"ticket_id":    h.TicketID,
			"seat_number":  h.SeatNumber,
		})
		return model.Reservation{}, model.ErrConflict
	}
	if seat.Status != model.SeatHeld || seat.HoldID != h.ID {
		return model.Reservation{}, model.ErrHoldExpired
	}
	if !ticket.OpenForSale(now) {
		return model.Reservation{}, model.ErrTicketClosed
	}

	paid, err := s.inv.Transition(ctx, inventory.Transition{
		TicketID:      h.TicketID,
		SeatNumber:    h.SeatNumber,
		From:          inventory.State{Status: model.SeatHeld, HoldID: h.ID},
		To:            inventory.State{Status: model.SeatPaid, HoldID: h.ID},
		PaymentMethod: pm,
		PaidAt:        now,
	})
	if errors.Is(err, inventory.ErrStaleState) {
		// a concurrent finalize of the same hold may have won
		cur, rerr := s.inv.Read(ctx, h.TicketID, h.SeatNumber)
		if rerr != nil {
			return model.Reservation{}, rerr
		}
		if cur.Status == model.SeatPaid && cur.HoldID == h.ID {
			return reservationOf(cur, ticket), nil
		}
		return model.Reservation{}, model.ErrHoldExpired
	}
	if err != nil {
		return model.Reservation{}, err
	}

	r := reservationOf(paid, ticket)
	s.logger.Infoj(log.JSON{
		"msg":            "reservation paid",
		"hold_id":        r.HoldID,
		"ticket_id":      r.TicketID,
		"seat_number":    r.SeatNumber,
		"holder_id":      r.HolderID,
		"payment_method": r.PaymentMethod,
	})
	if s.events != nil {
		s.events.ReservationPaid(ctx, r)
	}
	return r, nil
}

func reservationOf(s model.Seat, t model.Ticket) model.Reservation {
	r := model.Reservation{
		HoldID:        s.HoldID,
		TicketID:      s.TicketID,
		SeatNumber:    s.SeatNumber,
		HolderID:      s.HolderID,
		Status:        model.SeatPaid,
		PaymentMethod: s.PaymentMethod,
		AmountPaid:    t.Price,
	}
	if s.PaidAt != nil {
		r.PaidAt = *s.PaidAt
	}
	return r
}

// ListReservations returns the holder's paid reservations, oldest payment
// first.  PAID is terminal, so the list only grows.
func (s *PaymentService) ListReservations(ctx context.Context, holderID uint64) ([]model.Reservation, error) {
	if holderID == 0 {
		return nil, model.ErrUnauthenticated
	}
	store := s.inv.Store()
	seats, err := store.ListPaidSeats(ctx, holderID)
	if err != nil {
		return nil, err
	}
	tickets := make(map[uint64]model.Ticket)
	out := make([]model.Reservation, 0, len(seats))
	for _, seat := range seats {
		t, ok := tickets[seat.TicketID]
		if !ok {
			if t, err = store.GetTicket(ctx, seat.TicketID); err != nil {
				return nil, err
			}
			tickets[seat.TicketID] = t
		}
		out = append(out, reservationOf(seat, t))
	}
	return out, nil
}
