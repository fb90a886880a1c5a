package service

import (
	"context"

	"github.com/iliyamo/transit-seat-reservation/internal/inventory"
	"github.com/iliyamo/transit-seat-reservation/internal/model"
)

// CatalogService serves ticket listings and seat maps, and seeds tickets.
type CatalogService struct {
	inv *inventory.Inventory
}

func NewCatalogService(inv *inventory.Inventory) *CatalogService {
	return &CatalogService{inv: inv}
}

// ListTickets returns every ticket with its remaining capacity as stored
// seats report it.  Holds that lapsed but were not reclaimed yet still count
// until the next sweep or seat-map read.
func (s *CatalogService) ListTickets(ctx context.Context) ([]model.Ticket, error) {
	tickets, err := s.inv.Store().ListTickets(ctx)
	if err != nil {
		return nil, err
	}
	if tickets == nil {
		tickets = []model.Ticket{}
	}
	return tickets, nil
}

// TicketDetail returns one ticket with its seats.  Expired holds are
// reclaimed first and RemainingCapacity is computed from the returned seats,
// so both agree.
func (s *CatalogService) TicketDetail(ctx context.Context, id uint64) (model.Ticket, []model.Seat, error) {
	t, err := s.inv.Store().GetTicket(ctx, id)
	if err != nil {
		return model.Ticket{}, nil, err
	}
	seats, err := s.inv.ListSeats(ctx, id)
	if err != nil {
		return model.Ticket{}, nil, err
	}
	t.RemainingCapacity = inventory.RemainingCapacity(seats)
	return t, seats, nil
}

// CreateTicket stores a new ticket and its AVAILABLE seats.
func (s *CatalogService) CreateTicket(ctx context.Context, t model.Ticket) (model.Ticket, error) {
	return s.inv.CreateTicket(ctx, t)
}
