package model

import (
    "encoding/json"
    "fmt"
    "time"
)

// Route describes where a ticket travels from and to.
type Route struct {
    OriginCity          string `json:"origin_city"`
    OriginProvince      string `json:"origin_province"`
    DestinationCity     string `json:"destination_city"`
    DestinationProvince string `json:"destination_province"`
}

// Ticket is one scheduled trip with a fixed number of numbered seats.
// RemainingCapacity is never stored: stores fill it on read as
// TotalCapacity minus the number of HELD or PAID seats.
//
// Fields:
//  ID                – primary key identifier.
//  Route             – origin and destination.
//  TotalCapacity     – number of seats, numbered 1..TotalCapacity.
//  RemainingCapacity – derived count of AVAILABLE seats.
//  Price             – price of one seat in the smallest currency unit.
//  DepartureStart    – scheduled departure.
//  DepartureEnd      – scheduled arrival.
//  IsRoundTrip       – whether ReturnStart/ReturnEnd are set.
//  Active            – tickets can only be held while active.
//  Vehicle           – tagged vehicle details (Flight, Train or Bus).
type Ticket struct {
    ID                uint64         `json:"ticket_id"`
    Route                            // promoted route fields
    TotalCapacity     uint32         `json:"total_capacity"`
    RemainingCapacity uint32         `json:"remaining_capacity"`
    Price             uint64         `json:"price"`
    DepartureStart    time.Time      `json:"departure_start"`
    DepartureEnd      time.Time      `json:"departure_end"`
    IsRoundTrip       bool           `json:"is_round_trip"`
    ReturnStart       *time.Time     `json:"return_start"`
    ReturnEnd         *time.Time     `json:"return_end"`
    Active            bool           `json:"ticket_status"`
    Vehicle           VehicleDetails `json:"-"`
}

// VehicleType returns the tag of the ticket's vehicle details, or an empty
// string when no details are attached.
func (t Ticket) VehicleType() VehicleType {
    if t.Vehicle == nil {
        return ""
    }
    return t.Vehicle.VehicleType()
}

// OpenForSale reports whether holds and payments are accepted at now:
// the ticket must be active and must not have departed yet.
func (t Ticket) OpenForSale(now time.Time) bool {
    return t.Active && now.Before(t.DepartureStart)
}

// HasSeat reports whether n is a valid seat number for the ticket.
func (t Ticket) HasSeat(n uint32) bool { return n >= 1 && n <= t.TotalCapacity }

// Validate checks the invariants a new ticket must satisfy before its seats
// are created.
func (t Ticket) Validate() error {
    switch {
    case t.TotalCapacity == 0:
        return fmt.Errorf("%w: total_capacity must be positive", ErrValidation)
    case t.Vehicle == nil:
        return fmt.Errorf("%w: vehicle_details are required", ErrValidation)
    case !t.DepartureEnd.IsZero() && t.DepartureEnd.Before(t.DepartureStart):
        return fmt.Errorf("%w: departure_end precedes departure_start", ErrValidation)
    case t.IsRoundTrip && (t.ReturnStart == nil || t.ReturnEnd == nil):
        return fmt.Errorf("%w: round trips need return_start and return_end", ErrValidation)
    }
    return nil
}

type ticketAlias Ticket

type ticketWire struct {
    ticketAlias
    VehicleType    VehicleType     `json:"vehicle_type"`
    VehicleDetails json.RawMessage `json:"vehicle_details,omitempty"`
}

// MarshalJSON renders the vehicle variant as vehicle_type plus
// vehicle_details.
func (t Ticket) MarshalJSON() ([]byte, error) {
    var details json.RawMessage
    if t.Vehicle != nil {
        b, err := json.Marshal(t.Vehicle)
        if err != nil {
            return nil, err
        }
        details = b
    }
    return json.Marshal(ticketWire{
        ticketAlias:    ticketAlias(t),
        VehicleType:    t.VehicleType(),
        VehicleDetails: details,
    })
}

// UnmarshalJSON decodes vehicle_details according to vehicle_type.
func (t *Ticket) UnmarshalJSON(b []byte) error {
    var w ticketWire
    if err := json.Unmarshal(b, &w); err != nil {
        return err
    }
    v, err := DecodeVehicle(w.VehicleType, w.VehicleDetails)
    if err != nil {
        return err
    }
    *t = Ticket(w.ticketAlias)
    t.Vehicle = v
    return nil
}
