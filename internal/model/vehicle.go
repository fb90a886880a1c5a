package model

import (
    "encoding/json"
    "fmt"
    "strings"
)

// VehicleType tags the variant held in VehicleDetails.
type VehicleType string

const (
    VehicleFlight VehicleType = "FLIGHT"
    VehicleTrain  VehicleType = "TRAIN"
    VehicleBus    VehicleType = "BUS"
)

// VehicleDetails is the closed set of vehicle-specific attributes: one of
// Flight, Train or Bus.
type VehicleDetails interface {
    VehicleType() VehicleType
}

// Flight holds attributes specific to air travel.
type Flight struct {
    AirlineName        string   `json:"airline_name"`
    FlightClass        string   `json:"flight_class"`
    NumberOfStops      int      `json:"number_of_stop"`
    FlightCode         string   `json:"flight_code"`
    OriginAirport      string   `json:"origin_airport"`
    DestinationAirport string   `json:"destination_airport"`
    Facilities         []string `json:"facility,omitempty"`
}

// Train holds attributes specific to rail travel.
type Train struct {
    Stars        int      `json:"train_stars"`
    ClosedCoupe  bool     `json:"choosing_a_closed_coupe"`
    Facilities   []string `json:"facility,omitempty"`
}

// Bus holds attributes specific to coach travel.
type Bus struct {
    CompanyName    string   `json:"company_name"`
    BusType        string   `json:"bus_type"`
    NumberOfChairs int      `json:"number_of_chairs"`
    Facilities     []string `json:"facility,omitempty"`
}

func (Flight) VehicleType() VehicleType { return VehicleFlight }
func (Train) VehicleType() VehicleType  { return VehicleTrain }
func (Bus) VehicleType() VehicleType    { return VehicleBus }

// DecodeVehicle decodes raw into the variant named by t.  The type name is
// matched case-insensitively.  An empty raw payload yields the zero value of
// the variant.
func DecodeVehicle(t VehicleType, raw json.RawMessage) (VehicleDetails, error) {
    var v VehicleDetails
    switch VehicleType(strings.ToUpper(string(t))) {
    case VehicleFlight:
        f := Flight{}
        if err := decodeDetails(raw, &f); err != nil {
            return nil, err
        }
        v = f
    case VehicleTrain:
        tr := Train{}
        if err := decodeDetails(raw, &tr); err != nil {
            return nil, err
        }
        v = tr
    case VehicleBus:
        b := Bus{}
        if err := decodeDetails(raw, &b); err != nil {
            return nil, err
        }
        v = b
    case "":
        return nil, nil
    default:
        return nil, fmt.Errorf("%w: unknown vehicle_type %q", ErrValidation, t)
    }
    return v, nil
}

func decodeDetails(raw json.RawMessage, dst any) error {
    if len(raw) == 0 || string(raw) == "null" {
        return nil
    }
    if err := json.Unmarshal(raw, dst); err != nil {
        return fmt.Errorf("%w: vehicle_details: %v", ErrValidation, err)
    }
    return nil
}
