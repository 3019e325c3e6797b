package models

import "time"

// DriverLocation is the latest GPS ping of a driver; one row per driver.
type DriverLocation struct {
	DriverID  string    `json:"driver_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Heading   float64   `json:"heading"`
	Speed     float64   `json:"speed"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Driver is the delivery-facing profile of a driver identity.
type Driver struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Phone         string    `json:"phone,omitempty"`
	VehicleNumber string    `json:"vehicle_number,omitempty"`
	Available     bool      `json:"is_available"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Coord is a plain lat/lng pair.
type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func ValidCoord(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
