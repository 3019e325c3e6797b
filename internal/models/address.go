package models

import (
	"strings"
	"time"
)

// MaxSavedAddresses is the number of live addresses a user may keep.
const MaxSavedAddresses = 2

type SavedAddress struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	Label      string    `json:"label"`
	HouseFlat  string    `json:"house_flat"`
	AreaStreet string    `json:"area_street"`
	Landmark   string    `json:"landmark,omitempty"`
	City       string    `json:"city"`
	Pincode    string    `json:"pincode,omitempty"`
	Lat        *float64  `json:"latitude,omitempty"`
	Lng        *float64  `json:"longitude,omitempty"`
	IsDefault  bool      `json:"is_default"`
	CreatedAt  time.Time `json:"created_at"`
}

func (a SavedAddress) FullAddress() string {
	parts := []string{a.HouseFlat, a.AreaStreet}
	if a.Landmark != "" {
		parts = append(parts, "Near "+a.Landmark)
	}
	if a.City != "" {
		parts = append(parts, a.City)
	}
	s := strings.Join(parts, ", ")
	if a.Pincode != "" {
		s += " - " + a.Pincode
	}
	return s
}
