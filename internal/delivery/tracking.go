package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/example/bakery-orders/internal/apperr"
	"github.com/example/bakery-orders/internal/eta"
	"github.com/example/bakery-orders/internal/lifecycle"
	"github.com/example/bakery-orders/internal/models"
)

// Tracking is the payload of the customer's tracking poll.
type Tracking struct {
	OrderID       string             `json:"order_id"`
	OrderType     models.OrderType   `json:"order_type"`
	Status        models.OrderStatus `json:"status"`
	StatusDisplay string             `json:"status_display"`
	Timestamps    Timestamps         `json:"timestamps"`
	Driver        *DriverInfo        `json:"driver"`
	ETASeconds    *float64           `json:"eta_seconds"`
}

type Timestamps struct {
	CreatedAt   *time.Time `json:"created_at"`
	ConfirmedAt *time.Time `json:"confirmed_at"`
	ReadyAt     *time.Time `json:"ready_at"`
	AssignedAt  *time.Time `json:"assigned_at"`
	PickedUpAt  *time.Time `json:"picked_up_at"`
	DeliveredAt *time.Time `json:"delivered_at"`
	CompletedAt *time.Time `json:"completed_at"`
	CancelledAt *time.Time `json:"cancelled_at"`
}

type DriverInfo struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Phone         string        `json:"phone"`
	VehicleNumber string        `json:"vehicle_number"`
	Initial       string        `json:"initial"`
	Location      *LocationView `json:"location"`
}

type LocationView struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Heading   float64   `json:"heading"`
	Speed     float64   `json:"speed"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TrackOrder is polled by the order's owner. It reads the latest stored
// position and holds no connection open.
func (s *Service) TrackOrder(ctx context.Context, actor models.Actor, orderID string) (Tracking, error) {
	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return Tracking{}, err
	}
	if o.IsGuest() || actor.ID == "" || o.UserID != actor.ID {
		return Tracking{}, fmt.Errorf("%w: order %s", apperr.ErrForbidden, orderID)
	}
	created := o.CreatedAt
	t := Tracking{
		OrderID:       o.OrderID,
		OrderType:     o.OrderType,
		Status:        o.Status,
		StatusDisplay: lifecycle.StatusLabel(o.Status),
		Timestamps: Timestamps{
			CreatedAt:   &created,
			ConfirmedAt: o.ConfirmedAt,
			ReadyAt:     o.ReadyAt,
			AssignedAt:  o.AssignedAt,
			PickedUpAt:  o.PickedUpAt,
			DeliveredAt: o.DeliveredAt,
			CompletedAt: o.CompletedAt,
			CancelledAt: o.CancelledAt,
		},
	}
	if !o.HasDriver() {
		return t, nil
	}

	info := &DriverInfo{ID: o.AssignedDriverID}
	d, err := s.Store.GetDriver(ctx, o.AssignedDriverID)
	switch {
	case err == nil:
		info.Name, info.Phone, info.VehicleNumber = d.Name, d.Phone, d.VehicleNumber
	case !errors.Is(err, apperr.ErrNotFound):
		return Tracking{}, err
	}
	info.Initial = initial(info.Name, info.ID)

	loc, err := s.Store.GetDriverLocation(ctx, o.AssignedDriverID)
	switch {
	case err == nil:
		info.Location = &LocationView{Lat: loc.Lat, Lng: loc.Lng, Heading: loc.Heading, Speed: loc.Speed, UpdatedAt: loc.UpdatedAt}
	case !errors.Is(err, apperr.ErrNotFound):
		return Tracking{}, err
	}
	t.Driver = info

	if info.Location != nil && o.DeliveryLat != nil && o.DeliveryLng != nil && enRoute(o.Status) {
		from := models.Coord{Lat: info.Location.Lat, Lng: info.Location.Lng}
		est := s.ETA
		if est == nil {
			est = defaultEstimator
		}
		secs := est.Seconds(ctx, from, models.Coord{Lat: *o.DeliveryLat, Lng: *o.DeliveryLng})
		t.ETASeconds = &secs
	}
	return t, nil
}

var defaultEstimator = &eta.Estimator{}

func enRoute(st models.OrderStatus) bool {
	return st == models.StatusPickedUp || st == models.StatusOnTheWay
}

func initial(name, fallback string) string {
	s := strings.TrimSpace(name)
	if s == "" {
		s = fallback
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return ""
	}
	return string(unicode.ToUpper(r))
}
