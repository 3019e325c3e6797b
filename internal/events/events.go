// Package events carries order lifecycle and driver location events to the
// rest of the platform (Kafka topics, the kitchen display).
package events

import (
	"context"
	"errors"
	"time"

	"github.com/example/bakery-orders/internal/models"
)

type OrderEventType string

const (
	OrderCreated       OrderEventType = "order.created"
	OrderStatusChanged OrderEventType = "order.status_changed"
	OrderAssigned      OrderEventType = "order.assigned"
	PaymentCompleted   OrderEventType = "payment.completed"
	PaymentFailed      OrderEventType = "payment.failed"
)

type OrderEvent struct {
	Type           OrderEventType     `json:"type"`
	OrderID        string             `json:"order_id"`
	OrderType      models.OrderType   `json:"order_type"`
	Status         models.OrderStatus `json:"status"`
	PreviousStatus models.OrderStatus `json:"previous_status,omitempty"`
	DriverID       string             `json:"driver_id,omitempty"`
	At             time.Time          `json:"at"`
	Order          *models.Order      `json:"order,omitempty"`
}

func NewOrderEvent(typ OrderEventType, o *models.Order, prev models.OrderStatus, at time.Time) OrderEvent {
	return OrderEvent{
		Type:           typ,
		OrderID:        o.OrderID,
		OrderType:      o.OrderType,
		Status:         o.Status,
		PreviousStatus: prev,
		DriverID:       o.AssignedDriverID,
		At:             at,
		Order:          o.Clone(),
	}
}

// LocationEvent is one driver ping, keyed by driver id on the wire.
type LocationEvent struct {
	DriverID  string    `json:"driver_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Heading   float64   `json:"heading"`
	Speed     float64   `json:"speed"`
	Available bool      `json:"available"`
	At        time.Time `json:"at"`
}

type OrderPublisher interface {
	PublishOrder(ctx context.Context, ev OrderEvent) error
}

type LocationPublisher interface {
	PublishLocation(ctx context.Context, ev LocationEvent) error
}

// FanOut delivers each order event to every publisher and joins the errors.
type FanOut []OrderPublisher

func (f FanOut) PublishOrder(ctx context.Context, ev OrderEvent) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.PublishOrder(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LocationFanOut is FanOut for driver pings.
type LocationFanOut []LocationPublisher

func (f LocationFanOut) PublishLocation(ctx context.Context, ev LocationEvent) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.PublishLocation(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops everything; used when Kafka is not configured.
type Nop struct{}

func (Nop) PublishOrder(context.Context, OrderEvent) error       { return nil }
func (Nop) PublishLocation(context.Context, LocationEvent) error { return nil }
