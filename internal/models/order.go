package models

import (
	"strings"
	"time"
)

type OrderType string

const (
	OrderDineIn   OrderType = "dine-in"
	OrderTakeaway OrderType = "takeaway"
	OrderDelivery OrderType = "delivery"
)

func (t OrderType) Valid() bool {
	switch t {
	case OrderDineIn, OrderTakeaway, OrderDelivery:
		return true
	}
	return false
}

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusPreparing OrderStatus = "preparing"
	StatusReady     OrderStatus = "ready"
	StatusServed    OrderStatus = "served"
	StatusPickedUp  OrderStatus = "picked_up"
	StatusOnTheWay  OrderStatus = "on_the_way"
	StatusDelivered OrderStatus = "delivered"
	StatusCompleted OrderStatus = "completed"
	StatusCancelled OrderStatus = "cancelled"
)

// AllStatuses lists every status in forward lifecycle order.
var AllStatuses = []OrderStatus{
	StatusPending, StatusConfirmed, StatusPreparing, StatusReady, StatusServed,
	StatusPickedUp, StatusOnTheWay, StatusDelivered, StatusCompleted, StatusCancelled,
}

func ParseOrderStatus(s string) (OrderStatus, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Order is the single source of truth for an order's lifecycle.
// OrderID is the externally visible identifier; ID is the internal key.
type Order struct {
	ID        int64       `json:"id"`
	OrderID   string      `json:"order_id"`
	UserID    string      `json:"user_id,omitempty"`
	OrderType OrderType   `json:"order_type"`
	Status    OrderStatus `json:"status"`

	Subtotal    Money `json:"subtotal"`
	DeliveryFee Money `json:"delivery_fee"`

	GatewayOrderID string `json:"gateway_order_id,omitempty"`

	CustomerName        string   `json:"customer_name,omitempty"`
	CustomerPhone       string   `json:"customer_phone,omitempty"`
	CustomerEmail       string   `json:"customer_email,omitempty"`
	DeliveryAddress     string   `json:"delivery_address,omitempty"`
	DeliveryPhone       string   `json:"delivery_phone,omitempty"`
	DeliveryNotes       string   `json:"delivery_notes,omitempty"`
	DeliveryLat         *float64 `json:"delivery_lat,omitempty"`
	DeliveryLng         *float64 `json:"delivery_lng,omitempty"`
	SpecialInstructions string   `json:"special_instructions,omitempty"`
	TableNumber         string   `json:"table_number,omitempty"`

	AssignedDriverID string     `json:"assigned_driver_id,omitempty"`
	AssignedAt       *time.Time `json:"assigned_at,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ConfirmedAt *time.Time `json:"confirmed_at"`
	ReadyAt     *time.Time `json:"ready_at"`
	PickedUpAt  *time.Time `json:"picked_up_at"`
	DeliveredAt *time.Time `json:"delivered_at"`
	CompletedAt *time.Time `json:"completed_at"`
	CancelledAt *time.Time `json:"cancelled_at"`

	Lines []OrderLine `json:"items,omitempty"`
}

// GrandTotal is what the customer is charged: item subtotal plus delivery fee.
func (o *Order) GrandTotal() Money { return o.Subtotal.Add(o.DeliveryFee) }

func (o *Order) IsGuest() bool { return o.UserID == "" }

func (o *Order) HasDriver() bool { return o.AssignedDriverID != "" }

// Clone returns a deep copy so stores can hand out orders without aliasing.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.DeliveryLat = cloneFloat(o.DeliveryLat)
	c.DeliveryLng = cloneFloat(o.DeliveryLng)
	c.AssignedAt = cloneTime(o.AssignedAt)
	c.ConfirmedAt = cloneTime(o.ConfirmedAt)
	c.ReadyAt = cloneTime(o.ReadyAt)
	c.PickedUpAt = cloneTime(o.PickedUpAt)
	c.DeliveredAt = cloneTime(o.DeliveredAt)
	c.CompletedAt = cloneTime(o.CompletedAt)
	c.CancelledAt = cloneTime(o.CancelledAt)
	if o.Lines != nil {
		c.Lines = append([]OrderLine(nil), o.Lines...)
	}
	return &c
}

// OrderLine captures the unit price at order time; later menu price edits
// do not affect it.
type OrderLine struct {
	ID         int64  `json:"id"`
	OrderID    string `json:"order_id"`
	MenuItemID int64  `json:"menu_item_id"`
	Name       string `json:"name"`
	UnitPrice  Money  `json:"unit_price"`
	Quantity   int    `json:"quantity"`
}

func (l OrderLine) Subtotal() Money { return l.UnitPrice.Mul(l.Quantity) }

// MaxLineQuantity bounds a single order line.
const MaxLineQuantity = 999

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
