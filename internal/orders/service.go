// Package orders runs the order lifecycle: checkout, staff and driver status
// changes, cancellation with refund, and reconciliation of gateway payments.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/bakery-orders/internal/apperr"
	"github.com/example/bakery-orders/internal/events"
	"github.com/example/bakery-orders/internal/lifecycle"
	"github.com/example/bakery-orders/internal/models"
	"github.com/example/bakery-orders/internal/notify"
	"github.com/example/bakery-orders/internal/observability"
	"github.com/example/bakery-orders/internal/payments"
	"github.com/example/bakery-orders/internal/storage"
)

// Notifier hands a notification off without waiting for it. notify.Async
// satisfies it.
type Notifier interface {
	Notify(n notify.Notification)
}

// SignaturePolicy decides what happens to a pending order when a payment
// callback carries a bad signature.
type SignaturePolicy string

const (
	PolicyRetain SignaturePolicy = "retain"
	PolicyCancel SignaturePolicy = "cancel"
)

type Service struct {
	Store    storage.Store
	Gateway  payments.Gateway // nil when no gateway is configured
	Events   events.OrderPublisher
	Notifier Notifier
	Logger   *slog.Logger

	DeliveryFee     models.Money
	Currency        string
	SignaturePolicy SignaturePolicy

	Now        func() time.Time
	NewOrderID func() string
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Service) currency() string {
	if s.Currency == "" {
		return "INR"
	}
	return s.Currency
}

func (s *Service) newOrderID() string {
	if s.NewOrderID != nil {
		return s.NewOrderID()
	}
	return NewOrderID()
}

// NewOrderID returns an external id of the form ORD-1A2B3C4D.
func NewOrderID() string {
	return "ORD-" + strings.ToUpper(uuid.NewString()[:8])
}

type LineRequest struct {
	MenuItemID int64 `json:"menu_item_id"`
	Quantity   int   `json:"quantity"`
}

type PlaceOrderRequest struct {
	OrderType           models.OrderType `json:"order_type"`
	Items               []LineRequest    `json:"items"`
	CustomerName        string           `json:"customer_name"`
	CustomerPhone       string           `json:"customer_phone"`
	CustomerEmail       string           `json:"customer_email"`
	DeliveryAddress     string           `json:"delivery_address"`
	DeliveryPhone       string           `json:"delivery_phone"`
	DeliveryNotes       string           `json:"delivery_notes"`
	DeliveryLat         *float64         `json:"delivery_lat"`
	DeliveryLng         *float64         `json:"delivery_lng"`
	SpecialInstructions string           `json:"special_instructions"`
	TableNumber         string           `json:"table_number"`
}

func (r PlaceOrderRequest) validate() error {
	if !r.OrderType.Valid() {
		return fmt.Errorf("%w: unknown order type %q", apperr.ErrValidation, r.OrderType)
	}
	if len(r.Items) == 0 {
		return fmt.Errorf("%w: order has no items", apperr.ErrValidation)
	}
	for _, l := range r.Items {
		if l.Quantity < 1 || l.Quantity > models.MaxLineQuantity {
			return fmt.Errorf("%w: quantity for item %d must be between 1 and %d", apperr.ErrValidation, l.MenuItemID, models.MaxLineQuantity)
		}
	}
	if r.OrderType == models.OrderDelivery {
		if strings.TrimSpace(r.DeliveryAddress) == "" || strings.TrimSpace(r.DeliveryPhone) == "" {
			return fmt.Errorf("%w: delivery orders need an address and phone", apperr.ErrValidation)
		}
	}
	if (r.DeliveryLat == nil) != (r.DeliveryLng == nil) {
		return fmt.Errorf("%w: delivery_lat and delivery_lng go together", apperr.ErrInvalidCoordinates)
	}
	if r.DeliveryLat != nil && !models.ValidCoord(*r.DeliveryLat, *r.DeliveryLng) {
		return apperr.ErrInvalidCoordinates
	}
	return nil
}

// PlaceOrder creates a pending order, snapshotting current menu prices into
// its lines. Customers own the orders they place; anyone else places a guest order.
func (s *Service) PlaceOrder(ctx context.Context, actor models.Actor, req PlaceOrderRequest) (*models.Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	now := s.now()
	o := &models.Order{
		OrderID:             s.newOrderID(),
		OrderType:           req.OrderType,
		Status:              models.StatusPending,
		CustomerName:        strings.TrimSpace(req.CustomerName),
		CustomerPhone:       strings.TrimSpace(req.CustomerPhone),
		CustomerEmail:       strings.TrimSpace(req.CustomerEmail),
		DeliveryAddress:     strings.TrimSpace(req.DeliveryAddress),
		DeliveryPhone:       strings.TrimSpace(req.DeliveryPhone),
		DeliveryNotes:       req.DeliveryNotes,
		DeliveryLat:         req.DeliveryLat,
		DeliveryLng:         req.DeliveryLng,
		SpecialInstructions: req.SpecialInstructions,
		TableNumber:         req.TableNumber,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if actor.Is(models.RoleCustomer) {
		o.UserID = actor.ID
	}
	if o.OrderType == models.OrderDelivery {
		o.DeliveryFee = s.DeliveryFee
	}

	err := s.Store.WithinTx(ctx, func(tx storage.Tx) error {
		ids := make([]int64, 0, len(req.Items))
		for _, l := range req.Items {
			ids = append(ids, l.MenuItemID)
		}
		menu, err := tx.MenuItems(ctx, ids)
		if err != nil {
			return err
		}
		var subtotal models.Money
		for _, l := range req.Items {
			it, ok := menu[l.MenuItemID]
			if !ok || !it.Available {
				return fmt.Errorf("%w: item %d", apperr.ErrMenuItemUnavailable, l.MenuItemID)
			}
			line := models.OrderLine{MenuItemID: it.ID, Name: it.Name, UnitPrice: it.Price, Quantity: l.Quantity}
			lineTotal, err := line.UnitPrice.MulChecked(line.Quantity)
			if err == nil {
				subtotal, err = subtotal.AddChecked(lineTotal)
			}
			if err != nil {
				return fmt.Errorf("%w: order total: %v", apperr.ErrValidation, err)
			}
			o.Lines = append(o.Lines, line)
		}
		if _, err := subtotal.AddChecked(o.DeliveryFee); err != nil {
			return fmt.Errorf("%w: order total: %v", apperr.ErrValidation, err)
		}
		o.Subtotal = subtotal
		return tx.InsertOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	observability.OrdersPlaced.WithLabelValues(string(o.OrderType)).Inc()
	s.logger().Info("order placed", "order_id", o.OrderID, "order_type", o.OrderType, "total", o.GrandTotal().String())
	s.publish(ctx, events.OrderCreated, o, "")
	return o, nil
}

func canView(o *models.Order, actor models.Actor) bool {
	switch {
	case actor.IsStaff(), actor.Is(models.RoleSystem):
		return true
	case actor.Is(models.RoleDriver):
		return o.AssignedDriverID != "" && o.AssignedDriverID == actor.ID
	case actor.Is(models.RoleCustomer):
		return !o.IsGuest() && o.UserID == actor.ID
	}
	return false
}

// canPay allows guests to pay for guest orders they hold the id of.
func canPay(o *models.Order, actor models.Actor) bool {
	return o.IsGuest() || canView(o, actor)
}

// Detail is an order as shown to someone allowed to see it.
type Detail struct {
	*models.Order
	Payment      *models.Payment      `json:"payment"`
	StatusLabel  string               `json:"status_display"`
	Total        models.Money         `json:"grand_total"`
	NextStatuses []models.OrderStatus `json:"next_statuses"`
}

func (s *Service) Get(ctx context.Context, actor models.Actor, orderID string) (Detail, error) {
	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return Detail{}, err
	}
	if !canView(o, actor) {
		return Detail{}, fmt.Errorf("%w: order %s", apperr.ErrForbidden, orderID)
	}
	d := Detail{
		Order:        o,
		StatusLabel:  lifecycle.StatusLabel(o.Status),
		Total:        o.GrandTotal(),
		NextStatuses: lifecycle.Next(o, actor),
	}
	p, err := s.Store.GetPayment(ctx, orderID)
	switch {
	case err == nil:
		d.Payment = p
	case !errors.Is(err, apperr.ErrNotFound):
		return Detail{}, err
	}
	return d, nil
}

// ListMine returns the caller's own orders, newest first.
func (s *Service) ListMine(ctx context.Context, actor models.Actor) ([]*models.Order, error) {
	if actor.ID == "" || !actor.Is(models.RoleCustomer) {
		return nil, fmt.Errorf("%w: only signed-in customers have an order history", apperr.ErrForbidden)
	}
	return s.Store.ListOrdersByUser(ctx, actor.ID)
}

// Transition moves an order to status to on behalf of actor.
func (s *Service) Transition(ctx context.Context, actor models.Actor, orderID string, to models.OrderStatus) (*models.Order, error) {
	if to == models.StatusCancelled {
		return s.Cancel(ctx, actor, orderID)
	}
	var (
		o    *models.Order
		prev models.OrderStatus
	)
	err := s.Store.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		if o, err = tx.LockOrder(ctx, orderID); err != nil {
			return err
		}
		prev = o.Status
		if err := lifecycle.Transition(o, to, actor, s.now()); err != nil {
			return err
		}
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, o, prev)
	return o, nil
}

// Cancel cancels a pending or confirmed order and refunds its payment.
func (s *Service) Cancel(ctx context.Context, actor models.Actor, orderID string) (*models.Order, error) {
	var (
		o    *models.Order
		prev models.OrderStatus
	)
	err := s.Store.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		if o, err = tx.LockOrder(ctx, orderID); err != nil {
			return err
		}
		prev = o.Status
		return s.cancelLocked(ctx, tx, o, actor)
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, o, prev)
	return o, nil
}

func (s *Service) cancelLocked(ctx context.Context, tx storage.Tx, o *models.Order, actor models.Actor) error {
	if err := lifecycle.Cancel(o, actor, s.now()); err != nil {
		return err
	}
	if err := tx.UpdateOrder(ctx, o); err != nil {
		return err
	}
	p, err := tx.LockPayment(ctx, o.OrderID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	switch p.Status {
	case models.PaymentCompleted, models.PaymentPending, models.PaymentProcessing:
		p.Status = models.PaymentRefunded
		return tx.UpsertPayment(ctx, p)
	}
	return nil
}

var notifyOn = map[models.OrderStatus]notify.Kind{
	models.StatusConfirmed: notify.OrderConfirmed,
	models.StatusDelivered: notify.OrderDelivered,
	models.StatusCompleted: notify.OrderCompleted,
	models.StatusCancelled: notify.OrderCancelled,
}

// afterTransition runs the post-commit side effects. None of them can fail
// the transition.
func (s *Service) afterTransition(ctx context.Context, o *models.Order, prev models.OrderStatus) {
	if o.Status == prev {
		return
	}
	observability.OrderTransitions.WithLabelValues(string(prev), string(o.Status)).Inc()
	s.logger().Info("order status changed", "order_id", o.OrderID, "from", prev, "to", o.Status)
	s.publish(ctx, events.OrderStatusChanged, o, prev)
	if kind, ok := notifyOn[o.Status]; ok && s.Notifier != nil {
		s.Notifier.Notify(notify.Notification{Kind: kind, Order: o})
	}
}

func (s *Service) publish(ctx context.Context, typ events.OrderEventType, o *models.Order, prev models.OrderStatus) {
	if s.Events == nil {
		return
	}
	ev := events.NewOrderEvent(typ, o, prev, s.now())
	if err := s.Events.PublishOrder(context.WithoutCancel(ctx), ev); err != nil {
		s.logger().Warn("publish order event failed", "type", typ, "order_id", o.OrderID, "error", err)
	}
}

// KitchenQueue is the active kitchen workload, oldest first.
type KitchenQueue struct {
	Orders []*models.Order             `json:"orders"`
	Counts map[models.OrderStatus]int `json:"counts"`
}

func (s *Service) KitchenQueue(ctx context.Context, actor models.Actor) (KitchenQueue, error) {
	if !actor.IsStaff() {
		return KitchenQueue{}, fmt.Errorf("%w: kitchen queue is for staff", apperr.ErrForbidden)
	}
	list, err := s.Store.ListKitchenQueue(ctx)
	if err != nil {
		return KitchenQueue{}, err
	}
	q := KitchenQueue{Orders: list, Counts: make(map[models.OrderStatus]int, len(storage.KitchenStatuses))}
	for _, st := range storage.KitchenStatuses {
		q.Counts[st] = 0
	}
	for _, o := range list {
		q.Counts[o.Status]++
	}
	return q, nil
}
