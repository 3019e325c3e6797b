// Package chatorder drives the chatbot's single-item delivery checkout:
// find an item, collect the address, then place the order and open a
// gateway payment. Payment verification goes through the normal callback.
package chatorder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/bakery-orders/internal/apperr"
	"github.com/example/bakery-orders/internal/menu"
	"github.com/example/bakery-orders/internal/models"
	"github.com/example/bakery-orders/internal/orders"
	"github.com/example/bakery-orders/internal/payments"
	"github.com/example/bakery-orders/internal/sessions"
	"github.com/example/bakery-orders/internal/storage"
)

type Service struct {
	Menu        *menu.Service
	Store       storage.Store
	Sessions    sessions.Store
	Orders      *orders.Service
	DeliveryFee models.Money
	Logger      *slog.Logger
	Now         func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Service) Search(ctx context.Context, query string) ([]models.MenuItem, error) {
	return s.Menu.Search(ctx, query)
}

type InitiateRequest struct {
	MenuItemID int64 `json:"item_id"`
	Quantity   int   `json:"quantity"`
}

// Initiate opens a session for quantity units of one menu item. A zero
// quantity means one.
func (s *Service) Initiate(ctx context.Context, actor models.Actor, req InitiateRequest) (*sessions.ChatOrder, error) {
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 0 || req.Quantity > models.MaxLineQuantity {
		return nil, fmt.Errorf("%w: quantity must be between 1 and %d", apperr.ErrValidation, models.MaxLineQuantity)
	}
	item, err := s.Store.GetMenuItem(ctx, req.MenuItemID)
	if err != nil {
		return nil, err
	}
	if !item.Available {
		return nil, fmt.Errorf("%w: %s", apperr.ErrMenuItemUnavailable, item.Name)
	}
	sess := &sessions.ChatOrder{
		ID:          sessions.NewID(),
		MenuItemID:  item.ID,
		ItemName:    item.Name,
		Quantity:    req.Quantity,
		UnitPrice:   item.Price,
		DeliveryFee: s.DeliveryFee,
		Step:        sessions.StepCollectAddress,
		CreatedAt:   s.now(),
	}
	if actor.Is(models.RoleCustomer) {
		sess.UserID = actor.ID
	}
	if err := s.Sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

type AddressRequest struct {
	SessionID string `json:"session_id"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
}

func (s *Service) SetAddress(ctx context.Context, actor models.Actor, req AddressRequest) (*sessions.ChatOrder, error) {
	sess, err := s.load(ctx, actor, req.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.Step == sessions.StepAwaitPayment {
		return nil, fmt.Errorf("%w: order already placed", apperr.ErrInvalidTransition)
	}
	addr, phone := strings.TrimSpace(req.Address), strings.TrimSpace(req.Phone)
	if addr == "" || phone == "" {
		return nil, fmt.Errorf("%w: address and phone are required", apperr.ErrValidation)
	}
	sess.DeliveryAddress = addr
	sess.DeliveryPhone = phone
	sess.Step = sessions.StepConfirmOrder
	if err := s.Sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// checkoutLockTTL outlives a gateway call with its timeout.
const checkoutLockTTL = 30 * time.Second

type Checkout struct {
	Session *sessions.ChatOrder   `json:"session"`
	OrderID string                `json:"order_id"`
	Payment payments.GatewayOrder `json:"payment"`
}

// Create places the delivery order for a confirmed session and opens a
// gateway payment for it. Calling it again on the same session reuses the
// placed order; a call overlapping another checkout of the same session
// fails with apperr.ErrSessionBusy.
func (s *Service) Create(ctx context.Context, actor models.Actor, sessionID string) (Checkout, error) {
	if !s.Orders.PaymentsEnabled() {
		return Checkout{}, fmt.Errorf("%w: no payment gateway configured", apperr.ErrGatewayUnavailable)
	}
	if _, err := s.load(ctx, actor, sessionID); err != nil {
		return Checkout{}, err
	}
	unlock, err := s.Sessions.Lock(ctx, sessionID, checkoutLockTTL)
	if err != nil {
		return Checkout{}, err
	}
	defer unlock()
	// re-read under the claim; a concurrent checkout may have placed the order
	sess, err := s.load(ctx, actor, sessionID)
	if err != nil {
		return Checkout{}, err
	}
	if sess.Step == sessions.StepCollectAddress {
		return Checkout{}, fmt.Errorf("%w: delivery address missing", apperr.ErrValidation)
	}
	if sess.OrderID == "" {
		o, err := s.Orders.PlaceOrder(ctx, actor, orders.PlaceOrderRequest{
			OrderType:       models.OrderDelivery,
			Items:           []orders.LineRequest{{MenuItemID: sess.MenuItemID, Quantity: sess.Quantity}},
			DeliveryAddress: sess.DeliveryAddress,
			DeliveryPhone:   sess.DeliveryPhone,
		})
		if err != nil {
			return Checkout{}, err
		}
		sess.OrderID = o.OrderID
		sess.Step = sessions.StepAwaitPayment
		if err := s.Sessions.Save(ctx, sess); err != nil {
			return Checkout{}, err
		}
	}
	gw, err := s.Orders.CreateGatewayOrder(ctx, actor, sess.OrderID)
	if err != nil {
		return Checkout{}, err
	}
	sess.GatewayOrderID = gw.ID
	if err := s.Sessions.Save(ctx, sess); err != nil {
		s.logger().Warn("chat session save failed", "session_id", sess.ID, "error", err)
	}
	return Checkout{Session: sess, OrderID: sess.OrderID, Payment: gw}, nil
}

// load fetches a session the actor may continue. Sessions started by a
// signed-in customer stay with that customer.
func (s *Service) load(ctx context.Context, actor models.Actor, id string) (*sessions.ChatOrder, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: session_id is required", apperr.ErrValidation)
	}
	sess, err := s.Sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.UserID != "" && (!actor.Is(models.RoleCustomer) || actor.ID != sess.UserID) {
		return nil, fmt.Errorf("%w: session belongs to another user", apperr.ErrForbidden)
	}
	return sess, nil
}
