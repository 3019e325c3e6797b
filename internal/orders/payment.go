package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/bakery-orders/internal/apperr"
	"github.com/example/bakery-orders/internal/events"
	"github.com/example/bakery-orders/internal/lifecycle"
	"github.com/example/bakery-orders/internal/models"
	"github.com/example/bakery-orders/internal/observability"
	"github.com/example/bakery-orders/internal/payments"
	"github.com/example/bakery-orders/internal/storage"
)

func (s *Service) gateway() (payments.Gateway, error) {
	if s.Gateway == nil {
		return nil, fmt.Errorf("%w: no payment gateway configured", apperr.ErrGatewayUnavailable)
	}
	return s.Gateway, nil
}

// PaymentsEnabled reports whether a gateway is wired in.
func (s *Service) PaymentsEnabled() bool { return s.Gateway != nil }

// CreateGatewayOrder registers a pending order with the payment gateway and
// stores the gateway's reference on it. The amount is the grand total in
// minor units.
func (s *Service) CreateGatewayOrder(ctx context.Context, actor models.Actor, orderID string) (payments.GatewayOrder, error) {
	gw, err := s.gateway()
	if err != nil {
		return payments.GatewayOrder{}, err
	}
	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return payments.GatewayOrder{}, err
	}
	if !canPay(o, actor) {
		return payments.GatewayOrder{}, fmt.Errorf("%w: order %s", apperr.ErrForbidden, orderID)
	}
	if o.Status != models.StatusPending {
		return payments.GatewayOrder{}, fmt.Errorf("%w: order %s is %s, not awaiting payment", apperr.ErrInvalidTransition, orderID, o.Status)
	}

	start := time.Now()
	g, err := gw.CreateOrder(ctx, payments.CreateOrderRequest{
		Receipt:     o.OrderID,
		AmountMinor: o.GrandTotal().MinorUnits(),
		Currency:    s.currency(),
	})
	result := "ok"
	if err != nil {
		result = "error"
	}
	observability.GatewayLatency.WithLabelValues(gw.Name(), result).Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger().Error("gateway create order failed", "order_id", orderID, "provider", gw.Name(), "error", err)
		return payments.GatewayOrder{}, err
	}

	err = s.Store.WithinTx(ctx, func(tx storage.Tx) error {
		locked, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if locked.Status != models.StatusPending {
			return fmt.Errorf("%w: order %s changed to %s during checkout", apperr.ErrInvalidTransition, orderID, locked.Status)
		}
		locked.GatewayOrderID = g.ID
		locked.UpdatedAt = s.now()
		return tx.UpdateOrder(ctx, locked)
	})
	if err != nil {
		return payments.GatewayOrder{}, err
	}
	s.logger().Info("gateway order created", "order_id", orderID, "gateway_order_id", g.ID, "amount", g.AmountMinor)
	return g, nil
}

// VerifyCallback confirms the order behind gatewayOrderID once the checkout's
// signature checks out. A replay of the same payment is a no-op.
func (s *Service) VerifyCallback(ctx context.Context, gatewayOrderID, paymentID, signature string) (*models.Order, error) {
	gw, err := s.gateway()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(gatewayOrderID) == "" || strings.TrimSpace(paymentID) == "" {
		return nil, fmt.Errorf("%w: gateway order id and payment id are required", apperr.ErrValidation)
	}
	var (
		o       *models.Order
		prev    models.OrderStatus
		paid    bool
		sigErr  error
		logArgs []any
	)
	err = s.Store.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		if o, err = tx.LockOrderByGatewayRef(ctx, gatewayOrderID); err != nil {
			return err
		}
		prev = o.Status
		if err := gw.VerifyPayment(gatewayOrderID, paymentID, signature); err != nil {
			if !errors.Is(err, apperr.ErrSignatureInvalid) {
				return err
			}
			sigErr = err
			if s.SignaturePolicy != PolicyCancel || o.Status != models.StatusPending {
				return err
			}
			if err := lifecycle.Cancel(o, models.SystemActor, s.now()); err != nil {
				return err
			}
			return tx.UpdateOrder(ctx, o)
		}
		paid, err = s.capture(ctx, tx, o, models.PaymentMethod(gw.Name()), paymentID)
		return err
	})
	logArgs = []any{"order_id", orderIDOf(o), "gateway_order_id", gatewayOrderID, "payment_id", paymentID}
	switch {
	case sigErr != nil:
		observability.PaymentVerifications.WithLabelValues("callback", "signature_invalid").Inc()
		s.logger().Warn("payment callback signature invalid", append(logArgs, "policy", s.SignaturePolicy)...)
		if err == nil {
			s.afterTransition(ctx, o, prev)
		}
		return nil, sigErr
	case err != nil:
		observability.PaymentVerifications.WithLabelValues("callback", "error").Inc()
		s.logger().Warn("payment callback rejected", append(logArgs, "error", err)...)
		return nil, err
	}
	observability.PaymentVerifications.WithLabelValues("callback", "ok").Inc()
	if paid {
		s.logger().Info("payment captured", logArgs...)
		s.publish(ctx, events.PaymentCompleted, o, prev)
		s.afterTransition(ctx, o, prev)
	}
	return o, nil
}

func orderIDOf(o *models.Order) string {
	if o == nil {
		return ""
	}
	return o.OrderID
}

// capture records a completed payment for o and confirms it if it is still
// pending. It reports false when paymentID was already recorded.
func (s *Service) capture(ctx context.Context, tx storage.Tx, o *models.Order, method models.PaymentMethod, paymentID string) (bool, error) {
	existing, err := tx.LockPayment(ctx, o.OrderID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return false, err
	}
	if existing != nil && existing.Status == models.PaymentCompleted {
		if existing.TransactionID == paymentID {
			return false, nil
		}
		return false, fmt.Errorf("%w: order %s already paid by %s", apperr.ErrDuplicatePayment, o.OrderID, existing.TransactionID)
	}
	now := s.now()
	switch o.Status {
	case models.StatusPending:
		if err := lifecycle.Transition(o, models.StatusConfirmed, models.SystemActor, now); err != nil {
			return false, err
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return false, err
		}
	case models.StatusCancelled:
		return false, fmt.Errorf("%w: order %s was cancelled before payment %s arrived", apperr.ErrInvalidTransition, o.OrderID, paymentID)
	}
	p := existing
	if p == nil {
		p = &models.Payment{OrderID: o.OrderID}
	}
	p.Method = method
	p.Status = models.PaymentCompleted
	p.TransactionID = paymentID
	p.Amount = o.GrandTotal()
	p.PaidAt = &now
	if err := tx.UpsertPayment(ctx, p); err != nil {
		return false, err
	}
	return true, nil
}

// HandleWebhook applies a gateway's server-to-server notification. Events the
// service does not act on are acknowledged and ignored.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signatureHeader string) (payments.WebhookEvent, error) {
	gw, err := s.gateway()
	if err != nil {
		return payments.WebhookEvent{}, err
	}
	ev, err := gw.ParseWebhook(body, signatureHeader)
	if err != nil {
		result := "error"
		if errors.Is(err, apperr.ErrSignatureInvalid) {
			result = "signature_invalid"
		}
		observability.PaymentVerifications.WithLabelValues("webhook", result).Inc()
		s.logger().Warn("webhook rejected", "provider", gw.Name(), "error", err)
		return ev, err
	}
	if ev.Kind == payments.EventIgnored {
		s.logger().Debug("webhook ignored", "provider", gw.Name(), "type", ev.RawType)
		return ev, nil
	}

	var (
		o       *models.Order
		prev    models.OrderStatus
		changed bool
	)
	err = s.Store.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		if o, err = lockWebhookOrder(ctx, tx, ev); err != nil {
			return err
		}
		prev = o.Status
		switch ev.Kind {
		case payments.EventCaptured:
			changed, err = s.capture(ctx, tx, o, models.PaymentMethod(gw.Name()), ev.PaymentID)
		case payments.EventFailed:
			changed, err = s.recordFailure(ctx, tx, o, models.PaymentMethod(gw.Name()), ev.PaymentID)
		}
		return err
	})
	if err != nil {
		observability.PaymentVerifications.WithLabelValues("webhook", "error").Inc()
		s.logger().Warn("webhook not applied", "type", ev.RawType, "gateway_order_id", ev.GatewayOrderID, "error", err)
		return ev, err
	}
	observability.PaymentVerifications.WithLabelValues("webhook", ev.Kind.String()).Inc()
	if changed {
		typ := events.PaymentCompleted
		if ev.Kind == payments.EventFailed {
			typ = events.PaymentFailed
		}
		s.publish(ctx, typ, o, prev)
		s.afterTransition(ctx, o, prev)
	}
	return ev, nil
}

func lockWebhookOrder(ctx context.Context, tx storage.Tx, ev payments.WebhookEvent) (*models.Order, error) {
	o, err := tx.LockOrderByGatewayRef(ctx, ev.GatewayOrderID)
	if err == nil || !errors.Is(err, apperr.ErrOrderNotFound) || ev.OrderRef == "" {
		return o, err
	}
	return tx.LockOrder(ctx, ev.OrderRef)
}

// recordFailure cancels a pending order whose payment failed. A payment that
// already completed is left alone.
func (s *Service) recordFailure(ctx context.Context, tx storage.Tx, o *models.Order, method models.PaymentMethod, paymentID string) (bool, error) {
	existing, err := tx.LockPayment(ctx, o.OrderID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return false, err
	}
	if existing != nil && existing.Status == models.PaymentCompleted {
		return false, nil
	}
	if o.Status != models.StatusPending {
		return false, nil
	}
	if err := lifecycle.Cancel(o, models.SystemActor, s.now()); err != nil {
		return false, err
	}
	if err := tx.UpdateOrder(ctx, o); err != nil {
		return false, err
	}
	if paymentID == "" {
		paymentID = "FAILED-" + o.OrderID
	}
	p := existing
	if p == nil {
		p = &models.Payment{OrderID: o.OrderID}
	}
	p.Method = method
	p.Status = models.PaymentFailed
	p.TransactionID = paymentID
	p.Amount = o.GrandTotal()
	return true, tx.UpsertPayment(ctx, p)
}

type ManualPaymentRequest struct {
	Method      models.PaymentMethod `json:"payment_method"`
	Reference   string               `json:"reference"`
	EvidenceURL string               `json:"evidence_url"`
}

// SubmitManualPayment records an offline payment (UPI transfer, cash on
// delivery) that an admin still has to verify.
func (s *Service) SubmitManualPayment(ctx context.Context, actor models.Actor, orderID string, req ManualPaymentRequest) (*models.Payment, error) {
	if !req.Method.Offline() {
		return nil, fmt.Errorf("%w: %q is not an offline payment method", apperr.ErrValidation, req.Method)
	}
	if req.Method == models.MethodUPI && strings.TrimSpace(req.Reference) == "" && strings.TrimSpace(req.EvidenceURL) == "" {
		return nil, fmt.Errorf("%w: UPI payments need a reference or evidence", apperr.ErrValidation)
	}
	var p *models.Payment
	err := s.Store.WithinTx(ctx, func(tx storage.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !canPay(o, actor) {
			return fmt.Errorf("%w: order %s", apperr.ErrForbidden, orderID)
		}
		if o.Status != models.StatusPending {
			return fmt.Errorf("%w: order %s is %s, not awaiting payment", apperr.ErrInvalidTransition, orderID, o.Status)
		}
		existing, err := tx.LockPayment(ctx, orderID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		if existing != nil && existing.Status == models.PaymentCompleted {
			return fmt.Errorf("%w: order %s is already paid", apperr.ErrDuplicatePayment, orderID)
		}
		p = existing
		if p == nil {
			p = &models.Payment{OrderID: orderID}
		}
		p.Method = req.Method
		p.Status = models.PaymentPending
		p.TransactionID = "MAN-" + strings.ToUpper(uuid.NewString())
		p.Amount = o.GrandTotal()
		p.Reference = strings.TrimSpace(req.Reference)
		p.EvidenceURL = strings.TrimSpace(req.EvidenceURL)
		p.VerificationNotes = ""
		p.PaidAt = nil
		return tx.UpsertPayment(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	s.logger().Info("manual payment submitted", "order_id", orderID, "method", req.Method)
	return p, nil
}

func lockPendingManual(ctx context.Context, tx storage.Tx, orderID string) (*models.Payment, error) {
	p, err := tx.LockPayment(ctx, orderID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("%w: no manual payment for order %s", apperr.ErrNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}
	if !p.Method.Offline() || p.Status != models.PaymentPending {
		return nil, fmt.Errorf("%w: payment for %s is %s %s", apperr.ErrInvalidTransition, orderID, p.Method, p.Status)
	}
	return p, nil
}

// VerifyManualPayment completes a submitted offline payment and confirms the order.
func (s *Service) VerifyManualPayment(ctx context.Context, actor models.Actor, orderID, notes string) (*models.Order, error) {
	if !actor.Is(models.RoleAdmin) {
		return nil, fmt.Errorf("%w: only admins verify manual payments", apperr.ErrForbidden)
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
		p, err := lockPendingManual(ctx, tx, orderID)
		if err != nil {
			return err
		}
		now := s.now()
		if err := lifecycle.Transition(o, models.StatusConfirmed, actor, now); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		p.Status = models.PaymentCompleted
		p.Amount = o.GrandTotal()
		p.VerificationNotes = notes
		p.PaidAt = &now
		return tx.UpsertPayment(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	observability.PaymentVerifications.WithLabelValues("manual", "ok").Inc()
	s.publish(ctx, events.PaymentCompleted, o, prev)
	s.afterTransition(ctx, o, prev)
	return o, nil
}

// RejectManualPayment marks a submitted offline payment as failed. The order
// stays pending so the customer can pay another way.
func (s *Service) RejectManualPayment(ctx context.Context, actor models.Actor, orderID, notes string) (*models.Payment, error) {
	if !actor.Is(models.RoleAdmin) {
		return nil, fmt.Errorf("%w: only admins reject manual payments", apperr.ErrForbidden)
	}
	var p *models.Payment
	err := s.Store.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		if p, err = lockPendingManual(ctx, tx, orderID); err != nil {
			return err
		}
		p.Status = models.PaymentFailed
		p.VerificationNotes = notes
		return tx.UpsertPayment(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	observability.PaymentVerifications.WithLabelValues("manual", "rejected").Inc()
	return p, nil
}
