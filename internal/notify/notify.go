// Package notify sends order notifications by email and SMS. Delivery is
// best effort: callers hand a Notification to Async and move on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/bakery-orders/internal/models"
	"github.com/example/bakery-orders/internal/observability"
)

type Kind string

const (
	OrderConfirmed Kind = "order_confirmed"
	OrderDelivered Kind = "order_delivered"
	OrderCompleted Kind = "order_completed"
	OrderCancelled Kind = "order_cancelled"
)

type Notification struct {
	Kind  Kind
	Order *models.Order
}

type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// Multi sends through every dispatcher; one channel failing does not stop the others.
type Multi []Dispatcher

func (m Multi) Dispatch(ctx context.Context, n Notification) error {
	var errs []error
	for _, d := range m {
		if err := d.Dispatch(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogDispatcher only records the notification. Used when no channel is configured.
type LogDispatcher struct {
	Logger *slog.Logger
}

func (l LogDispatcher) Dispatch(ctx context.Context, n Notification) error {
	l.Logger.Info("notification", "kind", n.Kind, "order_id", n.Order.OrderID, "status", n.Order.Status)
	observability.Notifications.WithLabelValues("log", "ok").Inc()
	return nil
}

// Async runs each dispatch on its own goroutine bounded by a timeout.
// Failures and panics are logged and never reach the caller.
type Async struct {
	next    Dispatcher
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewAsync(next Dispatcher, timeout time.Duration, logger *slog.Logger) *Async {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Async{next: next, timeout: timeout, logger: logger}
}

func (a *Async) Notify(n Notification) {
	if n.Order == nil {
		return
	}
	n.Order = n.Order.Clone()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				a.logger.Error("notification panic recovered", "kind", n.Kind, "order_id", n.Order.OrderID, "error", fmt.Sprint(rec))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.next.Dispatch(ctx, n); err != nil {
			a.logger.Warn("notification failed", "kind", n.Kind, "order_id", n.Order.OrderID, "error", err)
		}
	}()
}

// Wait blocks until in-flight notifications finish. Called on shutdown.
func (a *Async) Wait() { a.wg.Wait() }
