package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/bakery-orders/internal/models"
)

type recorder struct {
	orders    []OrderEvent
	locations []LocationEvent
	err       error
}

func (r *recorder) PublishOrder(ctx context.Context, ev OrderEvent) error {
	r.orders = append(r.orders, ev)
	return r.err
}

func (r *recorder) PublishLocation(ctx context.Context, ev LocationEvent) error {
	r.locations = append(r.locations, ev)
	return r.err
}

func TestNewOrderEventSnapshotsOrder(t *testing.T) {
	o := &models.Order{OrderID: "ORD-1", OrderType: models.OrderDelivery, Status: models.StatusReady, AssignedDriverID: "drv-1"}
	ev := NewOrderEvent(OrderStatusChanged, o, models.StatusPreparing, time.Unix(0, 0))
	o.Status = models.StatusPickedUp
	if ev.Status != models.StatusReady || ev.Order.Status != models.StatusReady {
		t.Fatalf("event aliased the order: %+v", ev)
	}
	if ev.DriverID != "drv-1" || ev.PreviousStatus != models.StatusPreparing {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestFanOutDeliversToAllAndJoinsErrors(t *testing.T) {
	boom := errors.New("broker down")
	a, b := &recorder{err: boom}, &recorder{}
	err := FanOut{a, nil, b}.PublishOrder(context.Background(), OrderEvent{OrderID: "ORD-1"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(a.orders) != 1 || len(b.orders) != 1 {
		t.Fatal("a failing publisher stopped the fan-out")
	}

	err = LocationFanOut{b, Nop{}}.PublishLocation(context.Background(), LocationEvent{DriverID: "drv-1"})
	if err != nil || len(b.locations) != 1 {
		t.Fatalf("location fan-out: %v %d", err, len(b.locations))
	}
}
