package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/bakery-orders/internal/models"
)

func testOrder() *models.Order {
	return &models.Order{
		OrderID:       "ORD-1A2B3C4D",
		OrderType:     models.OrderDelivery,
		Status:        models.StatusConfirmed,
		CustomerName:  "Asha",
		CustomerEmail: "asha@example.com",
		DeliveryPhone: "+919800000000",
		Subtotal:      models.MustMoney("300.00"),
		DeliveryFee:   models.MustMoney("50.00"),
		Lines: []models.OrderLine{
			{Name: "Croissant", UnitPrice: models.MustMoney("150.00"), Quantity: 2},
		},
	}
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type funcDispatcher func(ctx context.Context, n Notification) error

func (f funcDispatcher) Dispatch(ctx context.Context, n Notification) error { return f(ctx, n) }

func TestRenderEmail(t *testing.T) {
	msg, err := Renderer{Shop: "The Bake Story", Currency: "INR"}.Email(Notification{Kind: OrderConfirmed, Order: testOrder()})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Subject != "Order ORD-1A2B3C4D confirmed - The Bake Story" {
		t.Fatalf("subject %q", msg.Subject)
	}
	for _, want := range []string{"Hello Asha", "Croissant x 2 @ 150.00 = 300.00", "Grand total: INR 350.00", "is now Confirmed"} {
		if !strings.Contains(msg.Body, want) {
			t.Fatalf("body missing %q:\n%s", want, msg.Body)
		}
	}
}

func TestAsyncSwallowsFailuresAndPanics(t *testing.T) {
	var calls atomic.Int32
	a := NewAsync(Multi{
		funcDispatcher(func(ctx context.Context, n Notification) error { calls.Add(1); return errors.New("smtp down") }),
		funcDispatcher(func(ctx context.Context, n Notification) error { calls.Add(1); panic("boom") }),
	}, time.Second, quietLogger())

	a.Notify(Notification{Kind: OrderDelivered, Order: testOrder()})
	a.Wait()
	if calls.Load() != 2 {
		t.Fatalf("expected both dispatchers to run, got %d", calls.Load())
	}
}

func TestAsyncDoesNotBlockCaller(t *testing.T) {
	release := make(chan struct{})
	a := NewAsync(funcDispatcher(func(ctx context.Context, n Notification) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return ctx.Err()
	}), 50*time.Millisecond, quietLogger())

	start := time.Now()
	a.Notify(Notification{Kind: OrderCompleted, Order: testOrder()})
	if time.Since(start) > 20*time.Millisecond {
		t.Fatalf("Notify blocked the caller")
	}
	a.Wait()
	close(release)
}

func TestSMSDispatcher(t *testing.T) {
	var got map[string]string
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := NewSMSDispatcher(srv.URL, "k3y", Renderer{Shop: "Bake", Currency: "INR"})
	if err := d.Dispatch(context.Background(), Notification{Kind: OrderConfirmed, Order: testOrder()}); err != nil {
		t.Fatal(err)
	}
	if auth != "Bearer k3y" || got["to"] != "+919800000000" || !strings.Contains(got["message"], "ORD-1A2B3C4D") {
		t.Fatalf("unexpected request auth=%q body=%v", auth, got)
	}
}

func TestBuildMessageHeaders(t *testing.T) {
	b := string(buildMessage("shop@example.com", []string{"a@example.com", "admin@example.com"},
		Message{Subject: "Hi", Body: "line1\nline2"}, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
	if !strings.Contains(b, "To: a@example.com, admin@example.com\r\n") || !strings.HasSuffix(b, "line1\r\nline2") {
		t.Fatalf("unexpected message %q", b)
	}
}
