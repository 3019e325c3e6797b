package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/bakery-orders/internal/apperr"
	"github.com/example/bakery-orders/internal/models"
)

func seedOrder(t *testing.T, s *MemoryStore, o *models.Order) {
	t.Helper()
	if err := s.WithinTx(context.Background(), func(tx Tx) error { return tx.InsertOrder(context.Background(), o) }); err != nil {
		t.Fatalf("seed %s: %v", o.OrderID, err)
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedOrder(t, s, &models.Order{OrderID: "ORD-A", OrderType: models.OrderDelivery, Status: models.StatusPending})

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(tx Tx) error {
		o, err := tx.LockOrder(ctx, "ORD-A")
		if err != nil {
			return err
		}
		o.Status = models.StatusConfirmed
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	o, _ := s.GetOrder(ctx, "ORD-A")
	if o.Status != models.StatusPending {
		t.Fatalf("rolled back tx leaked status %s", o.Status)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.GetOrder(context.Background(), "nope"); !errors.Is(err, apperr.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestUnassignedDeliverableNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	seedOrder(t, s, &models.Order{OrderID: "old", OrderType: models.OrderDelivery, Status: models.StatusConfirmed, CreatedAt: base})
	seedOrder(t, s, &models.Order{OrderID: "new", OrderType: models.OrderDelivery, Status: models.StatusReady, CreatedAt: base.Add(time.Hour)})
	seedOrder(t, s, &models.Order{OrderID: "pending", OrderType: models.OrderDelivery, Status: models.StatusPending, CreatedAt: base})
	seedOrder(t, s, &models.Order{OrderID: "taken", OrderType: models.OrderDelivery, Status: models.StatusReady, AssignedDriverID: "d1", CreatedAt: base})
	seedOrder(t, s, &models.Order{OrderID: "dinein", OrderType: models.OrderDineIn, Status: models.StatusReady, CreatedAt: base})

	got, err := s.ListUnassignedDeliverable(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].OrderID != "new" || got[1].OrderID != "old" {
		ids := []string{}
		for _, o := range got {
			ids = append(ids, o.OrderID)
		}
		t.Fatalf("unexpected list %v", ids)
	}
}

func TestDriverEarningsWindow(t *testing.T) {
	s := NewMemoryStore()
	day := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	at := func(h int) *time.Time { v := day.Add(time.Duration(h) * time.Hour); return &v }
	fee := models.MustMoney("50.00")
	seedOrder(t, s, &models.Order{OrderID: "a", AssignedDriverID: "d1", Status: models.StatusDelivered, DeliveryFee: fee, CompletedAt: at(10)})
	seedOrder(t, s, &models.Order{OrderID: "b", AssignedDriverID: "d1", Status: models.StatusCompleted, DeliveryFee: fee, CompletedAt: at(23)})
	seedOrder(t, s, &models.Order{OrderID: "c", AssignedDriverID: "d1", Status: models.StatusDelivered, DeliveryFee: fee, CompletedAt: at(24)})
	seedOrder(t, s, &models.Order{OrderID: "d", AssignedDriverID: "d2", Status: models.StatusDelivered, DeliveryFee: fee, CompletedAt: at(11)})
	seedOrder(t, s, &models.Order{OrderID: "e", AssignedDriverID: "d1", Status: models.StatusOnTheWay, DeliveryFee: fee})

	total, n, err := s.DriverEarnings(context.Background(), "d1", day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || total.String() != "100.00" {
		t.Fatalf("got %s over %d orders", total, n)
	}
}

func TestUpsertPaymentRejectsForeignTransactionID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedOrder(t, s, &models.Order{OrderID: "A"})
	seedOrder(t, s, &models.Order{OrderID: "B"})
	err := s.WithinTx(ctx, func(tx Tx) error {
		if err := tx.UpsertPayment(ctx, &models.Payment{OrderID: "A", TransactionID: "pay_1"}); err != nil {
			return err
		}
		return tx.UpsertPayment(ctx, &models.Payment{OrderID: "B", TransactionID: "pay_1"})
	})
	if !errors.Is(err, apperr.ErrDuplicatePayment) {
		t.Fatalf("expected ErrDuplicatePayment, got %v", err)
	}
	if _, err := s.GetPayment(ctx, "A"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("failed tx should not persist payment A: %v", err)
	}
}
