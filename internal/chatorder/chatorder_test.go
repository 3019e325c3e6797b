package chatorder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/bakery-orders/internal/apperr"
	"github.com/example/bakery-orders/internal/menu"
	"github.com/example/bakery-orders/internal/models"
	"github.com/example/bakery-orders/internal/orders"
	"github.com/example/bakery-orders/internal/payments"
	"github.com/example/bakery-orders/internal/sessions"
	"github.com/example/bakery-orders/internal/storage"
)

const secret = "chat-secret"

type stubGateway struct{ calls int }

func (g *stubGateway) Name() string { return "razorpay" }

func (g *stubGateway) CreateOrder(ctx context.Context, req payments.CreateOrderRequest) (payments.GatewayOrder, error) {
	g.calls++
	return payments.GatewayOrder{ID: "order_CHAT", Provider: "razorpay", AmountMinor: req.AmountMinor, Currency: req.Currency}, nil
}

func (g *stubGateway) VerifyPayment(gatewayOrderID, paymentID, signature string) error {
	return payments.VerifySignature(secret, gatewayOrderID, paymentID, signature)
}

func (g *stubGateway) ParseWebhook([]byte, string) (payments.WebhookEvent, error) {
	return payments.WebhookEvent{}, nil
}

func (g *stubGateway) SignatureHeader() string { return "X-Razorpay-Signature" }

type fixture struct {
	chat  *Service
	gw    *stubGateway
	store *storage.MemoryStore
}

func newFixture(t *testing.T, withGateway bool) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemoryStore()
	gw := &stubGateway{}
	ord := &orders.Service{Store: store, Logger: logger, DeliveryFee: models.MustMoney("50.00")}
	if withGateway {
		ord.Gateway = gw
	}
	ctx := context.Background()
	for _, it := range []models.MenuItem{
		{Name: "Chocolate Truffle Cake", Category: models.CategoryCake, Price: models.MustMoney("499.00"), Available: true},
		{Name: "Plum Cake", Category: models.CategoryCake, Price: models.MustMoney("300.00"), Available: false},
	} {
		if err := store.CreateMenuItem(ctx, &it); err != nil {
			t.Fatal(err)
		}
	}
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	return &fixture{
		chat: &Service{
			Menu:        &menu.Service{Store: store, Logger: logger},
			Store:       store,
			Sessions:    sessions.NewMemoryStore(time.Hour, func() time.Time { return now }),
			Orders:      ord,
			DeliveryFee: models.MustMoney("50.00"),
			Logger:      logger,
			Now:         func() time.Time { return now },
		},
		gw:    gw,
		store: store,
	}
}

func TestChatCheckoutThroughPayment(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	guest := models.Actor{}

	found, err := f.chat.Search(ctx, "truffle")
	if err != nil || len(found) != 1 {
		t.Fatalf("search: %v %v", found, err)
	}

	sess, err := f.chat.Initiate(ctx, guest, InitiateRequest{MenuItemID: found[0].ID, Quantity: 2})
	if err != nil {
		t.Fatal(err)
	}
	if sess.Step != sessions.StepCollectAddress || sess.GrandTotal().String() != "1048.00" {
		t.Fatalf("unexpected session %+v", sess)
	}

	if _, err := f.chat.Create(ctx, guest, sess.ID); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("create without address: %v", err)
	}
	if _, err := f.chat.SetAddress(ctx, guest, AddressRequest{SessionID: sess.ID, Address: "7 Park Lane"}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("missing phone accepted: %v", err)
	}
	sess, err = f.chat.SetAddress(ctx, guest, AddressRequest{SessionID: sess.ID, Address: "7 Park Lane", Phone: "+919811111111"})
	if err != nil || sess.Step != sessions.StepConfirmOrder {
		t.Fatalf("address: %+v %v", sess, err)
	}

	co, err := f.chat.Create(ctx, guest, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if co.Payment.AmountMinor != 104800 || co.Session.Step != sessions.StepAwaitPayment {
		t.Fatalf("unexpected checkout %+v", co)
	}

	again, err := f.chat.Create(ctx, guest, sess.ID)
	if err != nil || again.OrderID != co.OrderID {
		t.Fatalf("second create placed a new order: %+v %v", again, err)
	}

	sig := payments.Sign(secret, co.Payment.ID, "pay_CHAT")
	o, err := f.chat.Orders.VerifyCallback(ctx, co.Payment.ID, "pay_CHAT", sig)
	if err != nil {
		t.Fatal(err)
	}
	if o.Status != models.StatusConfirmed || o.OrderType != models.OrderDelivery || o.UserID != "" {
		t.Fatalf("unexpected order after payment %+v", o)
	}
}

func TestChatInitiateRejectsUnavailable(t *testing.T) {
	f := newFixture(t, true)
	if _, err := f.chat.Initiate(context.Background(), models.Actor{}, InitiateRequest{MenuItemID: 2}); !errors.Is(err, apperr.ErrMenuItemUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if _, err := f.chat.Initiate(context.Background(), models.Actor{}, InitiateRequest{MenuItemID: 1, Quantity: -1}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestChatSessionBelongsToCustomer(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	owner := models.Actor{ID: "u-7", Role: models.RoleCustomer}
	sess, err := f.chat.Initiate(ctx, owner, InitiateRequest{MenuItemID: 1})
	if err != nil {
		t.Fatal(err)
	}
	intruder := models.Actor{ID: "u-8", Role: models.RoleCustomer}
	if _, err := f.chat.SetAddress(ctx, intruder, AddressRequest{SessionID: sess.ID, Address: "x", Phone: "y"}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := f.chat.SetAddress(ctx, owner, AddressRequest{SessionID: "missing", Address: "x", Phone: "y"}); !errors.Is(err, apperr.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
}

func TestChatCreateNeedsGateway(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	sess, _ := f.chat.Initiate(ctx, models.Actor{}, InitiateRequest{MenuItemID: 1})
	_, _ = f.chat.SetAddress(ctx, models.Actor{}, AddressRequest{SessionID: sess.ID, Address: "7 Park Lane", Phone: "1"})
	if _, err := f.chat.Create(ctx, models.Actor{}, sess.ID); !errors.Is(err, apperr.ErrGatewayUnavailable) {
		t.Fatalf("expected gateway unavailable, got %v", err)
	}
	list, _ := f.store.ListUnassignedDeliverable(ctx)
	if len(list) != 0 || f.gw.calls != 0 {
		t.Fatal("order placed without a gateway")
	}
}

func TestChatCreatePlacesOneOrderUnderConcurrency(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	cust := models.Actor{ID: "u-chat", Role: models.RoleCustomer}
	sess, err := f.chat.Initiate(ctx, cust, InitiateRequest{MenuItemID: 1, Quantity: 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.chat.SetAddress(ctx, cust, AddressRequest{SessionID: sess.ID, Address: "7 Park Lane", Phone: "+919811111111"}); err != nil {
		t.Fatal(err)
	}

	unlock, err := f.chat.Sessions.Lock(ctx, sess.ID, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.chat.Create(ctx, cust, sess.ID); !errors.Is(err, apperr.ErrSessionBusy) {
		t.Fatalf("expected busy while another checkout holds the session, got %v", err)
	}
	unlock()

	var wg sync.WaitGroup
	results := make([]Checkout, 8)
	errs := make([]error, len(results))
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.chat.Create(ctx, cust, sess.ID)
		}(i)
	}
	wg.Wait()

	orderID := ""
	for i, err := range errs {
		switch {
		case err == nil:
			if orderID != "" && results[i].OrderID != orderID {
				t.Fatalf("two orders placed: %s and %s", orderID, results[i].OrderID)
			}
			orderID = results[i].OrderID
		case !errors.Is(err, apperr.ErrSessionBusy):
			t.Fatalf("unexpected error %v", err)
		}
	}
	if orderID == "" {
		t.Fatal("no checkout succeeded")
	}
	mine, err := f.store.ListOrdersByUser(ctx, cust.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 {
		t.Fatalf("expected one order for the session, got %d", len(mine))
	}
}

func TestChatInitiateRejectsHugeQuantity(t *testing.T) {
	f := newFixture(t, true)
	if _, err := f.chat.Initiate(context.Background(), models.Actor{}, InitiateRequest{MenuItemID: 1, Quantity: models.MaxLineQuantity + 1}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
