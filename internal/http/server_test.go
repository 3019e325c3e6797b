package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/bakery-orders/internal/addresses"
	"github.com/example/bakery-orders/internal/chatorder"
	"github.com/example/bakery-orders/internal/delivery"
	"github.com/example/bakery-orders/internal/menu"
	"github.com/example/bakery-orders/internal/models"
	"github.com/example/bakery-orders/internal/orders"
	"github.com/example/bakery-orders/internal/payments"
	"github.com/example/bakery-orders/internal/sessions"
	"github.com/example/bakery-orders/internal/storage"
)

const testSecret = "whsec"

type fakeGateway struct{}

func (fakeGateway) Name() string { return "razorpay" }

func (fakeGateway) CreateOrder(ctx context.Context, req payments.CreateOrderRequest) (payments.GatewayOrder, error) {
	return payments.GatewayOrder{ID: "order_" + req.Receipt, Provider: "razorpay", AmountMinor: req.AmountMinor, Currency: req.Currency}, nil
}

func (fakeGateway) VerifyPayment(gatewayOrderID, paymentID, signature string) error {
	return payments.VerifySignature(testSecret, gatewayOrderID, paymentID, signature)
}

func (fakeGateway) ParseWebhook(body []byte, header string) (payments.WebhookEvent, error) {
	if err := payments.VerifyPayload(testSecret, body, header); err != nil {
		return payments.WebhookEvent{}, err
	}
	return payments.WebhookEvent{Kind: payments.EventIgnored}, nil
}

func (fakeGateway) SignatureHeader() string { return "X-Razorpay-Signature" }

type testAPI struct {
	srv   *Server
	store *storage.MemoryStore
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemoryStore()
	if err := store.CreateMenuItem(context.Background(), &models.MenuItem{
		Name: "Sourdough Loaf", Category: models.CategoryBread, Price: models.MustMoney("220.00"), Available: true,
	}); err != nil {
		t.Fatal(err)
	}
	ord := &orders.Service{Store: store, Gateway: fakeGateway{}, Logger: logger, DeliveryFee: models.MustMoney("50.00")}
	mn := &menu.Service{Store: store, Logger: logger}
	svc := Services{
		Orders:    ord,
		Delivery:  &delivery.Service{Store: store, Logger: logger},
		Menu:      mn,
		Addresses: &addresses.Service{Store: store},
		Chat: &chatorder.Service{
			Menu: mn, Store: store, Orders: ord, Logger: logger,
			Sessions:    sessions.NewMemoryStore(0, nil),
			DeliveryFee: models.MustMoney("50.00"),
		},
	}
	return &testAPI{srv: NewServer(svc, logger, []string{"https://shop.example"}), store: store}
}

func (a *testAPI) do(t *testing.T, method, path string, actor models.Actor, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if actor.Role != "" {
		req.Header.Set(headerUserRole, string(actor.Role))
		req.Header.Set(headerUserID, actor.ID)
	}
	rr := httptest.NewRecorder()
	a.srv.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

var (
	customer = models.Actor{ID: "cust-1", Role: models.RoleCustomer}
	admin    = models.Actor{ID: "adm-1", Role: models.RoleAdmin}
	driver   = models.Actor{ID: "drv-1", Role: models.RoleDriver}
)

func (a *testAPI) placeDelivery(t *testing.T) string {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/api/orders", customer, map[string]any{
		"order_type":       "delivery",
		"items":            []map[string]any{{"menu_item_id": 1, "quantity": 2}},
		"delivery_address": "3 Church St",
		"delivery_phone":   "+919822222222",
		"delivery_lat":     12.975,
		"delivery_lng":     77.605,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("place order: %d %s", rr.Code, rr.Body.String())
	}
	var o models.Order
	decode(t, rr, &o)
	return o.OrderID
}

func TestHealthz(t *testing.T) {
	a := newTestAPI(t)
	rr := a.do(t, http.MethodGet, "/healthz", models.Actor{}, nil)
	if rr.Code != http.StatusOK || rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("healthz: %d %v", rr.Code, rr.Header())
	}
}

func TestPaymentCallbackOverHTTP(t *testing.T) {
	a := newTestAPI(t)
	id := a.placeDelivery(t)

	rr := a.do(t, http.MethodPost, "/api/orders/"+id+"/gateway-order", customer, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("gateway order: %d %s", rr.Code, rr.Body.String())
	}
	var gw payments.GatewayOrder
	decode(t, rr, &gw)
	if gw.AmountMinor != 49000 {
		t.Fatalf("amount %d, want 49000", gw.AmountMinor)
	}

	rr = a.do(t, http.MethodPost, "/api/payments/callback", models.Actor{}, callbackRequest{
		GatewayOrderID: gw.ID, PaymentID: "pay_1", Signature: "deadbeef",
	})
	var eb errorBody
	decode(t, rr, &eb)
	if rr.Code != http.StatusBadRequest || eb.Code != "signature_invalid" {
		t.Fatalf("tampered callback: %d %+v", rr.Code, eb)
	}

	rr = a.do(t, http.MethodPost, "/api/payments/callback", models.Actor{}, callbackRequest{
		GatewayOrderID: gw.ID, PaymentID: "pay_1", Signature: payments.Sign(testSecret, gw.ID, "pay_1"),
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("callback: %d %s", rr.Code, rr.Body.String())
	}

	rr = a.do(t, http.MethodGet, "/api/orders/"+id, customer, nil)
	var d struct {
		Status  models.OrderStatus `json:"status"`
		Total   string             `json:"grand_total"`
		Payment *models.Payment    `json:"payment"`
	}
	decode(t, rr, &d)
	if d.Status != models.StatusConfirmed || d.Total != "490.00" || d.Payment == nil || d.Payment.Status != models.PaymentCompleted {
		t.Fatalf("unexpected detail %+v", d)
	}
}

func TestDeliveryFlowOverHTTP(t *testing.T) {
	a := newTestAPI(t)
	id := a.placeDelivery(t)

	for _, st := range []string{"confirmed", "preparing"} {
		if rr := a.do(t, http.MethodPost, "/api/orders/"+id+"/status", admin, statusRequest{Status: st}); rr.Code != http.StatusOK {
			t.Fatalf("to %s: %d %s", st, rr.Code, rr.Body.String())
		}
	}
	if rr := a.do(t, http.MethodPut, "/api/driver/profile", driver, delivery.Profile{Name: "ravi", Phone: "+919833333333"}); rr.Code != http.StatusOK {
		t.Fatalf("profile: %d %s", rr.Code, rr.Body.String())
	}
	if rr := a.do(t, http.MethodPost, "/api/driver/orders/"+id+"/accept", driver, nil); rr.Code != http.StatusOK {
		t.Fatalf("accept: %d %s", rr.Code, rr.Body.String())
	}
	other := models.Actor{ID: "drv-2", Role: models.RoleDriver}
	rr := a.do(t, http.MethodPost, "/api/driver/orders/"+id+"/accept", other, nil)
	var eb errorBody
	decode(t, rr, &eb)
	if rr.Code != http.StatusConflict || eb.Code != "already_assigned" {
		t.Fatalf("second driver: %d %+v", rr.Code, eb)
	}

	if rr := a.do(t, http.MethodPost, "/api/driver/location", driver, map[string]any{"lat": 12.97, "lng": 77.6}); rr.Code != http.StatusNoContent {
		t.Fatalf("location: %d %s", rr.Code, rr.Body.String())
	}
	rr = a.do(t, http.MethodPost, "/api/driver/location", driver, map[string]any{"lat": 91, "lng": 77.6})
	decode(t, rr, &eb)
	if rr.Code != http.StatusBadRequest || eb.Code != "invalid_coordinates" {
		t.Fatalf("bad location: %d %+v", rr.Code, eb)
	}

	if rr := a.do(t, http.MethodPost, "/api/orders/"+id+"/status", admin, statusRequest{Status: "ready"}); rr.Code != http.StatusOK {
		t.Fatalf("ready: %d %s", rr.Code, rr.Body.String())
	}
	if rr := a.do(t, http.MethodPost, "/api/driver/orders/"+id+"/status", driver, statusRequest{Status: "picked_up"}); rr.Code != http.StatusOK {
		t.Fatalf("picked up: %d %s", rr.Code, rr.Body.String())
	}

	rr = a.do(t, http.MethodGet, "/api/tracking/"+id, customer, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("tracking: %d %s", rr.Code, rr.Body.String())
	}
	var tr delivery.Tracking
	decode(t, rr, &tr)
	if tr.Status != models.StatusPickedUp || tr.Driver == nil || tr.Driver.Initial != "R" || tr.Driver.Location == nil || tr.ETASeconds == nil {
		t.Fatalf("unexpected tracking %+v", tr)
	}

	if rr := a.do(t, http.MethodGet, "/api/tracking/"+id, models.Actor{ID: "cust-2", Role: models.RoleCustomer}, nil); rr.Code != http.StatusForbidden {
		t.Fatalf("stranger tracked order: %d", rr.Code)
	}
}

func TestErrorsAreJSON(t *testing.T) {
	a := newTestAPI(t)
	cases := []struct {
		name   string
		method string
		path   string
		actor  models.Actor
		body   any
		status int
		code   string
	}{
		{"unknown order", http.MethodGet, "/api/orders/ORD-NOPE", admin, nil, http.StatusNotFound, "order_not_found"},
		{"unknown role", http.MethodGet, "/api/orders", models.Actor{ID: "x", Role: "baker"}, nil, http.StatusForbidden, "forbidden"},
		{"bad status", http.MethodPost, "/api/orders/ORD-1/status", admin, statusRequest{Status: "baked"}, http.StatusBadRequest, "validation"},
		{"menu admin only", http.MethodPost, "/api/menu", customer, menu.ItemInput{Name: "Bun", Category: models.CategoryBread, Price: models.MustMoney("10.00")}, http.StatusForbidden, "forbidden"},
		{"earnings needs window", http.MethodGet, "/api/driver/earnings", driver, nil, http.StatusBadRequest, "validation"},
		{"expired chat session", http.MethodPost, "/api/chatbot/order/create", models.Actor{}, chatCreateRequest{SessionID: "gone"}, http.StatusNotFound, "session_not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := a.do(t, tc.method, tc.path, tc.actor, tc.body)
			var eb errorBody
			decode(t, rr, &eb)
			if rr.Code != tc.status || eb.Code != tc.code || eb.Error == "" {
				t.Fatalf("got %d %+v, want %d %s", rr.Code, eb, tc.status, tc.code)
			}
		})
	}
}

func TestAddressLimitOverHTTP(t *testing.T) {
	a := newTestAPI(t)
	in := map[string]any{"house_flat": "1A", "area_street": "Brigade Rd"}
	for i := 0; i < models.MaxSavedAddresses; i++ {
		if rr := a.do(t, http.MethodPost, "/api/addresses", customer, in); rr.Code != http.StatusCreated {
			t.Fatalf("save %d: %d %s", i, rr.Code, rr.Body.String())
		}
	}
	rr := a.do(t, http.MethodPost, "/api/addresses", customer, in)
	var eb errorBody
	decode(t, rr, &eb)
	if rr.Code != http.StatusBadRequest || eb.Code != "address_limit" {
		t.Fatalf("third address: %d %+v", rr.Code, eb)
	}
}

func TestCORSPreflight(t *testing.T) {
	a := newTestAPI(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	a.srv.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent || rr.Header().Get("Access-Control-Allow-Origin") != "https://shop.example" {
		t.Fatalf("preflight: %d %v", rr.Code, rr.Header())
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr = httptest.NewRecorder()
	a.srv.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unlisted origin allowed")
	}
}
