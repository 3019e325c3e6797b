package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/example/bakery-orders/internal/apperr"
)

func TestSignatureRoundTrip(t *testing.T) {
	sig := Sign("s3cret", "order_ABC", "pay_123")
	if err := VerifySignature("s3cret", "order_ABC", "pay_123", sig); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	tampered := []string{
		Sign("other", "order_ABC", "pay_123"),
		Sign("s3cret", "order_ABC", "pay_124"),
		"zz-not-hex",
		"",
	}
	for _, s := range tampered {
		if err := VerifySignature("s3cret", "order_ABC", "pay_123", s); !errors.Is(err, apperr.ErrSignatureInvalid) {
			t.Fatalf("signature %q: expected ErrSignatureInvalid, got %v", s, err)
		}
	}
}

func TestRazorpayCreateOrder(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "rzp_key" || pass != "rzp_secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/v1/orders" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"order_XYZ","amount":%v,"currency":"INR","status":"created"}`, got["amount"])
	}))
	defer srv.Close()

	g := NewRazorpay(Config{KeyID: "rzp_key", KeySecret: "rzp_secret", APIBase: srv.URL}, srv.Client())
	order, err := g.CreateOrder(context.Background(), CreateOrderRequest{Receipt: "ORD-1A2B3C4D", AmountMinor: 35000, Currency: "INR"})
	if err != nil {
		t.Fatal(err)
	}
	if order.ID != "order_XYZ" || order.AmountMinor != 35000 || order.KeyID != "rzp_key" {
		t.Fatalf("unexpected order %+v", order)
	}
	if got["receipt"] != "ORD-1A2B3C4D" || got["amount"].(float64) != 35000 {
		t.Fatalf("unexpected request %v", got)
	}
}

func TestRazorpayServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	g := NewRazorpay(Config{KeyID: "k", KeySecret: "s", APIBase: srv.URL}, srv.Client())
	_, err := g.CreateOrder(context.Background(), CreateOrderRequest{Receipt: "ORD-1", AmountMinor: 100, Currency: "INR"})
	if !errors.Is(err, apperr.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestRazorpayWebhook(t *testing.T) {
	g := NewRazorpay(Config{KeySecret: "s", WebhookSecret: "whsec"}, http.DefaultClient)
	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_9","order_id":"order_9","notes":{"order_id":"ORD-00000009"}}}}}`)

	ev, err := g.ParseWebhook(body, SignPayload("whsec", body))
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != EventCaptured || ev.GatewayOrderID != "order_9" || ev.OrderRef != "ORD-00000009" || ev.PaymentID != "pay_9" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if _, err := g.ParseWebhook(body, SignPayload("wrong", body)); !errors.Is(err, apperr.ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
	other := []byte(`{"event":"order.paid"}`)
	ev, err = g.ParseWebhook(other, SignPayload("whsec", other))
	if err != nil || ev.Kind != EventIgnored {
		t.Fatalf("expected ignored event, got %+v %v", ev, err)
	}
}

func stripeHeader(secret string, body []byte, ts time.Time) string {
	unix := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + unix + ",v1=" + SignPayload(secret, append([]byte(unix+"."), body...))
}

func TestStripeWebhook(t *testing.T) {
	g := NewStripe(Config{KeySecret: "sk_test", WebhookSecret: "whsec_test"}, http.DefaultClient)
	body := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.payment_failed",
		"data":{"object":{"id":"pi_1","object":"payment_intent","metadata":{"order_id":"ORD-ABCDEF12"}}}}`)

	ev, err := g.ParseWebhook(body, stripeHeader("whsec_test", body, time.Now()))
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != EventFailed || ev.GatewayOrderID != "pi_1" || ev.OrderRef != "ORD-ABCDEF12" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if _, err := g.ParseWebhook(body, stripeHeader("nope", body, time.Now())); !errors.Is(err, apperr.ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestNewWithoutCredentialsIsNil(t *testing.T) {
	g, err := New(Config{Provider: "razorpay"})
	if err != nil || g != nil {
		t.Fatalf("expected nil gateway, got %v %v", g, err)
	}
	if _, err := New(Config{Provider: "paypal", KeySecret: "x"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
