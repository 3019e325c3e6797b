package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/example/bakery-orders/internal/apperr"
)

const defaultRazorpayBase = "https://api.razorpay.com"

// Razorpay talks to the Orders API over plain HTTP with basic auth.
type Razorpay struct {
	keyID         string
	keySecret     string
	webhookSecret string
	base          string
	client        *http.Client
}

func NewRazorpay(cfg Config, client *http.Client) *Razorpay {
	base := strings.TrimRight(cfg.APIBase, "/")
	if base == "" {
		base = defaultRazorpayBase
	}
	return &Razorpay{
		keyID:         cfg.KeyID,
		keySecret:     cfg.KeySecret,
		webhookSecret: cfg.WebhookSecret,
		base:          base,
		client:        client,
	}
}

func (r *Razorpay) Name() string { return "razorpay" }

func (r *Razorpay) SignatureHeader() string { return "X-Razorpay-Signature" }

func (r *Razorpay) CreateOrder(ctx context.Context, req CreateOrderRequest) (GatewayOrder, error) {
	body, err := json.Marshal(map[string]any{
		"amount":          req.AmountMinor,
		"currency":        req.Currency,
		"receipt":         req.Receipt,
		"payment_capture": 1,
		"notes":           map[string]string{"order_id": req.Receipt},
	})
	if err != nil {
		return GatewayOrder{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.base+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return GatewayOrder{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(r.keyID, r.keySecret)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return GatewayOrder{}, unavailable("razorpay create order", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return GatewayOrder{}, unavailable("razorpay create order", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 300 {
		return GatewayOrder{}, fmt.Errorf("razorpay create order: status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	var out struct {
		ID       string `json:"id"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return GatewayOrder{}, fmt.Errorf("razorpay create order: decode: %w", err)
	}
	if out.ID == "" {
		return GatewayOrder{}, fmt.Errorf("razorpay create order: empty order id")
	}
	return GatewayOrder{
		ID:          out.ID,
		Provider:    r.Name(),
		AmountMinor: out.Amount,
		Currency:    out.Currency,
		KeyID:       r.keyID,
	}, nil
}

func (r *Razorpay) VerifyPayment(gatewayOrderID, paymentID, signature string) error {
	return VerifySignature(r.keySecret, gatewayOrderID, paymentID, signature)
}

type razorpayWebhook struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string            `json:"id"`
				OrderID string            `json:"order_id"`
				Status  string            `json:"status"`
				Notes   map[string]string `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

func (r *Razorpay) ParseWebhook(body []byte, signatureHeader string) (WebhookEvent, error) {
	if err := VerifyPayload(r.webhookSecret, body, signatureHeader); err != nil {
		return WebhookEvent{}, err
	}
	var wh razorpayWebhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: webhook body: %v", apperr.ErrValidation, err)
	}
	entity := wh.Payload.Payment.Entity
	ev := WebhookEvent{
		RawType:        wh.Event,
		GatewayOrderID: entity.OrderID,
		OrderRef:       entity.Notes["order_id"],
		PaymentID:      entity.ID,
	}
	switch wh.Event {
	case "payment.captured":
		ev.Kind = EventCaptured
	case "payment.failed":
		ev.Kind = EventFailed
	}
	return ev, nil
}
