// Package payments adapts external payment processors. Adapters create the
// gateway-side order for a checkout and verify the signatures the gateway
// attaches to browser callbacks and server-to-server webhooks.
package payments

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/example/bakery-orders/internal/apperr"
)

type CreateOrderRequest struct {
	// Receipt is our external order id.
	Receipt     string
	AmountMinor int64
	Currency    string
}

// GatewayOrder is what the checkout page needs to open the gateway's widget.
type GatewayOrder struct {
	ID           string `json:"gateway_order_id"`
	Provider     string `json:"provider"`
	AmountMinor  int64  `json:"amount"`
	Currency     string `json:"currency"`
	KeyID        string `json:"key_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
}

type EventKind int

const (
	EventIgnored EventKind = iota
	EventCaptured
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventCaptured:
		return "captured"
	case EventFailed:
		return "failed"
	}
	return "ignored"
}

// WebhookEvent is a provider event reduced to what order reconciliation needs.
type WebhookEvent struct {
	Kind           EventKind
	RawType        string
	GatewayOrderID string
	// OrderRef is our order id when the provider echoes it back in metadata.
	OrderRef  string
	PaymentID string
}

type Gateway interface {
	Name() string
	CreateOrder(ctx context.Context, req CreateOrderRequest) (GatewayOrder, error)
	// VerifyPayment checks the signature the checkout returned for a payment.
	VerifyPayment(gatewayOrderID, paymentID, signature string) error
	// ParseWebhook validates body against the webhook secret and decodes it.
	ParseWebhook(body []byte, signatureHeader string) (WebhookEvent, error)
	SignatureHeader() string
}

type Config struct {
	Provider      string
	KeyID         string
	KeySecret     string
	WebhookSecret string
	APIBase       string
	Currency      string
	Timeout       time.Duration
}

// New builds the configured adapter. It returns a nil Gateway when no
// credentials are set; callers report ErrGatewayUnavailable in that case.
func New(cfg Config) (Gateway, error) {
	if cfg.KeySecret == "" {
		return nil, nil
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: cfg.Timeout}
	switch strings.ToLower(cfg.Provider) {
	case "", "razorpay":
		return NewRazorpay(cfg, client), nil
	case "stripe":
		return NewStripe(cfg, client), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, apperr.ErrGatewayUnavailable, err)
}
