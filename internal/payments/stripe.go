package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/example/bakery-orders/internal/apperr"
)

// Stripe maps a gateway order onto a PaymentIntent. The intent id is the
// gateway order reference stored on the order.
type Stripe struct {
	keySecret     string
	webhookSecret string
	intents       *paymentintent.Client
}

func NewStripe(cfg Config, client *http.Client) *Stripe {
	backendCfg := &stripe.BackendConfig{HTTPClient: client}
	if cfg.APIBase != "" {
		backendCfg.URL = stripe.String(strings.TrimRight(cfg.APIBase, "/"))
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)
	return &Stripe{
		keySecret:     cfg.KeySecret,
		webhookSecret: cfg.WebhookSecret,
		intents:       &paymentintent.Client{B: backend, Key: cfg.KeySecret},
	}
}

func (s *Stripe) Name() string { return "stripe" }

func (s *Stripe) SignatureHeader() string { return "Stripe-Signature" }

func (s *Stripe) CreateOrder(ctx context.Context, req CreateOrderRequest) (GatewayOrder, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(req.AmountMinor),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Description: stripe.String("Order " + req.Receipt),
	}
	params.Context = ctx
	params.AddMetadata("order_id", req.Receipt)
	params.SetIdempotencyKey("create-intent-" + req.Receipt)

	pi, err := s.intents.New(params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.HTTPStatusCode > 0 && se.HTTPStatusCode < 500 && se.HTTPStatusCode != http.StatusTooManyRequests {
			return GatewayOrder{}, fmt.Errorf("stripe create intent: %w", err)
		}
		return GatewayOrder{}, unavailable("stripe create intent", err)
	}
	return GatewayOrder{
		ID:           pi.ID,
		Provider:     s.Name(),
		AmountMinor:  pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
		ClientSecret: pi.ClientSecret,
	}, nil
}

// VerifyPayment uses the same HMAC primitive as the other providers; the
// checkout edge signs intent id and charge id with the shared secret.
func (s *Stripe) VerifyPayment(gatewayOrderID, paymentID, signature string) error {
	return VerifySignature(s.keySecret, gatewayOrderID, paymentID, signature)
}

func (s *Stripe) ParseWebhook(body []byte, signatureHeader string) (WebhookEvent, error) {
	if s.webhookSecret == "" {
		return WebhookEvent{}, fmt.Errorf("%w: no webhook secret configured", apperr.ErrGatewayUnavailable)
	}
	if err := webhook.ValidatePayload(body, signatureHeader, s.webhookSecret); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", apperr.ErrSignatureInvalid, err)
	}
	var event stripe.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: webhook body: %v", apperr.ErrValidation, err)
	}
	ev := WebhookEvent{RawType: string(event.Type)}
	switch string(event.Type) {
	case "payment_intent.succeeded":
		ev.Kind = EventCaptured
	case "payment_intent.payment_failed":
		ev.Kind = EventFailed
	default:
		return ev, nil
	}
	if event.Data == nil {
		return WebhookEvent{}, fmt.Errorf("%w: event without data", apperr.ErrValidation)
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: payment intent: %v", apperr.ErrValidation, err)
	}
	ev.GatewayOrderID = pi.ID
	ev.OrderRef = pi.Metadata["order_id"]
	ev.PaymentID = pi.ID
	if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
		ev.PaymentID = pi.LatestCharge.ID
	}
	return ev, nil
}
