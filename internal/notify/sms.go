package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/example/bakery-orders/internal/observability"
)

// SMSDispatcher posts a JSON message to an HTTP SMS provider.
type SMSDispatcher struct {
	Endpoint string
	Key      string
	Client   *http.Client
	Renderer Renderer
}

func NewSMSDispatcher(endpoint, key string, r Renderer) *SMSDispatcher {
	return &SMSDispatcher{Endpoint: endpoint, Key: key, Client: &http.Client{Timeout: 5 * time.Second}, Renderer: r}
}

func (s *SMSDispatcher) Dispatch(ctx context.Context, n Notification) error {
	phone := strings.TrimSpace(n.Order.DeliveryPhone)
	if phone == "" {
		phone = strings.TrimSpace(n.Order.CustomerPhone)
	}
	if phone == "" {
		return nil
	}
	text, err := s.Renderer.SMS(n)
	if err != nil {
		return err
	}
	b, _ := json.Marshal(map[string]string{"to": phone, "message": text, "reference": n.Order.OrderID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.Key != "" {
		req.Header.Set("Authorization", "Bearer "+s.Key)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		observability.Notifications.WithLabelValues("sms", "error").Inc()
		return fmt.Errorf("sms %s: %w", n.Order.OrderID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		observability.Notifications.WithLabelValues("sms", "error").Inc()
		return fmt.Errorf("sms %s: provider status %d", n.Order.OrderID, resp.StatusCode)
	}
	observability.Notifications.WithLabelValues("sms", "ok").Inc()
	return nil
}
