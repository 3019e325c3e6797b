// Package httpapi exposes the order, payment, delivery and catalogue
// operations as JSON over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/bakery-orders/internal/addresses"
	"github.com/example/bakery-orders/internal/chatorder"
	"github.com/example/bakery-orders/internal/delivery"
	"github.com/example/bakery-orders/internal/kitchen"
	"github.com/example/bakery-orders/internal/menu"
	"github.com/example/bakery-orders/internal/orders"
)

// Services are the operations the API serves. Chat and Kitchen may be nil.
type Services struct {
	Orders    *orders.Service
	Delivery  *delivery.Service
	Menu      *menu.Service
	Addresses *addresses.Service
	Chat      *chatorder.Service
	Kitchen   *kitchen.Hub
	// Ready reports whether backing stores are reachable.
	Ready func(ctx context.Context) error
}

type Server struct {
	Services
	logger         *slog.Logger
	allowedOrigins []string
	mux            *mux.Router
	handler        http.Handler
}

func NewServer(svc Services, logger *slog.Logger, allowedOrigins []string) *Server {
	s := &Server{Services: svc, logger: logger, allowedOrigins: allowedOrigins, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	s.handler = s.corsMiddleware(s.mux)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.handler.ServeHTTP(w, r) }

func (s *Server) routes() {
	r := s.mux
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); _, _ = w.Write([]byte("ok")) }).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/ws/kitchen", s.handleKitchenWS)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/menu", s.handleListMenu).Methods(http.MethodGet)
	api.HandleFunc("/menu/categories", s.handleMenuCategories).Methods(http.MethodGet)
	api.HandleFunc("/menu", s.handleCreateMenuItem).Methods(http.MethodPost)
	api.HandleFunc("/menu/{id:[0-9]+}", s.handleUpdateMenuItem).Methods(http.MethodPut)
	api.HandleFunc("/menu/{id:[0-9]+}", s.handleDeleteMenuItem).Methods(http.MethodDelete)
	api.HandleFunc("/menu/{id:[0-9]+}/toggle-availability", s.handleToggleMenuItem).Methods(http.MethodPost)

	api.HandleFunc("/orders", s.handlePlaceOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders", s.handleListOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders/{order_id}", s.handleGetOrder).Methods(http.MethodGet)
	api.HandleFunc("/orders/{order_id}/status", s.handleTransition).Methods(http.MethodPost)
	api.HandleFunc("/orders/{order_id}/cancel", s.handleCancel).Methods(http.MethodPost)
	api.HandleFunc("/orders/{order_id}/tracking", s.handleTracking).Methods(http.MethodGet)
	api.HandleFunc("/tracking/{order_id}", s.handleTracking).Methods(http.MethodGet)

	api.HandleFunc("/orders/{order_id}/gateway-order", s.handleCreateGatewayOrder).Methods(http.MethodPost)
	api.HandleFunc("/payments/callback", s.handlePaymentCallback).Methods(http.MethodPost)
	api.HandleFunc("/payments/webhook", s.handlePaymentWebhook).Methods(http.MethodPost)
	api.HandleFunc("/orders/{order_id}/manual-payment", s.handleSubmitManualPayment).Methods(http.MethodPost)
	api.HandleFunc("/orders/{order_id}/manual-payment/verify", s.handleVerifyManualPayment).Methods(http.MethodPost)
	api.HandleFunc("/orders/{order_id}/manual-payment/reject", s.handleRejectManualPayment).Methods(http.MethodPost)

	api.HandleFunc("/driver/available-orders", s.handleAvailableOrders).Methods(http.MethodGet)
	api.HandleFunc("/driver/orders/{order_id}/accept", s.handleAccept).Methods(http.MethodPost)
	api.HandleFunc("/driver/orders/{order_id}/status", s.handleDriverStatus).Methods(http.MethodPost)
	api.HandleFunc("/driver/location", s.handleReportLocation).Methods(http.MethodPost)
	api.HandleFunc("/driver/availability", s.handleAvailability).Methods(http.MethodPost)
	api.HandleFunc("/driver/profile", s.handleDriverProfile).Methods(http.MethodPut)
	api.HandleFunc("/driver/active-delivery", s.handleActiveDelivery).Methods(http.MethodGet)
	api.HandleFunc("/driver/earnings", s.handleEarnings).Methods(http.MethodGet)

	api.HandleFunc("/admin/orders/{order_id}/assign", s.handleAssign).Methods(http.MethodPost)
	api.HandleFunc("/admin/orders/{order_id}/driver-suggestions", s.handleSuggestDrivers).Methods(http.MethodGet)

	api.HandleFunc("/kitchen/orders", s.handleKitchenQueue).Methods(http.MethodGet)

	api.HandleFunc("/addresses", s.handleListAddresses).Methods(http.MethodGet)
	api.HandleFunc("/addresses", s.handleSaveAddress).Methods(http.MethodPost)
	api.HandleFunc("/addresses/{id:[0-9]+}", s.handleSaveAddress).Methods(http.MethodPut)
	api.HandleFunc("/addresses/{id:[0-9]+}", s.handleDeleteAddress).Methods(http.MethodDelete)

	api.HandleFunc("/chatbot/order/search", s.handleChatSearch).Methods(http.MethodPost)
	api.HandleFunc("/chatbot/order/initiate", s.handleChatInitiate).Methods(http.MethodPost)
	api.HandleFunc("/chatbot/order/address", s.handleChatAddress).Methods(http.MethodPost)
	api.HandleFunc("/chatbot/order/create", s.handleChatCreate).Methods(http.MethodPost)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.Ready != nil {
		if err := s.Ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
