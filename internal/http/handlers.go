package httpapi

import (
	"fmt"
	"io"
	"net/http"

	"github.com/example/bakery-orders/internal/apperr"
	"github.com/example/bakery-orders/internal/models"
	"github.com/example/bakery-orders/internal/orders"
)

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.PlaceOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	o, err := s.Orders.PlaceOrder(r.Context(), actorFrom(r), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	list, err := s.Orders.ListMine(r.Context(), actorFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": list})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	d, err := s.Orders.Get(r.Context(), actorFrom(r), orderIDVar(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (r statusRequest) parse() (models.OrderStatus, error) {
	st, ok := models.ParseOrderStatus(r.Status)
	if !ok {
		return "", fmt.Errorf("%w: unknown status %q", apperr.ErrValidation, r.Status)
	}
	return st, nil
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := req.parse()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	o, err := s.Orders.Transition(r.Context(), actorFrom(r), orderIDVar(r), to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	o, err := s.Orders.Cancel(r.Context(), actorFrom(r), orderIDVar(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleCreateGatewayOrder(w http.ResponseWriter, r *http.Request) {
	gw, err := s.Orders.CreateGatewayOrder(r.Context(), actorFrom(r), orderIDVar(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gw)
}

type callbackRequest struct {
	GatewayOrderID string `json:"gateway_order_id"`
	PaymentID      string `json:"payment_id"`
	Signature      string `json:"signature"`
}

// handlePaymentCallback receives the ids and signature the checkout widget
// hands back to the browser. The signature is the only proof of payment.
func (s *Server) handlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	o, err := s.Orders.VerifyCallback(r.Context(), req.GatewayOrderID, req.PaymentID, req.Signature)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order_id": o.OrderID, "status": o.Status})
}

func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	gw := s.Orders.Gateway
	if gw == nil {
		s.writeError(w, r, apperr.ErrGatewayUnavailable)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: read body: %v", apperr.ErrValidation, err))
		return
	}
	ev, err := s.Orders.HandleWebhook(r.Context(), body, r.Header.Get(gw.SignatureHeader()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"received": true, "event": ev.Kind.String()})
}

func (s *Server) handleSubmitManualPayment(w http.ResponseWriter, r *http.Request) {
	var req orders.ManualPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.Orders.SubmitManualPayment(r.Context(), actorFrom(r), orderIDVar(r), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

type reviewRequest struct {
	Notes string `json:"notes"`
}

// decodeOptional accepts an empty body.
func decodeOptional(r *http.Request, v any) error {
	if r.ContentLength == 0 {
		return nil
	}
	return decodeJSON(r, v)
}

func (s *Server) handleVerifyManualPayment(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeOptional(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	o, err := s.Orders.VerifyManualPayment(r.Context(), actorFrom(r), orderIDVar(r), req.Notes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleRejectManualPayment(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeOptional(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.Orders.RejectManualPayment(r.Context(), actorFrom(r), orderIDVar(r), req.Notes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleKitchenQueue(w http.ResponseWriter, r *http.Request) {
	q, err := s.Orders.KitchenQueue(r.Context(), actorFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleKitchenWS(w http.ResponseWriter, r *http.Request) {
	if s.Kitchen == nil {
		http.NotFound(w, r)
		return
	}
	if !actorFrom(r).IsStaff() {
		s.writeError(w, r, fmt.Errorf("%w: kitchen staff only", apperr.ErrForbidden))
		return
	}
	s.Kitchen.ServeWS(w, r)
}
