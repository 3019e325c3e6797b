package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/example/bakery-orders/internal/apperr"
	"github.com/example/bakery-orders/internal/delivery"
	"github.com/example/bakery-orders/internal/models"
)

func (s *Server) handleAvailableOrders(w http.ResponseWriter, r *http.Request) {
	list, err := s.Delivery.ListUnassignedDeliverable(r.Context(), actorFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": list})
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	o, err := s.Delivery.Accept(r.Context(), actorFrom(r), orderIDVar(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// handleDriverStatus moves an assigned order along picked_up, on_the_way
// and delivered. It goes through the order service so delivery
// notifications fire the same way as for staff transitions.
func (s *Server) handleDriverStatus(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if !actor.Is(models.RoleDriver) {
		s.writeError(w, r, fmt.Errorf("%w: drivers only", apperr.ErrForbidden))
		return
	}
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
	o, err := s.Orders.Transition(r.Context(), actor, orderIDVar(r), to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleReportLocation(w http.ResponseWriter, r *http.Request) {
	var req delivery.LocationReport
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Delivery.ReportLocation(r.Context(), actorFrom(r), req); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type availabilityRequest struct {
	Available *bool `json:"available"`
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Available == nil {
		s.writeError(w, r, fmt.Errorf("%w: available is required", apperr.ErrValidation))
		return
	}
	d, err := s.Delivery.SetAvailability(r.Context(), actorFrom(r), *req.Available)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDriverProfile(w http.ResponseWriter, r *http.Request) {
	var req delivery.Profile
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.Delivery.UpdateProfile(r.Context(), actorFrom(r), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleActiveDelivery(w http.ResponseWriter, r *http.Request) {
	o, err := s.Delivery.ActiveDelivery(r.Context(), actorFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": o})
}

// handleEarnings reads the [from, to) window from RFC 3339 timestamps or
// plain dates. Admins pass driver_id; drivers get their own.
func (s *Server) handleEarnings(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	q := r.URL.Query()
	from, err := parseTimeParam(q.Get("from"), "from")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := parseTimeParam(q.Get("to"), "to")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	driverID := strings.TrimSpace(q.Get("driver_id"))
	if driverID == "" {
		driverID = actor.ID
	}
	e, err := s.Delivery.ComputeEarnings(r.Context(), actor, driverID, from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func parseTimeParam(v, name string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", apperr.ErrValidation, name)
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %s must be RFC 3339 or YYYY-MM-DD", apperr.ErrValidation, name)
}

func (s *Server) handleTracking(w http.ResponseWriter, r *http.Request) {
	t, err := s.Delivery.TrackOrder(r.Context(), actorFrom(r), orderIDVar(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type assignRequest struct {
	DriverID string `json:"driver_id"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.DriverID) == "" {
		s.writeError(w, r, fmt.Errorf("%w: driver_id is required", apperr.ErrValidation))
		return
	}
	o, err := s.Delivery.Assign(r.Context(), actorFrom(r), orderIDVar(r), req.DriverID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleSuggestDrivers(w http.ResponseWriter, r *http.Request) {
	list, err := s.Delivery.SuggestDrivers(r.Context(), actorFrom(r), orderIDVar(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"drivers": list})
}
