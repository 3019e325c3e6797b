package httpapi

import (
	"net/http"
	"strings"

	"github.com/example/bakery-orders/internal/addresses"
	"github.com/example/bakery-orders/internal/apperr"
	"github.com/example/bakery-orders/internal/chatorder"
	"github.com/example/bakery-orders/internal/menu"
	"github.com/example/bakery-orders/internal/models"
	"github.com/example/bakery-orders/internal/storage"
)

// handleListMenu shows available items. Admins may add
// ?include_unavailable=true to manage the full list.
func (s *Server) handleListMenu(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := storage.MenuFilter{
		AvailableOnly: !(actorFrom(r).Is(models.RoleAdmin) && q.Get("include_unavailable") == "true"),
		Category:      models.MenuCategory(strings.ToLower(strings.TrimSpace(q.Get("category")))),
	}
	items, err := s.Menu.List(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleMenuCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": models.MenuCategories})
}

func (s *Server) handleCreateMenuItem(w http.ResponseWriter, r *http.Request) {
	var in menu.ItemInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	it, err := s.Menu.Create(r.Context(), actorFrom(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

func (s *Server) handleUpdateMenuItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in menu.ItemInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	it, err := s.Menu.Update(r.Context(), actorFrom(r), id, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (s *Server) handleDeleteMenuItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Menu.Delete(r.Context(), actorFrom(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleMenuItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	it, err := s.Menu.ToggleAvailability(r.Context(), actorFrom(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (s *Server) handleListAddresses(w http.ResponseWriter, r *http.Request) {
	list, err := s.Addresses.List(r.Context(), actorFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"addresses": list, "max": models.MaxSavedAddresses})
}

// handleSaveAddress creates on POST and updates on PUT /addresses/{id}.
func (s *Server) handleSaveAddress(w http.ResponseWriter, r *http.Request) {
	var in addresses.Input
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	in.ID = 0
	if r.Method == http.MethodPut {
		id, err := pathID(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		in.ID = id
		status = http.StatusOK
	}
	a, err := s.Addresses.Save(r.Context(), actorFrom(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, status, a)
}

func (s *Server) handleDeleteAddress(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Addresses.Delete(r.Context(), actorFrom(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) (*chatorder.Service, bool) {
	if s.Chat == nil {
		s.writeError(w, r, apperr.ErrNotFound)
		return nil, false
	}
	return s.Chat, true
}

type chatSearchRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleChatSearch(w http.ResponseWriter, r *http.Request) {
	c, ok := s.chat(w, r)
	if !ok {
		return
	}
	var req chatSearchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	items, err := c.Search(r.Context(), req.Query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) handleChatInitiate(w http.ResponseWriter, r *http.Request) {
	c, ok := s.chat(w, r)
	if !ok {
		return
	}
	var req chatorder.InitiateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := c.Initiate(r.Context(), actorFrom(r), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"session":     sess,
		"item_total":  sess.ItemTotal(),
		"grand_total": sess.GrandTotal(),
		"next_step":   sess.Step,
	})
}

func (s *Server) handleChatAddress(w http.ResponseWriter, r *http.Request) {
	c, ok := s.chat(w, r)
	if !ok {
		return
	}
	var req chatorder.AddressRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := c.SetAddress(r.Context(), actorFrom(r), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":     sess,
		"item_total":  sess.ItemTotal(),
		"grand_total": sess.GrandTotal(),
		"next_step":   sess.Step,
	})
}

type chatCreateRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleChatCreate(w http.ResponseWriter, r *http.Request) {
	c, ok := s.chat(w, r)
	if !ok {
		return
	}
	var req chatCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	co, err := c.Create(r.Context(), actorFrom(r), req.SessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, co)
}
