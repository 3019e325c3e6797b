// Package menu manages the bakery's menu items.
package menu

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/bakery-orders/internal/apperr"
	"github.com/example/bakery-orders/internal/models"
	"github.com/example/bakery-orders/internal/storage"
)

const searchLimit = 5

type Service struct {
	Store  storage.Store
	Logger *slog.Logger
}

type ItemInput struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Category    models.MenuCategory `json:"category"`
	Price       models.Money        `json:"price"`
	ImageURL    string              `json:"image_url"`
	Available   *bool               `json:"available"`
}

func (in ItemInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", apperr.ErrValidation)
	}
	if !in.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", apperr.ErrValidation, in.Category)
	}
	if in.Price <= 0 || in.Price > models.MaxAmount {
		return fmt.Errorf("%w: price must be between 0.01 and %s", apperr.ErrValidation, models.MaxAmount)
	}
	return nil
}

func (in ItemInput) apply(it *models.MenuItem) {
	it.Name = strings.TrimSpace(in.Name)
	it.Description = in.Description
	it.Category = in.Category
	it.Price = in.Price
	it.ImageURL = in.ImageURL
	if in.Available != nil {
		it.Available = *in.Available
	}
}

func requireAdmin(actor models.Actor) error {
	if !actor.Is(models.RoleAdmin) {
		return fmt.Errorf("%w: menu changes are for admins", apperr.ErrForbidden)
	}
	return nil
}

func (s *Service) List(ctx context.Context, f storage.MenuFilter) ([]models.MenuItem, error) {
	if f.Category != "" && !f.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", apperr.ErrValidation, f.Category)
	}
	return s.Store.ListMenu(ctx, f)
}

func (s *Service) Create(ctx context.Context, actor models.Actor, in ItemInput) (*models.MenuItem, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	it := &models.MenuItem{Available: true}
	in.apply(it)
	if err := s.Store.CreateMenuItem(ctx, it); err != nil {
		return nil, err
	}
	s.Logger.Info("menu item created", "id", it.ID, "name", it.Name)
	return it, nil
}

func (s *Service) Update(ctx context.Context, actor models.Actor, id int64, in ItemInput) (*models.MenuItem, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	it, err := s.Store.GetMenuItem(ctx, id)
	if err != nil {
		return nil, err
	}
	in.apply(it)
	if err := s.Store.UpdateMenuItem(ctx, it); err != nil {
		return nil, err
	}
	return it, nil
}

// Delete removes the item. Past orders keep their line snapshots.
func (s *Service) Delete(ctx context.Context, actor models.Actor, id int64) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := s.Store.DeleteMenuItem(ctx, id); err != nil {
		return err
	}
	s.Logger.Info("menu item deleted", "id", id)
	return nil
}

func (s *Service) ToggleAvailability(ctx context.Context, actor models.Actor, id int64) (*models.MenuItem, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	it, err := s.Store.GetMenuItem(ctx, id)
	if err != nil {
		return nil, err
	}
	it.Available = !it.Available
	if err := s.Store.UpdateMenuItem(ctx, it); err != nil {
		return nil, err
	}
	return it, nil
}

// Search finds available items for free-text queries from the chat flow.
// Exact name matches win, then substring matches on name, description or
// category, then a whitespace-insensitive fuzzy pass.
func (s *Service) Search(ctx context.Context, query string) ([]models.MenuItem, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, fmt.Errorf("%w: query is required", apperr.ErrValidation)
	}
	items, err := s.Store.ListMenu(ctx, storage.MenuFilter{AvailableOnly: true})
	if err != nil {
		return nil, err
	}
	var exact, contains, fuzzy []models.MenuItem
	nq := squash(q)
	for _, it := range items {
		name := strings.ToLower(it.Name)
		switch {
		case name == q:
			exact = append(exact, it)
		case strings.Contains(name, q), strings.Contains(strings.ToLower(it.Description), q), strings.Contains(string(it.Category), q):
			contains = append(contains, it)
		case fuzzyMatch(q, nq, squash(name)):
			fuzzy = append(fuzzy, it)
		}
	}
	for _, set := range [][]models.MenuItem{exact, contains, fuzzy} {
		if len(set) > 0 {
			return limit(set), nil
		}
	}
	return []models.MenuItem{}, nil
}

func squash(s string) string { return strings.Join(strings.Fields(s), "") }

func fuzzyMatch(q, nq, nname string) bool {
	if nq != "" && (strings.Contains(nname, nq) || strings.Contains(nq, nname)) {
		return true
	}
	for _, w := range strings.Fields(q) {
		if len(w) > 2 && strings.Contains(nname, w) {
			return true
		}
	}
	return false
}

func limit(items []models.MenuItem) []models.MenuItem {
	if len(items) > searchLimit {
		return items[:searchLimit]
	}
	return items
}
