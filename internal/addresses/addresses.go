// Package addresses keeps a customer's saved delivery addresses.
package addresses

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/bakery-orders/internal/apperr"
	"github.com/example/bakery-orders/internal/models"
	"github.com/example/bakery-orders/internal/storage"
)

type Service struct {
	Store storage.Store
}

type Input struct {
	ID         int64    `json:"id"`
	Label      string   `json:"label"`
	HouseFlat  string   `json:"house_flat"`
	AreaStreet string   `json:"area_street"`
	Landmark   string   `json:"landmark"`
	City       string   `json:"city"`
	Pincode    string   `json:"pincode"`
	Lat        *float64 `json:"latitude"`
	Lng        *float64 `json:"longitude"`
	IsDefault  bool     `json:"is_default"`
}

func (in Input) validate() error {
	if strings.TrimSpace(in.HouseFlat) == "" || strings.TrimSpace(in.AreaStreet) == "" {
		return fmt.Errorf("%w: house_flat and area_street are required", apperr.ErrValidation)
	}
	if (in.Lat == nil) != (in.Lng == nil) {
		return fmt.Errorf("%w: latitude and longitude go together", apperr.ErrInvalidCoordinates)
	}
	if in.Lat != nil && !models.ValidCoord(*in.Lat, *in.Lng) {
		return apperr.ErrInvalidCoordinates
	}
	return nil
}

func requireCustomer(actor models.Actor) error {
	if !actor.Is(models.RoleCustomer) || actor.ID == "" {
		return fmt.Errorf("%w: saved addresses belong to signed-in customers", apperr.ErrForbidden)
	}
	return nil
}

// List returns the customer's addresses, default first.
func (s *Service) List(ctx context.Context, actor models.Actor) ([]models.SavedAddress, error) {
	if err := requireCustomer(actor); err != nil {
		return nil, err
	}
	return s.Store.ListAddresses(ctx, actor.ID)
}

// Save creates the address, or updates it when in.ID is set. A customer holds
// at most models.MaxSavedAddresses, and at most one of them is the default.
func (s *Service) Save(ctx context.Context, actor models.Actor, in Input) (*models.SavedAddress, error) {
	if err := requireCustomer(actor); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	a := &models.SavedAddress{
		ID:         in.ID,
		UserID:     actor.ID,
		Label:      strings.TrimSpace(in.Label),
		HouseFlat:  strings.TrimSpace(in.HouseFlat),
		AreaStreet: strings.TrimSpace(in.AreaStreet),
		Landmark:   strings.TrimSpace(in.Landmark),
		City:       strings.TrimSpace(in.City),
		Pincode:    strings.TrimSpace(in.Pincode),
		Lat:        in.Lat,
		Lng:        in.Lng,
		IsDefault:  in.IsDefault,
	}
	err := s.Store.WithinTx(ctx, func(tx storage.Tx) error {
		existing, err := tx.LockAddresses(ctx, actor.ID)
		if err != nil {
			return err
		}
		if a.ID == 0 {
			if len(existing) >= models.MaxSavedAddresses {
				return fmt.Errorf("%w: at most %d addresses", apperr.ErrAddressLimit, models.MaxSavedAddresses)
			}
			if len(existing) == 0 {
				a.IsDefault = true
			}
			if err := tx.InsertAddress(ctx, a); err != nil {
				return err
			}
		} else if err := tx.UpdateAddress(ctx, a); err != nil {
			return err
		}
		if a.IsDefault {
			return tx.ClearDefaultAddress(ctx, actor.ID, a.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Delete(ctx context.Context, actor models.Actor, id int64) error {
	if err := requireCustomer(actor); err != nil {
		return err
	}
	return s.Store.WithinTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.LockAddresses(ctx, actor.ID); err != nil {
			return err
		}
		return tx.DeleteAddress(ctx, actor.ID, id)
	})
}
