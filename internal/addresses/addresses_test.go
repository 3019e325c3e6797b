package addresses

import (
	"context"
	"errors"
	"testing"

	"github.com/example/bakery-orders/internal/apperr"
	"github.com/example/bakery-orders/internal/models"
	"github.com/example/bakery-orders/internal/storage"
)

var me = models.Actor{ID: "u-1", Role: models.RoleCustomer}

func TestAddressCapAndExclusiveDefault(t *testing.T) {
	s := &Service{Store: storage.NewMemoryStore()}
	ctx := context.Background()

	home, err := s.Save(ctx, me, Input{Label: "Home", HouseFlat: "4B", AreaStreet: "MG Road"})
	if err != nil {
		t.Fatal(err)
	}
	if !home.IsDefault {
		t.Fatal("first address should become the default")
	}
	work, err := s.Save(ctx, me, Input{Label: "Work", HouseFlat: "12", AreaStreet: "Residency Rd", IsDefault: true})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Save(ctx, me, Input{Label: "Gym", HouseFlat: "1", AreaStreet: "x"}); !errors.Is(err, apperr.ErrAddressLimit) {
		t.Fatalf("expected address limit, got %v", err)
	}

	list, _ := s.List(ctx, me)
	if len(list) != 2 || list[0].ID != work.ID || !list[0].IsDefault || list[1].IsDefault {
		t.Fatalf("default not exclusive: %+v", list)
	}

	if _, err := s.Save(ctx, me, Input{ID: home.ID, Label: "Home", HouseFlat: "4B", AreaStreet: "MG Road", IsDefault: true}); err != nil {
		t.Fatal(err)
	}
	list, _ = s.List(ctx, me)
	if list[0].ID != home.ID || list[1].IsDefault {
		t.Fatalf("default did not move: %+v", list)
	}

	if err := s.Delete(ctx, me, work.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(ctx, me, Input{Label: "Gym", HouseFlat: "1", AreaStreet: "x"}); err != nil {
		t.Fatalf("slot freed by delete: %v", err)
	}
}

func TestAddressValidationAndOwnership(t *testing.T) {
	s := &Service{Store: storage.NewMemoryStore()}
	ctx := context.Background()
	if _, err := s.Save(ctx, me, Input{HouseFlat: "4B"}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	a, _ := s.Save(ctx, me, Input{HouseFlat: "4B", AreaStreet: "MG Road"})
	other := models.Actor{ID: "u-2", Role: models.RoleCustomer}
	if err := s.Delete(ctx, other, a.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("deleted someone else's address: %v", err)
	}
	if _, err := s.List(ctx, models.Actor{Role: models.RoleDriver, ID: "d"}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}
