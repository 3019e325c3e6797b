package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/example/bakery-orders/internal/apperr"
	"github.com/example/bakery-orders/internal/models"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return NewRedisStore(rc, time.Hour), mr
}

func TestRedisStoreRoundTripAndTTL(t *testing.T) {
	rs, mr := newRedisStore(t)
	ctx := context.Background()
	s := &ChatOrder{ID: NewID(), UserID: "u-1", MenuItemID: 4, Quantity: 2,
		UnitPrice: models.MustMoney("499.00"), DeliveryFee: models.MustMoney("50.00"), Step: StepConfirmOrder}
	if err := rs.Save(ctx, s); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL(keyPrefix + s.ID); ttl != time.Hour {
		t.Fatalf("ttl = %v", ttl)
	}
	got, err := rs.Get(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.UserID != "u-1" || got.Step != StepConfirmOrder || got.GrandTotal().String() != "1048.00" {
		t.Fatalf("unexpected session %+v", got)
	}

	mr.FastForward(time.Hour + time.Second)
	if _, err := rs.Get(ctx, s.ID); !errors.Is(err, apperr.ErrSessionNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}

	_ = rs.Save(ctx, s)
	if err := rs.Delete(ctx, s.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := rs.Get(ctx, s.ID); !errors.Is(err, apperr.ErrSessionNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestRedisStoreLock(t *testing.T) {
	rs, mr := newRedisStore(t)
	ctx := context.Background()

	unlock, err := rs.Lock(ctx, "s1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rs.Lock(ctx, "s1", time.Minute); !errors.Is(err, apperr.ErrSessionBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
	unlock()
	if mr.Exists(lockPrefix + "s1") {
		t.Fatal("unlock left the key behind")
	}

	stale, err := rs.Lock(ctx, "s1", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Second)
	fresh, err := rs.Lock(ctx, "s1", time.Minute)
	if err != nil {
		t.Fatalf("expired claim not taken over: %v", err)
	}
	stale()
	if !mr.Exists(lockPrefix + "s1") {
		t.Fatal("stale unlock released the new claim")
	}
	fresh()
}
