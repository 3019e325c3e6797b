package geo

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/example/bakery-orders/internal/events"
	"github.com/example/bakery-orders/internal/models"
)

func TestHaversineZero(t *testing.T) {
	d := Haversine(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineOneDegreeLatitude(t *testing.T) {
	d := Haversine(12, 77, 13, 77)
	if math.Abs(d-111195) > 100 {
		t.Fatalf("expected ~111km, got %f", d)
	}
}

func TestIndexNearbySkipsUnavailableAndFar(t *testing.T) {
	ctx := context.Background()
	g := NewIndex()
	now := time.Now()
	_ = g.Upsert(ctx, models.DriverLocation{DriverID: "far", Lat: 13.5, Lng: 77.6, UpdatedAt: now}, true)
	_ = g.Upsert(ctx, models.DriverLocation{DriverID: "off", Lat: 12.9717, Lng: 77.5947, UpdatedAt: now}, false)
	_ = g.Upsert(ctx, models.DriverLocation{DriverID: "near", Lat: 12.9720, Lng: 77.5950, UpdatedAt: now}, true)
	_ = g.Upsert(ctx, models.DriverLocation{DriverID: "mid", Lat: 12.9800, Lng: 77.6000, UpdatedAt: now}, true)

	got, err := g.Nearby(ctx, models.Coord{Lat: 12.9716, Lng: 77.5946}, 5000, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].DriverID != "near" || got[1].DriverID != "mid" {
		t.Fatalf("unexpected candidates %+v", got)
	}
}

func TestSinkUpsertsFromEvents(t *testing.T) {
	ctx := context.Background()
	g := NewIndex()
	err := Sink{Geo: g}.PublishLocation(ctx, events.LocationEvent{DriverID: "d1", Lat: 1, Lng: 2, Available: true, At: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	got, _ := g.Nearby(ctx, models.Coord{Lat: 1, Lng: 2}, 0, 0)
	if len(got) != 1 || got[0].DriverID != "d1" {
		t.Fatalf("sink did not index driver: %+v", got)
	}
}
