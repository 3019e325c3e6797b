package matcher

import (
	"context"
	"testing"
	"time"

	"github.com/example/bakery-orders/internal/eta"
	"github.com/example/bakery-orders/internal/geo"
	"github.com/example/bakery-orders/internal/models"
)

type fakeGeo struct{ cands []geo.Candidate }

func (f *fakeGeo) Nearby(ctx context.Context, at models.Coord, radiusM float64, limit int) ([]geo.Candidate, error) {
	return f.cands, nil
}

func TestPreferFresherPingIfETAEqual(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	here := models.Coord{Lat: 0, Lng: 0}
	g := &fakeGeo{cands: []geo.Candidate{
		{DriverID: "A", Loc: here, Available: true, UpdatedAt: now.Add(-5 * time.Minute)},
		{DriverID: "B", Loc: here, Available: true, UpdatedAt: now.Add(-10 * time.Second)},
	}}
	s := &Service{Geo: g, ETA: &eta.Estimator{DefaultSpeedMps: 10}, TopN: 2, Now: func() time.Time { return now }}
	got, err := s.Suggest(context.Background(), here, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].DriverID != "B" {
		t.Fatalf("expected B first, got %+v", got)
	}
}

func TestSkipsStaleIneligibleAndUnavailable(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	here := models.Coord{Lat: 12.97, Lng: 77.59}
	g := &fakeGeo{cands: []geo.Candidate{
		{DriverID: "stale", Loc: here, Available: true, UpdatedAt: now.Add(-time.Hour)},
		{DriverID: "off", Loc: here, Available: false, UpdatedAt: now},
		{DriverID: "blocked", Loc: here, Available: true, UpdatedAt: now},
		{DriverID: "ok", Loc: models.Coord{Lat: 12.98, Lng: 77.59}, Available: true, UpdatedAt: now},
	}}
	s := &Service{Geo: g, Now: func() time.Time { return now }}
	got, err := s.Suggest(context.Background(), here, func(id string) bool { return id != "blocked" })
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].DriverID != "ok" || got[0].ETASeconds <= 0 {
		t.Fatalf("unexpected suggestions %+v", got)
	}
}
