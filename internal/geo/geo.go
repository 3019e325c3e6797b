package geo

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/example/bakery-orders/internal/events"
	"github.com/example/bakery-orders/internal/models"
)

// Candidate is a driver position returned by a proximity query.
type Candidate struct {
	DriverID  string       `json:"driver_id"`
	Loc       models.Coord `json:"location"`
	Available bool         `json:"is_available"`
	UpdatedAt time.Time    `json:"updated_at"`
	DistanceM float64      `json:"distance_m"`
}

// Geo is the driver position index used for delivery suggestions.
type Geo interface {
	Nearby(ctx context.Context, at models.Coord, radiusM float64, limit int) ([]Candidate, error)
	Upsert(ctx context.Context, loc models.DriverLocation, available bool) error
}

type Index struct {
	mu      sync.RWMutex
	drivers map[string]Candidate
}

func NewIndex() *Index {
	return &Index{drivers: make(map[string]Candidate)}
}

func (g *Index) Upsert(ctx context.Context, loc models.DriverLocation, available bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.drivers[loc.DriverID] = Candidate{
		DriverID:  loc.DriverID,
		Loc:       models.Coord{Lat: loc.Lat, Lng: loc.Lng},
		Available: available,
		UpdatedAt: loc.UpdatedAt,
	}
	return nil
}

// Nearby scans every driver; fine for a single bakery's fleet.
func (g *Index) Nearby(ctx context.Context, at models.Coord, radiusM float64, limit int) ([]Candidate, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Candidate, 0, len(g.drivers))
	for _, c := range g.drivers {
		if !c.Available {
			continue
		}
		c.DistanceM = Haversine(at.Lat, at.Lng, c.Loc.Lat, c.Loc.Lng)
		if radiusM > 0 && c.DistanceM > radiusM {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceM < out[j].DistanceM })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Sink feeds driver location events into a Geo index. The location consumer
// writes through it, as does a server running without a broker.
type Sink struct {
	Geo Geo
}

func (s Sink) PublishLocation(ctx context.Context, ev events.LocationEvent) error {
	return s.Geo.Upsert(ctx, models.DriverLocation{
		DriverID:  ev.DriverID,
		Lat:       ev.Lat,
		Lng:       ev.Lng,
		Heading:   ev.Heading,
		Speed:     ev.Speed,
		UpdatedAt: ev.At,
	}, ev.Available)
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
