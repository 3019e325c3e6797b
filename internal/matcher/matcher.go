package matcher

import (
	"context"
	"sort"
	"time"

	"github.com/example/bakery-orders/internal/eta"
	"github.com/example/bakery-orders/internal/geo"
	"github.com/example/bakery-orders/internal/models"
)

type Geo interface {
	Nearby(ctx context.Context, at models.Coord, radiusM float64, limit int) ([]geo.Candidate, error)
}

// Suggestion is a driver proposed for a delivery, cheapest first.
type Suggestion struct {
	DriverID   string    `json:"driver_id"`
	DistanceM  float64   `json:"distance_m"`
	ETASeconds float64   `json:"eta_seconds"`
	LastSeen   time.Time `json:"last_seen"`
	Cost       float64   `json:"cost"`
}

type Service struct {
	Geo        Geo
	ETA        *eta.Estimator
	TopN       int
	RadiusM    float64
	MaxPingAge time.Duration
	Now        func() time.Time
}

// Suggest ranks available drivers near pickup. eligible, when set, filters
// candidates against the authoritative driver records.
func (s *Service) Suggest(ctx context.Context, pickup models.Coord, eligible func(driverID string) bool) ([]Suggestion, error) {
	topN := s.TopN
	if topN <= 0 {
		topN = 5
	}
	maxAge := s.MaxPingAge
	if maxAge <= 0 {
		maxAge = 15 * time.Minute
	}
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	cands, err := s.Geo.Nearby(ctx, pickup, s.RadiusM, topN*3)
	if err != nil {
		return nil, err
	}
	est := s.ETA
	if est == nil {
		est = &eta.Estimator{}
	}
	out := make([]Suggestion, 0, len(cands))
	for _, c := range cands {
		if !c.Available || (eligible != nil && !eligible(c.DriverID)) {
			continue
		}
		age := now.Sub(c.UpdatedAt)
		if c.UpdatedAt.IsZero() || age > maxAge {
			continue
		}
		if age < 0 {
			age = 0
		}
		etaSec := est.Seconds(ctx, c.Loc, pickup)
		// an old ping means the driver has probably moved; cost = eta + 0.5*age
		cost := etaSec + 0.5*age.Seconds()
		out = append(out, Suggestion{DriverID: c.DriverID, DistanceM: c.DistanceM, ETASeconds: etaSec, LastSeen: c.UpdatedAt, Cost: cost})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cost < out[j].Cost })
	if len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}
