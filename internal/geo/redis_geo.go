package geo

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/bakery-orders/internal/models"
)

// RedisGeo implements Geo using Redis GEO commands, with a hash per driver
// for the fields GEO cannot hold.
type RedisGeo struct {
	client *redis.Client
	key    string
}

func NewRedisGeo(client *redis.Client, key string) *RedisGeo {
	if key == "" {
		key = "drivers:geo"
	}
	return &RedisGeo{client: client, key: key}
}

func (r *RedisGeo) Upsert(ctx context.Context, loc models.DriverLocation, available bool) error {
	updated := loc.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: loc.Lng, Latitude: loc.Lat, Name: loc.DriverID})
		p.HSet(ctx, metaKey(loc.DriverID), map[string]interface{}{
			"available": strconv.FormatBool(available),
			"heading":   strconv.FormatFloat(loc.Heading, 'f', -1, 64),
			"speed":     strconv.FormatFloat(loc.Speed, 'f', -1, 64),
			"updated":   updated.Format(time.RFC3339Nano),
		})
		return nil
	})
	return err
}

func (r *RedisGeo) Nearby(ctx context.Context, at models.Coord, radiusM float64, limit int) ([]Candidate, error) {
	if radiusM <= 0 {
		radiusM = 5000
	}
	res, err := r.client.GeoRadius(ctx, r.key, at.Lng, at.Lat, &redis.GeoRadiusQuery{
		Radius: radiusM, Unit: "m", WithCoord: true, WithDist: true, Count: limit, Sort: "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(res))
	for _, g := range res {
		c := Candidate{DriverID: g.Name, Loc: models.Coord{Lat: g.Latitude, Lng: g.Longitude}, DistanceM: g.Dist}
		m, err := r.client.HGetAll(ctx, metaKey(g.Name)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, err
		}
		c.Available = m["available"] == "true"
		if ts, err := time.Parse(time.RFC3339Nano, m["updated"]); err == nil {
			c.UpdatedAt = ts
		}
		if c.Available {
			out = append(out, c)
		}
	}
	return out, nil
}

func metaKey(id string) string { return "driver:meta:" + id }
