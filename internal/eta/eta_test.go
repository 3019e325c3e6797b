package eta

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/bakery-orders/internal/models"
)

type countingClient struct {
	calls int
	v     float64
	err   error
}

func (c *countingClient) EstimateSeconds(ctx context.Context, from, to models.Coord) (float64, error) {
	c.calls++
	return c.v, c.err
}

func TestEstimatorUsesCacheThenClient(t *testing.T) {
	ctx := context.Background()
	client := &countingClient{v: 420}
	e := &Estimator{Client: client, Cache: NewCache(time.Minute)}
	a, b := models.Coord{Lat: 12.97, Lng: 77.59}, models.Coord{Lat: 12.98, Lng: 77.60}

	if got := e.Seconds(ctx, a, b); got != 420 {
		t.Fatalf("expected routed eta, got %f", got)
	}
	if got := e.Seconds(ctx, a, b); got != 420 || client.calls != 1 {
		t.Fatalf("expected cached eta, got %f after %d calls", got, client.calls)
	}
}

func TestEstimatorFallsBackToStraightLine(t *testing.T) {
	e := &Estimator{Client: &countingClient{err: errors.New("down")}, DefaultSpeedMps: 10}
	a, b := models.Coord{Lat: 12, Lng: 77}, models.Coord{Lat: 13, Lng: 77}
	got := e.Seconds(context.Background(), a, b)
	if got < 11000 || got > 11200 {
		t.Fatalf("expected ~11120s, got %f", got)
	}
}

func TestOSRMClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/route/v1/driving/77.590000,12.970000;77.600000,12.980000" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"code":"Ok","routes":[{"duration":312.5}]}`))
	}))
	defer srv.Close()

	got, err := NewOSRMClient(srv.URL).EstimateSeconds(context.Background(), models.Coord{Lat: 12.97, Lng: 77.59}, models.Coord{Lat: 12.98, Lng: 77.60})
	if err != nil || got != 312.5 {
		t.Fatalf("got %f, %v", got, err)
	}
}
