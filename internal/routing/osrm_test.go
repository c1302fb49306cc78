package routing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/carpool-matching/internal/models"
)

func TestOSRMRoute_FixedOrder(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(`{"code":"Ok","routes":[{"duration":1234.5,"distance":15000.2}]}`))
	}))
	defer srv.Close()

	p := NewOSRMProvider(srv.URL)
	res, err := p.Route(context.Background(), Request{
		Origin:      models.Location{Lat: 43.26, Lng: -79.91},
		Destination: models.Location{Lat: 43.25, Lng: -79.87},
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if !strings.HasPrefix(path, "/route/v1/driving/-79.910000,43.260000;") {
		t.Fatalf("unexpected path %s", path)
	}
	if res.DurationSeconds != 1234 || res.DistanceMeters != 15000 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestOSRMRoute_OptimizeUsesTripService(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		// origin stays first, the two stops are swapped, destination last
		w.Write([]byte(`{"code":"Ok","trips":[{"duration":900,"distance":8000}],
			"waypoints":[{"waypoint_index":0},{"waypoint_index":2},{"waypoint_index":1},{"waypoint_index":3}]}`))
	}))
	defer srv.Close()

	p := NewOSRMProvider(srv.URL)
	res, err := p.Route(context.Background(), Request{
		Origin:      models.Location{Lat: 1, Lng: 1},
		Destination: models.Location{Lat: 2, Lng: 2},
		Waypoints:   []models.Location{{Lat: 1.5, Lng: 1.5}, {Lat: 1.2, Lng: 1.2}},
		Optimize:    true,
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if !strings.HasPrefix(path, "/trip/v1/driving/") {
		t.Fatalf("expected trip service, got %s", path)
	}
	if len(res.WaypointOrder) != 2 || res.WaypointOrder[0] != 1 || res.WaypointOrder[1] != 0 {
		t.Fatalf("unexpected order %v", res.WaypointOrder)
	}
}

func TestOSRMRoute_NoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"NoRoute","message":"Impossible route between points"}`))
	}))
	defer srv.Close()

	_, err := NewOSRMProvider(srv.URL).Route(context.Background(), Request{})
	if !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
}
