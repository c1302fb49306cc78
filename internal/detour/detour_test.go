package detour

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/observability"
	"github.com/example/carpool-matching/internal/routecache"
	"github.com/example/carpool-matching/internal/routing"
)

// scriptedProvider answers calls in order and records each request.
type scriptedProvider struct {
	mu      sync.Mutex
	results []models.RouteResult
	errs    []error
	reqs    []routing.Request
}

func (s *scriptedProvider) Route(_ context.Context, req routing.Request) (models.RouteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.reqs)
	s.reqs = append(s.reqs, req)
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if err != nil {
		return models.RouteResult{}, err
	}
	if i < len(s.results) {
		return s.results[i], nil
	}
	return models.RouteResult{}, nil
}

func (s *scriptedProvider) Geocode(context.Context, string) (*models.Location, error) {
	return nil, nil
}

var (
	driverOrigin = models.Location{Lat: 43.2609, Lng: -79.9192}
	driverDest   = models.Location{Lat: 43.6532, Lng: -79.3832}
	departure    = time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC)
)

func testRoute() models.DriverRoute {
	return models.DriverRoute{
		TripID:        "trip-1",
		Origin:        driverOrigin,
		Destination:   driverDest,
		DepartureTime: departure,
		MaxPassengers: 3,
	}
}

func TestDetourAndRide_FarPickupBecomesWaypoint(t *testing.T) {
	p := &scriptedProvider{results: []models.RouteResult{
		{DurationSeconds: 3600, DistanceMeters: 70000},
		{DurationSeconds: 3900, DistanceMeters: 74000},
		{DurationSeconds: 1800, DistanceMeters: 15000},
	}}
	rider := models.RiderRequest{
		Origin:      models.Location{Lat: 43.2557, Lng: -79.8711},
		Destination: models.Location{Lat: 43.6426, Lng: -79.3871},
	}
	res := NewCalculator(p, nil, nil).DetourAndRide(context.Background(), testRoute(), rider)

	if res.Failed || res.DetourSeconds != 300 || res.RideDistanceKm != 15 || res.RideDurationSeconds != 1800 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.TripDurationSeconds != 3900 {
		t.Fatalf("trip duration = %d", res.TripDurationSeconds)
	}
	if len(p.reqs) != 3 {
		t.Fatalf("expected 3 route calls, got %d", len(p.reqs))
	}
	if !p.reqs[0].Optimize || !p.reqs[1].Optimize || p.reqs[2].Optimize {
		t.Fatal("baseline and with-rider calls optimise, the ride leg does not")
	}
	wps := p.reqs[1].Waypoints
	if len(wps) != 2 || wps[0] != rider.Origin || wps[1] != rider.Destination {
		t.Fatalf("with-rider waypoints = %v", wps)
	}
	if p.reqs[2].Origin != rider.Origin || p.reqs[2].Destination != driverDest {
		t.Fatalf("ride leg request = %+v", p.reqs[2])
	}
}

func TestDetourAndRide_NearbyPickupSkipped(t *testing.T) {
	p := &scriptedProvider{results: []models.RouteResult{
		{DurationSeconds: 3600}, {DurationSeconds: 3700}, {DurationSeconds: 3500},
	}}
	route := testRoute()
	route.Waypoints = []models.Location{{Lat: 43.3, Lng: -79.8}}
	rider := models.RiderRequest{
		Origin:      models.Location{Lat: 43.2611, Lng: -79.9190},
		Destination: models.Location{Lat: 43.6426, Lng: -79.3871},
	}
	NewCalculator(p, nil, nil).DetourAndRide(context.Background(), route, rider)

	wps := p.reqs[1].Waypoints
	if len(wps) != 2 || wps[0] != route.Waypoints[0] || wps[1] != rider.Destination {
		t.Fatalf("expected existing waypoint plus drop-off, got %v", wps)
	}
	if len(p.reqs[0].Waypoints) != 1 {
		t.Fatalf("baseline must keep existing waypoints, got %v", p.reqs[0].Waypoints)
	}
}

func TestDetourAndRide_NegativeDeltaClamped(t *testing.T) {
	p := &scriptedProvider{results: []models.RouteResult{
		{DurationSeconds: 3600}, {DurationSeconds: 3550}, {DurationSeconds: 900, DistanceMeters: 8000},
	}}
	res := NewCalculator(p, nil, nil).DetourAndRide(context.Background(), testRoute(), models.RiderRequest{Origin: driverOrigin})
	if res.DetourSeconds != 0 || res.Failed {
		t.Fatalf("expected clamped zero detour, got %+v", res)
	}
}

func TestDetourAndRide_FailureIsZeroed(t *testing.T) {
	stages := []struct {
		stage string
		errs  []error
	}{
		{"baseline", []error{routing.ErrNoRoute}},
		{"with_rider", []error{nil, errors.New("timeout")}},
		{"ride_leg", []error{nil, nil, context.DeadlineExceeded}},
	}
	for _, tc := range stages {
		t.Run(tc.stage, func(t *testing.T) {
			before := testutil.ToFloat64(observability.RoutingFailures.WithLabelValues(tc.stage))
			p := &scriptedProvider{
				results: []models.RouteResult{{DurationSeconds: 100}, {DurationSeconds: 400}, {DurationSeconds: 50}},
				errs:    tc.errs,
			}
			res := NewCalculator(p, nil, nil).DetourAndRide(context.Background(), testRoute(), models.RiderRequest{})
			if res != (Result{Failed: true}) {
				t.Fatalf("expected zeroed result, got %+v", res)
			}
			if got := testutil.ToFloat64(observability.RoutingFailures.WithLabelValues(tc.stage)); got != before+1 {
				t.Fatalf("failure counter = %v, want %v", got, before+1)
			}
		})
	}
}

func TestDetourAndRide_RideLegFromCache(t *testing.T) {
	p := &scriptedProvider{results: []models.RouteResult{
		{DurationSeconds: 3600}, {DurationSeconds: 3700}, {DurationSeconds: 1200, DistanceMeters: 9000},
		{DurationSeconds: 3600}, {DurationSeconds: 3700},
	}}
	cache := routecache.New(p, routecache.NewMemoryStore(), routecache.DefaultTTL, nil)
	calc := NewCalculator(p, cache, nil)
	rider := models.RiderRequest{Origin: models.Location{Lat: 43.25, Lng: -79.87}}

	first := calc.DetourAndRide(context.Background(), testRoute(), rider)
	second := calc.DetourAndRide(context.Background(), testRoute(), rider)
	if first.RideDistanceKm != 9 || second.RideDistanceKm != 9 {
		t.Fatalf("ride leg distance %v / %v", first.RideDistanceKm, second.RideDistanceKm)
	}
	if len(p.reqs) != 5 {
		t.Fatalf("second ride leg should come from cache, provider calls = %d", len(p.reqs))
	}
}
