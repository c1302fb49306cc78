// Package detour measures how much extra driving one more rider adds to a
// driver's planned trip.
package detour

import (
	"context"
	"log/slog"

	"github.com/example/carpool-matching/internal/geo"
	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/observability"
	"github.com/example/carpool-matching/internal/routecache"
	"github.com/example/carpool-matching/internal/routing"
)

// PickupThresholdKm is the straight-line distance from the driver's origin
// beyond which the rider's pickup becomes an explicit waypoint.
const PickupThresholdKm = 0.5

// Result is zero-valued, with Failed set, when any route call failed.
type Result struct {
	DetourSeconds       int
	RideDistanceKm      float64
	RideDurationSeconds int
	// TripDurationSeconds is the driver's full duration with the rider aboard.
	TripDurationSeconds int
	Failed              bool
}

type Calculator struct {
	provider routing.Provider
	cache    *routecache.Cache
	logger   *slog.Logger
}

// NewCalculator builds a calculator. cache may be nil, in which case the
// rider leg is requested from the provider directly.
func NewCalculator(provider routing.Provider, cache *routecache.Cache, logger *slog.Logger) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{provider: provider, cache: cache, logger: logger}
}

// DetourAndRide never returns an error: a failed route call yields a zeroed
// Result so the candidate can still be ranked.
func (c *Calculator) DetourAndRide(ctx context.Context, route models.DriverRoute, rider models.RiderRequest) Result {
	baseline, err := c.provider.Route(ctx, routing.Request{
		Origin:        route.Origin,
		Destination:   route.Destination,
		Waypoints:     route.Waypoints,
		DepartureTime: route.DepartureTime,
		Optimize:      true,
	})
	if err != nil {
		return c.fail(route, "baseline", err)
	}

	waypoints := make([]models.Location, 0, len(route.Waypoints)+2)
	waypoints = append(waypoints, route.Waypoints...)
	if geo.DistanceKm(route.Origin, rider.Origin) > PickupThresholdKm {
		waypoints = append(waypoints, rider.Origin)
	}
	waypoints = append(waypoints, rider.Destination)

	withRider, err := c.provider.Route(ctx, routing.Request{
		Origin:        route.Origin,
		Destination:   route.Destination,
		Waypoints:     waypoints,
		DepartureTime: route.DepartureTime,
		Optimize:      true,
	})
	if err != nil {
		return c.fail(route, "with_rider", err)
	}

	detour := withRider.DurationSeconds - baseline.DurationSeconds
	if detour < 0 {
		detour = 0
	}

	rideKm, rideSec, err := c.rideLeg(ctx, route, rider)
	if err != nil {
		return c.fail(route, "ride_leg", err)
	}

	return Result{
		DetourSeconds:       detour,
		RideDistanceKm:      rideKm,
		RideDurationSeconds: rideSec,
		TripDurationSeconds: withRider.DurationSeconds,
	}
}

func (c *Calculator) rideLeg(ctx context.Context, route models.DriverRoute, rider models.RiderRequest) (float64, int, error) {
	if c.cache != nil {
		est, err := c.cache.Lookup(ctx, rider.Origin, route.Destination, nil)
		if err != nil {
			return 0, 0, err
		}
		return est.DistanceKm, est.DurationSeconds, nil
	}
	res, err := c.provider.Route(ctx, routing.Request{
		Origin:        rider.Origin,
		Destination:   route.Destination,
		DepartureTime: route.DepartureTime,
	})
	if err != nil {
		return 0, 0, err
	}
	return float64(res.DistanceMeters) / 1000, res.DurationSeconds, nil
}

func (c *Calculator) fail(route models.DriverRoute, stage string, err error) Result {
	observability.RoutingFailures.WithLabelValues(stage).Inc()
	c.logger.Warn("detour computation failed",
		"trip_id", route.TripID,
		"stage", stage,
		"error", err,
	)
	return Result{Failed: true}
}
