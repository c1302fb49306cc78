package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"googlemaps.github.io/maps"

	"github.com/example/carpool-matching/internal/models"
)

// GoogleProvider handles interactions with the Google Maps Directions and
// Geocoding APIs.
type GoogleProvider struct {
	client *maps.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewGoogleProvider creates a provider with the given API key. Extra client
// options (base URL, HTTP client) are passed through to the maps client.
func NewGoogleProvider(apiKey string, logger *slog.Logger, opts ...maps.ClientOption) (*GoogleProvider, error) {
	opts = append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)
	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GoogleProvider{client: client, logger: logger, now: time.Now}, nil
}

func (g *GoogleProvider) Route(ctx context.Context, req Request) (models.RouteResult, error) {
	dep := departureAt(req.DepartureTime, g.now())
	r := &maps.DirectionsRequest{
		Origin:        latLng(req.Origin),
		Destination:   latLng(req.Destination),
		Mode:          maps.TravelModeDriving,
		DepartureTime: strconv.FormatInt(dep.Unix(), 10),
	}
	if len(req.Waypoints) > 0 {
		r.Waypoints = make([]string, len(req.Waypoints))
		for i, w := range req.Waypoints {
			r.Waypoints[i] = latLng(w)
		}
		r.Optimize = req.Optimize
	}

	routes, _, err := g.client.Directions(ctx, r)
	if err != nil {
		if strings.Contains(err.Error(), "ZERO_RESULTS") {
			return models.RouteResult{}, &Error{Op: "directions", Err: ErrNoRoute}
		}
		g.logger.Error("maps directions failed",
			"error", err,
			"origin", r.Origin,
			"destination", r.Destination,
			"waypoints", len(r.Waypoints),
		)
		if IsConfigError(err) {
			g.logger.Error("directions API is not enabled for this key")
		}
		return models.RouteResult{}, &Error{Op: "directions", Err: err}
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return models.RouteResult{}, &Error{Op: "directions", Err: ErrNoRoute}
	}

	route := routes[0]
	var out models.RouteResult
	for _, leg := range route.Legs {
		out.DurationSeconds += int(leg.Duration / time.Second)
		out.DistanceMeters += leg.Distance.Meters
	}
	if len(route.WaypointOrder) > 0 {
		out.WaypointOrder = append([]int(nil), route.WaypointOrder...)
	}
	return out, nil
}

func (g *GoogleProvider) Geocode(ctx context.Context, address string) (*models.Location, error) {
	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	if err != nil {
		if IsConfigError(err) {
			g.logger.Warn("geocoding unavailable", "address", address, "error", err)
			return nil, nil
		}
		if strings.Contains(err.Error(), "ZERO_RESULTS") {
			return nil, &GeocodeError{Address: address, Err: errors.New("no results")}
		}
		return nil, &GeocodeError{Address: address, Err: err}
	}
	if len(results) == 0 {
		return nil, &GeocodeError{Address: address, Err: errors.New("no results")}
	}
	loc := results[0].Geometry.Location
	return &models.Location{Lat: loc.Lat, Lng: loc.Lng}, nil
}

func latLng(l models.Location) string {
	return strconv.FormatFloat(l.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(l.Lng, 'f', 6, 64)
}
