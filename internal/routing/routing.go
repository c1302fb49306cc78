// Package routing wraps external routing and geocoding providers behind one
// contract used by the matching engine.
package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/carpool-matching/internal/models"
)

// minDepartureLead keeps departure times strictly in the future; providers
// reject timestamps in the past.
const minDepartureLead = 60 * time.Second

var (
	ErrNoRoute       = errors.New("no route found")
	ErrNotConfigured = errors.New("routing provider not configured")
)

// Request describes one route computation. A zero DepartureTime means now.
type Request struct {
	Origin        models.Location
	Destination   models.Location
	Waypoints     []models.Location
	DepartureTime time.Time
	// Optimize lets the provider reorder Waypoints. The resulting order is
	// reported in RouteResult.WaypointOrder; callers apply it themselves.
	Optimize bool
}

type Provider interface {
	Route(ctx context.Context, req Request) (models.RouteResult, error)
	// Geocode returns (nil, nil) when the provider reports a configuration or
	// authorization problem so callers can fall back to default coordinates.
	Geocode(ctx context.Context, address string) (*models.Location, error)
}

// Error is a RoutingError: the provider returned no route, or the transport
// or credentials failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("routing %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// GeocodeError is any geocoding failure that is not a configuration problem.
type GeocodeError struct {
	Address string
	Err     error
}

func (e *GeocodeError) Error() string {
	return fmt.Sprintf("geocode %q: %v", e.Address, e.Err)
}
func (e *GeocodeError) Unwrap() error { return e.Err }

// departureAt clamps t to at least minDepartureLead after now.
func departureAt(t, now time.Time) time.Time {
	earliest := now.Add(minDepartureLead)
	if t.IsZero() || t.Before(earliest) {
		return earliest
	}
	return t
}

var configErrorMarkers = []string{
	"REQUEST_DENIED",
	"not activated",
	"API is not enabled",
	"not authorized to use this service",
	"API restrictions settings",
	"LegacyApiNotActivated",
}

// IsConfigError reports whether a provider failure means the API is disabled
// or the key is not authorized, as opposed to a transient or data error. The
// maps client folds the HTTP status into the error text, so only the text is
// inspected.
func IsConfigError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, m := range configErrorMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Unconfigured is used when no provider credentials are available. Every
// route fails and geocoding degrades to nil.
type Unconfigured struct{}

func (Unconfigured) Route(context.Context, Request) (models.RouteResult, error) {
	return models.RouteResult{}, &Error{Op: "route", Err: ErrNotConfigured}
}

func (Unconfigured) Geocode(context.Context, string) (*models.Location, error) {
	return nil, nil
}
