package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/example/carpool-matching/internal/models"
)

// OSRMProvider performs route lookups against an OSRM HTTP server. OSRM has
// no traffic model, so departure time is ignored, and no geocoder.
type OSRMProvider struct {
	Endpoint string
	Client   *http.Client
}

func NewOSRMProvider(endpoint string) *OSRMProvider {
	return &OSRMProvider{Endpoint: strings.TrimRight(endpoint, "/"), Client: &http.Client{Timeout: 2 * time.Second}}
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Duration float64 `json:"duration"`
		Distance float64 `json:"distance"`
	} `json:"routes"`
	Trips []struct {
		Duration float64 `json:"duration"`
		Distance float64 `json:"distance"`
	} `json:"trips"`
	Waypoints []struct {
		WaypointIndex int `json:"waypoint_index"`
	} `json:"waypoints"`
}

// Route queries /route for a fixed stop order, or /trip with a pinned first
// and last stop when optimization is requested.
func (o *OSRMProvider) Route(ctx context.Context, req Request) (models.RouteResult, error) {
	points := make([]string, 0, len(req.Waypoints)+2)
	points = append(points, lonLat(req.Origin))
	for _, w := range req.Waypoints {
		points = append(points, lonLat(w))
	}
	points = append(points, lonLat(req.Destination))

	optimize := req.Optimize && len(req.Waypoints) > 0
	var url string
	if optimize {
		url = fmt.Sprintf("%s/trip/v1/driving/%s?source=first&destination=last&roundtrip=false&overview=false", o.Endpoint, strings.Join(points, ";"))
	} else {
		url = fmt.Sprintf("%s/route/v1/driving/%s?overview=false", o.Endpoint, strings.Join(points, ";"))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.RouteResult{}, &Error{Op: "osrm", Err: err}
	}
	resp, err := o.Client.Do(httpReq)
	if err != nil {
		return models.RouteResult{}, &Error{Op: "osrm", Err: err}
	}
	defer resp.Body.Close()

	var out osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.RouteResult{}, &Error{Op: "osrm", Err: fmt.Errorf("decode (status %d): %w", resp.StatusCode, err)}
	}
	if out.Code != "Ok" {
		return models.RouteResult{}, &Error{Op: "osrm", Err: fmt.Errorf("%w: %s %s", ErrNoRoute, out.Code, out.Message)}
	}

	if !optimize {
		if len(out.Routes) == 0 {
			return models.RouteResult{}, &Error{Op: "osrm", Err: ErrNoRoute}
		}
		r := out.Routes[0]
		return models.RouteResult{DurationSeconds: int(r.Duration), DistanceMeters: int(r.Distance)}, nil
	}

	if len(out.Trips) == 0 {
		return models.RouteResult{}, &Error{Op: "osrm", Err: ErrNoRoute}
	}
	t := out.Trips[0]
	return models.RouteResult{
		DurationSeconds: int(t.Duration),
		DistanceMeters:  int(t.Distance),
		WaypointOrder:   tripOrder(out, len(req.Waypoints)),
	}, nil
}

// tripOrder converts OSRM waypoint_index values (positions in the trip,
// including the pinned origin) into an ordering of the intermediate stops.
func tripOrder(out osrmResponse, n int) []int {
	if len(out.Waypoints) != n+2 {
		return nil
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return out.Waypoints[order[a]+1].WaypointIndex < out.Waypoints[order[b]+1].WaypointIndex
	})
	return order
}

// Geocode is not offered by OSRM; it degrades like an unauthorized key.
func (o *OSRMProvider) Geocode(context.Context, string) (*models.Location, error) {
	return nil, nil
}

func lonLat(l models.Location) string {
	return fmt.Sprintf("%.6f,%.6f", l.Lng, l.Lat)
}
