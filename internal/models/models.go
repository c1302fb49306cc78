package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidRequest is returned for rider requests that cannot be matched as given.
var ErrInvalidRequest = errors.New("invalid rider request")

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (l Location) String() string { return fmt.Sprintf("%f,%f", l.Lat, l.Lng) }

// DriverProfile carries the display fields surfaced with a match.
type DriverProfile struct {
	Name       string  `json:"name"`
	Vehicle    string  `json:"vehicle"`
	Bio        string  `json:"bio"`
	ProfilePic string  `json:"profile_pic"`
	Rating     float64 `json:"rating"`
}

// DriverRoute is a read-only snapshot of a driver's planned trip.
type DriverRoute struct {
	TripID                 string        `json:"trip_id"`
	DriverID               string        `json:"driver_id"`
	Driver                 DriverProfile `json:"driver"`
	Origin                 Location      `json:"origin"`
	Destination            Location      `json:"destination"`
	Waypoints              []Location    `json:"waypoints,omitempty"`
	DepartureTime          time.Time     `json:"departure_time"`
	PlannedArrival         time.Time     `json:"planned_arrival,omitempty"`
	MaxPassengers          int           `json:"max_passengers"`
	CurrentPassengers      int           `json:"current_passengers"`
	DetourToleranceMinutes int           `json:"detour_tolerance_minutes"`
	Status                 string        `json:"status"`
	Synthetic              bool          `json:"synthetic,omitempty"`
}

// RemainingSeats is the capacity left before pending requests are considered.
func (d DriverRoute) RemainingSeats() int { return d.MaxPassengers - d.CurrentPassengers }

type Preference string

const (
	PreferenceDefault         Preference = "default"
	PreferenceCostPriority    Preference = "costPriority"
	PreferenceComfortPriority Preference = "comfortPriority"
)

func (p Preference) Valid() bool {
	switch p {
	case "", PreferenceDefault, PreferenceCostPriority, PreferenceComfortPriority:
		return true
	}
	return false
}

type RiderRequest struct {
	RiderID            string     `json:"rider_id"`
	Origin             Location   `json:"origin"`
	Destination        Location   `json:"destination"`
	DesiredArrivalTime string     `json:"desired_arrival_time"` // HH:MM
	DesiredDate        *time.Time `json:"desired_date,omitempty"`
	MaxOccupancy       int        `json:"max_occupancy"`
	Preference         Preference `json:"preference,omitempty"`
	IncludeSynthetic   bool       `json:"include_synthetic,omitempty"`
}

// Validate normalises defaults and rejects malformed requests.
func (r *RiderRequest) Validate() error {
	if r.RiderID == "" {
		return fmt.Errorf("%w: rider_id is required", ErrInvalidRequest)
	}
	if _, err := ClockMinutes(r.DesiredArrivalTime); err != nil {
		return err
	}
	if r.MaxOccupancy == 0 {
		r.MaxOccupancy = 1
	}
	if r.MaxOccupancy < 1 {
		return fmt.Errorf("%w: max_occupancy must be >= 1", ErrInvalidRequest)
	}
	if !r.Preference.Valid() {
		return fmt.Errorf("%w: unknown preference %q", ErrInvalidRequest, r.Preference)
	}
	if r.Preference == "" {
		r.Preference = PreferenceDefault
	}
	return nil
}

// ClockMinutes parses an HH:MM wall-clock time into minutes after midnight.
func ClockMinutes(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidRequest, s)
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidRequest, s)
	}
	return h*60 + m, nil
}

type RouteResult struct {
	DurationSeconds int   `json:"duration_seconds"`
	DistanceMeters  int   `json:"distance_meters"`
	WaypointOrder   []int `json:"waypoint_order,omitempty"`
}

type CostBreakdown struct {
	BaseFare               float64 `json:"base_fare"`
	DistanceCharge         float64 `json:"distance_charge"`
	TimeCharge             float64 `json:"time_charge"`
	Subtotal               float64 `json:"subtotal"`
	DetourSurchargePercent float64 `json:"detour_surcharge_percent"`
	DiscountPercent        float64 `json:"discount_percent"`
	FinalCost              float64 `json:"final_cost"`
}

type Scores struct {
	Schedule float64 `json:"schedule"`
	Location float64 `json:"location"`
	Cost     float64 `json:"cost"`
	Comfort  float64 `json:"comfort"`
	Total    float64 `json:"total"`
}

// ScoredCandidate is one driver trip evaluated within a batch.
type ScoredCandidate struct {
	Route               DriverRoute
	Scores              Scores
	MatchPercentage     int
	Cost                CostBreakdown
	DetourSeconds       int
	RideDistanceKm      float64
	RideDurationSeconds int
	AvailableSeats      int
	ArrivalAtPickup     string
}

type MatchDetails struct {
	EstimatedCost        float64 `json:"estimated_cost"`
	EstimatedDistanceKm  float64 `json:"estimated_distance_km"`
	EstimatedDurationSec int     `json:"estimated_duration_sec"`
	DetourMinutes        float64 `json:"detour_minutes"`
	ArrivalAtPickup      string  `json:"arrival_at_pickup"`
	AvailableSeats       int     `json:"available_seats"`
}

// RideMatch is the ranked, externally visible result of a match call.
type RideMatch struct {
	RideID          string       `json:"ride_id"`
	DriverID        string       `json:"driver_id"`
	Name            string       `json:"name"`
	ProfilePic      string       `json:"profile_pic"`
	Vehicle         string       `json:"vehicle"`
	Rating          float64      `json:"rating"`
	Bio             string       `json:"bio"`
	MatchPercentage int          `json:"match_percentage"`
	UILabel         string       `json:"ui_label"`
	Details         MatchDetails `json:"details"`
	DebugScores     *Scores      `json:"debug_scores,omitempty"`
}

// MatchEvent summarises one ranking pass for downstream consumers.
type MatchEvent struct {
	RiderID     string    `json:"rider_id"`
	TripIDs     []string  `json:"trip_ids"`
	Percentages []int     `json:"percentages"`
	Evaluated   int       `json:"evaluated"`
	CreatedAt   time.Time `json:"created_at"`
}

// TripEvent announces a trip whose route is worth pre-computing, or the end
// of one that no longer takes riders.
type TripEvent struct {
	TripID      string   `json:"trip_id"`
	Status      string   `json:"status,omitempty"`
	Origin      Location `json:"origin"`
	Destination Location `json:"destination"`
}

// Closed reports whether the trip is finished and should leave the origin index.
func (e TripEvent) Closed() bool {
	return e.Status == "completed" || e.Status == "cancelled"
}
