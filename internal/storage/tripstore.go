package storage

import (
	"context"
	"sync"
	"time"

	"github.com/example/carpool-matching/internal/geo"
	"github.com/example/carpool-matching/internal/models"
)

// Request statuses as stored in trip_requests.status.
const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
)

// DefaultTripStatuses are the trip statuses eligible for matching.
var DefaultTripStatuses = []string{"active", "pending"}

// CandidateQuery selects trips for one rider.
type CandidateQuery struct {
	Origin      models.Location
	Destination models.Location
	Statuses    []string
	// Date, when set, keeps trips departing on the same calendar day in Location.
	Date     *time.Time
	Location *time.Location
	// MaxOriginDistanceKm, when > 0, drops trips starting further than this
	// from the rider's origin.
	MaxOriginDistanceKm float64
	IncludeSynthetic    bool
}

// dayBounds returns the [start, end) window of q.Date in q.Location.
func (q CandidateQuery) dayBounds() (time.Time, time.Time, bool) {
	if q.Date == nil {
		return time.Time{}, time.Time{}, false
	}
	loc := q.Location
	if loc == nil {
		loc = time.UTC
	}
	d := q.Date.In(loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1), true
}

func (q CandidateQuery) statuses() []string {
	if len(q.Statuses) == 0 {
		return DefaultTripStatuses
	}
	return q.Statuses
}

// TripStore is the read side the matcher needs from trip storage.
type TripStore interface {
	LoadCandidateTrips(ctx context.Context, q CandidateQuery) ([]models.DriverRoute, error)
	// LoadActiveRequestsForRider returns trip ids the rider already has a
	// pending or accepted request on.
	LoadActiveRequestsForRider(ctx context.Context, riderID string) ([]string, error)
	LoadAcceptedPassengers(ctx context.Context, tripID string) ([]models.Location, error)
	CountPendingRequestsByTrip(ctx context.Context, tripIDs []string) (map[string]int, error)
}

// TripRequest is a rider's request to join a trip.
type TripRequest struct {
	ID      string
	TripID  string
	RiderID string
	Status  string
	Pickup  models.Location
}

type MemoryStore struct {
	mu       sync.RWMutex
	trips    map[string]models.DriverRoute
	order    []string
	requests []TripRequest
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{trips: make(map[string]models.DriverRoute)}
}

// SaveTrip inserts or replaces a trip. Candidates are returned in insertion order.
func (m *MemoryStore) SaveTrip(t models.DriverRoute) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trips[t.TripID]; !ok {
		m.order = append(m.order, t.TripID)
	}
	m.trips[t.TripID] = t
}

func (m *MemoryStore) SaveRequest(r TripRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.requests {
		if m.requests[i].ID == r.ID && r.ID != "" {
			m.requests[i] = r
			return
		}
	}
	m.requests = append(m.requests, r)
}

func (m *MemoryStore) LoadCandidateTrips(_ context.Context, q CandidateQuery) ([]models.DriverRoute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	start, end, byDay := q.dayBounds()
	statuses := q.statuses()
	out := make([]models.DriverRoute, 0, len(m.order))
	for _, id := range m.order {
		t := m.trips[id]
		if !contains(statuses, t.Status) {
			continue
		}
		if t.Synthetic && !q.IncludeSynthetic {
			continue
		}
		if byDay && (t.DepartureTime.Before(start) || !t.DepartureTime.Before(end)) {
			continue
		}
		if q.MaxOriginDistanceKm > 0 && geo.DistanceKm(t.Origin, q.Origin) > q.MaxOriginDistanceKm {
			continue
		}
		t.Waypoints = append([]models.Location(nil), t.Waypoints...)
		out = append(out, t)
	}
	return out, nil
}

func (m *MemoryStore) LoadActiveRequestsForRider(_ context.Context, riderID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for _, r := range m.requests {
		if r.RiderID == riderID && (r.Status == RequestPending || r.Status == RequestAccepted) {
			ids = append(ids, r.TripID)
		}
	}
	return ids, nil
}

func (m *MemoryStore) LoadAcceptedPassengers(_ context.Context, tripID string) ([]models.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Location
	for _, r := range m.requests {
		if r.TripID == tripID && r.Status == RequestAccepted {
			out = append(out, r.Pickup)
		}
	}
	return out, nil
}

func (m *MemoryStore) CountPendingRequestsByTrip(_ context.Context, tripIDs []string) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int, len(tripIDs))
	for _, r := range m.requests {
		if r.Status == RequestPending && contains(tripIDs, r.TripID) {
			counts[r.TripID]++
		}
	}
	return counts, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
