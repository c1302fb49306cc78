package storage

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/example/carpool-matching/internal/models"
)

func seededStore() *MemoryStore {
	toronto, _ := time.LoadLocation("America/Toronto")
	m := NewMemoryStore()
	m.SaveTrip(models.DriverRoute{TripID: "t1", Status: "active", DepartureTime: time.Date(2026, 3, 2, 7, 30, 0, 0, toronto)})
	m.SaveTrip(models.DriverRoute{TripID: "t2", Status: "pending", DepartureTime: time.Date(2026, 3, 3, 7, 30, 0, 0, toronto)})
	m.SaveTrip(models.DriverRoute{TripID: "t3", Status: "completed", DepartureTime: time.Date(2026, 3, 2, 9, 0, 0, 0, toronto)})
	m.SaveTrip(models.DriverRoute{TripID: "t4", Status: "active", Synthetic: true, DepartureTime: time.Date(2026, 3, 2, 8, 0, 0, 0, toronto)})
	// 23:30 local is already the next day in UTC.
	m.SaveTrip(models.DriverRoute{TripID: "t5", Status: "active", DepartureTime: time.Date(2026, 3, 2, 23, 30, 0, 0, toronto)})

	m.SaveRequest(TripRequest{ID: "r1", TripID: "t1", RiderID: "alice", Status: RequestPending})
	m.SaveRequest(TripRequest{ID: "r2", TripID: "t2", RiderID: "alice", Status: "rejected"})
	m.SaveRequest(TripRequest{ID: "r3", TripID: "t1", RiderID: "bob", Status: RequestAccepted, Pickup: models.Location{Lat: 43.25, Lng: -79.87}})
	m.SaveRequest(TripRequest{ID: "r4", TripID: "t1", RiderID: "carol", Status: RequestPending})
	m.SaveRequest(TripRequest{ID: "r5", TripID: "t2", RiderID: "dave", Status: RequestPending})
	return m
}

func tripIDs(routes []models.DriverRoute) []string {
	ids := make([]string, len(routes))
	for i, r := range routes {
		ids[i] = r.TripID
	}
	return ids
}

func TestMemoryStore_LoadCandidateTrips(t *testing.T) {
	m := seededStore()
	ctx := context.Background()
	toronto, _ := time.LoadLocation("America/Toronto")
	day := time.Date(2026, 3, 2, 12, 0, 0, 0, toronto)

	cases := []struct {
		name string
		q    CandidateQuery
		want []string
	}{
		{"default statuses", CandidateQuery{}, []string{"t1", "t2", "t5"}},
		{"with synthetic", CandidateQuery{IncludeSynthetic: true}, []string{"t1", "t2", "t4", "t5"}},
		{"explicit status", CandidateQuery{Statuses: []string{"completed"}}, []string{"t3"}},
		{"same local day", CandidateQuery{Date: &day, Location: toronto}, []string{"t1", "t5"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := m.LoadCandidateTrips(ctx, tc.q)
			if err != nil {
				t.Fatal(err)
			}
			ids := tripIDs(got)
			if len(ids) != len(tc.want) {
				t.Fatalf("got %v, want %v", ids, tc.want)
			}
			for i := range ids {
				if ids[i] != tc.want[i] {
					t.Fatalf("got %v, want %v", ids, tc.want)
				}
			}
		})
	}
}

func TestMemoryStore_Requests(t *testing.T) {
	m := seededStore()
	ctx := context.Background()

	active, _ := m.LoadActiveRequestsForRider(ctx, "alice")
	if len(active) != 1 || active[0] != "t1" {
		t.Fatalf("active requests = %v", active)
	}

	pickups, _ := m.LoadAcceptedPassengers(ctx, "t1")
	if len(pickups) != 1 || pickups[0].Lat != 43.25 {
		t.Fatalf("accepted pickups = %v", pickups)
	}

	ids := []string{"t2", "t1"}
	counts, _ := m.CountPendingRequestsByTrip(ctx, ids)
	if counts["t1"] != 2 || counts["t2"] != 1 || counts["t3"] != 0 {
		t.Fatalf("pending counts = %v", counts)
	}
	if ids[0] != "t2" {
		t.Fatal("input slice must not be reordered")
	}
}

func TestMemoryStore_CandidatesAreCopies(t *testing.T) {
	m := NewMemoryStore()
	m.SaveTrip(models.DriverRoute{TripID: "t1", Status: "active", Waypoints: []models.Location{{Lat: 1, Lng: 1}}})
	got, _ := m.LoadCandidateTrips(context.Background(), CandidateQuery{})
	got[0].Waypoints = append(got[0].Waypoints, models.Location{Lat: 2, Lng: 2})
	got[0].Waypoints[0].Lat = 9

	again, _ := m.LoadCandidateTrips(context.Background(), CandidateQuery{})
	if len(again[0].Waypoints) != 1 || again[0].Waypoints[0].Lat != 1 {
		t.Fatalf("stored trip mutated: %v", again[0].Waypoints)
	}
}
