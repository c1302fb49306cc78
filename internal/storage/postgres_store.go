package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/example/carpool-matching/internal/geo"
	"github.com/example/carpool-matching/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres opens and pings a database handle for dsn.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const candidateTripsQuery = `
SELECT t.id, t.driver_id, COALESCE(u.name, ''), COALESCE(u.vehicle, ''), COALESCE(u.bio, ''),
       COALESCE(u.profile_pic, ''), COALESCE(u.rating, 0),
       t.origin_lat, t.origin_lng, t.dest_lat, t.dest_lng, COALESCE(t.waypoints, '[]'),
       t.departure_time, t.planned_arrival, t.max_passengers, t.current_passengers,
       t.detour_tolerance_minutes, t.status, t.synthetic
FROM trips t
LEFT JOIN users u ON u.id = t.driver_id
WHERE t.status = ANY($1)
  AND ($2 OR NOT t.synthetic)
  AND ($3::timestamptz IS NULL OR (t.departure_time >= $3 AND t.departure_time < $4))
ORDER BY t.departure_time, t.id`

func (p *PostgresStore) LoadCandidateTrips(ctx context.Context, q CandidateQuery) ([]models.DriverRoute, error) {
	var from, to sql.NullTime
	if start, end, ok := q.dayBounds(); ok {
		from = sql.NullTime{Time: start, Valid: true}
		to = sql.NullTime{Time: end, Valid: true}
	}
	rows, err := p.db.QueryContext(ctx, candidateTripsQuery, pq.Array(q.statuses()), q.IncludeSynthetic, from, to)
	if err != nil {
		return nil, fmt.Errorf("load candidate trips: %w", err)
	}
	defer rows.Close()

	var out []models.DriverRoute
	for rows.Next() {
		var (
			t         models.DriverRoute
			waypoints []byte
			arrival   sql.NullTime
		)
		if err := rows.Scan(
			&t.TripID, &t.DriverID, &t.Driver.Name, &t.Driver.Vehicle, &t.Driver.Bio,
			&t.Driver.ProfilePic, &t.Driver.Rating,
			&t.Origin.Lat, &t.Origin.Lng, &t.Destination.Lat, &t.Destination.Lng, &waypoints,
			&t.DepartureTime, &arrival, &t.MaxPassengers, &t.CurrentPassengers,
			&t.DetourToleranceMinutes, &t.Status, &t.Synthetic,
		); err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		if err := json.Unmarshal(waypoints, &t.Waypoints); err != nil {
			return nil, fmt.Errorf("decode waypoints for trip %s: %w", t.TripID, err)
		}
		if arrival.Valid {
			t.PlannedArrival = arrival.Time
		}
		if q.MaxOriginDistanceKm > 0 && geo.DistanceKm(t.Origin, q.Origin) > q.MaxOriginDistanceKm {
			continue
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *PostgresStore) LoadActiveRequestsForRider(ctx context.Context, riderID string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT trip_id FROM trip_requests WHERE rider_id = $1 AND status = ANY($2)`,
		riderID, pq.Array([]string{RequestPending, RequestAccepted}),
	)
	if err != nil {
		return nil, fmt.Errorf("load active requests: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *PostgresStore) LoadAcceptedPassengers(ctx context.Context, tripID string) ([]models.Location, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT pickup_lat, pickup_lng FROM trip_requests WHERE trip_id = $1 AND status = $2 ORDER BY created_at`,
		tripID, RequestAccepted,
	)
	if err != nil {
		return nil, fmt.Errorf("load accepted passengers: %w", err)
	}
	defer rows.Close()
	var out []models.Location
	for rows.Next() {
		var l models.Location
		if err := rows.Scan(&l.Lat, &l.Lng); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CountPendingRequestsByTrip(ctx context.Context, tripIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(tripIDs))
	if len(tripIDs) == 0 {
		return counts, nil
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT trip_id, COUNT(*) FROM trip_requests WHERE trip_id = ANY($1) AND status = $2 GROUP BY trip_id`,
		pq.Array(tripIDs), RequestPending,
	)
	if err != nil {
		return nil, fmt.Errorf("count pending requests: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// SaveTrip upserts a trip row; used by seeding and integration tests.
func (p *PostgresStore) SaveTrip(ctx context.Context, t models.DriverRoute) error {
	wps, err := json.Marshal(t.Waypoints)
	if err != nil {
		return err
	}
	var arrival sql.NullTime
	if !t.PlannedArrival.IsZero() {
		arrival = sql.NullTime{Time: t.PlannedArrival, Valid: true}
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO trips (id, driver_id, origin_lat, origin_lng, dest_lat, dest_lng, waypoints,
			departure_time, planned_arrival, max_passengers, current_passengers,
			detour_tolerance_minutes, status, synthetic, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id) DO UPDATE SET
			waypoints = EXCLUDED.waypoints,
			departure_time = EXCLUDED.departure_time,
			planned_arrival = EXCLUDED.planned_arrival,
			max_passengers = EXCLUDED.max_passengers,
			current_passengers = EXCLUDED.current_passengers,
			detour_tolerance_minutes = EXCLUDED.detour_tolerance_minutes,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`,
		t.TripID, t.DriverID, t.Origin.Lat, t.Origin.Lng, t.Destination.Lat, t.Destination.Lng, string(wps),
		t.DepartureTime, arrival, t.MaxPassengers, t.CurrentPassengers,
		t.DetourToleranceMinutes, t.Status, t.Synthetic, time.Now(),
	)
	return err
}
