package routecache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore persists entries in the routes table (see migrations).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Get(ctx context.Context, key string, notBefore time.Time) (Entry, bool, error) {
	e := Entry{Key: key}
	err := p.db.QueryRowContext(ctx,
		`SELECT distance_km, duration_seconds, cached_at FROM routes WHERE id = $1 AND cached_at >= $2`,
		key, notBefore,
	).Scan(&e.DistanceKm, &e.DurationSeconds, &e.CachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (p *PostgresStore) Upsert(ctx context.Context, e Entry) error {
	origin, _ := json.Marshal(e.Origin)
	dest, _ := json.Marshal(e.Destination)
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO routes (id, origin, destination, distance_km, duration_seconds, cached_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			distance_km = EXCLUDED.distance_km,
			duration_seconds = EXCLUDED.duration_seconds,
			cached_at = EXCLUDED.cached_at`,
		e.Key, string(origin), string(dest), e.DistanceKm, e.DurationSeconds, e.CachedAt,
	)
	return err
}
