// Package routecache fronts a routing provider with a TTL cache for direct
// origin->destination estimates. Detour probing bypasses it: waypoint
// combinations are too sparse to hit.
package routecache

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/observability"
	"github.com/example/carpool-matching/internal/routing"
)

const DefaultTTL = 24 * time.Hour

// Estimate is the cached point-to-point summary.
type Estimate struct {
	DistanceKm      float64 `json:"distance_km"`
	DurationSeconds int     `json:"duration_seconds"`
}

// Entry is a CachedRoute as persisted by a Store.
type Entry struct {
	Key         string          `json:"key"`
	Origin      models.Location `json:"origin"`
	Destination models.Location `json:"destination"`
	Estimate
	CachedAt time.Time `json:"cached_at"`
}

// Store is the key/value backing table. Get must not return entries cached
// before notBefore. Upsert replaces any entry with the same key.
type Store interface {
	Get(ctx context.Context, key string, notBefore time.Time) (Entry, bool, error)
	Upsert(ctx context.Context, e Entry) error
}

type Cache struct {
	provider routing.Provider
	store    Store
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func New(provider routing.Provider, store Store, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{provider: provider, store: store, ttl: ttl, logger: logger, now: time.Now}
}

// Key rounds every coordinate to 4 decimals (~11 m) and sorts waypoints so
// near-duplicate queries share an entry.
func Key(origin, destination models.Location, waypoints []models.Location) string {
	var b strings.Builder
	b.WriteString(roundedPair(origin))
	b.WriteString("->")
	b.WriteString(roundedPair(destination))
	if len(waypoints) > 0 {
		wps := make([]string, len(waypoints))
		for i, w := range waypoints {
			wps[i] = roundedPair(w)
		}
		sort.Strings(wps)
		b.WriteByte('|')
		b.WriteString(strings.Join(wps, "|"))
	}
	return b.String()
}

func roundedPair(l models.Location) string {
	return round4(l.Lat) + "," + round4(l.Lng)
}

func round4(v float64) string {
	s := strconv.FormatFloat(v, 'f', 4, 64)
	if s == "-0.0000" {
		return "0.0000"
	}
	return s
}

// Lookup returns a fresh cached estimate or asks the provider and upserts the
// result. Store failures degrade to a live provider call; provider failures
// are returned to the caller.
func (c *Cache) Lookup(ctx context.Context, origin, destination models.Location, waypoints []models.Location) (Estimate, error) {
	key := Key(origin, destination, waypoints)
	now := c.now()

	e, ok, err := c.store.Get(ctx, key, now.Add(-c.ttl))
	switch {
	case err != nil:
		observability.RouteCacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("route cache read failed", "key", key, "error", err)
	case ok && now.Sub(e.CachedAt) <= c.ttl:
		observability.RouteCacheLookups.WithLabelValues("hit").Inc()
		return e.Estimate, nil
	default:
		observability.RouteCacheLookups.WithLabelValues("miss").Inc()
	}

	res, err := c.provider.Route(ctx, routing.Request{
		Origin:      origin,
		Destination: destination,
		Waypoints:   waypoints,
	})
	if err != nil {
		return Estimate{}, err
	}
	est := Estimate{
		DistanceKm:      float64(res.DistanceMeters) / 1000,
		DurationSeconds: res.DurationSeconds,
	}
	entry := Entry{Key: key, Origin: origin, Destination: destination, Estimate: est, CachedAt: now}
	if err := c.store.Upsert(ctx, entry); err != nil {
		c.logger.Warn("route cache write failed", "key", key, "error", err)
	}
	return est, nil
}
