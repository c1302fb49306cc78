package geo

import (
	"context"

	"github.com/example/carpool-matching/internal/models"
	"github.com/redis/go-redis/v9"
)

const DefaultTripIndexKey = "trip_origins_geo"

// RedisTripIndex keeps trip origins in a Redis GEO set so candidate trips can
// be narrowed to those starting near a rider.
type RedisTripIndex struct {
	client *redis.Client
	key    string
}

func NewRedisTripIndex(client *redis.Client, key string) *RedisTripIndex {
	if key == "" {
		key = DefaultTripIndexKey
	}
	return &RedisTripIndex{client: client, key: key}
}

func (r *RedisTripIndex) Add(ctx context.Context, tripID string, origin models.Location) error {
	return r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: origin.Lng, Latitude: origin.Lat, Name: tripID}).Err()
}

func (r *RedisTripIndex) Remove(ctx context.Context, tripID string) error {
	return r.client.ZRem(ctx, r.key, tripID).Err()
}

// Within returns ids of trips whose origin lies within radiusKm of loc,
// nearest first.
func (r *RedisTripIndex) Within(ctx context.Context, loc models.Location, radiusKm float64) ([]string, error) {
	res, err := r.client.GeoSearch(ctx, r.key, &redis.GeoSearchQuery{
		Longitude:  loc.Lng,
		Latitude:   loc.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	return res, nil
}
