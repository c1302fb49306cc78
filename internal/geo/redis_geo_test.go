package geo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/example/carpool-matching/internal/models"
	"github.com/redis/go-redis/v9"
)

func TestRedisTripIndex_Within(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping integration test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	ctx := context.Background()
	key := fmt.Sprintf("test_trip_origins_%d", time.Now().UnixNano())
	defer rdb.Del(ctx, key)

	idx := NewRedisTripIndex(rdb, key)
	mac := models.Location{Lat: 43.2609, Lng: -79.9192}
	_ = idx.Add(ctx, "near", models.Location{Lat: 43.2557, Lng: -79.8711})
	_ = idx.Add(ctx, "far", models.Location{Lat: 43.6532, Lng: -79.3832})

	ids, err := idx.Within(ctx, mac, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "near" {
		t.Fatalf("Within = %v", ids)
	}
	_ = idx.Remove(ctx, "near")
	if ids, _ := idx.Within(ctx, mac, 10); len(ids) != 0 {
		t.Fatalf("expected removal, got %v", ids)
	}
}
