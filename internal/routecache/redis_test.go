package routecache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisStore_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping integration test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	ctx := context.Background()
	s := NewRedisStore(rdb, time.Minute)
	key := fmt.Sprintf("test-%d", time.Now().UnixNano())
	now := time.Now().UTC().Truncate(time.Second)
	if err := s.Upsert(ctx, Entry{Key: key, Estimate: Estimate{DistanceKm: 12.5, DurationSeconds: 900}, CachedAt: now}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	defer rdb.Del(ctx, redisKeyPrefix+key)

	e, ok, err := s.Get(ctx, key, now.Add(-time.Hour))
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if e.DistanceKm != 12.5 || e.DurationSeconds != 900 {
		t.Fatalf("unexpected entry %+v", e)
	}
	if _, ok, _ := s.Get(ctx, key, now.Add(time.Hour)); ok {
		t.Fatal("entry older than notBefore must be a miss")
	}
}
