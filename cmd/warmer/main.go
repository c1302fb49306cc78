package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	flag "github.com/spf13/pflag"

	"github.com/example/carpool-matching/internal/config"
	"github.com/example/carpool-matching/internal/geo"
	"github.com/example/carpool-matching/internal/ingest"
	"github.com/example/carpool-matching/internal/logging"
	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/routecache"
	"github.com/example/carpool-matching/internal/routing"
	"github.com/example/carpool-matching/internal/storage"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warmer_messages_consumed_total",
		Help: "Total trip events consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warmer_messages_invalid_total",
		Help: "Total invalid trip events received",
	})
	routesWarmed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warmer_routes_warmed_total",
		Help: "Total trip routes written to the route cache",
	})
	warmErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warmer_errors_total",
		Help: "Total trip routes that could not be warmed",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, routesWarmed, warmErrors)
}

func main() {
	// allow some flags for local runs
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	cfg, err := config.LoadWarmerConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger("carpool-route-warmer", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rc *redis.Client
	if cfg.RedisAddr != "" {
		rc = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rc.Close()
	}

	var (
		store routecache.Store
		ready func(context.Context) error
	)
	switch cfg.RouteCacheBackend {
	case config.CachePostgres:
		db, err := storage.OpenPostgres(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store = routecache.NewPostgresStore(db)
		ready = pingDB(db)
	default:
		store = routecache.NewRedisStore(rc, cfg.RouteCacheTTL)
		ready = func(ctx context.Context) error { return rc.Ping(ctx).Err() }
	}

	provider, err := routing.Select(cfg.GoogleMapsAPIKey, cfg.OSRMEndpoint, logger)
	if err != nil {
		logger.Error("routing provider init failed", "error", err)
		os.Exit(1)
	}
	cache := routecache.New(provider, store, cfg.RouteCacheTTL, logger)

	var index TripIndexer
	if rc != nil {
		index = geo.NewRedisTripIndex(rc, cfg.TripIndexKey)
	}

	// start metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := ready(r.Context()); err != nil {
				http.Error(w, "cache not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic, GroupID: cfg.KafkaGroup, MinBytes: 10e3, MaxBytes: 10e6})
	defer r.Close()

	logger.Info("warmer listening", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down warmer")
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		// reset backoff on success
		backoff = time.Second

		msgsConsumed.Inc()

		ev, err := ingest.DecodeTripEvent(m.Value)
		if err != nil {
			msgsInvalid.Inc()
			logger.Warn("invalid trip event", "error", err, "offset", m.Offset)
			continue
		}

		if err := indexTrip(ctx, index, ev); err != nil {
			logger.Warn("trip origin index failed", "trip_id", ev.TripID, "status", ev.Status, "error", err)
		}
		if ev.Closed() {
			continue
		}

		if err := warmWithRetry(ctx, cache, ev, cfg.Attempts, cfg.RetryBackoff, cfg.RouteTimeout); err != nil {
			warmErrors.Inc()
			logger.Warn("route warm failed", "trip_id", ev.TripID, "error", err)
			continue
		}
		routesWarmed.Inc()
	}
}

// TripIndexer records where trips start for the matcher's radius prefilter.
type TripIndexer interface {
	Add(ctx context.Context, tripID string, origin models.Location) error
	Remove(ctx context.Context, tripID string) error
}

// indexTrip adds an open trip's origin to the index and drops a closed one.
func indexTrip(ctx context.Context, idx TripIndexer, ev models.TripEvent) error {
	if idx == nil {
		return nil
	}
	if ev.Closed() {
		return idx.Remove(ctx, ev.TripID)
	}
	return idx.Add(ctx, ev.TripID, ev.Origin)
}

// RouteWarmer is the part of the route cache the warmer drives.
type RouteWarmer interface {
	Lookup(ctx context.Context, origin, destination models.Location, waypoints []models.Location) (routecache.Estimate, error)
}

// warmWithRetry looks up a trip's origin->destination estimate so the cache
// holds it, retrying transient failures with doubling delay. Missing routes
// and an unconfigured provider are not retried.
func warmWithRetry(ctx context.Context, w RouteWarmer, ev models.TripEvent, attempts int, delay, timeout time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		_, err = w.Lookup(callCtx, ev.Origin, ev.Destination, nil)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, routing.ErrNoRoute) || errors.Is(err, routing.ErrNotConfigured) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

func pingDB(db *sql.DB) func(context.Context) error {
	return func(ctx context.Context) error { return db.PingContext(ctx) }
}
