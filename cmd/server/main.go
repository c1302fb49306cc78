package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"

	"github.com/example/carpool-matching/internal/config"
	"github.com/example/carpool-matching/internal/detour"
	"github.com/example/carpool-matching/internal/geo"
	httpapi "github.com/example/carpool-matching/internal/http"
	"github.com/example/carpool-matching/internal/ingest"
	"github.com/example/carpool-matching/internal/logging"
	"github.com/example/carpool-matching/internal/matcher"
	"github.com/example/carpool-matching/internal/pricing"
	"github.com/example/carpool-matching/internal/routecache"
	"github.com/example/carpool-matching/internal/routing"
	"github.com/example/carpool-matching/internal/storage"
)

func main() {
	var migrationsDir string
	flag.StringVar(&migrationsDir, "migrations", "migrations", "directory holding SQL migrations applied when MIGRATE=true")
	flag.Parse()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger("carpool-matching", cfg.LogLevel)
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.PGDSN != "" {
		db, err = storage.OpenPostgres(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if cfg.RunMigrations {
			runMigrations(ctx, db, migrationsDir, logger)
		}
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
	}

	provider, err := routing.Select(cfg.GoogleMapsAPIKey, cfg.OSRMEndpoint, logger)
	if err != nil {
		logger.Error("routing provider init failed", "error", err)
		os.Exit(1)
	}

	var cacheStore routecache.Store
	switch cfg.RouteCacheBackend {
	case config.CacheRedis:
		cacheStore = routecache.NewRedisStore(rdb, cfg.RouteCacheTTL)
	case config.CachePostgres:
		cacheStore = routecache.NewPostgresStore(db)
	default:
		cacheStore = routecache.NewMemoryStore()
	}
	cache := routecache.New(provider, cacheStore, cfg.RouteCacheTTL, logger)

	var trips storage.TripStore
	if db != nil {
		trips = storage.NewPostgresStore(db)
	} else {
		trips = storage.NewMemoryStore()
	}

	loc, _ := time.LoadLocation(cfg.TimeZone)
	svc := &matcher.Service{
		Store:            trips,
		Detour:           detour.NewCalculator(provider, cache, logger),
		Pricing:          pricing.NewEngine(),
		Logger:           logger,
		Location:         loc,
		DefaultSpeedMps:  cfg.DefaultSpeedMps,
		MaxCandidates:    cfg.MaxCandidates,
		ThresholdPercent: &cfg.ThresholdPercent,
		Concurrency:      cfg.Concurrency,
		RouteTimeout:     cfg.RouteTimeout,
		OriginRadiusKm:   cfg.OriginRadiusKm,
		DebugScores:      cfg.DebugScores,
	}
	if rdb != nil && cfg.OriginRadiusKm > 0 {
		svc.Origins = geo.NewRedisTripIndex(rdb, cfg.TripIndexKey)
	}
	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaMatchTopic)
		defer kp.Close()
		svc.Publisher = kp
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(svc, provider, cache, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}()

	logger.Info("carpool-matching listening", "addr", cfg.HTTPAddr, "cache", cfg.RouteCacheBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// runMigrations applies every .sql file in dir in lexical order. Failures are
// logged; the statements are idempotent so a restart retries them.
func runMigrations(ctx context.Context, db *sql.DB, dir string, logger *slog.Logger) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil || len(files) == 0 {
		logger.Warn("no migrations found", "dir", dir)
		return
	}
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			logger.Error("migration read error", "file", f, "error", err)
			return
		}
		if _, err := db.ExecContext(ctx, string(b)); err != nil {
			logger.Error("migration exec error", "file", f, "error", err)
			return
		}
		logger.Info("migration applied", "file", filepath.Base(f))
	}
}
