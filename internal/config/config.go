package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Route cache backends.
const (
	CacheMemory   = "memory"
	CacheRedis    = "redis"
	CachePostgres = "postgres"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	TripIndexKey  string

	KafkaBrokers    []string
	KafkaMatchTopic string

	PGDSN string

	GoogleMapsAPIKey string
	OSRMEndpoint     string

	RouteCacheBackend string
	RouteCacheTTL     time.Duration
	RouteTimeout      time.Duration

	MaxCandidates    int
	ThresholdPercent int
	Concurrency      int
	DefaultSpeedMps  float64
	TimeZone         string
	OriginRadiusKm   float64
	DebugScores      bool

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:          ":8080",
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		KafkaMatchTopic:   "carpool-matches",
		TripIndexKey:      "trip_origins_geo",
		RouteCacheBackend: CacheMemory,
		RouteCacheTTL:     24 * time.Hour,
		RouteTimeout:      5 * time.Second,
		MaxCandidates:     20,
		ThresholdPercent:  30,
		Concurrency:       8,
		DefaultSpeedMps:   10,
		TimeZone:          "America/Toronto",
		LogLevel:          "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.TripIndexKey, "TRIP_INDEX_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaMatchTopic, "KAFKA_MATCH_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	cfg.GoogleMapsAPIKey = strings.TrimSpace(os.Getenv("GOOGLE_MAPS_API_KEY"))
	cfg.OSRMEndpoint = strings.TrimSpace(os.Getenv("OSRM_ENDPOINT"))

	if v := os.Getenv("ROUTE_CACHE_BACKEND"); v != "" {
		cfg.RouteCacheBackend = strings.ToLower(strings.TrimSpace(v))
	}
	setDurationFromEnv(&cfg.RouteCacheTTL, "ROUTE_CACHE_TTL", &errs)
	setDurationFromEnv(&cfg.RouteTimeout, "ROUTE_TIMEOUT", &errs)

	setIntFromEnv(&cfg.MaxCandidates, "MATCH_MAX_CANDIDATES", &errs)
	setIntFromEnv(&cfg.ThresholdPercent, "MATCH_THRESHOLD_PERCENT", &errs)
	setIntFromEnv(&cfg.Concurrency, "MATCH_CONCURRENCY", &errs)
	setFloatFromEnv(&cfg.DefaultSpeedMps, "MATCHER_DEFAULT_SPEED_MPS", &errs)
	setStringFromEnv(&cfg.TimeZone, "MATCH_TIMEZONE")
	setFloatFromEnv(&cfg.OriginRadiusKm, "MATCH_ORIGIN_RADIUS_KM", &errs)
	cfg.DebugScores = strings.EqualFold(os.Getenv("MATCH_DEBUG_SCORES"), "true")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.MaxCandidates <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_MAX_CANDIDATES must be > 0"))
	}
	if cfg.ThresholdPercent < 0 || cfg.ThresholdPercent > 100 {
		errs = append(errs, fmt.Errorf("MATCH_THRESHOLD_PERCENT must be within 0..100"))
	}
	if cfg.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_CONCURRENCY must be > 0"))
	}
	if cfg.OriginRadiusKm < 0 {
		errs = append(errs, fmt.Errorf("MATCH_ORIGIN_RADIUS_KM must be >= 0"))
	}
	if _, err := time.LoadLocation(cfg.TimeZone); err != nil {
		errs = append(errs, fmt.Errorf("invalid MATCH_TIMEZONE: %w", err))
	}
	switch cfg.RouteCacheBackend {
	case CacheMemory:
	case CacheRedis:
		if cfg.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("ROUTE_CACHE_BACKEND=redis requires REDIS_ADDR"))
		}
	case CachePostgres:
		if cfg.PGDSN == "" {
			errs = append(errs, fmt.Errorf("ROUTE_CACHE_BACKEND=postgres requires PG_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ROUTE_CACHE_BACKEND %q", cfg.RouteCacheBackend))
	}

	return cfg, errors.Join(errs...)
}

// Warnings lists non-fatal configuration gaps worth logging at startup.
func (c ServerConfig) Warnings() []string {
	var out []string
	if c.GoogleMapsAPIKey == "" {
		if c.OSRMEndpoint != "" {
			out = append(out, "GOOGLE_MAPS_API_KEY not set; routing via OSRM and geocoding disabled")
		} else {
			out = append(out, "GOOGLE_MAPS_API_KEY not set; routing and geocoding disabled")
		}
	}
	if c.PGDSN == "" {
		out = append(out, "PG_DSN not set; using in-memory trip storage")
	}
	return out
}

// WarmerConfig configures the route cache warmer consumer.
type WarmerConfig struct {
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroup    string
	TripIndexKey  string
	RedisAddr     string
	RedisPassword string
	PGDSN         string

	GoogleMapsAPIKey string
	OSRMEndpoint     string

	RouteCacheBackend string
	RouteCacheTTL     time.Duration
	RouteTimeout      time.Duration

	Attempts     int
	RetryBackoff time.Duration
	LogLevel     string
}

func LoadWarmerConfig() (WarmerConfig, error) {
	cfg := WarmerConfig{
		KafkaBrokers:      []string{"localhost:9092"},
		KafkaTopic:        "trip-events",
		KafkaGroup:        "carpool-route-warmer",
		TripIndexKey:      "trip_origins_geo",
		RouteCacheBackend: CacheRedis,
		RouteCacheTTL:     24 * time.Hour,
		RouteTimeout:      5 * time.Second,
		Attempts:          3,
		RetryBackoff:      200 * time.Millisecond,
		LogLevel:          "info",
	}
	var errs []error

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TRIP_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")
	setStringFromEnv(&cfg.TripIndexKey, "TRIP_INDEX_KEY")
	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.PGDSN = os.Getenv("PG_DSN")
	cfg.GoogleMapsAPIKey = strings.TrimSpace(os.Getenv("GOOGLE_MAPS_API_KEY"))
	cfg.OSRMEndpoint = strings.TrimSpace(os.Getenv("OSRM_ENDPOINT"))
	if v := os.Getenv("ROUTE_CACHE_BACKEND"); v != "" {
		cfg.RouteCacheBackend = strings.ToLower(strings.TrimSpace(v))
	}
	setDurationFromEnv(&cfg.RouteCacheTTL, "ROUTE_CACHE_TTL", &errs)
	setDurationFromEnv(&cfg.RouteTimeout, "ROUTE_TIMEOUT", &errs)
	setIntFromEnv(&cfg.Attempts, "WARMER_ATTEMPTS", &errs)
	setDurationFromEnv(&cfg.RetryBackoff, "WARMER_BACKOFF", &errs)
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.Attempts <= 0 {
		errs = append(errs, fmt.Errorf("WARMER_ATTEMPTS must be > 0"))
	}
	switch cfg.RouteCacheBackend {
	case CacheRedis:
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
		}
	case CachePostgres:
		if cfg.PGDSN == "" {
			errs = append(errs, fmt.Errorf("ROUTE_CACHE_BACKEND=postgres requires PG_DSN"))
		}
	default:
		// an in-process cache would be discarded with the warmer
		errs = append(errs, fmt.Errorf("warmer needs a shared cache backend, got %q", cfg.RouteCacheBackend))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
