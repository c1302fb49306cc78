package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/routecache"
	"github.com/example/carpool-matching/internal/routing"
)

type MatchFinder interface {
	FindMatches(ctx context.Context, req models.RiderRequest) ([]models.RideMatch, error)
}

type Geocoder interface {
	Geocode(ctx context.Context, address string) (*models.Location, error)
}

type RouteEstimator interface {
	Lookup(ctx context.Context, origin, destination models.Location, waypoints []models.Location) (routecache.Estimate, error)
}

type Server struct {
	Matcher   MatchFinder
	Geocoder  Geocoder
	Estimator RouteEstimator
	logger    *slog.Logger
	mux       *mux.Router
}

func NewServer(m MatchFinder, g Geocoder, e RouteEstimator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{Matcher: m, Geocoder: g, Estimator: e, logger: logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/matches", s.handleFindMatches).Methods("POST")
	s.mux.HandleFunc("/api/v1/geocode", s.handleGeocode).Methods("GET")
	s.mux.HandleFunc("/api/v1/routes/estimate", s.handleRouteEstimate).Methods("POST")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type matchesResponse struct {
	Matches []models.RideMatch `json:"matches"`
}

func (s *Server) handleFindMatches(w http.ResponseWriter, r *http.Request) {
	var req models.RiderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	matches, err := s.Matcher.FindMatches(r.Context(), req)
	if err != nil {
		if errors.Is(err, models.ErrInvalidRequest) {
			http.Error(w, err.Error(), 400)
			return
		}
		s.logger.Error("find matches failed", "rider_id", req.RiderID, "error", err, "request_id", requestIDFromContext(r.Context()))
		http.Error(w, "matching unavailable", 500)
		return
	}
	if matches == nil {
		matches = []models.RideMatch{}
	}
	writeJSON(w, 200, matchesResponse{Matches: matches})
}

type geocodeResponse struct {
	Address  string           `json:"address"`
	Location *models.Location `json:"location"`
}

// handleGeocode answers with a null location when geocoding is unavailable
// so clients fall back to their default coordinates.
func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		http.Error(w, "address is required", 400)
		return
	}
	loc, err := s.Geocoder.Geocode(r.Context(), address)
	if err != nil {
		var gerr *routing.GeocodeError
		if errors.As(err, &gerr) {
			http.Error(w, gerr.Error(), 404)
			return
		}
		http.Error(w, err.Error(), 502)
		return
	}
	writeJSON(w, 200, geocodeResponse{Address: address, Location: loc})
}

type estimateRequest struct {
	Origin      models.Location   `json:"origin"`
	Destination models.Location   `json:"destination"`
	Waypoints   []models.Location `json:"waypoints,omitempty"`
}

func (s *Server) handleRouteEstimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	est, err := s.Estimator.Lookup(r.Context(), req.Origin, req.Destination, req.Waypoints)
	if err != nil {
		s.logger.Warn("route estimate failed", "origin", req.Origin.String(), "destination", req.Destination.String(), "error", err)
		http.Error(w, "route unavailable", 502)
		return
	}
	writeJSON(w, 200, est)
}

// decodeJSON reads the body into v, answering 413 for oversized bodies and
// 400 for anything else that fails to decode.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", 413)
			return false
		}
		http.Error(w, err.Error(), 400)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
