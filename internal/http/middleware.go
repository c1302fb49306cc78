package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/carpool-matching/internal/observability"
)

// maxBodyBytes caps JSON request bodies; a rider request is well under 1 KiB.
const maxBodyBytes = 64 << 10

type requestIDKey struct{}

func (s *Server) registerMiddleware() {
	s.mux.Use(s.instrument)
}

// instrument wraps every routed request: it assigns or echoes X-Request-ID,
// caps the body, turns a handler panic into a 500 and records the outcome.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = newID()
		}
		w.Header().Set("X-Request-ID", id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("panic recovered", "error", p, "path", r.URL.Path, "request_id", id)
				if rec.status == 0 {
					http.Error(rec, "internal error", http.StatusInternalServerError)
				}
			}
			s.record(r, rec.code(), time.Since(start))
		}()
		next.ServeHTTP(rec, r)
	})
}

// record feeds the request metrics and writes one access log line. Server
// errors log at WARN so they stand out from routine traffic.
func (s *Server) record(r *http.Request, status int, elapsed time.Duration) {
	route := routeOf(r)
	code := strconv.Itoa(status)
	observability.HTTPRequestsTotal.WithLabelValues(r.Method, route, code).Inc()
	observability.HTTPRequestDuration.WithLabelValues(r.Method, route, code).Observe(elapsed.Seconds())

	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	s.logger.Log(r.Context(), level, "http_request",
		"method", r.Method,
		"route", route,
		"status", status,
		"duration_ms", elapsed.Milliseconds(),
		"client", clientAddr(r),
		"request_id", requestIDFromContext(r.Context()),
	)
}

// statusRecorder remembers the first status written; an implicit write is 200.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusRecorder) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// routeOf labels metrics by the matched path template so ids in the path do
// not explode cardinality.
func routeOf(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

// clientAddr prefers the first X-Forwarded-For hop over the socket peer.
func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
