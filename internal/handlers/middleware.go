package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"soil-advisor/pkg/logging"
	"soil-advisor/pkg/metrics"
)

// RequestIDHeader carries the correlation ID in both directions
const RequestIDHeader = "X-Request-ID"

// RequestID tags each request with an ID, reusing the caller's when present
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Instrument records request count, duration and status per route template
func Instrument(metricsCollector *metrics.Collector, logger *logging.StructuredLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			endpoint := routeTemplate(r)
			metricsCollector.APIRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
			metricsCollector.RecordAPIRequest(endpoint, r.Method, strconv.Itoa(rec.status))

			logger.Debug(r.Context(), "[API_REQUEST] Request handled", logging.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      rec.status,
				"duration_ms": duration.Milliseconds(),
			})
		})
	}
}

// routeTemplate returns the matched route pattern, keeping metric labels bounded
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}
