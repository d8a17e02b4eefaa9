package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"soil-advisor/pkg/logging"
	"soil-advisor/pkg/metrics"
)

// NewRouter wires the API, docs and metrics endpoints behind the request ID
// and instrumentation middleware.
func NewRouter(h *SoilHandler, metricsHandler http.Handler, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *mux.Router {
	router := mux.NewRouter()
	router.Use(RequestID, Instrument(metricsCollector, logger))

	h.RegisterRoutes(router)

	router.HandleFunc("/api/docs", SwaggerUI).Methods("GET")
	router.HandleFunc(openAPIPath, OpenAPISpec).Methods("GET")
	if metricsHandler != nil {
		router.Handle("/metrics", metricsHandler)
	}

	return router
}
