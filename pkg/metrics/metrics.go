package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector provides application metrics collection
type Collector struct {
	// API Metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	APIErrorsTotal     *prometheus.CounterVec

	// Reading log metrics
	ReadingsRecordedTotal *prometheus.CounterVec
	ReadingsRejectedTotal *prometheus.CounterVec

	// Ingestion Metrics
	IngestionDuration    prometheus.Histogram
	IngestionErrorsTotal *prometheus.CounterVec
	IngestionBatchSize   prometheus.Histogram

	// Database Metrics
	DBQueryDuration  *prometheus.HistogramVec
	DBConnectionPool *prometheus.GaugeVec
	DBErrorsTotal    *prometheus.CounterVec

	// Engine Metrics
	DiagnosesTotal   *prometheus.CounterVec
	FindingsTotal    *prometheus.CounterVec
	SummaryDuration  prometheus.Histogram
	SummaryLogLength prometheus.Histogram

	// Weather Metrics
	WeatherLookupsTotal *prometheus.CounterVec
	WeatherBreakerState *prometheus.GaugeVec
}

// NewCollector creates a collector registered on the default Prometheus registry
func NewCollector(namespace string) *Collector {
	return NewCollectorWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector registered on reg
func NewCollectorWithRegistry(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		APIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests by endpoint, method, and status",
			},
			[]string{"endpoint", "method", "status"},
		),

		APIRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"endpoint"},
		),

		APIErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_errors_total",
				Help:      "Total number of API errors by type",
			},
			[]string{"error_type", "endpoint"},
		),

		ReadingsRecordedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "readings_recorded_total",
				Help:      "Soil readings appended to the log by crop and source",
			},
			[]string{"crop", "source"},
		),

		ReadingsRejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "readings_rejected_total",
				Help:      "Reading inputs rejected by validation, by field",
			},
			[]string{"field"},
		),

		IngestionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ingestion_duration_seconds",
				Help:      "Duration of bulk import runs in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
		),

		IngestionErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingestion_errors_total",
				Help:      "Total number of ingestion errors by type",
			},
			[]string{"error_type"},
		),

		IngestionBatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ingestion_batch_size",
				Help:      "Number of readings per batch during import",
				Buckets:   []float64{1, 10, 50, 100, 500, 1000, 5000},
			},
		),

		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Database query duration in seconds by query type",
				Buckets:   []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5},
			},
			[]string{"query_type"},
		),

		DBConnectionPool: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connection_pool",
				Help:      "Database connection pool statistics",
			},
			[]string{"state"}, // "in_use", "idle", "total"
		),

		DBErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_errors_total",
				Help:      "Total number of database errors by type",
			},
			[]string{"error_type"},
		),

		DiagnosesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "diagnoses_total",
				Help:      "Diagnoses produced, by crop profile and whether the default profile was used",
			},
			[]string{"profile", "fallback"},
		),

		FindingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "findings_total",
				Help:      "Property classifications by property and level",
			},
			[]string{"property", "level"},
		),

		SummaryDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "summary_duration_seconds",
				Help:      "Time to load and summarize the reading log",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
		),

		SummaryLogLength: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "summary_log_length",
				Help:      "Number of readings aggregated per summary",
				Buckets:   []float64{0, 1, 10, 50, 100, 500, 1000, 10000},
			},
		),

		WeatherLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "weather_lookups_total",
				Help:      "Weather lookups by outcome (live, cached, failed, rejected)",
			},
			[]string{"outcome"},
		),

		WeatherBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "weather_breaker_state",
				Help:      "Weather upstream circuit breaker state (1 for the current state)",
			},
			[]string{"state"},
		),
	}
}

// Timer provides timing functionality for operations
type Timer struct {
	start    time.Time
	observer prometheus.Observer
}

// NewTimer creates a new timer
func (c *Collector) NewTimer(histogram prometheus.Observer) *Timer {
	return &Timer{
		start:    time.Now(),
		observer: histogram,
	}
}

// ObserveDuration records the elapsed time since timer creation
func (t *Timer) ObserveDuration() time.Duration {
	duration := time.Since(t.start)
	if t.observer != nil {
		t.observer.Observe(duration.Seconds())
	}
	return duration
}

// RecordAPIRequest increments API request counter
func (c *Collector) RecordAPIRequest(endpoint, method, status string) {
	c.APIRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// RecordAPIError increments API error counter
func (c *Collector) RecordAPIError(errorType, endpoint string) {
	c.APIErrorsTotal.WithLabelValues(errorType, endpoint).Inc()
}

// RecordReading counts an appended reading
func (c *Collector) RecordReading(crop, source string) {
	if source == "" {
		source = "unknown"
	}
	c.ReadingsRecordedTotal.WithLabelValues(crop, source).Inc()
}

// RecordRejection counts a rejected reading input
func (c *Collector) RecordRejection(field string) {
	c.ReadingsRejectedTotal.WithLabelValues(field).Inc()
}

// RecordIngestionError increments ingestion error counter
func (c *Collector) RecordIngestionError(errorType string) {
	c.IngestionErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordDBError increments database error counter
func (c *Collector) RecordDBError(errorType string) {
	c.DBErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordDiagnosis counts a produced diagnosis
func (c *Collector) RecordDiagnosis(profile string, fallback bool) {
	label := "false"
	if fallback {
		label = "true"
	}
	c.DiagnosesTotal.WithLabelValues(profile, label).Inc()
}

// RecordFinding counts one property classification
func (c *Collector) RecordFinding(property, level string) {
	c.FindingsTotal.WithLabelValues(property, level).Inc()
}

// RecordWeatherLookup counts a weather lookup outcome
func (c *Collector) RecordWeatherLookup(outcome string) {
	c.WeatherLookupsTotal.WithLabelValues(outcome).Inc()
}

// SetWeatherBreakerState marks state as the current breaker state
func (c *Collector) SetWeatherBreakerState(state string) {
	for _, s := range []string{"closed", "half-open", "open"} {
		v := 0.0
		if s == state {
			v = 1
		}
		c.WeatherBreakerState.WithLabelValues(s).Set(v)
	}
}

// UpdateDBConnectionPool updates database connection pool metrics
func (c *Collector) UpdateDBConnectionPool(inUse, idle, total int) {
	c.DBConnectionPool.WithLabelValues("in_use").Set(float64(inUse))
	c.DBConnectionPool.WithLabelValues("idle").Set(float64(idle))
	c.DBConnectionPool.WithLabelValues("total").Set(float64(total))
}
