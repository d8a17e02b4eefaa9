package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"soil-advisor/internal/agronomy"
	"soil-advisor/internal/models"
	"soil-advisor/internal/repository"
	"soil-advisor/internal/services"
	"soil-advisor/internal/weather"
	"soil-advisor/pkg/logging"
	"soil-advisor/pkg/metrics"
)

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 1 << 20

// SoilHandler handles the soil advisor API endpoints
type SoilHandler struct {
	readingService *services.ReadingService
	weatherService *services.WeatherService
	logger         *logging.StructuredLogger
	metrics        *metrics.Collector
}

// NewSoilHandler creates a new handler. weatherService may be nil when no
// weather upstream is configured.
func NewSoilHandler(
	readingService *services.ReadingService,
	weatherService *services.WeatherService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *SoilHandler {
	return &SoilHandler{
		readingService: readingService,
		weatherService: weatherService,
		logger:         logger,
		metrics:        metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// SummaryResponse is the trend view of the reading log. Averages are rounded
// to one decimal for display; RawAverages keeps full precision.
type SummaryResponse struct {
	HasData     bool                 `json:"has_data"`
	Latest      *models.SoilReading  `json:"latest"`
	Count       int                  `json:"count"`
	Averages    models.Averages      `json:"averages"`
	RawAverages models.Averages      `json:"raw_averages"`
	Series      []models.SeriesPoint `json:"series"`
}

// DiagnosisResponse wraps a diagnosis, which is null for an empty log
type DiagnosisResponse struct {
	Diagnosis *models.Diagnosis `json:"diagnosis"`
}

// CropResponse describes one knowledge base entry
type CropResponse struct {
	models.CropProfile
	Known bool `json:"known"`
}

// CreateReading handles POST /api/readings
func (h *SoilHandler) CreateReading(w http.ResponseWriter, r *http.Request) {
	ctx := logging.WithSource(r.Context(), "api")

	var input models.ReadingInput
	if err := decodeJSON(w, r, &input); err != nil {
		h.sendError(w, r, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	reading, err := h.readingService.Record(ctx, &input)
	if err != nil {
		h.handleError(w, r, err, "[API_CREATE_READING_ERROR] Failed to record reading")
		return
	}

	h.sendJSON(w, reading, http.StatusCreated)
}

// ListReadings handles GET /api/readings
func (h *SoilHandler) ListReadings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page := 1
	limit := 100

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}

	filter := repository.ReadingFilter{
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
	if crop := r.URL.Query().Get("crop"); crop != "" {
		filter.Crop = &crop
	}

	readings, total, err := h.readingService.History(ctx, filter)
	if err != nil {
		h.handleError(w, r, err, "[API_LIST_READINGS_ERROR] Failed to list readings")
		return
	}

	h.sendJSON(w, PaginatedResponse{
		Data:       readings,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}, http.StatusOK)
}

// GetReading handles GET /api/readings/{id}
func (h *SoilHandler) GetReading(w http.ResponseWriter, r *http.Request) {
	reading, err := h.readingService.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.handleError(w, r, err, "[API_GET_READING_ERROR] Failed to get reading")
		return
	}

	h.sendJSON(w, reading, http.StatusOK)
}

// GetSummary handles GET /api/readings/summary
func (h *SoilHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.readingService.Summary(r.Context())
	if err != nil {
		h.handleError(w, r, err, "[API_SUMMARY_ERROR] Failed to summarize readings")
		return
	}

	h.sendJSON(w, SummaryResponse{
		HasData:     summary.HasData(),
		Latest:      summary.Latest,
		Count:       summary.Count,
		Averages:    agronomy.RoundAverages(summary.Averages),
		RawAverages: summary.Averages,
		Series:      summary.Series,
	}, http.StatusOK)
}

// GetLatestDiagnosis handles GET /api/readings/diagnosis
func (h *SoilHandler) GetLatestDiagnosis(w http.ResponseWriter, r *http.Request) {
	top, err := parseTop(r)
	if err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	diagnosis, err := h.readingService.LatestDiagnosis(r.Context())
	if err != nil {
		h.handleError(w, r, err, "[API_DIAGNOSIS_ERROR] Failed to diagnose latest reading")
		return
	}

	h.sendJSON(w, DiagnosisResponse{Diagnosis: diagnosis.Top(top)}, http.StatusOK)
}

// Diagnose handles POST /api/diagnose
func (h *SoilHandler) Diagnose(w http.ResponseWriter, r *http.Request) {
	top, err := parseTop(r)
	if err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	var input models.ReadingInput
	if err := decodeJSON(w, r, &input); err != nil {
		h.sendError(w, r, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	diagnosis, err := h.readingService.Diagnose(r.Context(), &input)
	if err != nil {
		h.handleError(w, r, err, "[API_DIAGNOSE_ERROR] Failed to diagnose reading")
		return
	}

	h.sendJSON(w, DiagnosisResponse{Diagnosis: diagnosis.Top(top)}, http.StatusOK)
}

// ListCrops handles GET /api/crops
func (h *SoilHandler) ListCrops(w http.ResponseWriter, r *http.Request) {
	crops := agronomy.Crops()
	profiles := make([]models.CropProfile, 0, len(crops))
	for _, crop := range crops {
		profile, _ := agronomy.Lookup(crop)
		profiles = append(profiles, profile)
	}

	h.sendJSON(w, map[string]interface{}{
		"data":    profiles,
		"default": agronomy.DefaultProfile,
	}, http.StatusOK)
}

// GetCrop handles GET /api/crops/{crop}. Unknown crops answer with the
// default profile and known=false, matching how diagnoses treat them.
func (h *SoilHandler) GetCrop(w http.ResponseWriter, r *http.Request) {
	profile, known := agronomy.Lookup(mux.Vars(r)["crop"])
	h.sendJSON(w, CropResponse{CropProfile: profile, Known: known}, http.StatusOK)
}

// GetWeather handles GET /api/weather
func (h *SoilHandler) GetWeather(w http.ResponseWriter, r *http.Request) {
	if h.weatherService == nil {
		h.sendError(w, r, "weather lookup is not configured", http.StatusServiceUnavailable)
		return
	}

	report, err := h.weatherService.Current(r.Context(), r.URL.Query().Get("location"))
	if err != nil {
		if !errors.Is(err, weather.ErrLocationNotFound) && !isValidation(err) {
			h.metrics.RecordAPIError("upstream_error", "/api/weather")
			h.logger.Warn(r.Context(), "[API_WEATHER_ERROR] Weather unavailable", logging.Fields{
				"error": err.Error(),
			})
			h.sendError(w, r, "weather data unavailable", http.StatusServiceUnavailable)
			return
		}
		h.handleError(w, r, err, "[API_WEATHER_ERROR] Weather lookup failed")
		return
	}

	h.sendJSON(w, report, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *SoilHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK

	if err := h.readingService.HealthCheck(ctx); err != nil {
		status["status"] = "unhealthy"
		status["error"] = err.Error()
		code = http.StatusServiceUnavailable
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{
		"status": status["status"],
	})
	h.sendJSON(w, status, code)
}

// RegisterRoutes registers all API routes
func (h *SoilHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/readings", h.CreateReading).Methods("POST")
	router.HandleFunc("/api/readings", h.ListReadings).Methods("GET")
	router.HandleFunc("/api/readings/summary", h.GetSummary).Methods("GET")
	router.HandleFunc("/api/readings/diagnosis", h.GetLatestDiagnosis).Methods("GET")
	router.HandleFunc("/api/readings/{id}", h.GetReading).Methods("GET")
	router.HandleFunc("/api/diagnose", h.Diagnose).Methods("POST")
	router.HandleFunc("/api/crops", h.ListCrops).Methods("GET")
	router.HandleFunc("/api/crops/{crop}", h.GetCrop).Methods("GET")
	router.HandleFunc("/api/weather", h.GetWeather).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}

// parseTop reads the optional ?top=N display limit; 0 means no limit
func parseTop(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("top")
	if raw == "" {
		return 0, nil
	}
	top, err := strconv.Atoi(raw)
	if err != nil || top < 1 {
		return 0, errors.New("invalid top, expected a positive integer")
	}
	return top, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func isValidation(err error) bool {
	var verr *models.ValidationError
	return errors.As(err, &verr)
}

// handleError maps typed errors to status codes
func (h *SoilHandler) handleError(w http.ResponseWriter, r *http.Request, err error, logMessage string) {
	endpoint := routeTemplate(r)

	var verr *models.ValidationError
	var nf *repository.NotFoundError
	switch {
	case errors.As(err, &verr):
		h.metrics.RecordAPIError("validation_error", endpoint)
		h.sendError(w, r, verr.Message, http.StatusBadRequest)
	case errors.As(err, &nf):
		h.metrics.RecordAPIError("not_found", endpoint)
		h.sendError(w, r, nf.Error(), http.StatusNotFound)
	case errors.Is(err, weather.ErrLocationNotFound):
		h.metrics.RecordAPIError("not_found", endpoint)
		h.sendError(w, r, err.Error(), http.StatusNotFound)
	default:
		h.logger.Error(r.Context(), logMessage, logging.Fields{
			"path": r.URL.Path,
		}, err)
		h.metrics.RecordAPIError("internal_error", endpoint)
		h.sendError(w, r, "internal server error", http.StatusInternalServerError)
	}
}

// sendJSON sends a JSON response
func (h *SoilHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *SoilHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}
