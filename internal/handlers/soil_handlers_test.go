package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"soil-advisor/internal/models"
	"soil-advisor/internal/repository"
	"soil-advisor/internal/services"
	"soil-advisor/internal/weather"
	"soil-advisor/pkg/logging"
	"soil-advisor/pkg/metrics"
)

type stubWeather struct {
	data *models.WeatherData
	err  error
}

func (s stubWeather) Current(ctx context.Context, location string) (*models.WeatherData, error) {
	return s.data, s.err
}

type testServer struct {
	router    http.Handler
	collector *metrics.Collector
}

func newTestServer(t *testing.T, provider weather.Provider) *testServer {
	t.Helper()

	logger := logging.NewNopLogger()
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollectorWithRegistry("test", reg)

	readings := services.NewReadingService(repository.NewMemoryRepository(), logger, collector)
	var weatherSvc *services.WeatherService
	if provider != nil {
		weatherSvc = services.NewWeatherService(provider, logger, collector)
	}

	h := NewSoilHandler(readings, weatherSvc, logger, collector)
	return &testServer{
		router:    NewRouter(h, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), logger, collector),
		collector: collector,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
}

func TestCreateAndListReadings(t *testing.T) {
	srv := newTestServer(t, nil)

	for i, body := range []string{
		`{"nitrogen":2.5,"ph":6.0,"moisture":85,"crop":"rice"}`,
		`{"nitrogen":3.0,"ph":6.8,"moisture":55,"crop":"Wheat"}`,
	} {
		rec := srv.do(t, http.MethodPost, "/api/readings", body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("POST #%d status = %d, body %s", i, rec.Code, rec.Body.String())
		}
	}

	rec := srv.do(t, http.MethodGet, "/api/readings?limit=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}
	var page struct {
		Data       []models.SoilReading `json:"data"`
		Total      int                  `json:"total"`
		TotalPages int                  `json:"total_pages"`
	}
	decode(t, rec, &page)
	if page.Total != 2 || page.TotalPages != 2 || len(page.Data) != 1 {
		t.Errorf("page = %+v", page)
	}
	if page.Data[0].Crop != "wheat" {
		t.Errorf("newest reading crop = %q, want wheat", page.Data[0].Crop)
	}

	rec = srv.do(t, http.MethodGet, "/api/readings/"+page.Data[0].ID, "")
	if rec.Code != http.StatusOK {
		t.Errorf("GET by id status = %d", rec.Code)
	}
}

func TestCreateReadingRejects(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"malformed json", `{"nitrogen":`, ""},
		{"unknown field", `{"nitrogen":2,"ph":6,"moisture":60,"crop":"rice","color":"red"}`, ""},
		{"ph out of range", `{"nitrogen":2,"ph":14.5,"moisture":60,"crop":"rice"}`, "ph must be between 0 and 14"},
		{"missing crop", `{"nitrogen":2,"ph":6,"moisture":60}`, "crop is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, nil)
			rec := srv.do(t, http.MethodPost, "/api/readings", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var errResp ErrorResponse
			decode(t, rec, &errResp)
			if errResp.Code != http.StatusBadRequest {
				t.Errorf("error code = %d", errResp.Code)
			}
			if tt.message != "" && errResp.Message != tt.message {
				t.Errorf("message = %q, want %q", errResp.Message, tt.message)
			}
		})
	}
}

func TestGetReadingNotFound(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := srv.do(t, http.MethodGet, "/api/readings/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if v := testutil.ToFloat64(srv.collector.APIErrorsTotal.WithLabelValues("not_found", "/api/readings/{id}")); v != 1 {
		t.Errorf("api_errors_total{not_found} = %v, want 1", v)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/api/readings/summary", "")
	var empty SummaryResponse
	decode(t, rec, &empty)
	if empty.HasData || empty.Latest != nil || empty.Series == nil || len(empty.Series) != 0 {
		t.Errorf("empty summary = %+v", empty)
	}

	for _, n := range []string{"1.0", "1.1", "1.15"} {
		srv.do(t, http.MethodPost, "/api/readings", fmt.Sprintf(`{"nitrogen":%s,"ph":6.5,"moisture":70,"crop":"beans"}`, n))
	}

	rec = srv.do(t, http.MethodGet, "/api/readings/summary", "")
	var summary SummaryResponse
	decode(t, rec, &summary)
	if !summary.HasData || summary.Count != 3 {
		t.Fatalf("summary = %+v", summary)
	}
	// mean 1.0833... displays as 1.1
	if summary.Averages.Nitrogen != 1.1 {
		t.Errorf("Averages.Nitrogen = %v, want 1.1", summary.Averages.Nitrogen)
	}
	if summary.RawAverages.Nitrogen == 1.1 {
		t.Error("RawAverages.Nitrogen was rounded")
	}
	if summary.Series[0].Index != 1 || summary.Series[0].Nitrogen != 1.0 {
		t.Errorf("Series[0] = %+v", summary.Series[0])
	}
	if summary.Latest.Nitrogen != 1.15 {
		t.Errorf("Latest.Nitrogen = %v, want 1.15", summary.Latest.Nitrogen)
	}
}

func TestLatestDiagnosisEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/api/readings/diagnosis", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"diagnosis":null}` {
		t.Errorf("empty log body = %s", got)
	}

	// deficient nitrogen and acidic soil for rice: 3 + 3 condition products + 4 catalog
	srv.do(t, http.MethodPost, "/api/readings", `{"nitrogen":1.0,"ph":5.0,"moisture":90,"crop":"rice"}`)

	rec = srv.do(t, http.MethodGet, "/api/readings/diagnosis", "")
	var full DiagnosisResponse
	decode(t, rec, &full)
	if len(full.Diagnosis.Fertilizers) != 10 {
		t.Errorf("untruncated fertilizers = %d, want 10", len(full.Diagnosis.Fertilizers))
	}

	rec = srv.do(t, http.MethodGet, "/api/readings/diagnosis?top=5", "")
	var top DiagnosisResponse
	decode(t, rec, &top)
	if len(top.Diagnosis.Fertilizers) != 5 || top.Diagnosis.Fertilizers[0] != "Urea (46-0-0)" {
		t.Errorf("top=5 fertilizers = %v", top.Diagnosis.Fertilizers)
	}
	if len(top.Diagnosis.Pesticides) != 3 {
		t.Errorf("top=5 pesticides = %v", top.Diagnosis.Pesticides)
	}

	rec = srv.do(t, http.MethodGet, "/api/readings/diagnosis?top=0", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("top=0 status = %d, want 400", rec.Code)
	}
}

func TestDiagnoseEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodPost, "/api/diagnose", `{"nitrogen":6,"ph":8,"moisture":95,"crop":"corn"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp DiagnosisResponse
	decode(t, rec, &resp)

	want := []string{"Excess nitrogen for corn", "Soil is too alkaline for corn", "Excess soil moisture for corn"}
	if len(resp.Diagnosis.Alerts) != 3 {
		t.Fatalf("alerts = %v", resp.Diagnosis.Alerts)
	}
	for i := range want {
		if resp.Diagnosis.Alerts[i] != want[i] {
			t.Errorf("alerts[%d] = %q, want %q", i, resp.Diagnosis.Alerts[i], want[i])
		}
	}

	// nothing stored
	rec = srv.do(t, http.MethodGet, "/api/readings", "")
	var page PaginatedResponse
	decode(t, rec, &page)
	if page.Total != 0 {
		t.Errorf("total = %d after ad-hoc diagnose, want 0", page.Total)
	}
}

func TestCropEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/api/crops", "")
	var list struct {
		Data    []models.CropProfile `json:"data"`
		Default models.CropProfile   `json:"default"`
	}
	decode(t, rec, &list)
	if len(list.Data) != 10 || list.Data[0].Crop != "beans" || list.Default.Crop != "default" {
		t.Errorf("crops = %d entries, first %q, default %q", len(list.Data), list.Data[0].Crop, list.Default.Crop)
	}

	tests := []struct {
		crop      string
		wantKnown bool
		wantName  string
	}{
		{"Tomato", true, "tomato"},
		{"quinoa", false, "default"},
	}
	for _, tt := range tests {
		rec := srv.do(t, http.MethodGet, "/api/crops/"+tt.crop, "")
		var crop CropResponse
		decode(t, rec, &crop)
		if crop.Known != tt.wantKnown || crop.Crop != tt.wantName {
			t.Errorf("GET /api/crops/%s = known %v crop %q, want %v %q", tt.crop, crop.Known, crop.Crop, tt.wantKnown, tt.wantName)
		}
	}
}

func TestWeatherEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		provider weather.Provider
		query    string
		want     int
	}{
		{"not configured", nil, "?location=Pune", http.StatusServiceUnavailable},
		{"ok", stubWeather{data: &models.WeatherData{Location: "Pune", Temperature: 25}}, "?location=Pune", http.StatusOK},
		{"missing location", stubWeather{}, "", http.StatusBadRequest},
		{"unknown location", stubWeather{err: weather.ErrLocationNotFound}, "?location=Atlantis", http.StatusNotFound},
		{"upstream down", stubWeather{err: errors.New("timeout")}, "?location=Pune", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.provider)
			rec := srv.do(t, http.MethodGet, "/api/weather"+tt.query, "")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestHealthAndDocs(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("/health status = %d", rec.Code)
	}

	rec = srv.do(t, http.MethodGet, "/api/docs/openapi.json", "")
	var spec map[string]interface{}
	decode(t, rec, &spec)
	paths, _ := spec["paths"].(map[string]interface{})
	for _, p := range []string{"/api/readings", "/api/readings/summary", "/api/readings/diagnosis", "/api/diagnose", "/api/crops", "/api/weather"} {
		if _, ok := paths[p]; !ok {
			t.Errorf("openapi paths missing %s", p)
		}
	}

	rec = srv.do(t, http.MethodGet, "/api/docs", "")
	if !strings.Contains(rec.Body.String(), "Soil Advisor API Documentation") {
		t.Error("/api/docs page missing title")
	}

	rec = srv.do(t, http.MethodGet, "/metrics", "")
	if !strings.Contains(rec.Body.String(), "test_api_requests_total") {
		t.Error("/metrics missing api request counter")
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/health", "")
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("response missing generated request ID")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("request ID = %q, want abc-123", got)
	}

	if v := testutil.ToFloat64(srv.collector.APIRequestsTotal.WithLabelValues("/health", "GET", "200")); v != 2 {
		t.Errorf("api_requests_total{/health} = %v, want 2", v)
	}
}
