package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"soil-advisor/internal/models"
	"soil-advisor/internal/repository"
	"soil-advisor/pkg/logging"
	"soil-advisor/pkg/metrics"
)

var testNow = time.Date(2024, 4, 10, 7, 30, 0, 0, time.UTC)

func newTestReadingService() (*ReadingService, repository.ReadingRepository, *metrics.Collector) {
	repo := repository.NewMemoryRepository()
	collector := metrics.NewCollectorWithRegistry("test", prometheus.NewRegistry())
	svc := NewReadingService(repo, logging.NewNopLogger(), collector)

	seq := 0
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	svc.now = func() time.Time { return testNow }
	return svc, repo, collector
}

func f(v float64) *float64 { return &v }

func input(n, ph, m float64, crop string) *models.ReadingInput {
	return &models.ReadingInput{Nitrogen: f(n), PH: f(ph), Moisture: f(m), Crop: crop}
}

func TestRecord(t *testing.T) {
	svc, repo, collector := newTestReadingService()
	ctx := logging.WithSource(context.Background(), "api")

	got, err := svc.Record(ctx, input(2.5, 6.0, 85, " Rice "))
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if got.ID != "id-1" || got.Crop != "rice" || !got.RecordedAt.Equal(testNow) {
		t.Errorf("Record() = %+v", got)
	}

	latest, err := repo.Latest(ctx)
	if err != nil || latest.ID != "id-1" {
		t.Fatalf("repo.Latest() = %v, %v; want id-1", latest, err)
	}

	if v := testutil.ToFloat64(collector.ReadingsRecordedTotal.WithLabelValues("rice", "api")); v != 1 {
		t.Errorf("readings_recorded_total{rice,api} = %v, want 1", v)
	}
}

func TestRecordRejectsInvalidInput(t *testing.T) {
	svc, repo, collector := newTestReadingService()
	ctx := context.Background()

	_, err := svc.Record(ctx, input(2.5, 14.5, 85, "rice"))
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Record() error = %v, want ValidationError", err)
	}
	if verr.Field != "ph" {
		t.Errorf("ValidationError.Field = %q, want ph", verr.Field)
	}

	all, _ := repo.All(ctx)
	if len(all) != 0 {
		t.Errorf("log length = %d, want 0", len(all))
	}
	if v := testutil.ToFloat64(collector.ReadingsRejectedTotal.WithLabelValues("ph")); v != 1 {
		t.Errorf("readings_rejected_total{ph} = %v, want 1", v)
	}
}

func TestRecordUnknownCropMetricLabel(t *testing.T) {
	svc, _, collector := newTestReadingService()

	if _, err := svc.Record(context.Background(), input(3, 6.5, 70, "quinoa")); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if v := testutil.ToFloat64(collector.ReadingsRecordedTotal.WithLabelValues("other", "unknown")); v != 1 {
		t.Errorf("readings_recorded_total{other,unknown} = %v, want 1", v)
	}
}

func TestSummary(t *testing.T) {
	svc, _, _ := newTestReadingService()
	ctx := context.Background()

	empty, err := svc.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if empty.HasData() || empty.Count != 0 || len(empty.Series) != 0 {
		t.Errorf("Summary() on empty log = %+v", empty)
	}

	for _, n := range []float64{1.0, 2.0, 4.0} {
		if _, err := svc.Record(ctx, input(n, 6.5, 70, "wheat")); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	summary, err := svc.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if summary.Count != 3 {
		t.Errorf("Count = %d, want 3", summary.Count)
	}
	if summary.Latest == nil || summary.Latest.Nitrogen != 4.0 {
		t.Errorf("Latest = %+v, want nitrogen 4", summary.Latest)
	}
	if got, want := summary.Averages.Nitrogen, 7.0/3.0; got != want {
		t.Errorf("Averages.Nitrogen = %v, want %v", got, want)
	}
	if summary.Series[0].Nitrogen != 1.0 || summary.Series[2].Nitrogen != 4.0 {
		t.Errorf("Series not oldest first: %+v", summary.Series)
	}
}

func TestLatestDiagnosis(t *testing.T) {
	svc, _, collector := newTestReadingService()
	ctx := context.Background()

	d, err := svc.LatestDiagnosis(ctx)
	if err != nil {
		t.Fatalf("LatestDiagnosis() on empty log error = %v", err)
	}
	if d != nil {
		t.Errorf("LatestDiagnosis() on empty log = %+v, want nil", d)
	}

	svc.Record(ctx, input(3.0, 6.0, 90, "rice"))
	svc.Record(ctx, input(1.5, 5.0, 70, "rice"))

	d, err = svc.LatestDiagnosis(ctx)
	if err != nil {
		t.Fatalf("LatestDiagnosis() error = %v", err)
	}
	if d.ReadingID != "id-2" {
		t.Errorf("ReadingID = %q, want id-2", d.ReadingID)
	}
	wantAlerts := []string{
		"Low nitrogen levels for rice",
		"Soil is too acidic for rice",
		"Low soil moisture for rice",
	}
	if len(d.Alerts) != len(wantAlerts) {
		t.Fatalf("Alerts = %v, want %v", d.Alerts, wantAlerts)
	}
	for i := range wantAlerts {
		if d.Alerts[i] != wantAlerts[i] {
			t.Errorf("Alerts[%d] = %q, want %q", i, d.Alerts[i], wantAlerts[i])
		}
	}

	if v := testutil.ToFloat64(collector.DiagnosesTotal.WithLabelValues("rice", "false")); v != 1 {
		t.Errorf("diagnoses_total{rice,false} = %v, want 1", v)
	}
	if v := testutil.ToFloat64(collector.FindingsTotal.WithLabelValues("ph", "deficient")); v != 1 {
		t.Errorf("findings_total{ph,deficient} = %v, want 1", v)
	}
}

func TestDiagnoseAdHoc(t *testing.T) {
	svc, repo, collector := newTestReadingService()
	ctx := context.Background()

	d, err := svc.Diagnose(ctx, input(3.0, 6.5, 70, "mystery"))
	if err != nil {
		t.Fatalf("Diagnose() error = %v", err)
	}
	if d.KnownCrop {
		t.Error("KnownCrop = true for unknown crop")
	}
	if len(d.Alerts) != 0 || len(d.Confirmations) != 3 {
		t.Errorf("Diagnose() alerts=%v confirmations=%v, want all optimal against default profile", d.Alerts, d.Confirmations)
	}
	if v := testutil.ToFloat64(collector.DiagnosesTotal.WithLabelValues("default", "true")); v != 1 {
		t.Errorf("diagnoses_total{default,true} = %v, want 1", v)
	}

	all, _ := repo.All(ctx)
	if len(all) != 0 {
		t.Errorf("Diagnose() stored %d readings, want 0", len(all))
	}

	if _, err := svc.Diagnose(ctx, &models.ReadingInput{Crop: "rice"}); err == nil {
		t.Error("Diagnose() with missing values error = nil, want ValidationError")
	}
}

func TestHistory(t *testing.T) {
	svc, _, _ := newTestReadingService()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		svc.Record(ctx, input(float64(i), 6.5, 70, "corn"))
	}

	page, total, err := svc.History(ctx, repository.ReadingFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(page) != 2 || page[0].ID != "id-4" || page[1].ID != "id-3" {
		t.Errorf("History() page = %+v", page)
	}

	got, err := svc.Get(ctx, "id-2")
	if err != nil || got.Nitrogen != 1 {
		t.Errorf("Get(id-2) = %+v, %v", got, err)
	}
}
