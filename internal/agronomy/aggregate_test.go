package agronomy

import (
	"math"
	"reflect"
	"testing"
	"time"

	"soil-advisor/internal/models"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// newestFirst builds a log whose first element is the most recent reading
func newestFirst(values ...[3]float64) []models.SoilReading {
	log := make([]models.SoilReading, len(values))
	for i, v := range values {
		log[i] = models.SoilReading{
			ID:         string(rune('a' + i)),
			RecordedAt: base.Add(-time.Duration(i) * 24 * time.Hour),
			Nitrogen:   v[0],
			PH:         v[1],
			Moisture:   v[2],
			Crop:       "rice",
		}
	}
	return log
}

func TestSummarize_EmptyLog(t *testing.T) {
	s := Summarize(nil)

	if s.HasData() {
		t.Error("HasData() = true, want false")
	}
	if s.Latest != nil {
		t.Errorf("Latest = %+v, want nil", s.Latest)
	}
	if s.Series == nil || len(s.Series) != 0 {
		t.Errorf("Series = %v, want empty non-nil", s.Series)
	}
	if math.IsNaN(s.Averages.Nitrogen) || math.IsNaN(s.Averages.PH) || math.IsNaN(s.Averages.Moisture) {
		t.Errorf("Averages = %+v, want NaN-free", s.Averages)
	}
}

func TestSummarize_SingleReading(t *testing.T) {
	log := newestFirst([3]float64{2.5, 6.5, 40})
	s := Summarize(log)

	if len(s.Series) != 1 {
		t.Fatalf("len(Series) = %d, want 1", len(s.Series))
	}
	want := models.SeriesPoint{Index: 1, RecordedAt: base, Nitrogen: 2.5, PH: 6.5, Moisture: 40}
	if s.Series[0] != want {
		t.Errorf("Series[0] = %+v, want %+v", s.Series[0], want)
	}
	if s.Averages != (models.Averages{Nitrogen: 2.5, PH: 6.5, Moisture: 40}) {
		t.Errorf("Averages = %+v", s.Averages)
	}
}

func TestSummarize_SeriesIsChronological(t *testing.T) {
	log := newestFirst(
		[3]float64{4.0, 7.0, 60},
		[3]float64{3.0, 6.5, 55},
		[3]float64{2.0, 6.0, 50},
	)
	s := Summarize(log)

	if s.Count != 3 {
		t.Errorf("Count = %d, want 3", s.Count)
	}
	if s.Latest == nil || s.Latest.ID != log[0].ID {
		t.Errorf("Latest = %+v, want %+v", s.Latest, log[0])
	}
	if len(s.Series) != len(log) {
		t.Fatalf("len(Series) = %d, want %d", len(s.Series), len(log))
	}

	for i, p := range s.Series {
		src := log[len(log)-1-i]
		if p.Index != i+1 {
			t.Errorf("Series[%d].Index = %d, want %d", i, p.Index, i+1)
		}
		if !p.RecordedAt.Equal(src.RecordedAt) || p.Nitrogen != src.Nitrogen || p.PH != src.PH || p.Moisture != src.Moisture {
			t.Errorf("Series[%d] = %+v, want values of %+v", i, p, src)
		}
	}
	if !s.Series[0].RecordedAt.Before(s.Series[2].RecordedAt) {
		t.Error("Series[0] should be the oldest reading")
	}
}

func TestSummarize_Averages(t *testing.T) {
	tests := []struct {
		name        string
		log         []models.SoilReading
		wantRaw     models.Averages
		wantRounded models.Averages
	}{
		{
			name:        "two nitrogen values",
			log:         newestFirst([3]float64{2.0, 6.0, 60}, [3]float64{4.0, 7.0, 70}),
			wantRaw:     models.Averages{Nitrogen: 3.0, PH: 6.5, Moisture: 65},
			wantRounded: models.Averages{Nitrogen: 3.0, PH: 6.5, Moisture: 65},
		},
		{
			name:        "repeating thirds",
			log:         newestFirst([3]float64{1, 6, 10}, [3]float64{1, 6, 10}, [3]float64{2, 7, 11}),
			wantRaw:     models.Averages{Nitrogen: 4.0 / 3, PH: 19.0 / 3, Moisture: 31.0 / 3},
			wantRounded: models.Averages{Nitrogen: 1.3, PH: 6.3, Moisture: 10.3},
		},
		{
			name:        "half rounds away from zero",
			log:         newestFirst([3]float64{2.0, 6.0, 50}, [3]float64{2.5, 6.5, 50.5}),
			wantRaw:     models.Averages{Nitrogen: 2.25, PH: 6.25, Moisture: 50.25},
			wantRounded: models.Averages{Nitrogen: 2.3, PH: 6.3, Moisture: 50.3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summarize(tt.log)
			if !closeTo(s.Averages, tt.wantRaw) {
				t.Errorf("Averages = %+v, want %+v", s.Averages, tt.wantRaw)
			}
			if got := RoundAverages(s.Averages); got != tt.wantRounded {
				t.Errorf("RoundAverages() = %+v, want %+v", got, tt.wantRounded)
			}
		})
	}
}

func TestSummarize_DoesNotMutateLog(t *testing.T) {
	log := newestFirst([3]float64{1, 6, 10}, [3]float64{2, 7, 20})
	snapshot := append([]models.SoilReading(nil), log...)

	first := Summarize(log)
	second := Summarize(log)

	if !reflect.DeepEqual(log, snapshot) {
		t.Error("Summarize reordered or modified its input")
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Summarize not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestRound1(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{3.0, 3.0},
		{3.04, 3.0},
		{3.05, 3.1},
		{3.25, 3.3},
		{-1.25, -1.3},
		{0, 0},
	}
	for _, tt := range tests {
		if got := Round1(tt.in); got != tt.want {
			t.Errorf("Round1(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func closeTo(a, b models.Averages) bool {
	const eps = 1e-9
	return math.Abs(a.Nitrogen-b.Nitrogen) < eps &&
		math.Abs(a.PH-b.PH) < eps &&
		math.Abs(a.Moisture-b.Moisture) < eps
}
