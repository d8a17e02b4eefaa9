package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"soil-advisor/internal/agronomy"
	"soil-advisor/internal/models"
	"soil-advisor/internal/repository"
	"soil-advisor/pkg/logging"
	"soil-advisor/pkg/metrics"
)

// ReadingService records readings and runs the agronomy engines over the log
type ReadingService struct {
	repo    repository.ReadingRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector

	newID func() string
	now   func() time.Time
}

// NewReadingService creates a new reading service
func NewReadingService(repo repository.ReadingRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *ReadingService {
	return &ReadingService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
		newID:   uuid.NewString,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Prepare validates input and builds a reading with a fresh ID without storing it.
// Rejections are counted per field.
func (s *ReadingService) Prepare(ctx context.Context, in *models.ReadingInput) (*models.SoilReading, error) {
	reading, err := in.ToReading(s.newID(), s.now())
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			s.metrics.RecordRejection(verr.Field)
			s.logger.Warn(ctx, "[READING_REJECTED] Reading input failed validation", logging.Fields{
				"field":   verr.Field,
				"value":   verr.Value,
				"message": verr.Message,
			})
		}
		return nil, err
	}
	return reading, nil
}

// Record validates input and appends it to the front of the log
func (s *ReadingService) Record(ctx context.Context, in *models.ReadingInput) (*models.SoilReading, error) {
	reading, err := s.Prepare(ctx, in)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Append(ctx, reading); err != nil {
		return nil, fmt.Errorf("failed to record reading: %w", err)
	}

	s.metrics.RecordReading(cropLabel(reading.Crop), logging.Source(ctx))
	s.logger.Info(ctx, "[READING_RECORDED] Soil reading recorded", logging.Fields{
		"reading_id": reading.ID,
		"crop":       reading.Crop,
		"nitrogen":   reading.Nitrogen,
		"ph":         reading.PH,
		"moisture":   reading.Moisture,
	})

	return reading, nil
}

// RecordBatch appends prepared readings in order; the last one becomes the newest
func (s *ReadingService) RecordBatch(ctx context.Context, readings []*models.SoilReading) error {
	if len(readings) == 0 {
		return nil
	}

	if err := s.repo.AppendBatch(ctx, readings); err != nil {
		return fmt.Errorf("failed to record batch: %w", err)
	}

	source := logging.Source(ctx)
	for _, reading := range readings {
		s.metrics.RecordReading(cropLabel(reading.Crop), source)
	}

	return nil
}

// History returns a page of the log, newest first, with the total count
func (s *ReadingService) History(ctx context.Context, filter repository.ReadingFilter) ([]models.SoilReading, int, error) {
	return s.repo.List(ctx, filter)
}

// Get returns one reading by ID
func (s *ReadingService) Get(ctx context.Context, id string) (*models.SoilReading, error) {
	return s.repo.Get(ctx, id)
}

// Summary aggregates the entire log
func (s *ReadingService) Summary(ctx context.Context) (models.Summary, error) {
	timer := s.metrics.NewTimer(s.metrics.SummaryDuration)

	log, err := s.repo.All(ctx)
	if err != nil {
		return models.Summary{}, fmt.Errorf("failed to load reading log: %w", err)
	}

	summary := agronomy.Summarize(log)
	s.metrics.SummaryLogLength.Observe(float64(summary.Count))

	duration := timer.ObserveDuration()
	s.logger.Debug(ctx, "[SUMMARY_COMPUTED] Reading log summarized", logging.Fields{
		"count":       summary.Count,
		"duration_ms": duration.Milliseconds(),
	})

	return summary, nil
}

// LatestDiagnosis diagnoses the newest reading. It returns nil, nil when the log is empty.
func (s *ReadingService) LatestDiagnosis(ctx context.Context) (*models.Diagnosis, error) {
	latest, err := s.repo.Latest(ctx)
	if err != nil {
		var nf *repository.NotFoundError
		if errors.As(err, &nf) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load latest reading: %w", err)
	}

	return s.diagnose(ctx, latest), nil
}

// Diagnose evaluates an ad-hoc reading without storing it
func (s *ReadingService) Diagnose(ctx context.Context, in *models.ReadingInput) (*models.Diagnosis, error) {
	reading, err := in.ToReading("", s.now())
	if err != nil {
		return nil, err
	}
	return s.diagnose(ctx, reading), nil
}

func (s *ReadingService) diagnose(ctx context.Context, reading *models.SoilReading) *models.Diagnosis {
	diagnosis := agronomy.Diagnose(reading)

	profile, known := agronomy.Lookup(reading.Crop)
	s.metrics.RecordDiagnosis(profile.Crop, !known)
	for _, f := range agronomy.Evaluate(reading, profile) {
		s.metrics.RecordFinding(string(f.Property), f.Level.String())
	}

	s.logger.Debug(ctx, "[DIAGNOSIS] Reading diagnosed", logging.Fields{
		"reading_id": reading.ID,
		"crop":       reading.Crop,
		"known_crop": known,
		"alerts":     len(diagnosis.Alerts),
		"actions":    len(diagnosis.Actions),
	})

	return diagnosis
}

// HealthCheck reports whether the reading log is reachable
func (s *ReadingService) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}

// cropLabel keeps metric cardinality bounded to the knowledge base
func cropLabel(crop string) string {
	if _, known := agronomy.Lookup(crop); known {
		return models.NormalizeCrop(crop)
	}
	return "other"
}
