package repository

import (
	"context"
	"fmt"
	"sync"

	"soil-advisor/internal/models"
)

// memoryRepository keeps the log in process memory. Index 0 is the newest reading.
type memoryRepository struct {
	mu       sync.RWMutex
	readings []models.SoilReading
	ids      map[string]struct{}
}

// NewMemoryRepository creates an empty in-process reading log
func NewMemoryRepository() ReadingRepository {
	return &memoryRepository{
		ids: make(map[string]struct{}),
	}
}

func (r *memoryRepository) Append(ctx context.Context, reading *models.SoilReading) error {
	return r.AppendBatch(ctx, []*models.SoilReading{reading})
}

func (r *memoryRepository) AppendBatch(ctx context.Context, readings []*models.SoilReading) error {
	if len(readings) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(readings))
	for _, reading := range readings {
		if _, dup := r.ids[reading.ID]; dup {
			return fmt.Errorf("failed to append reading: duplicate id %s", reading.ID)
		}
		if _, dup := seen[reading.ID]; dup {
			return fmt.Errorf("failed to append reading: duplicate id %s", reading.ID)
		}
		seen[reading.ID] = struct{}{}
	}

	front := make([]models.SoilReading, 0, len(readings)+len(r.readings))
	for i := len(readings) - 1; i >= 0; i-- {
		front = append(front, *readings[i])
		r.ids[readings[i].ID] = struct{}{}
	}
	r.readings = append(front, r.readings...)

	return nil
}

func (r *memoryRepository) List(ctx context.Context, filter ReadingFilter) ([]models.SoilReading, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]models.SoilReading, 0, len(r.readings))
	for _, reading := range r.readings {
		if filter.Crop != nil && reading.Crop != models.NormalizeCrop(*filter.Crop) {
			continue
		}
		matched = append(matched, reading)
	}
	total := len(matched)

	if filter.Limit > 0 {
		start := min(max(filter.Offset, 0), total)
		end := min(start+filter.Limit, total)
		matched = matched[start:end]
	}

	return matched, total, nil
}

func (r *memoryRepository) All(ctx context.Context) ([]models.SoilReading, error) {
	readings, _, err := r.List(ctx, ReadingFilter{})
	return readings, err
}

func (r *memoryRepository) Latest(ctx context.Context) (*models.SoilReading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.readings) == 0 {
		return nil, &NotFoundError{Resource: "soil_reading", ID: "latest"}
	}
	latest := r.readings[0]
	return &latest, nil
}

func (r *memoryRepository) Get(ctx context.Context, id string) (*models.SoilReading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, reading := range r.readings {
		if reading.ID == id {
			found := reading
			return &found, nil
		}
	}
	return nil, &NotFoundError{Resource: "soil_reading", ID: id}
}

func (r *memoryRepository) HealthCheck(ctx context.Context) error {
	return nil
}
