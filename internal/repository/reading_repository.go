package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"soil-advisor/internal/models"
	"soil-advisor/pkg/database"
	"soil-advisor/pkg/logging"
	"soil-advisor/pkg/metrics"
)

// ReadingRepository stores the append-only soil reading log.
// Every read returns readings newest first.
type ReadingRepository interface {
	Append(ctx context.Context, reading *models.SoilReading) error
	AppendBatch(ctx context.Context, readings []*models.SoilReading) error

	List(ctx context.Context, filter ReadingFilter) ([]models.SoilReading, int, error)
	All(ctx context.Context) ([]models.SoilReading, error)
	Latest(ctx context.Context) (*models.SoilReading, error)
	Get(ctx context.Context, id string) (*models.SoilReading, error)

	HealthCheck(ctx context.Context) error
}

// ReadingFilter defines filters for querying the log.
// A non-positive Limit disables pagination.
type ReadingFilter struct {
	Crop   *string
	Limit  int
	Offset int
}

const readingColumns = `id, recorded_at, nitrogen, ph, moisture, crop, created_at`

// sqlRepository implements ReadingRepository on pkg/database
type sqlRepository struct {
	db      *database.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewSQLRepository creates a repository backed by Postgres or SQLite
func NewSQLRepository(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) ReadingRepository {
	return &sqlRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

const insertReading = `
	INSERT INTO soil_readings (` + readingColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?)
`

// Append adds a reading at the front of the log
func (r *sqlRepository) Append(ctx context.Context, reading *models.SoilReading) error {
	_, err := r.db.ExecContext(ctx, "insert_reading", insertReading,
		reading.ID,
		reading.RecordedAt.UTC(),
		reading.Nitrogen,
		reading.PH,
		reading.Moisture,
		reading.Crop,
		reading.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append reading: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_APPEND] Reading appended", logging.Fields{
		"reading_id": reading.ID,
		"crop":       reading.Crop,
	})

	return nil
}

// AppendBatch appends readings in order inside a single transaction;
// the last element ends up newest.
func (r *sqlRepository) AppendBatch(ctx context.Context, readings []*models.SoilReading) error {
	if len(readings) == 0 {
		return nil
	}

	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		r.metrics.IngestionBatchSize.Observe(float64(len(readings)))
		r.logger.Debug(ctx, "[REPO_BATCH_INSERT] Batch insert completed", logging.Fields{
			"count":       len(readings),
			"duration_ms": duration.Milliseconds(),
		})
	}()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, tx.Rebind(insertReading))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, reading := range readings {
		_, err := stmt.ExecContext(ctx,
			reading.ID,
			reading.RecordedAt.UTC(),
			reading.Nitrogen,
			reading.PH,
			reading.Moisture,
			reading.Crop,
			reading.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert reading %s: %w", reading.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// List returns a page of the log with the total matching count
func (r *sqlRepository) List(ctx context.Context, filter ReadingFilter) ([]models.SoilReading, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}

	if filter.Crop != nil {
		where += ` AND crop = ?`
		args = append(args, models.NormalizeCrop(*filter.Crop))
	}

	var totalCount int
	err := r.db.GetContext(ctx, "count_readings", &totalCount, `SELECT COUNT(*) FROM soil_readings`+where, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count readings: %w", err)
	}

	query := `SELECT ` + readingColumns + ` FROM soil_readings` + where + ` ORDER BY seq DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	readings := []models.SoilReading{}
	if err := r.db.SelectContext(ctx, "list_readings", &readings, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list readings: %w", err)
	}

	return readings, totalCount, nil
}

// All returns the entire log newest first
func (r *sqlRepository) All(ctx context.Context) ([]models.SoilReading, error) {
	readings, _, err := r.List(ctx, ReadingFilter{})
	return readings, err
}

// Latest returns the newest reading
func (r *sqlRepository) Latest(ctx context.Context) (*models.SoilReading, error) {
	query := `SELECT ` + readingColumns + ` FROM soil_readings ORDER BY seq DESC LIMIT 1`

	var reading models.SoilReading
	err := r.db.GetContext(ctx, "latest_reading", &reading, query)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{
			Resource: "soil_reading",
			ID:       "latest",
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest reading: %w", err)
	}

	return &reading, nil
}

// Get returns one reading by ID
func (r *sqlRepository) Get(ctx context.Context, id string) (*models.SoilReading, error) {
	query := `SELECT ` + readingColumns + ` FROM soil_readings WHERE id = ?`

	var reading models.SoilReading
	err := r.db.GetContext(ctx, "get_reading", &reading, query, id)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{
			Resource: "soil_reading",
			ID:       id,
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reading: %w", err)
	}

	return &reading, nil
}

// HealthCheck performs a repository health check
func (r *sqlRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
