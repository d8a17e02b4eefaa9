package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"soil-advisor/internal/models"
	"soil-advisor/pkg/logging"
	"soil-advisor/pkg/metrics"
)

// csvColumns is the expected column order of an import file
var csvColumns = []string{"recorded_at", "nitrogen", "ph", "moisture", "crop"}

// IngestionService handles bulk import of reading files
type IngestionService struct {
	readings *ReadingService
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
}

// IngestionResult contains ingestion statistics
type IngestionResult struct {
	TotalFiles        int
	TotalRecords      int
	SuccessfulRecords int
	FailedRecords     int
	Duration          time.Duration
	Errors            []string
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(readings *ReadingService, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *IngestionService {
	return &IngestionService{
		readings: readings,
		logger:   logger,
		metrics:  metricsCollector,
	}
}

// IngestDirectory imports every *.csv file in dataDir in lexical order
func (s *IngestionService) IngestDirectory(ctx context.Context, dataDir string, batchSize int) (*IngestionResult, error) {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no data files found in %s", dataDir)
	}

	return s.IngestFiles(ctx, files, batchSize)
}

// IngestFiles imports the given CSV files; a failing file is recorded and skipped
func (s *IngestionService) IngestFiles(ctx context.Context, files []string, batchSize int) (*IngestionResult, error) {
	startTime := time.Now()
	ctx = logging.WithSource(ctx, "csv")

	s.logger.Info(ctx, "[INGEST_START] Starting reading import", logging.Fields{
		"file_count": len(files),
		"batch_size": batchSize,
		"stage":      "INITIALIZATION",
	})

	result := &IngestionResult{
		TotalFiles: len(files),
		Errors:     make([]string, 0),
	}

	for _, filePath := range files {
		fileResult, err := s.ingestFile(ctx, filePath, batchSize)
		if err != nil {
			errMsg := fmt.Sprintf("failed to ingest %s: %v", filePath, err)
			result.Errors = append(result.Errors, errMsg)
			s.logger.Error(ctx, "[INGEST_FILE_ERROR] File ingestion failed", logging.Fields{
				"file_path": filePath,
				"stage":     "FILE_PROCESSING",
			}, err)
			s.metrics.RecordIngestionError("file_error")
			continue
		}

		result.TotalRecords += fileResult.TotalRecords
		result.SuccessfulRecords += fileResult.SuccessfulRecords
		result.FailedRecords += fileResult.FailedRecords
		result.Errors = append(result.Errors, fileResult.Errors...)

		s.logger.Info(ctx, "[INGEST_FILE_SUCCESS] File ingested", logging.Fields{
			"file_path":          filePath,
			"total_records":      fileResult.TotalRecords,
			"successful_records": fileResult.SuccessfulRecords,
			"failed_records":     fileResult.FailedRecords,
			"stage":              "FILE_COMPLETE",
		})
	}

	result.Duration = time.Since(startTime)
	s.metrics.IngestionDuration.Observe(result.Duration.Seconds())

	s.logger.Info(ctx, "[INGEST_COMPLETE] Reading import completed", logging.Fields{
		"total_files":        result.TotalFiles,
		"total_records":      result.TotalRecords,
		"successful_records": result.SuccessfulRecords,
		"failed_records":     result.FailedRecords,
		"duration_seconds":   result.Duration.Seconds(),
		"error_count":        len(result.Errors),
		"stage":              "COMPLETE",
	})

	return result, nil
}

// FileIngestionResult contains per-file ingestion statistics
type FileIngestionResult struct {
	TotalRecords      int
	SuccessfulRecords int
	FailedRecords     int
	Errors            []string
}

func (s *IngestionService) ingestFile(ctx context.Context, filePath string, batchSize int) (*FileIngestionResult, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return s.IngestCSV(ctx, file, filepath.Base(filePath), batchSize)
}

// IngestCSV imports rows of recorded_at,nitrogen,ph,moisture,crop from r.
// A header row is optional. Rows are appended in file order, so the last row
// becomes the newest reading. Invalid rows are counted and skipped; a storage
// failure aborts the import.
func (s *IngestionService) IngestCSV(ctx context.Context, r io.Reader, name string, batchSize int) (*FileIngestionResult, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(csvColumns)
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	result := &FileIngestionResult{Errors: make([]string, 0)}
	batch := make([]*models.SoilReading, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.readings.RecordBatch(ctx, batch); err != nil {
			return fmt.Errorf("failed to insert batch: %w", err)
		}
		result.SuccessfulRecords += len(batch)
		batch = batch[:0]
		return nil
	}

	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}

		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return nil, fmt.Errorf("error reading %s: %w", name, err)
			}
			first = false
			result.TotalRecords++
			result.FailedRecords++
			result.Errors = append(result.Errors, fmt.Sprintf("%s:%d: %v", name, perr.Line, perr.Err))
			s.metrics.RecordIngestionError("parse_error")
			continue
		}

		header := first && isHeader(record)
		first = false
		if header {
			continue
		}
		result.TotalRecords++
		line, _ := reader.FieldPos(0)

		input, err := parseRecord(record)
		if err != nil {
			result.FailedRecords++
			result.Errors = append(result.Errors, fmt.Sprintf("%s:%d: %v", name, line, err))
			s.metrics.RecordIngestionError("parse_error")
			continue
		}

		reading, err := s.readings.Prepare(ctx, input)
		if err != nil {
			result.FailedRecords++
			result.Errors = append(result.Errors, fmt.Sprintf("%s:%d: %v", name, line, err))
			s.metrics.RecordIngestionError("validation_error")
			continue
		}

		batch = append(batch, reading)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}

	if err := flush(); err != nil {
		return nil, err
	}

	return result, nil
}

func isHeader(record []string) bool {
	return strings.EqualFold(strings.TrimSpace(record[0]), csvColumns[0])
}

// parseRecord converts one CSV row into a ReadingInput. An empty recorded_at
// means the reading is stamped at import time.
func parseRecord(record []string) (*models.ReadingInput, error) {
	input := &models.ReadingInput{Crop: record[4]}

	if ts := strings.TrimSpace(record[0]); ts != "" {
		at, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("invalid recorded_at: %w", err)
		}
		input.RecordedAt = &at
	}

	values := []**float64{&input.Nitrogen, &input.PH, &input.Moisture}
	for i, dst := range values {
		raw := strings.TrimSpace(record[i+1])
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", csvColumns[i+1], err)
		}
		*dst = &v
	}

	return input, nil
}
