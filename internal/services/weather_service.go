package services

import (
	"context"
	"fmt"
	"strings"

	"soil-advisor/internal/models"
	"soil-advisor/internal/weather"
	"soil-advisor/pkg/logging"
	"soil-advisor/pkg/metrics"
)

// WeatherService serves current conditions with farming advice
type WeatherService struct {
	provider weather.Provider
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
}

// NewWeatherService creates a new weather service
func NewWeatherService(provider weather.Provider, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *WeatherService {
	return &WeatherService{
		provider: provider,
		logger:   logger,
		metrics:  metricsCollector,
	}
}

// Current looks up the weather for location and attaches farming tips
func (s *WeatherService) Current(ctx context.Context, location string) (*models.WeatherReport, error) {
	if strings.TrimSpace(location) == "" {
		s.metrics.RecordWeatherLookup("rejected")
		return nil, &models.ValidationError{
			Field:   "location",
			Message: "location is required",
		}
	}

	data, err := s.provider.Current(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to get weather: %w", err)
	}

	s.logger.Debug(ctx, "[WEATHER_LOOKUP] Weather retrieved", logging.Fields{
		"location": data.Location,
		"cached":   data.Cached,
	})

	return &models.WeatherReport{
		Weather: data,
		Tips:    weather.FarmingTips(data),
	}, nil
}
