package weather

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"soil-advisor/internal/models"
	"soil-advisor/pkg/logging"
	"soil-advisor/pkg/metrics"
)

// BreakerSettings tunes the upstream circuit breaker
type BreakerSettings struct {
	// Failures is the number of consecutive failures that opens the breaker
	Failures int
	// OpenFor is how long the breaker stays open before a trial request
	OpenFor time.Duration
}

// CachedProvider guards an upstream Provider with a circuit breaker and
// falls back to the last good observation per location.
type CachedProvider struct {
	upstream Provider
	breaker  *gobreaker.CircuitBreaker
	ttl      time.Duration
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
	now      func() time.Time

	mu    sync.RWMutex
	cache map[string]models.WeatherData
}

// NewCachedProvider wraps upstream. A stale value older than ttl is not
// served; ttl <= 0 keeps the last good value indefinitely.
func NewCachedProvider(upstream Provider, ttl time.Duration, settings BreakerSettings, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *CachedProvider {
	fails := settings.Failures
	if fails < 1 {
		fails = 1
	}

	p := &CachedProvider{
		upstream: upstream,
		ttl:      ttl,
		logger:   logger,
		metrics:  metricsCollector,
		now:      func() time.Time { return time.Now().UTC() },
		cache:    make(map[string]models.WeatherData),
	}

	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "weather-upstream",
		Timeout: settings.OpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(fails)
		},
		// an unknown location is the caller's mistake, not an upstream outage
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrLocationNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metricsCollector.SetWeatherBreakerState(to.String())
			logger.Warn(context.Background(), "[WEATHER_BREAKER] Circuit breaker state changed", logging.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})
	metricsCollector.SetWeatherBreakerState(gobreaker.StateClosed.String())

	return p
}

// Current returns live conditions, or the cached value marked Cached=true
// when the upstream fails or the breaker is open.
func (p *CachedProvider) Current(ctx context.Context, location string) (*models.WeatherData, error) {
	key := strings.ToLower(strings.TrimSpace(location))
	if key == "" {
		return nil, fmt.Errorf("empty location")
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.upstream.Current(ctx, location)
	})
	if err == nil {
		data := result.(*models.WeatherData)
		p.mu.Lock()
		p.cache[key] = *data
		p.mu.Unlock()

		p.metrics.RecordWeatherLookup("live")
		return data, nil
	}

	if errors.Is(err, ErrLocationNotFound) {
		p.metrics.RecordWeatherLookup("failed")
		return nil, err
	}

	if cached, ok := p.lookupCache(key); ok {
		p.metrics.RecordWeatherLookup("cached")
		p.logger.Warn(ctx, "[WEATHER_FALLBACK] Serving cached weather", logging.Fields{
			"location":   location,
			"fetched_at": cached.FetchedAt,
			"error":      err.Error(),
		})
		return cached, nil
	}

	p.metrics.RecordWeatherLookup("failed")
	return nil, fmt.Errorf("weather unavailable for %s: %w", location, err)
}

// State reports the breaker state, e.g. "closed" or "open"
func (p *CachedProvider) State() string {
	return p.breaker.State().String()
}

func (p *CachedProvider) lookupCache(key string) (*models.WeatherData, bool) {
	p.mu.RLock()
	data, ok := p.cache[key]
	p.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if p.ttl > 0 && p.now().Sub(data.FetchedAt) > p.ttl {
		return nil, false
	}

	data.Cached = true
	return &data, true
}
