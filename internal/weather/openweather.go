// Package weather looks up current conditions for a grower's location.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"soil-advisor/internal/models"
)

// Provider returns current weather for a free-form location query
type Provider interface {
	Current(ctx context.Context, location string) (*models.WeatherData, error)
}

// ErrLocationNotFound is returned when the upstream does not know the location
var ErrLocationNotFound = errors.New("location not found")

// OpenWeatherClient queries the OpenWeatherMap current-weather endpoint
type OpenWeatherClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	now     func() time.Time
}

// NewOpenWeatherClient creates a client; timeout bounds each request
func NewOpenWeatherClient(baseURL, apiKey string, timeout time.Duration) *OpenWeatherClient {
	return &OpenWeatherClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type owmCurrent struct {
	Name string `json:"name"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
}

// Current fetches conditions in metric units
func (c *OpenWeatherClient) Current(ctx context.Context, location string) (*models.WeatherData, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("empty location")
	}
	if c.apiKey == "" {
		return nil, fmt.Errorf("missing api key")
	}

	q := url.Values{}
	q.Set("q", location)
	q.Set("units", "metric")
	q.Set("appid", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build weather request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrLocationNotFound, location)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("owm status %d: %s", resp.StatusCode, string(b))
	}

	var out owmCurrent
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode weather response: %w", err)
	}

	data := &models.WeatherData{
		Location:    out.Name,
		Temperature: out.Main.Temp,
		Humidity:    out.Main.Humidity,
		FetchedAt:   c.now(),
	}
	if data.Location == "" {
		data.Location = location
	}
	if len(out.Weather) > 0 {
		data.Description = out.Weather[0].Description
		data.Icon = out.Weather[0].Icon
	}

	return data, nil
}
