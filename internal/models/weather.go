package models

import "time"

// WeatherData is the current conditions for a grower's location
type WeatherData struct {
	Location    string    `json:"location"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	FetchedAt   time.Time `json:"fetched_at"`
	// Cached is set when the value was served from the last good lookup
	Cached bool `json:"cached"`
}

// WeatherReport pairs current conditions with field-work advice
type WeatherReport struct {
	Weather *WeatherData `json:"weather"`
	Tips    []string     `json:"tips"`
}
