package models

import (
	"strconv"
	"time"
)

// Range is a closed numeric interval [Low, High]
type Range struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Contains reports whether v lies within the inclusive bounds
func (r Range) Contains(v float64) bool {
	return v >= r.Low && v <= r.High
}

// String renders the range the way guidance text quotes it, e.g. "2-3.5"
func (r Range) String() string {
	return formatFloat(r.Low) + "-" + formatFloat(r.High)
}

// CropProfile holds the agronomic optimum and product catalogs for one crop
type CropProfile struct {
	Crop        string   `json:"crop"`
	Nitrogen    Range    `json:"nitrogen"`
	PH          Range    `json:"ph"`
	Moisture    Range    `json:"moisture"`
	Fertilizers []string `json:"fertilizers"`
	Pesticides  []string `json:"pesticides"`
}

// Priority ranks a remedial action
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
)

// Action is a prioritized remedial step
type Action struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    Priority `json:"priority"`
}

// Diagnosis is the guidance derived from a single reading.
// Condition-triggered products precede the crop's general catalog.
type Diagnosis struct {
	ReadingID     string   `json:"reading_id,omitempty"`
	Crop          string   `json:"crop"`
	KnownCrop     bool     `json:"known_crop"`
	Alerts        []string `json:"alerts"`
	Confirmations []string `json:"confirmations"`
	Actions       []Action `json:"actions"`
	Fertilizers   []string `json:"fertilizers"`
	Pesticides    []string `json:"pesticides"`
	Tips          []string `json:"tips"`
}

// Top returns a copy with each product list cut to at most n entries, keeping
// condition-triggered products first. n <= 0 returns d unchanged; a nil
// diagnosis stays nil.
func (d *Diagnosis) Top(n int) *Diagnosis {
	if d == nil || n <= 0 {
		return d
	}
	out := *d
	if len(out.Fertilizers) > n {
		out.Fertilizers = out.Fertilizers[:n:n]
	}
	if len(out.Pesticides) > n {
		out.Pesticides = out.Pesticides[:n:n]
	}
	return &out
}

// Averages holds the arithmetic means of the three measured properties
type Averages struct {
	Nitrogen float64 `json:"nitrogen"`
	PH       float64 `json:"ph"`
	Moisture float64 `json:"moisture"`
}

// SeriesPoint is one reading placed on the chronological trend axis
type SeriesPoint struct {
	Index      int       `json:"index"`
	RecordedAt time.Time `json:"recorded_at"`
	Nitrogen   float64   `json:"nitrogen"`
	PH         float64   `json:"ph"`
	Moisture   float64   `json:"moisture"`
}

// Summary aggregates a reading log. Latest is nil when the log is empty.
type Summary struct {
	Latest   *SoilReading  `json:"latest"`
	Count    int           `json:"count"`
	Averages Averages      `json:"averages"`
	Series   []SeriesPoint `json:"series"`
}

// HasData reports whether the summary was built from a non-empty log
func (s Summary) HasData() bool {
	return s.Latest != nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
