package models

import (
	"strings"
	"time"
)

// SoilReading represents one sensor capture for a crop.
// Readings are immutable once created; the log only ever grows at the front.
type SoilReading struct {
	ID         string    `json:"id" db:"id"`
	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
	Nitrogen   float64   `json:"nitrogen" db:"nitrogen"`
	PH         float64   `json:"ph" db:"ph"`
	Moisture   float64   `json:"moisture" db:"moisture"`
	Crop       string    `json:"crop" db:"crop"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Input bounds enforced before a reading is ever constructed.
const (
	MinNitrogen = 0.0
	MaxNitrogen = 100.0
	MinPH       = 0.0
	MaxPH       = 14.0
	MinMoisture = 0.0
	MaxMoisture = 100.0
)

// ReadingInput is a reading as captured from a form, a CSV row or an MQTT payload.
// Pointers distinguish a missing value from zero.
type ReadingInput struct {
	MessageID  string     `json:"message_id,omitempty"`
	Nitrogen   *float64   `json:"nitrogen"`
	PH         *float64   `json:"ph"`
	Moisture   *float64   `json:"moisture"`
	Crop       string     `json:"crop"`
	RecordedAt *time.Time `json:"recorded_at,omitempty"`
}

// Validate checks presence and domain bounds of every field
func (in *ReadingInput) Validate() error {
	if err := checkBounds("nitrogen", in.Nitrogen, MinNitrogen, MaxNitrogen); err != nil {
		return err
	}
	if err := checkBounds("ph", in.PH, MinPH, MaxPH); err != nil {
		return err
	}
	if err := checkBounds("moisture", in.Moisture, MinMoisture, MaxMoisture); err != nil {
		return err
	}
	if NormalizeCrop(in.Crop) == "" {
		return &ValidationError{
			Field:   "crop",
			Value:   in.Crop,
			Message: "crop is required",
		}
	}
	return nil
}

// ToReading validates the input and converts it into an immutable SoilReading.
// RecordedAt defaults to now when the capture did not carry its own timestamp.
func (in *ReadingInput) ToReading(id string, now time.Time) (*SoilReading, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	recordedAt := now
	if in.RecordedAt != nil && !in.RecordedAt.IsZero() {
		recordedAt = in.RecordedAt.UTC()
	}

	return &SoilReading{
		ID:         id,
		RecordedAt: recordedAt,
		Nitrogen:   *in.Nitrogen,
		PH:         *in.PH,
		Moisture:   *in.Moisture,
		Crop:       NormalizeCrop(in.Crop),
		CreatedAt:  now,
	}, nil
}

// NormalizeCrop lower-cases and trims a crop identifier
func NormalizeCrop(crop string) string {
	return strings.ToLower(strings.TrimSpace(crop))
}

func checkBounds(field string, v *float64, lo, hi float64) error {
	if v == nil {
		return &ValidationError{
			Field:   field,
			Message: field + " is required",
		}
	}
	// NaN fails both comparisons, so test the accepted interval instead
	if !(*v >= lo && *v <= hi) {
		return &ValidationError{
			Field:   field,
			Value:   formatFloat(*v),
			Message: field + " must be between " + formatFloat(lo) + " and " + formatFloat(hi),
		}
	}
	return nil
}

// ValidationError represents a rejected reading input
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}
