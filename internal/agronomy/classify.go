package agronomy

import "soil-advisor/internal/models"

// Level is the outcome of comparing one measured property with its optimum
type Level int

const (
	Deficient Level = iota
	Optimal
	Excess
)

// String returns the metric/log label of the level
func (l Level) String() string {
	switch l {
	case Deficient:
		return "deficient"
	case Optimal:
		return "optimal"
	case Excess:
		return "excess"
	default:
		return "unknown"
	}
}

// Classify places value below, inside or above the closed range r.
// Out-of-domain magnitudes are not rejected; they simply land on one side.
func Classify(value float64, r models.Range) Level {
	switch {
	case value < r.Low:
		return Deficient
	case value > r.High:
		return Excess
	default:
		return Optimal
	}
}
