package agronomy

import (
	"math"

	"soil-advisor/internal/models"
)

// Summarize aggregates a newest-first reading log. The whole log feeds the
// averages; the series runs oldest-first with 1-based indexes. An empty log
// yields a summary with no latest reading and an empty series.
func Summarize(log []models.SoilReading) models.Summary {
	summary := models.Summary{
		Count:  len(log),
		Series: make([]models.SeriesPoint, 0, len(log)),
	}
	if len(log) == 0 {
		return summary
	}

	latest := log[0]
	summary.Latest = &latest

	var sumN, sumPH, sumM float64
	for i := len(log) - 1; i >= 0; i-- {
		r := log[i]
		sumN += r.Nitrogen
		sumPH += r.PH
		sumM += r.Moisture

		summary.Series = append(summary.Series, models.SeriesPoint{
			Index:      len(summary.Series) + 1,
			RecordedAt: r.RecordedAt,
			Nitrogen:   r.Nitrogen,
			PH:         r.PH,
			Moisture:   r.Moisture,
		})
	}

	n := float64(len(log))
	summary.Averages = models.Averages{
		Nitrogen: sumN / n,
		PH:       sumPH / n,
		Moisture: sumM / n,
	}

	return summary
}

// Round1 rounds to one decimal place, halves away from zero
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// RoundAverages applies Round1 to each mean for presentation
func RoundAverages(a models.Averages) models.Averages {
	return models.Averages{
		Nitrogen: Round1(a.Nitrogen),
		PH:       Round1(a.PH),
		Moisture: Round1(a.Moisture),
	}
}
