package weather

import (
	"strings"

	"soil-advisor/internal/models"
)

// FarmingTips derives field-work advice from current conditions
func FarmingTips(w *models.WeatherData) []string {
	tips := []string{}
	if w == nil {
		return tips
	}

	description := strings.ToLower(w.Description)
	if w.Temperature > 30 {
		tips = append(tips, "High temperature - ensure adequate watering")
	}
	if w.Humidity > 70 {
		tips = append(tips, "High humidity - watch for fungal diseases")
	}
	if strings.Contains(description, "rain") {
		tips = append(tips, "Rainy conditions - delay fertilizer application")
	}
	if strings.Contains(description, "sunny") || strings.Contains(description, "clear") {
		tips = append(tips, "Good conditions for harvesting and fieldwork")
	}
	return tips
}
