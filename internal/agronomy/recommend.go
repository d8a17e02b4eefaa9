package agronomy

import (
	"fmt"

	"soil-advisor/internal/models"
)

// Property names a measured soil property
type Property string

const (
	PropertyNitrogen Property = "nitrogen"
	PropertyPH       Property = "ph"
	PropertyMoisture Property = "moisture"
)

// outcome is what a single out-of-range classification contributes
type outcome struct {
	alert       string
	title       string
	description func(crop string, r models.Range) string
	priority    models.Priority
	fertilizers []string
	pesticides  []string
}

type propertyRule struct {
	property  Property
	value     func(r *models.SoilReading) float64
	rangeOf   func(p models.CropProfile) models.Range
	deficient outcome
	excess    outcome
	optimal   string
}

// rules are evaluated in this order; alerts, confirmations and actions keep it
var rules = []propertyRule{
	{
		property: PropertyNitrogen,
		value:    func(r *models.SoilReading) float64 { return r.Nitrogen },
		rangeOf:  func(p models.CropProfile) models.Range { return p.Nitrogen },
		deficient: outcome{
			alert: "Low nitrogen levels for",
			title: "Nitrogen Deficiency",
			description: func(crop string, r models.Range) string {
				return fmt.Sprintf("Apply nitrogen-rich fertilizer. %s requires %s%% nitrogen.", crop, r)
			},
			priority:    models.PriorityHigh,
			fertilizers: []string{"Urea (46-0-0)", "Ammonium Sulfate (21-0-0)", "Calcium Ammonium Nitrate"},
		},
		excess: outcome{
			alert: "Excess nitrogen for",
			title: "Excess Nitrogen",
			description: func(string, models.Range) string {
				return "Reduce nitrogen inputs. Consider flushing with water or adding carbon-rich materials."
			},
			priority: models.PriorityMedium,
		},
		optimal: "Nitrogen levels are optimal for",
	},
	{
		property: PropertyPH,
		value:    func(r *models.SoilReading) float64 { return r.PH },
		rangeOf:  func(p models.CropProfile) models.Range { return p.PH },
		deficient: outcome{
			alert: "Soil is too acidic for",
			title: "Soil Too Acidic",
			description: func(crop string, r models.Range) string {
				return fmt.Sprintf("Add lime to raise pH to %s range for optimal %s growth.", r, crop)
			},
			priority:    models.PriorityHigh,
			fertilizers: []string{"Agricultural Lime", "Dolomitic Lime", "Wood Ash"},
		},
		// alkaline soil stays high priority, unlike the other two excess cases
		excess: outcome{
			alert: "Soil is too alkaline for",
			title: "Soil Too Alkaline",
			description: func(crop string, _ models.Range) string {
				return fmt.Sprintf("Add sulfur or organic matter to lower pH for %s.", crop)
			},
			priority:    models.PriorityHigh,
			fertilizers: []string{"Sulfur", "Peat Moss", "Compost"},
		},
		optimal: "pH level is optimal for",
	},
	{
		property: PropertyMoisture,
		value:    func(r *models.SoilReading) float64 { return r.Moisture },
		rangeOf:  func(p models.CropProfile) models.Range { return p.Moisture },
		deficient: outcome{
			alert: "Low soil moisture for",
			title: "Insufficient Moisture",
			description: func(crop string, r models.Range) string {
				return fmt.Sprintf("Increase irrigation. %s requires %s%% moisture.", crop, r)
			},
			priority: models.PriorityHigh,
		},
		excess: outcome{
			alert: "Excess soil moisture for",
			title: "Overwatering Risk",
			description: func(crop string, _ models.Range) string {
				return fmt.Sprintf("Reduce watering to prevent root rot and fungal diseases in %s.", crop)
			},
			priority:   models.PriorityMedium,
			pesticides: []string{"Copper Fungicide", "Mancozeb", "Proper drainage system"},
		},
		optimal: "Moisture level is optimal for",
	},
}

// Finding records how one property of a reading was classified
type Finding struct {
	Property Property
	Level    Level
	Value    float64
	Range    models.Range
}

// Evaluate classifies each property of reading against profile, in rule order
func Evaluate(reading *models.SoilReading, profile models.CropProfile) []Finding {
	findings := make([]Finding, 0, len(rules))
	for _, rule := range rules {
		r := rule.rangeOf(profile)
		v := rule.value(reading)
		findings = append(findings, Finding{
			Property: rule.property,
			Level:    Classify(v, r),
			Value:    v,
			Range:    r,
		})
	}
	return findings
}

// Diagnose produces guidance for the latest reading. A nil reading yields a
// nil diagnosis; any non-nil reading yields a fully populated one.
func Diagnose(reading *models.SoilReading) *models.Diagnosis {
	if reading == nil {
		return nil
	}

	profile, known := Lookup(reading.Crop)
	crop := models.NormalizeCrop(reading.Crop)

	d := &models.Diagnosis{
		ReadingID:     reading.ID,
		Crop:          crop,
		KnownCrop:     known,
		Alerts:        []string{},
		Confirmations: []string{},
		Actions:       []models.Action{},
		Fertilizers:   []string{},
		Pesticides:    []string{},
	}

	for i, f := range Evaluate(reading, profile) {
		rule := rules[i]

		var o outcome
		switch f.Level {
		case Optimal:
			d.Confirmations = append(d.Confirmations, rule.optimal+" "+crop)
			continue
		case Deficient:
			o = rule.deficient
		case Excess:
			o = rule.excess
		}

		d.Alerts = append(d.Alerts, o.alert+" "+crop)
		d.Actions = append(d.Actions, models.Action{
			Title:       o.title,
			Description: o.description(crop, f.Range),
			Priority:    o.priority,
		})
		d.Fertilizers = append(d.Fertilizers, o.fertilizers...)
		d.Pesticides = append(d.Pesticides, o.pesticides...)
	}

	d.Fertilizers = append(d.Fertilizers, profile.Fertilizers...)
	d.Pesticides = append(d.Pesticides, profile.Pesticides...)
	d.Tips = generalTips(crop)

	return d
}

func generalTips(crop string) []string {
	return []string{
		fmt.Sprintf("Monitor soil conditions regularly for optimal %s growth", crop),
		"Follow integrated pest management practices",
		"Apply fertilizers in split doses for better efficiency",
		"Maintain proper irrigation schedule based on growth stage",
		"Practice crop rotation to maintain soil health",
	}
}
