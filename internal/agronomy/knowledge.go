// Package agronomy turns soil readings into trend summaries and crop guidance.
//
// Both engines are pure functions over their arguments and the static crop
// table below; they are safe for concurrent use without locking.
package agronomy

import (
	"slices"
	"sort"

	"soil-advisor/internal/models"
)

// DefaultProfile applies to any crop identifier missing from the table
var DefaultProfile = models.CropProfile{
	Crop:        "default",
	Nitrogen:    models.Range{Low: 2.0, High: 4.0},
	PH:          models.Range{Low: 6.0, High: 7.0},
	Moisture:    models.Range{Low: 60, High: 80},
	Fertilizers: []string{},
	Pesticides:  []string{},
}

var profiles = map[string]models.CropProfile{
	"rice": {
		Nitrogen:    models.Range{Low: 2.0, High: 3.5},
		PH:          models.Range{Low: 5.5, High: 6.5},
		Moisture:    models.Range{Low: 80, High: 100},
		Fertilizers: []string{"NPK 20-10-10", "Potash", "Phosphate", "Zinc Sulfate"},
		Pesticides: []string{
			"Imidacloprid (for brown planthopper)",
			"Chlorpyrifos (for stem borer)",
			"Propiconazole (for blast)",
		},
	},
	"wheat": {
		Nitrogen:    models.Range{Low: 2.5, High: 4.0},
		PH:          models.Range{Low: 6.0, High: 7.5},
		Moisture:    models.Range{Low: 40, High: 60},
		Fertilizers: []string{"DAP (18-46-0)", "NPK 12-32-16", "Potassium Chloride"},
		Pesticides: []string{
			"2,4-D (for broadleaf weeds)",
			"Pendimethalin (pre-emergence)",
			"Tebuconazole (for rust)",
		},
	},
	"corn": {
		Nitrogen:    models.Range{Low: 3.0, High: 5.0},
		PH:          models.Range{Low: 6.0, High: 6.8},
		Moisture:    models.Range{Low: 50, High: 70},
		Fertilizers: []string{"NPK 15-15-15", "Starter Fertilizer 10-34-0", "Side-dress Nitrogen"},
		Pesticides: []string{
			"Atrazine (for weeds)",
			"Chlorpyrifos (for corn borer)",
			"Glyphosate (post-harvest)",
		},
	},
	"tomato": {
		Nitrogen:    models.Range{Low: 2.0, High: 3.0},
		PH:          models.Range{Low: 6.0, High: 6.8},
		Moisture:    models.Range{Low: 60, High: 80},
		Fertilizers: []string{"NPK 10-10-10", "Calcium Nitrate", "Magnesium Sulfate"},
		Pesticides: []string{
			"Imidacloprid (for whitefly)",
			"Mancozeb (for blight)",
			"Spinosad (for caterpillars)",
		},
	},
	"potato": {
		Nitrogen:    models.Range{Low: 1.5, High: 2.5},
		PH:          models.Range{Low: 5.2, High: 6.4},
		Moisture:    models.Range{Low: 65, High: 85},
		Fertilizers: []string{"NPK 8-24-24", "Potassium Sulfate", "Bone Meal"},
		Pesticides: []string{
			"Metalaxyl (for late blight)",
			"Imidacloprid (for aphids)",
			"Copper oxychloride",
		},
	},
	"cotton": {
		Nitrogen:    models.Range{Low: 2.5, High: 4.5},
		PH:          models.Range{Low: 5.8, High: 8.0},
		Moisture:    models.Range{Low: 50, High: 70},
		Fertilizers: []string{"NPK 15-5-10", "Boron", "Potassium Nitrate"},
		Pesticides: []string{
			"Emamectin Benzoate (for bollworm)",
			"Thiamethoxam (for thrips)",
			"Propiconazole",
		},
	},
	"sugarcane": {
		Nitrogen:    models.Range{Low: 3.5, High: 5.5},
		PH:          models.Range{Low: 6.5, High: 7.5},
		Moisture:    models.Range{Low: 70, High: 90},
		Fertilizers: []string{"NPK 12-6-12", "Filter Press Mud", "Molasses"},
		Pesticides: []string{
			"2,4-D (for weeds)",
			"Chlorpyrifos (for borers)",
			"Carbendazim (for red rot)",
		},
	},
	"beans": {
		Nitrogen:    models.Range{Low: 1.0, High: 2.0},
		PH:          models.Range{Low: 6.0, High: 7.0},
		Moisture:    models.Range{Low: 60, High: 80},
		Fertilizers: []string{"Phosphorus Fertilizer", "Potash", "Rhizobium Inoculant"},
		Pesticides: []string{
			"Pendimethalin (for weeds)",
			"Lambda-cyhalothrin (for pod borer)",
			"Copper fungicide",
		},
	},
	"spinach": {
		Nitrogen:    models.Range{Low: 3.0, High: 4.5},
		PH:          models.Range{Low: 6.0, High: 7.0},
		Moisture:    models.Range{Low: 70, High: 85},
		Fertilizers: []string{"NPK 20-10-10", "Iron Chelate", "Nitrogen Boost"},
		Pesticides: []string{
			"Spinosad (for leaf miners)",
			"Bacillus thuringiensis (for caterpillars)",
			"Neem oil",
		},
	},
	"cabbage": {
		Nitrogen:    models.Range{Low: 2.5, High: 4.0},
		PH:          models.Range{Low: 6.0, High: 6.5},
		Moisture:    models.Range{Low: 65, High: 85},
		Fertilizers: []string{"NPK 10-10-10", "Calcium", "Boron Supplement"},
		Pesticides: []string{
			"Deltamethrin (for diamondback moth)",
			"Chlorpyrifos (for aphids)",
			"Copper sulfate",
		},
	},
}

// Lookup resolves a crop identifier to its profile. It never fails: unknown
// identifiers get DefaultProfile and ok=false. The returned catalogs are
// copies, so callers cannot alter the table.
func Lookup(crop string) (profile models.CropProfile, ok bool) {
	key := models.NormalizeCrop(crop)
	profile, ok = profiles[key]
	if ok {
		profile.Crop = key
	} else {
		profile = DefaultProfile
	}
	profile.Fertilizers = slices.Clone(profile.Fertilizers)
	profile.Pesticides = slices.Clone(profile.Pesticides)
	return profile, ok
}

// Crops returns the known crop identifiers in alphabetical order
func Crops() []string {
	crops := make([]string, 0, len(profiles))
	for crop := range profiles {
		crops = append(crops, crop)
	}
	sort.Strings(crops)
	return crops
}
