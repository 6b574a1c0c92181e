package valuation

import "avm/internal/models"

type featureAdjustment struct {
	name    string
	percent float64
	applies func(models.PropertyFeatures) bool
}

var featureAdjustments = []featureAdjustment{
	{"ground_floor", -4, func(f models.PropertyFeatures) bool { return f.Floor != nil && *f.Floor == 0 }},
	{"mid_floor", 4, func(f models.PropertyFeatures) bool { return f.Floor != nil && *f.Floor > 1 && *f.Floor < 5 }},
	{"elevator", 5, func(f models.PropertyFeatures) bool { return f.HasElevator }},
	{"parking", 6, func(f models.PropertyFeatures) bool { return f.HasParking }},
	{"balcony", 3, func(f models.PropertyFeatures) bool { return f.HasBalcony }},
}

// FeatureMultiplier returns the price multiplier for residential features
// and the percentage each applied adjustment contributes. Other property
// types are not adjusted.
func FeatureMultiplier(features models.PropertyFeatures) (float64, map[string]float64) {
	multiplier := 1.0
	impact := make(map[string]float64)
	if features.PropertyType != models.PropertyResidential {
		return multiplier, impact
	}

	for _, adj := range featureAdjustments {
		if adj.applies(features) {
			multiplier *= 1 + adj.percent/100
			impact[adj.name] = adj.percent
		}
	}
	return multiplier, impact
}
