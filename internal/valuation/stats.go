package valuation

import (
	"math"
	"sort"

	"avm/internal/models"
)

// quantile interpolates linearly between the closest ranks of sorted
func quantile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := float64(len(sorted)-1) * p
	lower := math.Floor(pos)
	upper := math.Ceil(pos)
	if lower == upper {
		return sorted[int(pos)]
	}
	return sorted[int(lower)] + (sorted[int(upper)]-sorted[int(lower)])*(pos-lower)
}

// Quartiles returns the first and third quartile of values
func Quartiles(values []float64) (q1, q3 float64) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return quantile(sorted, 0.25), quantile(sorted, 0.75)
}

// MinOutlierSamples is the smallest set the IQR filter is applied to
const MinOutlierSamples = 4

// iqrBounds returns [Q1-1.5·IQR, Q3+1.5·IQR]
func iqrBounds(values []float64) (lo, hi float64) {
	q1, q3 := Quartiles(values)
	iqr := q3 - q1
	return q1 - 1.5*iqr, q3 + 1.5*iqr
}

// FilterOutliers drops values outside the IQR fences. Sets smaller than
// MinOutlierSamples are returned unchanged.
func FilterOutliers(values []float64) []float64 {
	if len(values) < MinOutlierSamples {
		return append([]float64(nil), values...)
	}
	lo, hi := iqrBounds(values)
	kept := make([]float64, 0, len(values))
	for _, v := range values {
		if v >= lo && v <= hi {
			kept = append(kept, v)
		}
	}
	return kept
}

// filterComparables applies FilterOutliers to the price per m² of comparables
func filterComparables(comps []models.ComparableProperty) []models.ComparableProperty {
	if len(comps) < MinOutlierSamples {
		return comps
	}
	values := make([]float64, len(comps))
	for i, c := range comps {
		values[i] = c.PricePerArea
	}
	lo, hi := iqrBounds(values)

	kept := make([]models.ComparableProperty, 0, len(comps))
	for _, c := range comps {
		if c.PricePerArea >= lo && c.PricePerArea <= hi {
			kept = append(kept, c)
		}
	}
	return kept
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// MarketStatistics summarizes the price per m² of a comparable set. The
// price range is scaled to the subject's area.
func MarketStatistics(comps []models.ComparableProperty, area float64) models.MarketAnalysis {
	analysis := models.MarketAnalysis{
		TotalComparables: len(comps),
		Trend:            models.TrendStable,
	}
	if len(comps) == 0 {
		return analysis
	}

	values := make([]float64, len(comps))
	for i, c := range comps {
		values[i] = c.PricePerArea
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	avg := mean(values)
	variance := 0.0
	for _, v := range values {
		variance += (v - avg) * (v - avg)
	}
	variance /= float64(len(values))

	mid := len(sorted) / 2
	median := sorted[mid]
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}

	analysis.AvgPricePerArea = math.Round(avg)
	analysis.MedianPricePerArea = math.Round(median)
	analysis.StdDeviation = math.Round(math.Sqrt(variance))
	analysis.PriceRange = models.PriceRange{
		Min: int64(math.Round(sorted[0] * area)),
		Max: int64(math.Round(sorted[len(sorted)-1] * area)),
	}
	return analysis
}
