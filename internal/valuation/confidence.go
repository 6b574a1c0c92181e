package valuation

import (
	"fmt"
	"math"

	"avm/internal/models"
)

// ConfidenceInput is what a confidence model may look at
type ConfidenceInput struct {
	ComparableCount     int
	AvgPricePerArea     float64
	StdDeviation        float64
	LocationScore       int
	NeighborhoodSamples int
	ProvinceSamples     int
}

// ConfidenceModel scores how much an estimate can be trusted
type ConfidenceModel interface {
	Score(in ConfidenceInput) models.ConfidenceBreakdown
}

// FixedConfidence always reports the same breakdown, totalling 75
type FixedConfidence struct{}

func (FixedConfidence) Score(ConfidenceInput) models.ConfidenceBreakdown {
	return models.ConfidenceBreakdown{
		ComparableCount: 20,
		Consistency:     15,
		Location:        15,
		Regional:        25,
	}
}

// DynamicConfidence derives the breakdown from the comparable count, price
// dispersion, location score and regional sample sizes
type DynamicConfidence struct{}

func (DynamicConfidence) Score(in ConfidenceInput) models.ConfidenceBreakdown {
	var b models.ConfidenceBreakdown

	switch {
	case in.ComparableCount >= 15:
		b.ComparableCount = 30
	case in.ComparableCount >= 10:
		b.ComparableCount = 25
	case in.ComparableCount >= 5:
		b.ComparableCount = 18
	default:
		b.ComparableCount = 10
	}

	b.Consistency = 6
	if in.AvgPricePerArea > 0 {
		cv := in.StdDeviation / in.AvgPricePerArea
		switch {
		case cv <= 0.15:
			b.Consistency = 20
		case cv <= 0.25:
			b.Consistency = 16
		case cv <= 0.35:
			b.Consistency = 12
		}
	}

	location := math.Max(0, math.Min(100, float64(in.LocationScore)))
	b.Location = int(math.Round(location / 100 * 15))

	switch {
	case in.NeighborhoodSamples >= 20:
		b.Regional += 20
	case in.NeighborhoodSamples >= 10:
		b.Regional += 15
	case in.NeighborhoodSamples >= 5:
		b.Regional += 10
	case in.NeighborhoodSamples >= 3:
		b.Regional += 5
	}
	switch {
	case in.ProvinceSamples >= 50:
		b.Regional += 15
	case in.ProvinceSamples >= 30:
		b.Regional += 12
	case in.ProvinceSamples >= 15:
		b.Regional += 8
	case in.ProvinceSamples >= 5:
		b.Regional += 4
	}

	return b
}

// NewConfidenceModel returns the model registered under name
func NewConfidenceModel(name string) (ConfidenceModel, error) {
	switch name {
	case "", "fixed":
		return FixedConfidence{}, nil
	case "dynamic":
		return DynamicConfidence{}, nil
	default:
		return nil, fmt.Errorf("unknown confidence model %q", name)
	}
}
