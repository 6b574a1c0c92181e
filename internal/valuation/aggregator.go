package valuation

import (
	"context"
	"math"

	"avm/internal/models"
	"avm/internal/normalize"

	"github.com/sirupsen/logrus"
)

var (
	// BlendedWeights apply when both regional layers have samples
	BlendedWeights = models.BlendWeights{Local: 0.4, Neighborhood: 0.45, Province: 0.15}
	// LocalOnlyWeights apply otherwise
	LocalOnlyWeights = models.BlendWeights{Local: 1.0}
)

// ProvinceAreaTolerance is the area band of the province benchmark
const ProvinceAreaTolerance = 0.30

// Blend is the reference price per m² and the layers it was built from
type Blend struct {
	FinalAvgPricePerArea float64
	Weights              models.BlendWeights
	NeighborhoodAvg      float64
	NeighborhoodSamples  int
	// ProvinceAvg has the building age depreciation applied
	ProvinceAvg     float64
	ProvinceRawAvg  float64
	ProvinceSamples int
	Depreciation    float64
}

// Depreciation is the building age factor applied to the province
// benchmark of residential properties: 5% per 5 years, never below 50%.
func Depreciation(features models.PropertyFeatures) float64 {
	if features.PropertyType != models.PropertyResidential || features.BuildingAge == nil || *features.BuildingAge <= 0 {
		return 1.0
	}
	factor := 1 - (float64(*features.BuildingAge)/5)*0.05
	return math.Max(0.5, math.Min(1.0, factor))
}

// Aggregator blends the comparable average with neighborhood and province
// wide averages
type Aggregator struct {
	dataset     Dataset
	segments    Segments
	archiveDays int
	logger      *logrus.Logger
}

func NewAggregator(dataset Dataset, segments Segments, archiveDays int, logger *logrus.Logger) *Aggregator {
	if logger == nil {
		logger = logrus.New()
	}
	if archiveDays <= 0 {
		archiveDays = DefaultArchiveWindowDays
	}
	return &Aggregator{dataset: dataset, segments: segments, archiveDays: archiveDays, logger: logger}
}

// NeighborhoodAverage returns the outlier filtered mean price per m² of all
// sale listings in the subject's neighborhood, and the number of samples used
func (a *Aggregator) NeighborhoodAverage(ctx context.Context, loc models.LocationPoint, features models.PropertyFeatures) (float64, int) {
	neighborhoodKey := normalize.Name(loc.Neighborhood)
	if neighborhoodKey == "" {
		return 0, 0
	}

	samples, err := a.dataset.PricePerAreaSamples(ctx, models.ListingQuery{
		Categories:                a.segments.Categories(features.PropertyType),
		TransactionType:           models.TransactionSale,
		PriceMin:                  PriceFloor,
		PricePerAreaMin:           MinPricePerArea,
		PricePerAreaMax:           MaxPricePerArea,
		DistrictKey:               normalize.District(loc.District),
		NeighborhoodKey:           neighborhoodKey,
		IncludeArchivedWithinDays: a.archiveDays,
	})
	if err != nil {
		a.logger.WithError(err).Warn("Neighborhood average query failed, continuing without it")
		return 0, 0
	}

	filtered := FilterOutliers(samples)
	if len(filtered) < 2 {
		filtered = samples
	}
	return mean(filtered), len(filtered)
}

// ProvinceBenchmark returns the mean price per m² of sale listings of the
// same segment and similar area anywhere in the dataset
func (a *Aggregator) ProvinceBenchmark(ctx context.Context, features models.PropertyFeatures) (float64, int) {
	avg, count, err := a.dataset.AveragePricePerArea(ctx, models.ListingQuery{
		Categories:                a.segments.Categories(features.PropertyType),
		TransactionType:           models.TransactionSale,
		PriceMin:                  PriceFloor,
		AreaMin:                   features.Area * (1 - ProvinceAreaTolerance),
		AreaMax:                   features.Area * (1 + ProvinceAreaTolerance),
		PricePerAreaMin:           MinPricePerArea,
		PricePerAreaMax:           MaxPricePerArea,
		IncludeArchivedWithinDays: a.archiveDays,
	})
	if err != nil {
		a.logger.WithError(err).Warn("Province benchmark query failed, continuing without it")
		return 0, 0
	}
	return avg, count
}

// Blend computes the reference price per m². Both regional layers need at
// least one sample for the blended weights, otherwise the local average is
// used alone.
func (a *Aggregator) Blend(ctx context.Context, loc models.LocationPoint, features models.PropertyFeatures, localAvg float64) Blend {
	neighborhoodAvg, neighborhoodSamples := a.NeighborhoodAverage(ctx, loc, features)
	provinceRaw, provinceSamples := a.ProvinceBenchmark(ctx, features)
	depreciation := Depreciation(features)
	provinceAvg := math.Round(provinceRaw * depreciation)

	blend := Blend{
		FinalAvgPricePerArea: localAvg,
		Weights:              LocalOnlyWeights,
		NeighborhoodAvg:      math.Round(neighborhoodAvg),
		NeighborhoodSamples:  neighborhoodSamples,
		ProvinceAvg:          provinceAvg,
		ProvinceRawAvg:       math.Round(provinceRaw),
		ProvinceSamples:      provinceSamples,
		Depreciation:         depreciation,
	}

	if neighborhoodSamples > 0 && neighborhoodAvg > 0 && provinceSamples > 0 && provinceAvg > 0 {
		w := BlendedWeights
		blend.Weights = w
		blend.FinalAvgPricePerArea = math.Round(localAvg*w.Local + blend.NeighborhoodAvg*w.Neighborhood + provinceAvg*w.Province)
	}

	a.logger.WithFields(logrus.Fields{
		"local":         localAvg,
		"neighborhood":  blend.NeighborhoodAvg,
		"province":      provinceAvg,
		"depreciation":  depreciation,
		"weights":       blend.Weights,
		"final_average": blend.FinalAvgPricePerArea,
	}).Info("Blended price per area")

	return blend
}
