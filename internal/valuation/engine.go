package valuation

import (
	"context"
	"fmt"
	"math"
	"strings"

	"avm/internal/models"
	"avm/internal/poi"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// LocationScanner finds the POIs around a coordinate
type LocationScanner interface {
	Scan(ctx context.Context, lat, lng float64) []models.NearbyPOI
}

// LocationWeight is the largest share location quality can move the value,
// in either direction, around a neutral score of 50
const LocationWeight = 0.1

type EngineOptions struct {
	ArchiveWindowDays int
	TrendEnabled      bool
}

// Engine produces valuations from the listings dataset and the POI scanner
type Engine struct {
	finder     *ComparableFinder
	aggregator *Aggregator
	trend      *TrendAnalyzer
	scanner    LocationScanner
	segments   Segments
	confidence ConfidenceModel
	opts       EngineOptions
	logger     *logrus.Logger
}

func NewEngine(dataset Dataset, scanner LocationScanner, segments Segments, confidence ConfidenceModel, opts EngineOptions, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	if confidence == nil {
		confidence = FixedConfidence{}
	}
	if opts.ArchiveWindowDays <= 0 {
		opts.ArchiveWindowDays = DefaultArchiveWindowDays
	}
	return &Engine{
		finder:     NewComparableFinder(dataset, segments, opts.ArchiveWindowDays, logger),
		aggregator: NewAggregator(dataset, segments, opts.ArchiveWindowDays, logger),
		trend:      NewTrendAnalyzer(dataset, segments, opts.ArchiveWindowDays, logger),
		scanner:    scanner,
		segments:   segments,
		confidence: confidence,
		opts:       opts,
		logger:     logger,
	}
}

// Trends exposes the trend analyzer the engine uses
func (e *Engine) Trends() *TrendAnalyzer {
	return e.trend
}

// LocationFactor scales the value by location quality: a score of 100 adds
// 5%, a score of 0 removes 5%
func LocationFactor(score int) float64 {
	return 1 + ((float64(score)-50)/100)*LocationWeight
}

// Estimate values the subject property. The only errors are invalid input,
// dataset failures during the comparable search and *InsufficientDataError.
func (e *Engine) Estimate(ctx context.Context, loc models.LocationPoint, features models.PropertyFeatures) (*models.ValuationResult, error) {
	if err := ValidateInput(loc, features); err != nil {
		return nil, err
	}

	log := e.logger.WithFields(logrus.Fields{
		"type":         features.PropertyType,
		"area":         features.Area,
		"district":     loc.District,
		"neighborhood": loc.Neighborhood,
	})
	log.Info("Starting valuation")

	var (
		pois     []models.NearbyPOI
		comps    []models.ComparableProperty
		strategy string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if e.scanner != nil {
			pois = e.scanner.Scan(gctx, loc.Lat, loc.Lng)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		comps, strategy, err = e.finder.Find(gctx, loc, features)
		return err
	})
	if err := g.Wait(); err != nil {
		log.WithError(err).Warn("Valuation failed")
		return nil, err
	}
	if pois == nil {
		pois = []models.NearbyPOI{}
	}

	market := MarketStatistics(comps, features.Area)
	locationScore := poi.Score(pois)
	blend := e.aggregator.Blend(ctx, loc, features, market.AvgPricePerArea)
	multiplier, impact := FeatureMultiplier(features)
	coefficient := e.segments.NeighborhoodCoefficient(loc.Neighborhood)

	adjusted := blend.FinalAvgPricePerArea *
		features.Area *
		LocationFactor(locationScore.Total) *
		coefficient *
		multiplier
	estimated := int64(math.Round(adjusted))

	if e.opts.TrendEnabled {
		trend := e.trend.Analyze(ctx, loc, features)
		market.Trend = trend.Trend
		market.TrendPercentage = trend.TrendPercentage
		market.TrendDescription = trend.Description
	}

	breakdown := e.confidence.Score(ConfidenceInput{
		ComparableCount:     len(comps),
		AvgPricePerArea:     market.AvgPricePerArea,
		StdDeviation:        market.StdDeviation,
		LocationScore:       locationScore.Total,
		NeighborhoodSamples: blend.NeighborhoodSamples,
		ProvinceSamples:     blend.ProvinceSamples,
	})

	result := &models.ValuationResult{
		EstimatedValue: estimated,
		PriceRange: models.PriceRange{
			Min: int64(math.Round(float64(estimated) * 0.9)),
			Max: int64(math.Round(float64(estimated) * 1.1)),
		},
		ConfidenceScore:      max(0, min(100, breakdown.Total())),
		PricePerArea:         int64(math.Round(adjusted / features.Area)),
		LocationScore:        locationScore,
		MarketAnalysis:       market,
		ComparableProperties: comps,
		NearbyPOIs:           pois,
		CalculationMetadata: models.CalculationMetadata{
			Weights:                 blend.Weights,
			ConfidenceBreakdown:     breakdown,
			FeatureImpact:           impact,
			NeighborhoodCoefficient: coefficient,
			ProvinceDepreciation:    blend.Depreciation,
			LocalAvgPricePerArea:    market.AvgPricePerArea,
			NeighborhoodAvg:         blend.NeighborhoodAvg,
			NeighborhoodSamples:     blend.NeighborhoodSamples,
			ProvinceAvg:             blend.ProvinceAvg,
			ProvinceSamples:         blend.ProvinceSamples,
			Strategy:                strategy,
		},
	}
	result.NarrativeInsight = Insight(loc, features, result)
	result.Methodology = Methodology(result)

	log.WithFields(logrus.Fields{
		"estimated_value": result.EstimatedValue,
		"comparables":     len(comps),
		"strategy":        strategy,
		"confidence":      result.ConfidenceScore,
	}).Info("Valuation completed")

	return result, nil
}

// Insight is the deterministic summary used when no narrative generator
// answers
func Insight(loc models.LocationPoint, features models.PropertyFeatures, result *models.ValuationResult) string {
	where := loc.District
	if loc.Neighborhood != "" {
		where = strings.TrimSuffix(loc.Neighborhood+", "+loc.District, ", ")
	}
	if where == "" {
		where = "this location"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "The estimated value of this %.0f m² %s property in %s is %s, between %s and %s.",
		features.Area, features.PropertyType, where,
		formatMoney(result.EstimatedValue), formatMoney(result.PriceRange.Min), formatMoney(result.PriceRange.Max))
	fmt.Fprintf(&sb, " The estimate is based on %d comparable listings with an average of %s per m².",
		result.MarketAnalysis.TotalComparables, formatMoney(int64(result.MarketAnalysis.AvgPricePerArea)))

	switch result.MarketAnalysis.Trend {
	case models.TrendRising:
		fmt.Fprintf(&sb, " Prices in the area are rising (%+.1f%%).", result.MarketAnalysis.TrendPercentage)
	case models.TrendFalling:
		fmt.Fprintf(&sb, " Prices in the area are falling (%+.1f%%).", result.MarketAnalysis.TrendPercentage)
	}

	fmt.Fprintf(&sb, " The location scores %d out of 100", result.LocationScore.Total)
	if len(result.LocationScore.Advantages) > 0 {
		advantages := result.LocationScore.Advantages
		if len(advantages) > 3 {
			advantages = advantages[:3]
		}
		fmt.Fprintf(&sb, ", with %s", strings.Join(advantages, "; "))
	}
	sb.WriteString(".")

	return sb.String()
}

// Methodology explains how the estimate was composed
func Methodology(result *models.ValuationResult) string {
	meta := result.CalculationMetadata
	var sb strings.Builder
	fmt.Fprintf(&sb, "Comparable sales listings were selected with the %s search and filtered for outliers with the interquartile range.", meta.Strategy)
	if meta.Weights.Neighborhood > 0 {
		fmt.Fprintf(&sb, " Their average price per m² was blended with the neighborhood average (%.0f%%) and the province benchmark (%.0f%%), which is depreciated by building age.",
			meta.Weights.Neighborhood*100, meta.Weights.Province*100)
	} else {
		sb.WriteString(" Only the comparable average was used because regional averages were unavailable.")
	}
	fmt.Fprintf(&sb, " The result was adjusted for location quality (score %d), the neighborhood coefficient (%.2f)",
		result.LocationScore.Total, meta.NeighborhoodCoefficient)
	if len(meta.FeatureImpact) > 0 {
		sb.WriteString(" and property features")
	}
	sb.WriteString(".")
	return sb.String()
}

// formatMoney groups thousands with dots, as prices are written locally
func formatMoney(v int64) string {
	sign := ""
	if v < 0 {
		sign, v = "-", -v
	}
	digits := fmt.Sprintf("%d", v)
	var sb strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			sb.WriteByte('.')
		}
		sb.WriteRune(d)
	}
	return sign + sb.String() + " TL"
}
