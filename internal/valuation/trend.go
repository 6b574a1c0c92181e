package valuation

import (
	"context"
	"fmt"
	"math"
	"time"

	"avm/internal/models"
	"avm/internal/normalize"

	"github.com/sirupsen/logrus"
)

const (
	TrendMonths = 6
	TrendWeeks  = 8
	// TrendThreshold is the change in percent that counts as rising or falling
	TrendThreshold = 5.0
	trendArea      = 0.30
	recentBuckets  = 3
)

// ClassifyTrend compares the average of the last three monthly buckets to
// the average of the older ones. buckets must be oldest first.
func ClassifyTrend(buckets []models.PriceBucket) (string, float64, string) {
	if len(buckets) < 2 {
		return models.TrendStable, 0, "Not enough data to determine a price trend"
	}

	recent := buckets[max(0, len(buckets)-recentBuckets):]
	older := buckets[:max(1, len(buckets)-recentBuckets)]

	average := func(bs []models.PriceBucket) float64 {
		sum := 0.0
		for _, b := range bs {
			sum += b.AvgPricePerArea
		}
		return sum / float64(len(bs))
	}
	recentAvg, olderAvg := average(recent), average(older)
	if olderAvg == 0 {
		return models.TrendStable, 0, "No earlier prices to compare with"
	}

	change := (recentAvg - olderAvg) / olderAvg * 100
	rounded := math.Round(change*10) / 10

	switch {
	case change > TrendThreshold:
		return models.TrendRising, rounded, fmt.Sprintf("Prices rose %.1f%% over the last %d months", change, len(recent))
	case change < -TrendThreshold:
		return models.TrendFalling, rounded, fmt.Sprintf("Prices fell %.1f%% over the last %d months", math.Abs(change), len(recent))
	default:
		return models.TrendStable, rounded, fmt.Sprintf("Prices have been stable over the last %d months", len(buckets))
	}
}

// TrendAnalyzer reports historical price movement of the subject's segment
type TrendAnalyzer struct {
	dataset     Dataset
	segments    Segments
	archiveDays int
	logger      *logrus.Logger
	now         func() time.Time
}

func NewTrendAnalyzer(dataset Dataset, segments Segments, archiveDays int, logger *logrus.Logger) *TrendAnalyzer {
	if logger == nil {
		logger = logrus.New()
	}
	if archiveDays <= 0 {
		archiveDays = DefaultArchiveWindowDays
	}
	return &TrendAnalyzer{
		dataset:     dataset,
		segments:    segments,
		archiveDays: archiveDays,
		logger:      logger,
		now:         time.Now,
	}
}

func (t *TrendAnalyzer) segmentQuery(loc models.LocationPoint, features models.PropertyFeatures) models.ListingQuery {
	return models.ListingQuery{
		Categories:                t.segments.Categories(features.PropertyType),
		TransactionType:           models.TransactionSale,
		PriceMin:                  PriceFloor,
		AreaMin:                   features.Area * (1 - trendArea),
		AreaMax:                   features.Area * (1 + trendArea),
		PricePerAreaMin:           MinPricePerArea,
		PricePerAreaMax:           MaxPricePerArea,
		DistrictKey:               normalize.District(loc.District),
		IncludeArchivedWithinDays: t.archiveDays,
	}
}

func roundBuckets(buckets []models.PriceBucket) []models.PriceBucket {
	out := make([]models.PriceBucket, len(buckets))
	for i, b := range buckets {
		b.AvgPricePerArea = math.Round(b.AvgPricePerArea)
		b.MinPricePerArea = math.Round(b.MinPricePerArea)
		b.MaxPricePerArea = math.Round(b.MaxPricePerArea)
		out[i] = b
	}
	return out
}

// Analyze buckets the segment by month and by week and classifies the
// monthly series. Query failures degrade to a stable trend.
func (t *TrendAnalyzer) Analyze(ctx context.Context, loc models.LocationPoint, features models.PropertyFeatures) models.TrendAnalysis {
	now := t.now()

	q := t.segmentQuery(loc, features)
	q.NeighborhoodKey = normalize.Name(loc.Neighborhood)

	q.Since = now.AddDate(0, -TrendMonths, 0)
	monthly, err := t.dataset.PriceBuckets(ctx, q, models.BucketMonth)
	if err != nil {
		t.logger.WithError(err).Warn("Monthly trend query failed")
		return models.TrendAnalysis{
			Trend:       models.TrendStable,
			MonthlyData: []models.PriceBucket{},
			WeeklyData:  []models.PriceBucket{},
			Description: "Trend data could not be calculated",
		}
	}

	q.Since = now.AddDate(0, 0, -7*TrendWeeks)
	weekly, err := t.dataset.PriceBuckets(ctx, q, models.BucketWeek)
	if err != nil {
		t.logger.WithError(err).Warn("Weekly trend query failed")
		weekly = nil
	}

	monthly, weekly = roundBuckets(monthly), roundBuckets(weekly)
	trend, percentage, description := ClassifyTrend(monthly)

	t.logger.WithFields(logrus.Fields{
		"trend":      trend,
		"percentage": percentage,
		"months":     len(monthly),
		"weeks":      len(weekly),
	}).Info("Price trend analyzed")

	return models.TrendAnalysis{
		Trend:           trend,
		TrendPercentage: percentage,
		MonthlyData:     monthly,
		WeeklyData:      weekly,
		Description:     description,
	}
}

// MarketSummary aggregates the district segment and adds the price trend
func (t *TrendAnalyzer) MarketSummary(ctx context.Context, loc models.LocationPoint, features models.PropertyFeatures) models.MarketSummary {
	summary := models.MarketSummary{
		TrendAnalysis: t.Analyze(ctx, loc, features),
	}

	segment, err := t.dataset.SegmentSummary(ctx, t.segmentQuery(loc, features))
	if err != nil {
		t.logger.WithError(err).Warn("Market summary query failed")
		return summary
	}

	segment.AvgDaysOnMarket = math.Round(segment.AvgDaysOnMarket)
	segment.MinPricePerArea = math.Round(segment.MinPricePerArea)
	segment.MaxPricePerArea = math.Round(segment.MaxPricePerArea)
	segment.AvgPricePerArea = math.Round(segment.AvgPricePerArea)
	summary.SegmentSummary = segment
	return summary
}
