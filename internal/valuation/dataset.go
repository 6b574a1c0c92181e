package valuation

import (
	"context"

	"avm/internal/models"
)

// Dataset is the listings store the valuation reads from
type Dataset interface {
	SearchListings(ctx context.Context, q models.ListingQuery) ([]models.ListingRecord, error)
	PricePerAreaSamples(ctx context.Context, q models.ListingQuery) ([]float64, error)
	AveragePricePerArea(ctx context.Context, q models.ListingQuery) (float64, int, error)
	PriceBuckets(ctx context.Context, q models.ListingQuery, interval models.BucketInterval) ([]models.PriceBucket, error)
	SegmentSummary(ctx context.Context, q models.ListingQuery) (models.SegmentSummary, error)
}

// Segments maps property types to dataset categories and neighborhoods to
// their price coefficient
type Segments interface {
	Categories(propertyType models.PropertyType) []string
	NeighborhoodCoefficient(neighborhood string) float64
}

const (
	// MinPricePerArea and MaxPricePerArea bound a plausible price per m²
	MinPricePerArea = 1000.0
	MaxPricePerArea = 200000.0

	// PriceFloor drops placeholder prices such as "1 TL"
	PriceFloor = 10000

	DefaultArchiveWindowDays = 180
)
