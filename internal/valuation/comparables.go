package valuation

import (
	"context"
	"fmt"
	"math"
	"sort"

	"avm/internal/geometry"
	"avm/internal/models"
	"avm/internal/normalize"

	"github.com/sirupsen/logrus"
)

const (
	// MinComparables is the result count that stops the search cascade
	MinComparables = 3
	MaxCandidates  = 100
	MaxComparables = 20
	MinSimilarity  = 25
)

type strategy struct {
	name         string
	tolerance    float64
	neighborhood bool
}

// strategies are tried narrowest first
var strategies = []strategy{
	{name: "neighborhood_10", tolerance: 0.10, neighborhood: true},
	{name: "neighborhood_20", tolerance: 0.20, neighborhood: true},
	{name: "district_30", tolerance: 0.30, neighborhood: false},
}

// Similarity scores how comparable a listing is to the subject, from 0 to 100
func Similarity(targetArea, area float64, subject models.LocationPoint, district, neighborhood string, hasCoordinates bool, status models.ListingStatus) int {
	score := 0

	diff := math.Abs(targetArea-area) / targetArea
	switch {
	case diff <= 0.10:
		score += 30
	case diff <= 0.20:
		score += 24
	case diff <= 0.30:
		score += 18
	default:
		score += 10
	}

	switch normalize.Match(subject.Neighborhood, neighborhood).Kind {
	case normalize.MatchExact:
		score += 35
	case normalize.MatchPartial:
		score += 25
	}

	if normalize.DistrictMatches(subject.District, district) {
		score += 15
	}

	if !hasCoordinates {
		score -= 15
	}
	if status == models.ListingArchived {
		score -= 5
	}

	return max(0, min(100, score))
}

// ComparableFinder searches the dataset for listings similar to a subject
// property, widening the search until enough are found
type ComparableFinder struct {
	dataset     Dataset
	segments    Segments
	archiveDays int
	logger      *logrus.Logger
}

func NewComparableFinder(dataset Dataset, segments Segments, archiveDays int, logger *logrus.Logger) *ComparableFinder {
	if logger == nil {
		logger = logrus.New()
	}
	if archiveDays <= 0 {
		archiveDays = DefaultArchiveWindowDays
	}
	return &ComparableFinder{
		dataset:     dataset,
		segments:    segments,
		archiveDays: archiveDays,
		logger:      logger,
	}
}

// Find returns up to MaxComparables comparables ranked by similarity and the
// name of the strategy that produced them. When no strategy reaches
// MinComparables the largest non-empty result wins. An empty result across
// all strategies is an *InsufficientDataError.
func (f *ComparableFinder) Find(ctx context.Context, loc models.LocationPoint, features models.PropertyFeatures) ([]models.ComparableProperty, string, error) {
	categories := f.segments.Categories(features.PropertyType)
	districtKey := normalize.District(loc.District)
	neighborhoodKey := normalize.Name(loc.Neighborhood)

	var best []models.ComparableProperty
	var bestStrategy string

	for _, s := range strategies {
		if s.neighborhood && neighborhoodKey == "" {
			continue
		}

		q := models.ListingQuery{
			Categories:                categories,
			TransactionType:           models.TransactionSale,
			PriceMin:                  PriceFloor,
			AreaMin:                   features.Area * (1 - s.tolerance),
			AreaMax:                   features.Area * (1 + s.tolerance),
			DistrictKey:               districtKey,
			IncludeArchivedWithinDays: f.archiveDays,
			Limit:                     MaxCandidates,
		}
		if s.neighborhood {
			q.NeighborhoodKey = neighborhoodKey
		}

		records, err := f.dataset.SearchListings(ctx, q)
		if err != nil {
			return nil, "", fmt.Errorf("comparable search %s failed: %w", s.name, err)
		}

		comps := f.rank(loc, features, records, s.tolerance)

		f.logger.WithFields(logrus.Fields{
			"strategy":    s.name,
			"candidates":  len(records),
			"comparables": len(comps),
		}).Info("Comparable search strategy finished")

		if len(comps) >= MinComparables {
			return comps, s.name, nil
		}
		if len(comps) > len(best) {
			best, bestStrategy = comps, s.name
		}
	}

	if len(best) == 0 {
		return nil, "", &InsufficientDataError{
			PropertyType: features.PropertyType,
			Area:         features.Area,
			District:     loc.District,
			Neighborhood: loc.Neighborhood,
		}
	}

	f.logger.WithFields(logrus.Fields{
		"strategy":    bestStrategy,
		"comparables": len(best),
	}).Warn("Fewer comparables than wanted, using best strategy")

	return best, bestStrategy, nil
}

// rank parses, scores and filters raw candidates
func (f *ComparableFinder) rank(loc models.LocationPoint, features models.PropertyFeatures, records []models.ListingRecord, tolerance float64) []models.ComparableProperty {
	minArea := features.Area * (1 - tolerance)
	maxArea := features.Area * (1 + tolerance)

	seen := make(map[int64]bool, len(records))
	comps := make([]models.ComparableProperty, 0, len(records))

	for _, r := range records {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true

		drop := func(reason string) {
			f.logger.WithFields(logrus.Fields{"listing": r.ID, "reason": reason}).Debug("Dropping candidate")
		}

		area, ok := normalize.Amount(r.AreaText)
		if !ok {
			drop("unparseable area")
			continue
		}
		if area < minArea || area > maxArea {
			drop("area outside tolerance")
			continue
		}
		price, ok := normalize.Amount(r.Price)
		if !ok {
			drop("unparseable price")
			continue
		}
		pricePerArea := price / area
		if pricePerArea < MinPricePerArea || pricePerArea > MaxPricePerArea {
			drop("price per area out of range")
			continue
		}

		neighborhood := r.Neighborhood
		if neighborhood == "" {
			neighborhood = normalize.NeighborhoodFromLocation(r.LocationText)
		}

		similarity := Similarity(features.Area, area, loc, r.District, neighborhood, r.HasCoordinates(), r.Status)
		if similarity < MinSimilarity {
			drop("low similarity")
			continue
		}

		distance := 0.0
		if r.HasCoordinates() {
			distance = geometry.DistanceKm(loc.Lat, loc.Lng, *r.Latitude, *r.Longitude)
		}

		comps = append(comps, models.ComparableProperty{
			ID:           r.ID,
			Title:        r.Title,
			Price:        price,
			Area:         area,
			LocationText: r.LocationText,
			DistanceKm:   distance,
			PricePerArea: math.Round(pricePerArea),
			Similarity:   similarity,
			Status:       r.Status,
		})
	}

	comps = filterComparables(comps)

	sort.SliceStable(comps, func(i, j int) bool {
		return comps[i].Similarity > comps[j].Similarity
	})
	if len(comps) > MaxComparables {
		comps = comps[:MaxComparables]
	}
	return comps
}
