package valuation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"avm/internal/models"
	"avm/internal/poi"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDataset struct {
	mock.Mock
}

func (m *MockDataset) SearchListings(ctx context.Context, q models.ListingQuery) ([]models.ListingRecord, error) {
	args := m.Called(ctx, q)
	records, _ := args.Get(0).([]models.ListingRecord)
	return records, args.Error(1)
}

func (m *MockDataset) PricePerAreaSamples(ctx context.Context, q models.ListingQuery) ([]float64, error) {
	args := m.Called(ctx, q)
	samples, _ := args.Get(0).([]float64)
	return samples, args.Error(1)
}

func (m *MockDataset) AveragePricePerArea(ctx context.Context, q models.ListingQuery) (float64, int, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(float64), args.Int(1), args.Error(2)
}

func (m *MockDataset) PriceBuckets(ctx context.Context, q models.ListingQuery, interval models.BucketInterval) ([]models.PriceBucket, error) {
	args := m.Called(ctx, q, interval)
	buckets, _ := args.Get(0).([]models.PriceBucket)
	return buckets, args.Error(1)
}

func (m *MockDataset) SegmentSummary(ctx context.Context, q models.ListingQuery) (models.SegmentSummary, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(models.SegmentSummary), args.Error(1)
}

type stubSegments struct {
	coefficient float64
}

func (s stubSegments) Categories(models.PropertyType) []string {
	return []string{"konut"}
}

func (s stubSegments) NeighborhoodCoefficient(string) float64 {
	return s.coefficient
}

type scannerFunc func(ctx context.Context, lat, lng float64) []models.NearbyPOI

func (f scannerFunc) Scan(ctx context.Context, lat, lng float64) []models.NearbyPOI {
	return f(ctx, lat, lng)
}

type MockNarrator struct {
	mock.Mock
}

func (m *MockNarrator) Summarize(ctx context.Context, input models.ValuationInput, result *models.ValuationResult) (string, error) {
	args := m.Called(ctx, input, result)
	return args.String(0), args.Error(1)
}

type MockArchiver struct {
	mock.Mock
}

func (m *MockArchiver) Save(ctx context.Context, input models.ValuationInput, result *models.ValuationResult) (string, error) {
	args := m.Called(ctx, input, result)
	return args.String(0), args.Error(1)
}

var subject = models.LocationPoint{
	Lat:          40.7995,
	Lng:          30.7480,
	District:     "Hendek",
	Neighborhood: "Kemaliye",
}

func residential(area float64) models.PropertyFeatures {
	return models.PropertyFeatures{PropertyType: models.PropertyResidential, Area: area}
}

func intPtr(v int) *int { return &v }

func listing(id int64, price, area, neighborhood string) models.ListingRecord {
	lat, lng := subject.Lat+0.001*float64(id), subject.Lng
	return models.ListingRecord{
		ID:              id,
		Title:           fmt.Sprintf("Daire %d", id),
		Price:           price,
		AreaText:        area,
		LocationText:    "Sakarya / Hendek / " + neighborhood,
		Category:        "konut",
		TransactionType: models.TransactionSale,
		District:        "Hendek",
		Neighborhood:    neighborhood,
		Latitude:        &lat,
		Longitude:       &lng,
		CrawledAt:       time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		Status:          models.ListingActive,
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func areaBand(tolerance float64) interface{} {
	return mock.MatchedBy(func(q models.ListingQuery) bool {
		return math.Abs(q.AreaMin-100*(1-tolerance)) < 0.01
	})
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name           string
		area           float64
		district       string
		neighborhood   string
		hasCoordinates bool
		status         models.ListingStatus
		expected       int
	}{
		{"same area and neighborhood", 100, "Hendek", "Kemaliye Mah.", true, models.ListingActive, 80},
		{"area within 20%", 85, "Hendek", "Kemaliye", true, models.ListingActive, 74},
		{"area within 30%", 125, "Hendek", "Kemaliye", true, models.ListingActive, 68},
		{"partial neighborhood", 100, "Hendek", "Kemaliye Yeni", true, models.ListingActive, 70},
		{"district only", 100, "Hendek", "Puna", true, models.ListingActive, 45},
		{"no coordinates", 100, "Hendek", "Kemaliye", false, models.ListingActive, 65},
		{"archived", 100, "Hendek", "Kemaliye", true, models.ListingArchived, 75},
		{"nothing in common", 200, "Akyazı", "Merkez", false, models.ListingArchived, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(100, tt.area, subject, tt.district, tt.neighborhood, tt.hasCoordinates, tt.status)
			assert.Equal(t, tt.expected, got)
			assert.GreaterOrEqual(t, got, 0)
			assert.LessOrEqual(t, got, 100)
		})
	}
}

func TestFilterOutliers(t *testing.T) {
	t.Run("drops values outside the fences", func(t *testing.T) {
		filtered := FilterOutliers([]float64{8000, 8200, 8300, 8500, 30000})
		assert.Equal(t, []float64{8000, 8200, 8300, 8500}, filtered)
	})

	t.Run("small sets are kept", func(t *testing.T) {
		filtered := FilterOutliers([]float64{8000, 30000, 90000})
		assert.Equal(t, []float64{8000, 30000, 90000}, filtered)
	})

	t.Run("quartiles interpolate", func(t *testing.T) {
		q1, q3 := Quartiles([]float64{4, 1, 3, 2})
		assert.InDelta(t, 1.75, q1, 1e-9)
		assert.InDelta(t, 3.25, q3, 1e-9)
	})
}

func TestMarketStatistics(t *testing.T) {
	comps := []models.ComparableProperty{
		{PricePerArea: 10000},
		{PricePerArea: 12000},
		{PricePerArea: 14000},
		{PricePerArea: 16000},
	}

	stats := MarketStatistics(comps, 100)

	assert.Equal(t, 4, stats.TotalComparables)
	assert.Equal(t, 13000.0, stats.AvgPricePerArea)
	assert.Equal(t, 13000.0, stats.MedianPricePerArea)
	assert.Equal(t, 2236.0, stats.StdDeviation)
	assert.Equal(t, models.PriceRange{Min: 1000000, Max: 1600000}, stats.PriceRange)
	assert.Equal(t, models.TrendStable, stats.Trend)

	empty := MarketStatistics(nil, 100)
	assert.Equal(t, 0, empty.TotalComparables)
}

func TestComparableFinder_Find(t *testing.T) {
	ctx := context.Background()

	t.Run("narrow strategy short-circuits the cascade", func(t *testing.T) {
		dataset := &MockDataset{}
		dataset.On("SearchListings", mock.Anything, areaBand(0.10)).Return([]models.ListingRecord{
			listing(1, "1.500.000 TL", "100 m²", "Kemaliye Mah."),
			listing(2, "1.450.000 TL", "98 m²", "Kemaliye Mah."),
			listing(3, "1.600.000 TL", "105 m²", "Kemaliye Mah."),
		}, nil)

		finder := NewComparableFinder(dataset, stubSegments{1}, 0, quietLogger())
		comps, strategy, err := finder.Find(ctx, subject, residential(100))

		require.NoError(t, err)
		assert.Equal(t, "neighborhood_10", strategy)
		assert.Len(t, comps, 3)
		dataset.AssertNumberOfCalls(t, "SearchListings", 1)
		dataset.AssertExpectations(t)
	})

	t.Run("widens and keeps the largest result", func(t *testing.T) {
		dataset := &MockDataset{}
		dataset.On("SearchListings", mock.Anything, areaBand(0.10)).Return([]models.ListingRecord{
			listing(1, "1.500.000 TL", "100 m²", "Kemaliye"),
		}, nil)
		dataset.On("SearchListings", mock.Anything, areaBand(0.20)).Return([]models.ListingRecord{}, nil)
		dataset.On("SearchListings", mock.Anything, areaBand(0.30)).Return([]models.ListingRecord{
			listing(4, "1.300.000 TL", "125 m²", "Puna"),
			listing(5, "1.200.000 TL", "80 m²", "Yeni"),
		}, nil)

		finder := NewComparableFinder(dataset, stubSegments{1}, 0, quietLogger())
		comps, strategy, err := finder.Find(ctx, subject, residential(100))

		require.NoError(t, err)
		assert.Equal(t, "district_30", strategy)
		assert.Len(t, comps, 2)
		dataset.AssertNumberOfCalls(t, "SearchListings", 3)
	})

	t.Run("excludes price per m2 outliers from the comparables", func(t *testing.T) {
		dataset := &MockDataset{}
		dataset.On("SearchListings", mock.Anything, areaBand(0.10)).Return([]models.ListingRecord{
			listing(1, "800.000 TL", "100 m²", "Kemaliye"),
			listing(2, "820.000 TL", "100 m²", "Kemaliye"),
			listing(3, "830.000 TL", "100 m²", "Kemaliye"),
			listing(4, "850.000 TL", "100 m²", "Kemaliye"),
			listing(5, "3.000.000 TL", "100 m²", "Kemaliye"),
		}, nil)

		finder := NewComparableFinder(dataset, stubSegments{1}, 0, quietLogger())
		comps, strategy, err := finder.Find(ctx, subject, residential(100))

		require.NoError(t, err)
		assert.Equal(t, "neighborhood_10", strategy)
		require.Len(t, comps, 4)
		for _, c := range comps {
			assert.NotEqual(t, int64(5), c.ID)
			assert.Less(t, c.PricePerArea, 30000.0)
		}
		dataset.AssertNumberOfCalls(t, "SearchListings", 1)
	})

	t.Run("drops malformed and implausible listings", func(t *testing.T) {
		dataset := &MockDataset{}
		dataset.On("SearchListings", mock.Anything, mock.Anything).Return([]models.ListingRecord{
			listing(1, "1.500.000 TL", "100 m²", "Kemaliye"),
			listing(2, "Fiyat sorunuz", "100 m²", "Kemaliye"),
			listing(3, "50.000 TL", "100 m²", "Kemaliye"),
			listing(4, "1.500.000 TL", "belirtilmemiş", "Kemaliye"),
			listing(1, "1.500.000 TL", "100 m²", "Kemaliye"),
		}, nil)

		finder := NewComparableFinder(dataset, stubSegments{1}, 0, quietLogger())
		comps, _, err := finder.Find(ctx, subject, residential(100))

		require.NoError(t, err)
		require.Len(t, comps, 1)
		assert.Equal(t, int64(1), comps[0].ID)
		assert.Equal(t, 15000.0, comps[0].PricePerArea)
	})

	t.Run("no neighborhood skips neighborhood strategies", func(t *testing.T) {
		dataset := &MockDataset{}
		dataset.On("SearchListings", mock.Anything, mock.MatchedBy(func(q models.ListingQuery) bool {
			return q.NeighborhoodKey == "" && q.DistrictKey == "hendek"
		})).Return([]models.ListingRecord{
			listing(1, "1.500.000 TL", "100 m²", "Kemaliye"),
		}, nil)

		loc := subject
		loc.Neighborhood = ""
		finder := NewComparableFinder(dataset, stubSegments{1}, 0, quietLogger())
		_, strategy, err := finder.Find(ctx, loc, residential(100))

		require.NoError(t, err)
		assert.Equal(t, "district_30", strategy)
		dataset.AssertNumberOfCalls(t, "SearchListings", 1)
	})

	t.Run("no comparables is insufficient data", func(t *testing.T) {
		dataset := &MockDataset{}
		dataset.On("SearchListings", mock.Anything, mock.Anything).Return([]models.ListingRecord{}, nil)

		finder := NewComparableFinder(dataset, stubSegments{1}, 0, quietLogger())
		comps, _, err := finder.Find(ctx, subject, residential(100))

		assert.Nil(t, comps)
		assert.True(t, errors.Is(err, ErrDataInsufficient))
		var insufficient *InsufficientDataError
		require.True(t, errors.As(err, &insufficient))
		assert.Equal(t, "Kemaliye", insufficient.Neighborhood)
		dataset.AssertNumberOfCalls(t, "SearchListings", 3)
	})

	t.Run("dataset failure is returned", func(t *testing.T) {
		dataset := &MockDataset{}
		dataset.On("SearchListings", mock.Anything, mock.Anything).Return(nil, errors.New("disk I/O error"))

		finder := NewComparableFinder(dataset, stubSegments{1}, 0, quietLogger())
		_, _, err := finder.Find(ctx, subject, residential(100))

		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrDataInsufficient))
	})
}

func TestAggregator_Blend(t *testing.T) {
	ctx := context.Background()

	t.Run("blends all layers", func(t *testing.T) {
		dataset := &MockDataset{}
		dataset.On("PricePerAreaSamples", mock.Anything, mock.Anything).Return([]float64{14000, 14000, 16000, 16000}, nil)
		dataset.On("AveragePricePerArea", mock.Anything, mock.Anything).Return(12000.0, 40, nil)

		blend := NewAggregator(dataset, stubSegments{1}, 0, quietLogger()).Blend(ctx, subject, residential(100), 15000)

		assert.Equal(t, BlendedWeights, blend.Weights)
		assert.InDelta(t, 1.0, blend.Weights.Sum(), 1e-9)
		assert.Equal(t, 14550.0, blend.FinalAvgPricePerArea)
		assert.Equal(t, 4, blend.NeighborhoodSamples)
		assert.Equal(t, 40, blend.ProvinceSamples)
	})

	t.Run("depreciates the province benchmark", func(t *testing.T) {
		dataset := &MockDataset{}
		dataset.On("PricePerAreaSamples", mock.Anything, mock.Anything).Return([]float64{15000, 15000}, nil)
		dataset.On("AveragePricePerArea", mock.Anything, mock.Anything).Return(12000.0, 40, nil)

		features := residential(100)
		features.BuildingAge = intPtr(20)
		blend := NewAggregator(dataset, stubSegments{1}, 0, quietLogger()).Blend(ctx, subject, features, 15000)

		assert.InDelta(t, 0.8, blend.Depreciation, 1e-9)
		assert.Equal(t, 9600.0, blend.ProvinceAvg)
		assert.Equal(t, 12000.0, blend.ProvinceRawAvg)
	})

	t.Run("falls back to local weights when a layer fails", func(t *testing.T) {
		dataset := &MockDataset{}
		dataset.On("PricePerAreaSamples", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))
		dataset.On("AveragePricePerArea", mock.Anything, mock.Anything).Return(12000.0, 40, nil)

		blend := NewAggregator(dataset, stubSegments{1}, 0, quietLogger()).Blend(ctx, subject, residential(100), 15000)

		assert.Equal(t, LocalOnlyWeights, blend.Weights)
		assert.InDelta(t, 1.0, blend.Weights.Sum(), 1e-9)
		assert.Equal(t, 15000.0, blend.FinalAvgPricePerArea)
	})

	t.Run("falls back when the province is empty", func(t *testing.T) {
		dataset := &MockDataset{}
		dataset.On("PricePerAreaSamples", mock.Anything, mock.Anything).Return([]float64{15000}, nil)
		dataset.On("AveragePricePerArea", mock.Anything, mock.Anything).Return(0.0, 0, nil)

		blend := NewAggregator(dataset, stubSegments{1}, 0, quietLogger()).Blend(ctx, subject, residential(100), 15000)

		assert.Equal(t, LocalOnlyWeights, blend.Weights)
	})
}

func TestDepreciation(t *testing.T) {
	tests := []struct {
		name     string
		features models.PropertyFeatures
		expected float64
	}{
		{"unknown age", residential(100), 1.0},
		{"new building", models.PropertyFeatures{PropertyType: models.PropertyResidential, BuildingAge: intPtr(0)}, 1.0},
		{"ten years", models.PropertyFeatures{PropertyType: models.PropertyResidential, BuildingAge: intPtr(10)}, 0.9},
		{"floor at half", models.PropertyFeatures{PropertyType: models.PropertyResidential, BuildingAge: intPtr(80)}, 0.5},
		{"land is not depreciated", models.PropertyFeatures{PropertyType: models.PropertyLand, BuildingAge: intPtr(30)}, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Depreciation(tt.features), 1e-9)
		})
	}
}

func TestFeatureMultiplier(t *testing.T) {
	t.Run("residential features", func(t *testing.T) {
		features := residential(100)
		features.Floor = intPtr(0)
		features.HasElevator = true
		features.HasParking = true

		multiplier, impact := FeatureMultiplier(features)

		assert.InDelta(t, 0.96*1.05*1.06, multiplier, 1e-9)
		assert.Equal(t, map[string]float64{"ground_floor": -4, "elevator": 5, "parking": 6}, impact)
	})

	t.Run("mid floor and balcony", func(t *testing.T) {
		features := residential(100)
		features.Floor = intPtr(3)
		features.HasBalcony = true

		multiplier, _ := FeatureMultiplier(features)
		assert.InDelta(t, 1.04*1.03, multiplier, 1e-9)
	})

	t.Run("other types are not adjusted", func(t *testing.T) {
		multiplier, impact := FeatureMultiplier(models.PropertyFeatures{
			PropertyType: models.PropertyCommercial,
			HasElevator:  true,
		})
		assert.Equal(t, 1.0, multiplier)
		assert.NotNil(t, impact)
		assert.Empty(t, impact)
	})
}

func buckets(values ...float64) []models.PriceBucket {
	out := make([]models.PriceBucket, len(values))
	for i, v := range values {
		out[i] = models.PriceBucket{Period: fmt.Sprintf("2026-%02d", i+1), AvgPricePerArea: v, Count: 10}
	}
	return out
}

func TestClassifyTrend(t *testing.T) {
	tests := []struct {
		name       string
		buckets    []models.PriceBucket
		trend      string
		percentage float64
	}{
		{"rising", buckets(10000, 11000, 11000, 11000), models.TrendRising, 10.0},
		{"falling", buckets(10000, 9000, 9000, 9000), models.TrendFalling, -10.0},
		{"stable", buckets(10000, 10100, 10100, 10100), models.TrendStable, 1.0},
		{"two buckets", buckets(10000, 12000), models.TrendRising, 10.0},
		{"single bucket", buckets(10000), models.TrendStable, 0},
		{"no buckets", nil, models.TrendStable, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trend, percentage, description := ClassifyTrend(tt.buckets)
			assert.Equal(t, tt.trend, trend)
			assert.InDelta(t, tt.percentage, percentage, 1e-9)
			assert.NotEmpty(t, description)
		})
	}
}

func TestTrendAnalyzer(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	t.Run("analyzes monthly and weekly buckets", func(t *testing.T) {
		dataset := &MockDataset{}
		dataset.On("PriceBuckets", mock.Anything, mock.MatchedBy(func(q models.ListingQuery) bool {
			return q.Since.Equal(now.AddDate(0, -6, 0)) && q.NeighborhoodKey == "kemaliye"
		}), models.BucketMonth).Return(buckets(10000.4, 11000, 11000, 11000), nil)
		dataset.On("PriceBuckets", mock.Anything, mock.Anything, models.BucketWeek).Return(buckets(11000, 11200), nil)

		analyzer := NewTrendAnalyzer(dataset, stubSegments{1}, 0, quietLogger())
		analyzer.now = func() time.Time { return now }

		analysis := analyzer.Analyze(ctx, subject, residential(100))

		assert.Equal(t, models.TrendRising, analysis.Trend)
		assert.Equal(t, 10.0, analysis.TrendPercentage)
		assert.Equal(t, 10000.0, analysis.MonthlyData[0].AvgPricePerArea)
		assert.Len(t, analysis.WeeklyData, 2)
		dataset.AssertExpectations(t)
	})

	t.Run("query failure degrades to stable", func(t *testing.T) {
		dataset := &MockDataset{}
		dataset.On("PriceBuckets", mock.Anything, mock.Anything, models.BucketMonth).Return(nil, errors.New("no such table"))

		analyzer := NewTrendAnalyzer(dataset, stubSegments{1}, 0, quietLogger())
		analysis := analyzer.Analyze(ctx, subject, residential(100))

		assert.Equal(t, models.TrendStable, analysis.Trend)
		assert.Equal(t, 0.0, analysis.TrendPercentage)
		assert.Equal(t, "Trend data could not be calculated", analysis.Description)
	})

	t.Run("market summary", func(t *testing.T) {
		dataset := &MockDataset{}
		dataset.On("PriceBuckets", mock.Anything, mock.Anything, mock.Anything).Return(buckets(12000), nil)
		dataset.On("SegmentSummary", mock.Anything, mock.MatchedBy(func(q models.ListingQuery) bool {
			return q.NeighborhoodKey == "" && q.DistrictKey == "hendek" && q.Since.IsZero()
		})).Return(models.SegmentSummary{
			TotalListings:   42,
			AvgDaysOnMarket: 31.6,
			MinPricePerArea: 9000,
			MaxPricePerArea: 21000,
			AvgPricePerArea: 14999.7,
		}, nil)

		summary := NewTrendAnalyzer(dataset, stubSegments{1}, 0, quietLogger()).MarketSummary(ctx, subject, residential(100))

		assert.Equal(t, 42, summary.TotalListings)
		assert.Equal(t, 32.0, summary.AvgDaysOnMarket)
		assert.Equal(t, 15000.0, summary.AvgPricePerArea)
		assert.Equal(t, models.TrendStable, summary.TrendAnalysis.Trend)
	})
}

func TestConfidenceModels(t *testing.T) {
	t.Run("fixed", func(t *testing.T) {
		b := FixedConfidence{}.Score(ConfidenceInput{ComparableCount: 1})
		assert.Equal(t, 75, b.Total())
		assert.Equal(t, models.ConfidenceBreakdown{ComparableCount: 20, Consistency: 15, Location: 15, Regional: 25}, b)
	})

	tests := []struct {
		name     string
		input    ConfidenceInput
		expected models.ConfidenceBreakdown
	}{
		{
			name:     "strong evidence",
			input:    ConfidenceInput{ComparableCount: 20, AvgPricePerArea: 10000, StdDeviation: 1000, LocationScore: 100, NeighborhoodSamples: 25, ProvinceSamples: 60},
			expected: models.ConfidenceBreakdown{ComparableCount: 30, Consistency: 20, Location: 15, Regional: 35},
		},
		{
			name:     "moderate evidence",
			input:    ConfidenceInput{ComparableCount: 6, AvgPricePerArea: 10000, StdDeviation: 3000, LocationScore: 50, NeighborhoodSamples: 4, ProvinceSamples: 20},
			expected: models.ConfidenceBreakdown{ComparableCount: 18, Consistency: 12, Location: 8, Regional: 13},
		},
		{
			name:     "weak evidence",
			input:    ConfidenceInput{ComparableCount: 1},
			expected: models.ConfidenceBreakdown{ComparableCount: 10, Consistency: 6, Location: 0, Regional: 0},
		},
	}
	for _, tt := range tests {
		t.Run("dynamic "+tt.name, func(t *testing.T) {
			b := DynamicConfidence{}.Score(tt.input)
			assert.Equal(t, tt.expected, b)
			assert.LessOrEqual(t, b.Total(), 100)
		})
	}

	t.Run("registry", func(t *testing.T) {
		model, err := NewConfidenceModel("dynamic")
		require.NoError(t, err)
		assert.IsType(t, DynamicConfidence{}, model)

		model, err = NewConfidenceModel("")
		require.NoError(t, err)
		assert.IsType(t, FixedConfidence{}, model)

		_, err = NewConfidenceModel("regression")
		assert.Error(t, err)
	})
}

// engineDataset returns five identical comparables at 15000 per m², a
// neighborhood average of 15000 and a province benchmark of 12000
func engineDataset() *MockDataset {
	dataset := &MockDataset{}
	records := make([]models.ListingRecord, 0, 5)
	for i := int64(1); i <= 5; i++ {
		records = append(records, listing(i, "1.500.000 TL", "100 m²", "Kemaliye"))
	}
	dataset.On("SearchListings", mock.Anything, mock.Anything).Return(records, nil)
	dataset.On("PricePerAreaSamples", mock.Anything, mock.Anything).Return([]float64{14000, 14000, 16000, 16000}, nil)
	dataset.On("AveragePricePerArea", mock.Anything, mock.Anything).Return(12000.0, 40, nil)
	return dataset
}

func defaultScanner() LocationScanner {
	return scannerFunc(func(context.Context, float64, float64) []models.NearbyPOI {
		return poi.DefaultPOIs()
	})
}

func TestEngine_Estimate(t *testing.T) {
	ctx := context.Background()

	t.Run("composes the final value", func(t *testing.T) {
		engine := NewEngine(engineDataset(), defaultScanner(), stubSegments{1.04}, FixedConfidence{}, EngineOptions{}, quietLogger())

		result, err := engine.Estimate(ctx, subject, residential(100))
		require.NoError(t, err)

		// 14550 × 100 × (1 + 0.29 × 0.1) × 1.04
		assert.Equal(t, int64(1557083), result.EstimatedValue)
		assert.Equal(t, int64(15571), result.PricePerArea)
		assert.Equal(t, 79, result.LocationScore.Total)
		assert.Equal(t, 75, result.ConfidenceScore)
		assert.Equal(t, 5, result.MarketAnalysis.TotalComparables)
		assert.Len(t, result.ComparableProperties, 5)
		assert.Equal(t, "neighborhood_10", result.CalculationMetadata.Strategy)
		assert.Equal(t, 1.04, result.CalculationMetadata.NeighborhoodCoefficient)
		assert.InDelta(t, 1.0, result.CalculationMetadata.Weights.Sum(), 1e-9)
		assert.NotEmpty(t, result.NarrativeInsight)
		assert.NotEmpty(t, result.Methodology)
	})

	t.Run("price range invariant", func(t *testing.T) {
		for _, area := range []float64{47, 100, 133.5} {
			dataset := &MockDataset{}
			dataset.On("SearchListings", mock.Anything, mock.Anything).Return([]models.ListingRecord{
				listing(1, fmt.Sprintf("%.0f TL", area*13377), fmt.Sprintf("%.1f", area), "Kemaliye"),
			}, nil)
			dataset.On("PricePerAreaSamples", mock.Anything, mock.Anything).Return([]float64{}, nil)
			dataset.On("AveragePricePerArea", mock.Anything, mock.Anything).Return(0.0, 0, nil)

			engine := NewEngine(dataset, defaultScanner(), stubSegments{0.97}, DynamicConfidence{}, EngineOptions{}, quietLogger())
			result, err := engine.Estimate(ctx, subject, residential(area))
			require.NoError(t, err)

			assert.Equal(t, int64(math.Round(float64(result.EstimatedValue)*0.9)), result.PriceRange.Min)
			assert.Equal(t, int64(math.Round(float64(result.EstimatedValue)*1.1)), result.PriceRange.Max)
			assert.GreaterOrEqual(t, result.ConfidenceScore, 0)
			assert.LessOrEqual(t, result.ConfidenceScore, 100)
			assert.GreaterOrEqual(t, result.LocationScore.Total, 0)
			assert.Equal(t, LocalOnlyWeights, result.CalculationMetadata.Weights)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		engine := NewEngine(engineDataset(), defaultScanner(), stubSegments{1}, DynamicConfidence{}, EngineOptions{}, quietLogger())

		first, err := engine.Estimate(ctx, subject, residential(100))
		require.NoError(t, err)
		second, err := engine.Estimate(ctx, subject, residential(100))
		require.NoError(t, err)

		assert.Equal(t, first, second)
	})

	t.Run("adds the trend", func(t *testing.T) {
		dataset := engineDataset()
		dataset.On("PriceBuckets", mock.Anything, mock.Anything, models.BucketMonth).Return(buckets(10000, 9000, 9000, 9000), nil)
		dataset.On("PriceBuckets", mock.Anything, mock.Anything, models.BucketWeek).Return([]models.PriceBucket{}, nil)

		engine := NewEngine(dataset, defaultScanner(), stubSegments{1}, nil, EngineOptions{TrendEnabled: true}, quietLogger())
		result, err := engine.Estimate(ctx, subject, residential(100))
		require.NoError(t, err)

		assert.Equal(t, models.TrendFalling, result.MarketAnalysis.Trend)
		assert.Equal(t, -10.0, result.MarketAnalysis.TrendPercentage)
		assert.Contains(t, result.NarrativeInsight, "falling")
	})

	t.Run("no POIs still values", func(t *testing.T) {
		scanner := scannerFunc(func(context.Context, float64, float64) []models.NearbyPOI { return nil })
		engine := NewEngine(engineDataset(), scanner, stubSegments{1}, nil, EngineOptions{}, quietLogger())

		result, err := engine.Estimate(ctx, subject, residential(100))
		require.NoError(t, err)
		assert.NotNil(t, result.NearbyPOIs)
		assert.Less(t, result.LocationScore.Total, 50)
	})

	t.Run("insufficient data is fatal", func(t *testing.T) {
		dataset := &MockDataset{}
		dataset.On("SearchListings", mock.Anything, mock.Anything).Return([]models.ListingRecord{}, nil)

		engine := NewEngine(dataset, defaultScanner(), stubSegments{1}, nil, EngineOptions{}, quietLogger())
		result, err := engine.Estimate(ctx, subject, residential(100))

		assert.Nil(t, result)
		assert.True(t, errors.Is(err, ErrDataInsufficient))
		dataset.AssertNotCalled(t, "AveragePricePerArea", mock.Anything, mock.Anything)
	})

	t.Run("invalid input", func(t *testing.T) {
		dataset := &MockDataset{}
		engine := NewEngine(dataset, defaultScanner(), stubSegments{1}, nil, EngineOptions{}, quietLogger())

		for _, features := range []models.PropertyFeatures{
			{PropertyType: "castle", Area: 100},
			{PropertyType: models.PropertyResidential, Area: 0},
			{PropertyType: models.PropertyResidential, Area: 100, Floor: intPtr(-1)},
		} {
			_, err := engine.Estimate(ctx, subject, features)
			assert.True(t, errors.Is(err, ErrInvalidRequest))
		}

		_, err := engine.Estimate(ctx, models.LocationPoint{Lat: 91, Lng: 30}, residential(100))
		assert.True(t, errors.Is(err, ErrInvalidRequest))
		dataset.AssertNotCalled(t, "SearchListings", mock.Anything, mock.Anything)
	})
}

func TestService_Valuate(t *testing.T) {
	ctx := context.Background()
	input := models.ValuationInput{Location: subject, Features: residential(100)}

	newEngine := func() *Engine {
		return NewEngine(engineDataset(), defaultScanner(), stubSegments{1}, nil, EngineOptions{}, quietLogger())
	}

	t.Run("narrative and archive", func(t *testing.T) {
		narrator := &MockNarrator{}
		narrator.On("Summarize", mock.Anything, input, mock.Anything).Return("  A well located flat.  ", nil)
		archiver := &MockArchiver{}
		archiver.On("Save", mock.Anything, input, mock.Anything).Return("b9a1c1e2", nil)

		service := NewService(newEngine(), nil, narrator, archiver, time.Second, quietLogger())
		result, id, err := service.Valuate(ctx, input)

		require.NoError(t, err)
		assert.Equal(t, "A well located flat.", result.NarrativeInsight)
		assert.Equal(t, "b9a1c1e2", id)
		narrator.AssertExpectations(t)
		archiver.AssertExpectations(t)
	})

	t.Run("degraded collaborators never fail the request", func(t *testing.T) {
		narrator := &MockNarrator{}
		narrator.On("Summarize", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("502 bad gateway"))
		archiver := &MockArchiver{}
		archiver.On("Save", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("queue full"))

		service := NewService(newEngine(), nil, narrator, archiver, time.Second, quietLogger())
		result, id, err := service.Valuate(ctx, input)

		require.NoError(t, err)
		assert.Empty(t, id)
		assert.Contains(t, result.NarrativeInsight, "1.")
		assert.Greater(t, result.EstimatedValue, int64(0))
	})

	t.Run("estimate errors are returned", func(t *testing.T) {
		archiver := &MockArchiver{}
		service := NewService(newEngine(), nil, nil, archiver, 0, quietLogger())

		_, _, err := service.Valuate(ctx, models.ValuationInput{Location: subject})
		assert.True(t, errors.Is(err, ErrInvalidRequest))
		archiver.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
	})
}

type resolverFunc func(loc models.LocationPoint) models.LocationPoint

func (f resolverFunc) Resolve(_ context.Context, loc models.LocationPoint) models.LocationPoint {
	return f(loc)
}

func TestService_Trend(t *testing.T) {
	ctx := context.Background()
	resolver := resolverFunc(func(loc models.LocationPoint) models.LocationPoint {
		loc.District, loc.Neighborhood = "Hendek", "Kemaliye"
		return loc
	})

	t.Run("resolves the location before summarizing", func(t *testing.T) {
		dataset := &MockDataset{}
		dataset.On("PriceBuckets", mock.Anything, mock.Anything, mock.Anything).Return(buckets(12000), nil)
		dataset.On("SegmentSummary", mock.Anything, mock.MatchedBy(func(q models.ListingQuery) bool {
			return q.DistrictKey == "hendek"
		})).Return(models.SegmentSummary{TotalListings: 7}, nil)

		engine := NewEngine(dataset, defaultScanner(), stubSegments{1}, nil, EngineOptions{}, quietLogger())
		service := NewService(engine, resolver, nil, nil, 0, quietLogger())

		summary, err := service.Trend(ctx, models.LocationPoint{Lat: subject.Lat, Lng: subject.Lng}, residential(100))
		require.NoError(t, err)
		assert.Equal(t, 7, summary.TotalListings)
		dataset.AssertExpectations(t)
	})

	t.Run("invalid input", func(t *testing.T) {
		dataset := &MockDataset{}
		engine := NewEngine(dataset, defaultScanner(), stubSegments{1}, nil, EngineOptions{}, quietLogger())
		service := NewService(engine, resolver, nil, nil, 0, quietLogger())

		_, err := service.Trend(ctx, subject, models.PropertyFeatures{PropertyType: models.PropertyResidential})
		assert.True(t, errors.Is(err, ErrInvalidRequest))
		dataset.AssertNotCalled(t, "SegmentSummary", mock.Anything, mock.Anything)
	})
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "1.557.083 TL", formatMoney(1557083))
	assert.Equal(t, "950 TL", formatMoney(950))
	assert.Equal(t, "-1.000 TL", formatMoney(-1000))
}
