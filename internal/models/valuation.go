package models

import "time"

// POI categories scanned around the subject property
const (
	POISchool         = "school"
	POIHospital       = "hospital"
	POIShoppingMall   = "shopping_mall"
	POIPark           = "park"
	POITransportation = "transportation"
	POIWorship        = "worship"
	POIMarket         = "market"
	POIBakery         = "bakery"
)

// Trend directions
const (
	TrendRising  = "rising"
	TrendStable  = "stable"
	TrendFalling = "falling"
)

// Place is a raw result of the POI provider
type Place struct {
	Name   string   `json:"name"`
	Lat    float64  `json:"lat"`
	Lng    float64  `json:"lng"`
	Rating *float64 `json:"rating,omitempty"`
}

// NearbyPOI is an amenity found around the subject property
type NearbyPOI struct {
	Category       string   `json:"category"`
	Name           string   `json:"name"`
	DistanceMeters int      `json:"distance_meters"`
	Rating         *float64 `json:"rating,omitempty"`
	IsChainMarket  bool     `json:"is_chain_market,omitempty"`
}

type POIDetail struct {
	Name           string `json:"name"`
	DistanceMeters int    `json:"distance_meters"`
	IsChainMarket  bool   `json:"is_chain_market,omitempty"`
}

type CategoryPOIDetails struct {
	Transportation []POIDetail `json:"transportation"`
	Education      []POIDetail `json:"education"`
	Amenities      []POIDetail `json:"amenities"`
	Health         []POIDetail `json:"health"`
}

type ScoreBreakdown struct {
	Transportation int `json:"transportation"`
	Education      int `json:"education"`
	Amenities      int `json:"amenities"`
	Health         int `json:"health"`
	Environment    int `json:"environment"`
	Proximity      int `json:"proximity"`
}

// LocationScore rates the surroundings of a location from 0 to 100
type LocationScore struct {
	Total         int                `json:"total"`
	Breakdown     ScoreBreakdown     `json:"breakdown"`
	Advantages    []string           `json:"advantages"`
	Disadvantages []string           `json:"disadvantages"`
	POIDetails    CategoryPOIDetails `json:"poi_details"`
}

// ComparableProperty is a listing used as evidence for a valuation
type ComparableProperty struct {
	ID           int64         `json:"id"`
	Title        string        `json:"title"`
	Price        float64       `json:"price"`
	Area         float64       `json:"area"`
	LocationText string        `json:"location_text"`
	DistanceKm   float64       `json:"distance_km"`
	PricePerArea float64       `json:"price_per_area"`
	Similarity   int           `json:"similarity"`
	Status       ListingStatus `json:"status"`
}

type PriceRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

type MarketAnalysis struct {
	AvgPricePerArea    float64    `json:"avg_price_per_area"`
	MedianPricePerArea float64    `json:"median_price_per_area"`
	StdDeviation       float64    `json:"std_deviation"`
	TotalComparables   int        `json:"total_comparables"`
	PriceRange         PriceRange `json:"price_range"`
	Trend              string     `json:"trend"`
	TrendPercentage    float64    `json:"trend_percentage"`
	TrendDescription   string     `json:"trend_description,omitempty"`
}

// BlendWeights are the shares of the local, neighborhood and province
// averages in the final price-per-area. They always sum to 1.
type BlendWeights struct {
	Local        float64 `json:"local"`
	Neighborhood float64 `json:"neighborhood"`
	Province     float64 `json:"province"`
}

// Sum returns the total of the three weights
func (w BlendWeights) Sum() float64 {
	return w.Local + w.Neighborhood + w.Province
}

type ConfidenceBreakdown struct {
	ComparableCount int `json:"comparable_count"`
	Consistency     int `json:"consistency"`
	Location        int `json:"location"`
	Regional        int `json:"regional"`
}

// Total returns the sum of the components
func (b ConfidenceBreakdown) Total() int {
	return b.ComparableCount + b.Consistency + b.Location + b.Regional
}

type CalculationMetadata struct {
	Weights                 BlendWeights        `json:"weights"`
	ConfidenceBreakdown     ConfidenceBreakdown `json:"confidence_breakdown"`
	FeatureImpact           map[string]float64  `json:"feature_impact"`
	NeighborhoodCoefficient float64             `json:"neighborhood_coefficient"`
	ProvinceDepreciation    float64             `json:"province_depreciation"`
	LocalAvgPricePerArea    float64             `json:"local_avg_price_per_area"`
	NeighborhoodAvg         float64             `json:"neighborhood_avg_price_per_area"`
	NeighborhoodSamples     int                 `json:"neighborhood_samples"`
	ProvinceAvg             float64             `json:"province_avg_price_per_area"`
	ProvinceSamples         int                 `json:"province_samples"`
	Strategy                string              `json:"strategy"`
}

// ValuationResult is the outcome of a single valuation request
type ValuationResult struct {
	EstimatedValue       int64                `json:"estimated_value"`
	PriceRange           PriceRange           `json:"price_range"`
	ConfidenceScore      int                  `json:"confidence_score"`
	PricePerArea         int64                `json:"price_per_area"`
	LocationScore        LocationScore        `json:"location_score"`
	MarketAnalysis       MarketAnalysis       `json:"market_analysis"`
	ComparableProperties []ComparableProperty `json:"comparable_properties"`
	NearbyPOIs           []NearbyPOI          `json:"nearby_pois"`
	NarrativeInsight     string               `json:"narrative_insight"`
	Methodology          string               `json:"methodology"`
	CalculationMetadata  CalculationMetadata  `json:"calculation_metadata"`
}

// TrendAnalysis is the historical price movement of a segment
type TrendAnalysis struct {
	Trend           string        `json:"trend"`
	TrendPercentage float64       `json:"trend_percentage"`
	MonthlyData     []PriceBucket `json:"monthly_data"`
	WeeklyData      []PriceBucket `json:"weekly_data"`
	Description     string        `json:"description"`
}

// MarketSummary combines a segment aggregate with its trend
type MarketSummary struct {
	SegmentSummary
	TrendAnalysis TrendAnalysis `json:"trend_analysis"`
}

// Contact is optional requester information stored with archived results
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// ValuationInput is everything a caller supplied for one valuation
type ValuationInput struct {
	Location  LocationPoint    `json:"location"`
	Features  PropertyFeatures `json:"features"`
	Contact   *Contact         `json:"contact,omitempty"`
	IPAddress string           `json:"-"`
	UserAgent string           `json:"-"`
}

// ValuationRecord is an archived valuation
type ValuationRecord struct {
	ID              string           `gorm:"primaryKey;size:36" json:"id"`
	PropertyType    string           `gorm:"index;size:32" json:"property_type"`
	Address         string           `json:"address"`
	District        string           `gorm:"size:100" json:"district"`
	Neighborhood    string           `gorm:"size:100" json:"neighborhood"`
	Latitude        float64          `json:"latitude"`
	Longitude       float64          `json:"longitude"`
	Area            float64          `json:"area"`
	Features        PropertyFeatures `gorm:"serializer:json" json:"features"`
	EstimatedValue  int64            `json:"estimated_value"`
	MinValue        int64            `json:"min_value"`
	MaxValue        int64            `json:"max_value"`
	PricePerArea    int64            `json:"price_per_area"`
	ConfidenceScore int              `json:"confidence_score"`
	Insight         string           `json:"insight"`
	Result          ValuationResult  `gorm:"serializer:json" json:"result"`
	ContactName     string           `json:"contact_name,omitempty"`
	ContactEmail    string           `json:"contact_email,omitempty"`
	ContactPhone    string           `json:"contact_phone,omitempty"`
	IPAddress       string           `gorm:"size:45" json:"-"`
	UserAgent       string           `json:"-"`
	CreatedAt       time.Time        `gorm:"index" json:"created_at"`
}

func (ValuationRecord) TableName() string {
	return "valuation_records"
}
