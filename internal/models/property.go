package models

import "time"

// PropertyType is the kind of property being valued
type PropertyType string

const (
	PropertyResidential  PropertyType = "residential"
	PropertyLand         PropertyType = "land"
	PropertyCommercial   PropertyType = "commercial"
	PropertyIndustrial   PropertyType = "industrial"
	PropertyAgricultural PropertyType = "agricultural"
)

// Valid reports whether t is one of the supported property types
func (t PropertyType) Valid() bool {
	switch t {
	case PropertyResidential, PropertyLand, PropertyCommercial, PropertyIndustrial, PropertyAgricultural:
		return true
	}
	return false
}

// ListingStatus tells whether a listing is still published
type ListingStatus string

const (
	ListingActive   ListingStatus = "active"
	ListingArchived ListingStatus = "archived"
)

const (
	TransactionSale = "sale"
	TransactionRent = "rent"
)

// LocationPoint is the position of the subject property
type LocationPoint struct {
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	Address      string  `json:"address,omitempty"`
	District     string  `json:"district,omitempty"`
	Neighborhood string  `json:"neighborhood,omitempty"`
}

// PropertyFeatures describes the physical attributes of the subject property
type PropertyFeatures struct {
	PropertyType PropertyType `json:"property_type"`
	Area         float64      `json:"area"`
	RoomCount    *int         `json:"room_count,omitempty"`
	BuildingAge  *int         `json:"building_age,omitempty"`
	Floor        *int         `json:"floor,omitempty"`
	TotalFloors  *int         `json:"total_floors,omitempty"`
	HasElevator  bool         `json:"has_elevator,omitempty"`
	HasParking   bool         `json:"has_parking,omitempty"`
	HasBalcony   bool         `json:"has_balcony,omitempty"`
	Heating      string       `json:"heating,omitempty"`
	Furnished    *bool        `json:"furnished,omitempty"`
}

// ListingRecord is a crawled listing as stored in the dataset. Price and
// AreaText are kept as published and may not be numeric.
type ListingRecord struct {
	ID              int64         `json:"id"`
	Title           string        `json:"title"`
	Price           string        `json:"price"`
	AreaText        string        `json:"area_text"`
	LocationText    string        `json:"location_text"`
	Category        string        `json:"category"`
	TransactionType string        `json:"transaction_type"`
	District        string        `json:"district"`
	Neighborhood    string        `json:"neighborhood"`
	Latitude        *float64      `json:"latitude"`
	Longitude       *float64      `json:"longitude"`
	CrawledAt       time.Time     `json:"crawled_at"`
	RemovedAt       *time.Time    `json:"removed_at,omitempty"`
	Status          ListingStatus `json:"status"`
}

// HasCoordinates reports whether the listing carries a usable position
func (r ListingRecord) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// ListingQuery filters the listings dataset. Zero values disable a filter.
type ListingQuery struct {
	Categories      []string
	TransactionType string
	PriceMin        int64
	AreaMin         float64
	AreaMax         float64
	// PricePerAreaMin and PricePerAreaMax bound price divided by area
	PricePerAreaMin float64
	PricePerAreaMax float64
	// DistrictKey and NeighborhoodKey are normalized names
	DistrictKey     string
	NeighborhoodKey string
	// IncludeArchivedWithinDays adds listings removed within the window
	IncludeArchivedWithinDays int
	Since                     time.Time
	Limit                     int
}

// BucketInterval is the granularity of a price aggregate
type BucketInterval string

const (
	BucketMonth BucketInterval = "month"
	BucketWeek  BucketInterval = "week"
)

// PriceBucket aggregates price-per-area over one period
type PriceBucket struct {
	Period          string  `json:"period"`
	AvgPricePerArea float64 `json:"avg_price_per_area"`
	MinPricePerArea float64 `json:"min_price_per_area"`
	MaxPricePerArea float64 `json:"max_price_per_area"`
	Count           int     `json:"count"`
}

// SegmentSummary is an aggregate over all listings of a segment
type SegmentSummary struct {
	TotalListings   int     `json:"total_listings"`
	AvgDaysOnMarket float64 `json:"avg_days_on_market"`
	MinPricePerArea float64 `json:"min_price_per_area"`
	MaxPricePerArea float64 `json:"max_price_per_area"`
	AvgPricePerArea float64 `json:"avg_price_per_area"`
}
