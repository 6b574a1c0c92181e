// Package geometry holds the geographic helpers of the valuation pipeline.
package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Point builds an orb point from latitude and longitude
func Point(lat, lng float64) orb.Point {
	return orb.Point{lng, lat}
}

// DistanceMeters returns the great-circle distance between two positions
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	return geo.DistanceHaversine(Point(lat1, lng1), Point(lat2, lng2))
}

// DistanceKm returns the great-circle distance in kilometers rounded to two
// decimals
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	km := DistanceMeters(lat1, lng1, lat2, lng2) / 1000
	return math.Round(km*100) / 100
}

// ValidCoordinates reports whether lat and lng are on the globe
func ValidCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
