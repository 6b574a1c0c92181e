package geocoding

import (
	"context"

	"avm/internal/geometry"
	"avm/internal/models"

	"github.com/sirupsen/logrus"
)

// Resolver fills in a missing district or neighborhood of a location from
// boundary polygons first and reverse geocoding second. Names supplied by
// the caller are never replaced.
type Resolver struct {
	boundaries *geometry.BoundaryIndex
	geocoder   *Geocoder
	logger     *logrus.Logger
}

// NewResolver creates a resolver. Either source may be nil.
func NewResolver(boundaries *geometry.BoundaryIndex, geocoder *Geocoder, logger *logrus.Logger) *Resolver {
	if logger == nil {
		logger = logrus.New()
	}
	return &Resolver{boundaries: boundaries, geocoder: geocoder, logger: logger}
}

func complete(loc *models.LocationPoint, district, neighborhood string) {
	if loc.District == "" {
		loc.District = district
	}
	if loc.Neighborhood == "" {
		loc.Neighborhood = neighborhood
	}
}

// Resolve returns loc with blank administrative names filled where possible
func (r *Resolver) Resolve(ctx context.Context, loc models.LocationPoint) models.LocationPoint {
	if r == nil || (loc.District != "" && loc.Neighborhood != "") {
		return loc
	}

	if area, ok := r.boundaries.Locate(loc.Lat, loc.Lng); ok {
		complete(&loc, area.District, area.Neighborhood)
	}

	if r.geocoder != nil && (loc.District == "" || loc.Neighborhood == "") {
		address, err := r.geocoder.ReverseGeocode(ctx, loc.Lat, loc.Lng)
		if err != nil {
			r.logger.WithError(err).Warn("Reverse geocoding failed, continuing with supplied location")
			return loc
		}
		complete(&loc, address.District, address.Neighborhood)
	}

	return loc
}
