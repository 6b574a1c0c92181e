package valuation

import (
	"errors"
	"fmt"

	"avm/internal/geometry"
	"avm/internal/models"
)

var (
	// ErrDataInsufficient means no comparable listing was found even with the
	// widest search. No estimate is produced.
	ErrDataInsufficient = errors.New("not enough comparable data for this location and property")

	ErrInvalidRequest = errors.New("invalid valuation request")
)

// InsufficientDataError describes the request that could not be valued
type InsufficientDataError struct {
	PropertyType models.PropertyType
	Area         float64
	District     string
	Neighborhood string
}

func (e *InsufficientDataError) Error() string {
	where := e.District
	if e.Neighborhood != "" {
		where = e.Neighborhood + ", " + e.District
	}
	if where == "" {
		where = "the selected location"
	}
	return fmt.Sprintf("%v: no %s listings of about %.0f m² in %s", ErrDataInsufficient, e.PropertyType, e.Area, where)
}

func (e *InsufficientDataError) Unwrap() error {
	return ErrDataInsufficient
}

// ValidateInput checks a location and feature set before valuation
func ValidateInput(loc models.LocationPoint, features models.PropertyFeatures) error {
	if !features.PropertyType.Valid() {
		return fmt.Errorf("%w: unknown property type %q", ErrInvalidRequest, features.PropertyType)
	}
	if features.Area <= 0 {
		return fmt.Errorf("%w: area must be positive", ErrInvalidRequest)
	}
	if !geometry.ValidCoordinates(loc.Lat, loc.Lng) {
		return fmt.Errorf("%w: coordinates out of range", ErrInvalidRequest)
	}
	if features.Floor != nil && *features.Floor < 0 {
		return fmt.Errorf("%w: floor cannot be negative", ErrInvalidRequest)
	}
	if features.BuildingAge != nil && *features.BuildingAge < 0 {
		return fmt.Errorf("%w: building age cannot be negative", ErrInvalidRequest)
	}
	return nil
}
