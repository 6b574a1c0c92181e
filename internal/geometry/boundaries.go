package geometry

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/sirupsen/logrus"
)

// Area is a named administrative polygon
type Area struct {
	District     string
	Neighborhood string
	Geometry     orb.Geometry
	Bound        orb.Bound
}

// BoundaryIndex resolves coordinates to the neighborhood polygon containing them
type BoundaryIndex struct {
	areas  []Area
	logger *logrus.Logger
}

// LoadBoundaries reads a GeoJSON FeatureCollection whose features carry
// "district" and "neighborhood" properties
func LoadBoundaries(path string, logger *logrus.Logger) (*BoundaryIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read boundaries: %v", err)
	}
	return ParseBoundaries(data, logger)
}

// ParseBoundaries builds an index from raw GeoJSON
func ParseBoundaries(data []byte, logger *logrus.Logger) (*BoundaryIndex, error) {
	if logger == nil {
		logger = logrus.New()
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse boundaries: %v", err)
	}

	index := &BoundaryIndex{logger: logger}
	for _, feature := range fc.Features {
		switch feature.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			logger.WithField("type", feature.Geometry.GeoJSONType()).Warn("Skipping non-polygon boundary")
			continue
		}

		index.areas = append(index.areas, Area{
			District:     feature.Properties.MustString("district", ""),
			Neighborhood: feature.Properties.MustString("neighborhood", ""),
			Geometry:     feature.Geometry,
			Bound:        feature.Geometry.Bound(),
		})
	}

	logger.Infof("Loaded %d neighborhood boundaries", len(index.areas))
	return index, nil
}

// Locate returns the first area containing the position
func (b *BoundaryIndex) Locate(lat, lng float64) (Area, bool) {
	if b == nil {
		return Area{}, false
	}

	p := Point(lat, lng)
	for _, area := range b.areas {
		if !area.Bound.Contains(p) {
			continue
		}
		switch g := area.Geometry.(type) {
		case orb.Polygon:
			if planar.PolygonContains(g, p) {
				return area, true
			}
		case orb.MultiPolygon:
			if planar.MultiPolygonContains(g, p) {
				return area, true
			}
		}
	}
	return Area{}, false
}

// Len returns the number of indexed areas
func (b *BoundaryIndex) Len() int {
	if b == nil {
		return 0
	}
	return len(b.areas)
}
