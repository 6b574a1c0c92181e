package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceKm(t *testing.T) {
	// Hendek town center to Adapazarı center is roughly 29 km
	d := DistanceKm(40.7995, 30.7480, 40.7808, 30.4037)
	assert.InDelta(t, 29.0, d, 2.5)

	assert.Equal(t, 0.0, DistanceKm(40.7995, 30.7480, 40.7995, 30.7480))
}

func TestDistanceMeters(t *testing.T) {
	// One thousandth of a degree of latitude is about 111 m
	d := DistanceMeters(40.0, 30.0, 40.001, 30.0)
	assert.InDelta(t, 111.2, d, 1.0)
}

func TestValidCoordinates(t *testing.T) {
	assert.True(t, ValidCoordinates(40.79, 30.74))
	assert.False(t, ValidCoordinates(91, 30))
	assert.False(t, ValidCoordinates(40, -181))
}

const boundariesJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"district": "Hendek", "neighborhood": "Kemaliye"},
      "geometry": {"type": "Polygon", "coordinates": [[[30.70, 40.78], [30.76, 40.78], [30.76, 40.82], [30.70, 40.82], [30.70, 40.78]]]}
    },
    {
      "type": "Feature",
      "properties": {"district": "Hendek", "neighborhood": "Dereköy"},
      "geometry": {"type": "MultiPolygon", "coordinates": [[[[30.80, 40.70], [30.85, 40.70], [30.85, 40.75], [30.80, 40.75], [30.80, 40.70]]]]}
    },
    {
      "type": "Feature",
      "properties": {"name": "landmark"},
      "geometry": {"type": "Point", "coordinates": [30.74, 40.80]}
    }
  ]
}`

func TestBoundaryIndex_Locate(t *testing.T) {
	index, err := ParseBoundaries([]byte(boundariesJSON), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, index.Len())

	area, ok := index.Locate(40.80, 30.74)
	require.True(t, ok)
	assert.Equal(t, "Hendek", area.District)
	assert.Equal(t, "Kemaliye", area.Neighborhood)

	area, ok = index.Locate(40.72, 30.82)
	require.True(t, ok)
	assert.Equal(t, "Dereköy", area.Neighborhood)

	_, ok = index.Locate(41.5, 29.0)
	assert.False(t, ok)

	var empty *BoundaryIndex
	_, ok = empty.Locate(40.80, 30.74)
	assert.False(t, ok)
}

func TestParseBoundaries_Invalid(t *testing.T) {
	_, err := ParseBoundaries([]byte("not json"), nil)
	assert.Error(t, err)
}
