package geo

import (
	"os"
	"path/filepath"
	"testing"

	shp "github.com/jonas-p/go-shp"
	"github.com/lihtc-philly/pipeline/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const districtsGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"DISTRICT": 3, "NAME": "Third"},
      "geometry": {"type": "Polygon", "coordinates": [[[-75.2, 39.9], [-75.1, 39.9], [-75.1, 40.0], [-75.2, 40.0], [-75.2, 39.9]]]}
    },
    {
      "type": "Feature",
      "properties": {"DISTRICT": 7, "NAME": "Seventh"},
      "geometry": {"type": "MultiPolygon", "coordinates": [[[[-75.0, 39.9], [-74.9, 39.9], [-74.9, 40.0], [-75.0, 40.0], [-75.0, 39.9]]]]}
    },
    {
      "type": "Feature",
      "properties": {"DISTRICT": 9},
      "geometry": null
    }
  ]
}`

func TestLoadLayer_GeoJSON(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "districts.geojson")
	require.NoError(t, os.WriteFile(path, []byte(districtsGeoJSON), 0o644))

	// Act
	layer, err := LoadLayer(path)

	// Assert
	require.NoError(t, err)
	// Feature without geometry is dropped
	assert.Equal(t, 2, layer.Len())

	attrs, found := layer.FindContaining(models.Point{Lng: -75.15, Lat: 39.95})
	require.True(t, found)
	assert.Equal(t, "3", attrs["DISTRICT"])
	assert.Equal(t, "Third", attrs["NAME"])

	attrs, found = layer.FindContaining(models.Point{Lng: -74.95, Lat: 39.95})
	require.True(t, found)
	assert.Equal(t, "7", attrs["DISTRICT"])

	// Point outside every district
	_, found = layer.FindContaining(models.Point{Lng: -70.0, Lat: 45.0})
	assert.False(t, found)
}

func TestLoadLayer_Shapefile(t *testing.T) {
	// Arrange: write a one-polygon shapefile
	path := filepath.Join(t.TempDir(), "districts.shp")
	writer, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)

	ring := [][]shp.Point{{{X: -75.2, Y: 39.9}, {X: -75.1, Y: 39.9}, {X: -75.1, Y: 40.0}, {X: -75.2, Y: 40.0}, {X: -75.2, Y: 39.9}}}
	polygon := (*shp.Polygon)(shp.NewPolyLine(ring))
	writer.SetFields([]shp.Field{shp.StringField("LEG_DISTRI", 10)})
	writer.Write(polygon)
	writer.WriteAttribute(0, 0, "5")
	writer.Close()

	// Act
	layer, err := LoadLayer(path)

	// Assert
	require.NoError(t, err)
	require.Equal(t, 1, layer.Len())

	attrs, found := layer.FindContaining(models.Point{Lng: -75.15, Lat: 39.95})
	require.True(t, found)
	assert.Equal(t, "5", attrs["LEG_DISTRI"])
}

func TestLoadLayer_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "districts.gpkg")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := LoadLayer(path)

	assert.Error(t, err)
}

func TestLoadLayer_MalformedGeoJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.geojson")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadLayer(path)

	assert.Error(t, err)
}

func TestFindContaining_BBoxReject(t *testing.T) {
	layer := &Layer{
		features: []Feature{
			newFeature(map[string]string{"DISTRICT": "1"}, models.MultiPolygon{
				Coordinates: [][][][2]float64{{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}},
			}),
		},
	}

	// Outside the bbox entirely
	_, found := layer.FindContaining(models.Point{Lng: 5, Lat: 5})
	assert.False(t, found)

	// Inside bbox and polygon
	attrs, found := layer.FindContaining(models.Point{Lng: 0.5, Lat: 0.5})
	require.True(t, found)
	assert.Equal(t, "1", attrs["DISTRICT"])
}
