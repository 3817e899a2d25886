package geo

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/lihtc-philly/pipeline/internal/models"
)

// Feature is one polygon feature from a boundary layer together with
// its attribute table values.
type Feature struct {
	Attrs    map[string]string
	Geometry models.MultiPolygon

	// Bounding box for quick rejection before the full containment test.
	minLng, minLat, maxLng, maxLat float64
}

// Layer is an in-memory boundary layer (district boundaries, parcel
// boundaries). Layers are loaded once per run and never mutated.
type Layer struct {
	Name     string
	features []Feature
}

// LoadLayer reads a boundary layer from disk, dispatching on file
// extension. GeoJSON FeatureCollections and ESRI shapefiles are the
// two formats the upstream providers publish.
func LoadLayer(path string) (*Layer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return loadGeoJSON(path)
	case ".shp":
		return loadShapefile(path)
	default:
		return nil, fmt.Errorf("unsupported boundary layer format: %s", path)
	}
}

// FindContaining returns the attributes of the first feature whose
// geometry contains the point. The second return value is false when
// no feature contains it (not an error).
func (l *Layer) FindContaining(pt models.Point) (map[string]string, bool) {
	for i := range l.features {
		f := &l.features[i]
		if pt.Lng < f.minLng || pt.Lng > f.maxLng || pt.Lat < f.minLat || pt.Lat > f.maxLat {
			continue // quick bbox reject
		}
		if f.Geometry.Contains(pt) {
			return f.Attrs, true
		}
	}
	return nil, false
}

// Len returns the number of features in the layer.
func (l *Layer) Len() int {
	return len(l.features)
}

// Features returns the layer's features for iteration.
func (l *Layer) Features() []Feature {
	return l.features
}

// loadGeoJSON parses a GeoJSON FeatureCollection.
func loadGeoJSON(path string) (*Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read boundary layer %s: %w", path, err)
	}

	var collection struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]json.RawMessage `json:"properties"`
			Geometry   json.RawMessage            `json:"geometry"`
		} `json:"features"`
	}
	if err := json.Unmarshal(data, &collection); err != nil {
		return nil, fmt.Errorf("failed to parse boundary layer %s: %w", path, err)
	}
	if collection.Type != "FeatureCollection" {
		return nil, fmt.Errorf("%s: expected FeatureCollection, got %q", path, collection.Type)
	}

	layer := &Layer{Name: filepath.Base(path)}
	for i, raw := range collection.Features {
		var geometry models.MultiPolygon
		if len(raw.Geometry) > 0 && string(raw.Geometry) != "null" {
			if err := json.Unmarshal(raw.Geometry, &geometry); err != nil {
				return nil, fmt.Errorf("%s: feature %d: %w", path, i, err)
			}
		}
		if len(geometry.Coordinates) == 0 {
			continue // feature without polygon geometry cannot match anything
		}

		attrs := make(map[string]string, len(raw.Properties))
		for key, value := range raw.Properties {
			attrs[key] = coerceAttr(value)
		}

		layer.features = append(layer.features, newFeature(attrs, geometry))
	}

	return layer, nil
}

// loadShapefile reads a polygon shapefile plus its DBF attribute table.
// Each polygon part becomes its own member of the MultiPolygon, the
// same treatment the county zoning layers get elsewhere.
func loadShapefile(path string) (*Layer, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open shapefile %s: %w", path, err)
	}
	defer reader.Close()

	fields := reader.Fields()
	layer := &Layer{Name: filepath.Base(path)}

	for reader.Next() {
		idx, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			// Skip non-polygon geometries
			continue
		}

		numParts := len(poly.Parts)
		coords := make([][][][2]float64, 0, numParts)
		for partIdx := 0; partIdx < numParts; partIdx++ {
			start := poly.Parts[partIdx]
			end := int32(len(poly.Points))
			if partIdx+1 < numParts {
				end = poly.Parts[partIdx+1]
			}
			ring := make([][2]float64, 0, int(end-start))
			for i := start; i < end; i++ {
				pt := poly.Points[i]
				ring = append(ring, [2]float64{pt.X, pt.Y})
			}
			coords = append(coords, [][][2]float64{ring})
		}
		if len(coords) == 0 {
			continue
		}

		attrs := make(map[string]string, len(fields))
		for i, f := range fields {
			attrs[f.String()] = strings.TrimSpace(reader.ReadAttribute(idx, i))
		}

		layer.features = append(layer.features, newFeature(attrs, models.MultiPolygon{Coordinates: coords}))
	}

	return layer, nil
}

// newFeature precomputes the bounding box.
func newFeature(attrs map[string]string, geometry models.MultiPolygon) Feature {
	minLng, minLat, maxLng, maxLat := geometry.Bounds()
	return Feature{
		Attrs:    attrs,
		Geometry: geometry,
		minLng:   minLng,
		minLat:   minLat,
		maxLng:   maxLng,
		maxLat:   maxLat,
	}
}

// coerceAttr renders a GeoJSON property value as a plain string.
// District numbers, in particular, arrive as JSON numbers but are used
// as string keys everywhere downstream.
func coerceAttr(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return fmt.Sprintf("%d", i)
		}
		if f, err := n.Float64(); err == nil && f == math.Trunc(f) {
			return fmt.Sprintf("%d", int64(f))
		}
		return n.String()
	}

	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "null" {
		return ""
	}
	return trimmed
}
