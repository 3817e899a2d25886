package models

import (
	"encoding/json"
	"fmt"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// Point represents a WGS84 (SRID 4326) coordinate pair.
type Point struct {
	Lng float64
	Lat float64
}

// Polygon represents a GeoJSON Polygon geometry.
// It stores coordinates in GeoJSON format: [rings][points][lon,lat].
// The first ring is the exterior boundary; any further rings are holes.
type Polygon struct {
	Coordinates [][][2]float64
}

// MarshalJSON implements json.Marshaler.
// Returns GeoJSON-compliant format.
func (p Polygon) MarshalJSON() ([]byte, error) {
	geometry := struct {
		Type        string         `json:"type"`
		Coordinates [][][2]float64 `json:"coordinates"`
	}{
		Type:        "Polygon",
		Coordinates: p.Coordinates,
	}
	return json.Marshal(geometry)
}

// UnmarshalJSON implements json.Unmarshaler for parsing GeoJSON input.
func (p *Polygon) UnmarshalJSON(data []byte) error {
	var geometry struct {
		Type        string         `json:"type"`
		Coordinates [][][2]float64 `json:"coordinates"`
	}

	if err := json.Unmarshal(data, &geometry); err != nil {
		return fmt.Errorf("failed to unmarshal polygon: %w", err)
	}

	if geometry.Type != "" && geometry.Type != "Polygon" {
		return fmt.Errorf("expected Polygon type, got %s", geometry.Type)
	}

	p.Coordinates = geometry.Coordinates

	return nil
}

// Contains reports whether the point lies inside the polygon.
// A point inside a hole ring is not contained.
func (p Polygon) Contains(pt Point) bool {
	if len(p.Coordinates) == 0 {
		return false
	}

	coord := geom.Coord{pt.Lng, pt.Lat}
	if !xy.IsPointInRing(geom.XY, coord, flattenRing(p.Coordinates[0])) {
		return false
	}

	// Exterior ring contains the point; check it is not inside a hole.
	for _, hole := range p.Coordinates[1:] {
		if xy.IsPointInRing(geom.XY, coord, flattenRing(hole)) {
			return false
		}
	}

	return true
}

// Bounds returns the min/max lng/lat of the polygon's exterior ring.
func (p Polygon) Bounds() (minLng, minLat, maxLng, maxLat float64) {
	return ringBounds(p.Coordinates)
}

// MultiPolygon represents a GeoJSON MultiPolygon geometry.
// It stores coordinates in GeoJSON format: [polygons][rings][points][lon,lat].
// This is used for parcels and districts that consist of multiple
// separate polygons.
type MultiPolygon struct {
	Coordinates [][][][2]float64
}

// MarshalJSON implements json.Marshaler.
// Returns GeoJSON-compliant format.
func (mp MultiPolygon) MarshalJSON() ([]byte, error) {
	geometry := struct {
		Type        string           `json:"type"`
		Coordinates [][][][2]float64 `json:"coordinates"`
	}{
		Type:        "MultiPolygon",
		Coordinates: mp.Coordinates,
	}
	return json.Marshal(geometry)
}

// UnmarshalJSON implements json.Unmarshaler for parsing GeoJSON input.
// A plain Polygon is accepted and promoted to a single-element
// MultiPolygon, since municipal exports mix the two freely.
func (mp *MultiPolygon) UnmarshalJSON(data []byte) error {
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return fmt.Errorf("failed to unmarshal geometry: %w", err)
	}

	switch header.Type {
	case "MultiPolygon", "":
		var geometry struct {
			Coordinates [][][][2]float64 `json:"coordinates"`
		}
		if err := json.Unmarshal(data, &geometry); err != nil {
			return fmt.Errorf("failed to unmarshal multipolygon: %w", err)
		}
		mp.Coordinates = geometry.Coordinates
	case "Polygon":
		var p Polygon
		if err := p.UnmarshalJSON(data); err != nil {
			return err
		}
		if len(p.Coordinates) > 0 {
			mp.Coordinates = [][][][2]float64{p.Coordinates}
		}
	default:
		return fmt.Errorf("expected Polygon or MultiPolygon type, got %s", header.Type)
	}

	return nil
}

// Contains reports whether the point lies inside any member polygon.
func (mp MultiPolygon) Contains(pt Point) bool {
	for _, polyCoords := range mp.Coordinates {
		if (Polygon{Coordinates: polyCoords}).Contains(pt) {
			return true
		}
	}
	return false
}

// Bounds returns the min/max lng/lat across all member polygons.
func (mp MultiPolygon) Bounds() (minLng, minLat, maxLng, maxLat float64) {
	first := true
	for _, polyCoords := range mp.Coordinates {
		pMinLng, pMinLat, pMaxLng, pMaxLat := ringBounds(polyCoords)
		if first {
			minLng, minLat, maxLng, maxLat = pMinLng, pMinLat, pMaxLng, pMaxLat
			first = false
			continue
		}
		if pMinLng < minLng {
			minLng = pMinLng
		}
		if pMinLat < minLat {
			minLat = pMinLat
		}
		if pMaxLng > maxLng {
			maxLng = pMaxLng
		}
		if pMaxLat > maxLat {
			maxLat = pMaxLat
		}
	}
	return minLng, minLat, maxLng, maxLat
}

// flattenRing converts a GeoJSON ring into the flat coordinate slice
// go-geom's xy predicates operate on.
func flattenRing(ring [][2]float64) []float64 {
	flat := make([]float64, 0, len(ring)*2)
	for _, pt := range ring {
		flat = append(flat, pt[0], pt[1])
	}
	return flat
}

// ringBounds computes the bounding box of a polygon's exterior ring.
func ringBounds(rings [][][2]float64) (minLng, minLat, maxLng, maxLat float64) {
	if len(rings) == 0 || len(rings[0]) == 0 {
		return 0, 0, 0, 0
	}

	first := rings[0][0]
	minLng, maxLng = first[0], first[0]
	minLat, maxLat = first[1], first[1]
	for _, pt := range rings[0] {
		if pt[0] < minLng {
			minLng = pt[0]
		}
		if pt[0] > maxLng {
			maxLng = pt[0]
		}
		if pt[1] < minLat {
			minLat = pt[1]
		}
		if pt[1] > maxLat {
			maxLat = pt[1]
		}
	}
	return minLng, minLat, maxLng, maxLat
}
