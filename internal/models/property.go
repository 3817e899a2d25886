package models

import "strings"

// Markers used in the hand-corrected geocode spreadsheet for properties
// whose OPA number is not known. These rows skip deed-based association.
var unknownParcelMarkers = map[string]struct{}{
	"":               {},
	"-":              {},
	"scattered site": {},
}

// Property represents one HUD/LIHTC property from the hand-corrected
// geocode CSV. Nullable coordinates use pointers to distinguish a
// missing geocode from (0, 0).
type Property struct {
	NHPDPropertyID string   `validate:"required"`
	Name           string   `validate:"required"`
	Address        string   `validate:"required"`
	ParcelNumber   string   // claimed OPA account number, may be unknown
	Latitude       *float64 `validate:"omitempty,latitude"`
	Longitude      *float64 `validate:"omitempty,longitude"`
	TotalUnits     string
	Status         string
	OwnerName      string
}

// HasGeocode reports whether the property carries usable coordinates.
// (0, 0) geocodes come from failed geocoding attempts and are treated
// as absent.
func (p Property) HasGeocode() bool {
	if p.Latitude == nil || p.Longitude == nil {
		return false
	}
	return *p.Latitude != 0 || *p.Longitude != 0
}

// Geocode returns the property location as a Point.
// Only meaningful when HasGeocode is true.
func (p Property) Geocode() Point {
	var pt Point
	if p.Latitude != nil {
		pt.Lat = *p.Latitude
	}
	if p.Longitude != nil {
		pt.Lng = *p.Longitude
	}
	return pt
}

// HasKnownParcelNumber reports whether the claimed OPA number is a
// real parcel number rather than one of the spreadsheet's
// unknown markers.
func (p Property) HasKnownParcelNumber() bool {
	_, unknown := unknownParcelMarkers[strings.ToLower(strings.TrimSpace(p.ParcelNumber))]
	return !unknown
}

// PaddedParcelNumber returns the claimed OPA number zero-padded to the
// canonical 9 digits used across the open data tables.
func (p Property) PaddedParcelNumber() string {
	return ZeroPadOPA(p.ParcelNumber)
}
