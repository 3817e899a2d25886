package models

import "strings"

// Parcel represents one record from the municipal parcel layer.
// Geometry is nil when the layer only carries address strings.
type Parcel struct {
	OPAAccount string
	Address    string
	Geometry   *MultiPolygon
}

// ZeroPadOPA normalizes an OPA account number to the canonical 9-digit
// form used across the open data tables.
func ZeroPadOPA(opa string) string {
	opa = strings.TrimSpace(opa)
	if opa == "" || len(opa) >= 9 {
		return opa
	}
	return strings.Repeat("0", 9-len(opa)) + opa
}
