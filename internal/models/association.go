package models

// Association method names recorded in the association table.
const (
	MethodDeed    = "deed"
	MethodSpatial = "spatial"
	MethodAddress = "address"
	MethodSelf    = "self"
)

// Association is one (property, parcel) pair produced by the
// associator. A property maps to zero, one, or many parcels; the table
// is recomputed in full on every run.
type Association struct {
	NHPDPropertyID       string
	PropertyName         string
	PropertyAddress      string
	PropertyParcelNumber string // claimed OPA number from the spreadsheet
	DeedDocumentID       string // deed transfer document, empty unless matched via deed
	ParcelNumber         string // matched OPA account number
	ParcelAddress        string
	Method               string
}
