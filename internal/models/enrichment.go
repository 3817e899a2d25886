package models

import "time"

// LeadCertification is one row from the lead-paint certification export,
// keyed by OPA account number. Values are carried through to the
// dashboard unmodified.
type LeadCertification struct {
	OPAAccount          string
	RentalLicenseID     string
	StatusType          string
	CertificationStatus string
	CertDate            string
	CertExpirationDate  string
}

// Subsidy is one row from the NHPD subsidies export, keyed by NHPD
// property id.
type Subsidy struct {
	NHPDPropertyID string
	SubsidyName    string
	SubsidyStatus  string
	StartDate      string
	EndDate        *time.Time
}

// RentalLicense summarizes the active rental license state of a parcel
// from the business_licenses table.
type RentalLicense struct {
	OPAAccount    string
	NumberOfUnits int
	Active        bool
}

// Violation is one L&I code violation row, keyed by OPA account number.
type Violation struct {
	OPAAccount      string
	ViolationNumber string
	ViolationDate   string
	ViolationCode   string
	ViolationTitle  string
	Status          string
}

// Centroid is a parcel's representative point from the OPA property
// assessment table. Parcels missing from that table have no centroid
// and get empty district fields downstream.
type Centroid struct {
	OPAAccount string
	Lat        float64
	Lng        float64
}
