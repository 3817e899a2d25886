package build

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lihtc-philly/pipeline/internal/geo"
	"github.com/lihtc-philly/pipeline/internal/logger"
	"github.com/lihtc-philly/pipeline/internal/models"
	"github.com/lihtc-philly/pipeline/internal/repository"
)

// PropertyColumns is the fixed schema of the per-parcel dashboard
// table, one row per unique associated parcel.
var PropertyColumns = []string{
	"parcel_number",
	"parcel_address",
	"num_associated_hud_properties",
	"numberofunits",
	"has_active_rental_license",
	"lat",
	"lng",
	"lhhp_status_type",
	"lhhp_certification_status",
	"lhhp_cert_date",
	"lhhp_cert_expiration_date",
	"council_district",
	"senate_district",
	"Min End Date",
}

// ViolationColumns is the fixed schema of the violations table: parcel
// context plus one L&I violation per row.
var ViolationColumns = []string{
	"parcel_number",
	"parcel_address",
	"num_associated_hud_properties",
	"violationnumber",
	"violationdate",
	"violationcode",
	"violationcodetitle",
	"violationstatus",
}

// SubsidyColumns is the fixed schema of the per-parcel subsidy table.
var SubsidyColumns = []string{
	"nhpd_property_id",
	"parcel_number",
	"Subsidy Name",
	"Subsidy Status",
	"Start Date",
	"End Date",
}

// District layer attribute names, as published by the city and state
// boundary files.
const (
	councilDistrictAttr = "DISTRICT"
	senateDistrictAttr  = "LEG_DISTRI"
)

// Inputs carries the loaded source tables for one build run.
type Inputs struct {
	Associations []models.Association
	Leads        []models.LeadCertification
	Subsidies    []models.Subsidy
}

// Dataset is the assembled dashboard output, ready to be written as
// three CSV files. Rows are already sorted.
type Dataset struct {
	Properties [][]string
	Violations [][]string
	Subsidies  [][]string
}

// Summary reports what one build run produced.
type Summary struct {
	RunID         string
	Parcels       int
	ViolationRows int
	SubsidyRows   int
}

// Builder assembles the dashboard dataset by left-joining enrichment
// sources onto the association table. Every associated parcel produces
// exactly one property row; enrichment a parcel lacks shows up as
// empty fields, never as a dropped row.
type Builder struct {
	repo          repository.OpenDataRepository
	council       *geo.Layer
	senate        *geo.Layer
	asOf          time.Time
	lookbackYears int
	log           *logger.Logger
}

// New creates a Builder. The district layers may be nil, in which case
// every row gets empty district fields.
func New(repo repository.OpenDataRepository, council, senate *geo.Layer, asOf time.Time, lookbackYears int, log *logger.Logger) (*Builder, error) {
	if repo == nil {
		return nil, fmt.Errorf("open data repository is required")
	}
	if lookbackYears <= 0 {
		return nil, fmt.Errorf("violation lookback must be positive, got %d", lookbackYears)
	}
	return &Builder{
		repo:          repo,
		council:       council,
		senate:        senate,
		asOf:          asOf,
		lookbackYears: lookbackYears,
		log:           log,
	}, nil
}

// parcelGroup is one unique parcel from the association table together
// with the properties associated to it.
type parcelGroup struct {
	number     string
	address    string
	properties map[string]struct{} // NHPD property ids
}

// Run assembles the full dataset. The violation cutoff is the
// configured number of years before the as-of date, so two runs with
// the same as-of date and inputs produce byte-identical output.
func (b *Builder) Run(ctx context.Context, inputs Inputs) (*Dataset, Summary, error) {
	summary := Summary{RunID: uuid.NewString()}
	log := b.log.WithRun(summary.RunID, "build")

	if len(inputs.Associations) == 0 {
		return nil, summary, fmt.Errorf("association table is empty; run the associate step first")
	}

	parcels := groupParcels(inputs.Associations)
	summary.Parcels = len(parcels)

	leads := indexLeads(inputs.Leads)
	minEndDates := minEndDatePerParcel(inputs.Associations, inputs.Subsidies)
	cutoff := b.asOf.AddDate(-b.lookbackYears, 0, 0)

	log.Info("Build run started", map[string]interface{}{
		"associations":     len(inputs.Associations),
		"parcels":          len(parcels),
		"violation_cutoff": cutoff.Format("2006-01-02"),
	})

	dataset := &Dataset{}
	for _, parcel := range parcels {
		row, violations, err := b.buildParcelRow(ctx, parcel, leads, minEndDates, cutoff)
		if err != nil {
			return nil, summary, err
		}
		dataset.Properties = append(dataset.Properties, row)
		dataset.Violations = append(dataset.Violations, violations...)
	}
	summary.ViolationRows = len(dataset.Violations)

	dataset.Subsidies = joinSubsidies(inputs.Associations, inputs.Subsidies)
	summary.SubsidyRows = len(dataset.Subsidies)

	log.Info("Build run finished", map[string]interface{}{
		"property_rows":  len(dataset.Properties),
		"violation_rows": summary.ViolationRows,
		"subsidy_rows":   summary.SubsidyRows,
	})

	return dataset, summary, nil
}

// buildParcelRow assembles one property row plus that parcel's
// violation rows.
func (b *Builder) buildParcelRow(ctx context.Context, parcel parcelGroup, leads map[string]models.LeadCertification, minEndDates map[string]time.Time, cutoff time.Time) ([]string, [][]string, error) {
	assocCount := strconv.Itoa(len(parcel.properties))

	license, err := b.repo.RentalLicense(ctx, parcel.number)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up rental license for parcel %s: %w", parcel.number, err)
	}
	units := ""
	hasLicense := "0"
	if license != nil {
		units = strconv.Itoa(license.NumberOfUnits)
		hasLicense = "1"
	}

	centroid, err := b.repo.Centroid(ctx, parcel.number)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up centroid for parcel %s: %w", parcel.number, err)
	}
	lat, lng := "", ""
	councilDistrict, senateDistrict := "", ""
	if centroid != nil {
		lat = strconv.FormatFloat(centroid.Lat, 'f', -1, 64)
		lng = strconv.FormatFloat(centroid.Lng, 'f', -1, 64)
		pt := models.Point{Lng: centroid.Lng, Lat: centroid.Lat}
		councilDistrict = districtAt(b.council, pt, councilDistrictAttr)
		senateDistrict = districtAt(b.senate, pt, senateDistrictAttr)
	}

	lead, hasLead := leads[parcel.number]
	minEndDate := ""
	if d, ok := minEndDates[parcel.number]; ok {
		minEndDate = d.Format("2006-01-02")
	}

	row := []string{
		parcel.number,
		parcel.address,
		assocCount,
		units,
		hasLicense,
		lat,
		lng,
		"", "", "", "",
		councilDistrict,
		senateDistrict,
		minEndDate,
	}
	if hasLead {
		row[7] = lead.StatusType
		row[8] = lead.CertificationStatus
		row[9] = lead.CertDate
		row[10] = lead.CertExpirationDate
	}

	violations, err := b.repo.ViolationsSince(ctx, parcel.number, cutoff)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up violations for parcel %s: %w", parcel.number, err)
	}
	violationRows := make([][]string, 0, len(violations))
	for _, v := range violations {
		violationRows = append(violationRows, []string{
			parcel.number,
			parcel.address,
			assocCount,
			v.ViolationNumber,
			v.ViolationDate,
			v.ViolationCode,
			v.ViolationTitle,
			v.Status,
		})
	}

	return row, violationRows, nil
}

// groupParcels collapses the association table to unique parcels,
// sorted by parcel number. The first association seen for a parcel
// supplies its address; the table is already sorted, so this is
// stable.
func groupParcels(associations []models.Association) []parcelGroup {
	byNumber := make(map[string]*parcelGroup)
	var order []string
	for _, a := range associations {
		group, ok := byNumber[a.ParcelNumber]
		if !ok {
			group = &parcelGroup{
				number:     a.ParcelNumber,
				address:    a.ParcelAddress,
				properties: make(map[string]struct{}),
			}
			byNumber[a.ParcelNumber] = group
			order = append(order, a.ParcelNumber)
		}
		group.properties[a.NHPDPropertyID] = struct{}{}
	}

	sort.Strings(order)
	parcels := make([]parcelGroup, 0, len(order))
	for _, number := range order {
		parcels = append(parcels, *byNumber[number])
	}
	return parcels
}

// indexLeads keys lead certifications by OPA account. When the export
// carries duplicate accounts the first row wins.
func indexLeads(leads []models.LeadCertification) map[string]models.LeadCertification {
	index := make(map[string]models.LeadCertification, len(leads))
	for _, lead := range leads {
		if _, ok := index[lead.OPAAccount]; !ok {
			index[lead.OPAAccount] = lead
		}
	}
	return index
}

// minEndDatePerParcel reduces LIHTC subsidy end dates twice: earliest
// per property, then earliest across each parcel's associated
// properties. Non-LIHTC subsidies and rows without a parseable end
// date do not participate.
func minEndDatePerParcel(associations []models.Association, subsidies []models.Subsidy) map[string]time.Time {
	perProperty := make(map[string]time.Time)
	for _, s := range subsidies {
		if s.SubsidyName != "LIHTC" || s.EndDate == nil {
			continue
		}
		if current, ok := perProperty[s.NHPDPropertyID]; !ok || s.EndDate.Before(current) {
			perProperty[s.NHPDPropertyID] = *s.EndDate
		}
	}

	perParcel := make(map[string]time.Time)
	for _, a := range associations {
		date, ok := perProperty[a.NHPDPropertyID]
		if !ok {
			continue
		}
		if current, ok := perParcel[a.ParcelNumber]; !ok || date.Before(current) {
			perParcel[a.ParcelNumber] = date
		}
	}
	return perParcel
}

// joinSubsidies expands every subsidy row across the parcels of its
// property. All subsidy types are carried, not just LIHTC; the
// dashboard filters by name itself.
func joinSubsidies(associations []models.Association, subsidies []models.Subsidy) [][]string {
	byProperty := make(map[string][]models.Subsidy)
	for _, s := range subsidies {
		byProperty[s.NHPDPropertyID] = append(byProperty[s.NHPDPropertyID], s)
	}

	var rows [][]string
	for _, a := range associations {
		for _, s := range byProperty[a.NHPDPropertyID] {
			endDate := ""
			if s.EndDate != nil {
				endDate = s.EndDate.Format("2006-01-02")
			}
			rows = append(rows, []string{
				a.NHPDPropertyID,
				a.ParcelNumber,
				s.SubsidyName,
				s.SubsidyStatus,
				s.StartDate,
				endDate,
			})
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		for c := range rows[i] {
			if rows[i][c] != rows[j][c] {
				return rows[i][c] < rows[j][c]
			}
		}
		return false
	})
	return rows
}

// districtAt looks up the district attribute of the layer feature
// containing pt. A nil layer or a point outside every feature yields
// the empty string.
func districtAt(layer *geo.Layer, pt models.Point, attr string) string {
	if layer == nil {
		return ""
	}
	attrs, ok := layer.FindContaining(pt)
	if !ok {
		return ""
	}
	return attrs[attr]
}
