package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lihtc-philly/pipeline/internal/logger"
	"github.com/lihtc-philly/pipeline/internal/models"
)

// Column headers as they appear in the upstream exports. The schemas
// are owned by the data providers, not by this pipeline.
const (
	colNHPDID       = "NHPD Property ID"
	colPropertyName = "Property Name"
	colPropertyAddr = "Property Address"
	colParcelNumber = "parcel_number / OPA Number"
	colLatitude     = "Latitude"
	colLongitude    = "Longitude"
	colTotalUnits   = "Total Units"
	colStatus       = "Property Status"
	colOwnerName    = "Owner Name"

	colSubsidyName   = "Subsidy Name"
	colSubsidyStatus = "Subsidy Status"
	colStartDate     = "Start Date"
	colEndDate       = "End Date"
)

// End dates show up in both ISO and US forms depending on which tool
// exported the spreadsheet.
var endDateLayouts = []string{"2006-01-02", "1/2/2006", "01/02/2006"}

// Loader reads the upstream CSV exports into memory.
// A missing or malformed file is fatal to the run; individual records
// with bad optional fields are cleaned up and logged instead.
type Loader struct {
	log      *logger.Logger
	validate *validator.Validate
}

// NewLoader creates a new Loader instance.
func NewLoader(log *logger.Logger) *Loader {
	return &Loader{
		log:      log,
		validate: validator.New(),
	}
}

// Properties reads the hand-corrected geocode CSV.
// Records with unparseable or out-of-range coordinates keep their row
// but lose the geocode, so they still flow through to the final output
// with empty enrichment.
func (l *Loader) Properties(path string) ([]models.Property, error) {
	rows, header, err := readAll(path)
	if err != nil {
		return nil, err
	}

	required := []string{colNHPDID, colPropertyName, colPropertyAddr, colParcelNumber}
	if err := header.require(path, required...); err != nil {
		return nil, err
	}

	properties := make([]models.Property, 0, len(rows))
	for _, row := range rows {
		p := models.Property{
			NHPDPropertyID: header.get(row, colNHPDID),
			Name:           header.get(row, colPropertyName),
			Address:        header.get(row, colPropertyAddr),
			ParcelNumber:   header.get(row, colParcelNumber),
			TotalUnits:     header.get(row, colTotalUnits),
			Status:         header.get(row, colStatus),
			OwnerName:      header.get(row, colOwnerName),
		}

		p.Latitude = parseCoord(header.get(row, colLatitude))
		p.Longitude = parseCoord(header.get(row, colLongitude))

		if err := l.validate.Struct(p); err != nil {
			verrs, ok := err.(validator.ValidationErrors)
			if !ok {
				return nil, fmt.Errorf("failed to validate property record: %w", err)
			}
			for _, fe := range verrs {
				switch fe.Field() {
				case "Latitude", "Longitude":
					// Out-of-range geocodes come from botched manual
					// entry; drop the coordinates, keep the row.
					l.log.Warn("Dropping invalid geocode", map[string]interface{}{
						"property": p.Name,
						"nhpd_id":  p.NHPDPropertyID,
					})
					p.Latitude = nil
					p.Longitude = nil
				default:
					return nil, fmt.Errorf("%s: record for %q is missing required field %s",
						path, p.Name, fe.Field())
				}
			}
		}

		properties = append(properties, p)
	}

	l.log.Info("Properties loaded", map[string]interface{}{
		"file":  path,
		"count": len(properties),
	})

	return properties, nil
}

// LeadCertifications reads the lead-paint certification export.
// Rows without a rental license id are skipped, matching the upstream
// data quality rule.
func (l *Loader) LeadCertifications(path string) ([]models.LeadCertification, error) {
	rows, header, err := readAll(path)
	if err != nil {
		return nil, err
	}

	if err := header.require(path, "opa_account"); err != nil {
		return nil, err
	}

	var certs []models.LeadCertification
	skipped := 0
	for _, row := range rows {
		cert := models.LeadCertification{
			OPAAccount:          models.ZeroPadOPA(header.get(row, "opa_account")),
			RentalLicenseID:     header.get(row, "li_rl_license"),
			StatusType:          header.get(row, "lhhp_status_type"),
			CertificationStatus: header.get(row, "lhhp_certification_status"),
			CertDate:            header.get(row, "lhhp_cert_date"),
			CertExpirationDate:  header.get(row, "lhhp_cert_expiration_date"),
		}
		if cert.RentalLicenseID == "" {
			skipped++
			continue
		}
		certs = append(certs, cert)
	}

	l.log.Info("Lead certifications loaded", map[string]interface{}{
		"file":               path,
		"count":              len(certs),
		"skipped_no_license": skipped,
	})

	return certs, nil
}

// Subsidies reads the NHPD subsidies export.
// Unparseable end dates are kept as nil so the subsidy still appears in
// the subsidies output without contributing to end-date minimums.
func (l *Loader) Subsidies(path string) ([]models.Subsidy, error) {
	rows, header, err := readAll(path)
	if err != nil {
		return nil, err
	}

	if err := header.require(path, colNHPDID, colSubsidyName); err != nil {
		return nil, err
	}

	subsidies := make([]models.Subsidy, 0, len(rows))
	for _, row := range rows {
		s := models.Subsidy{
			NHPDPropertyID: header.get(row, colNHPDID),
			SubsidyName:    header.get(row, colSubsidyName),
			SubsidyStatus:  header.get(row, colSubsidyStatus),
			StartDate:      header.get(row, colStartDate),
		}
		if raw := header.get(row, colEndDate); raw != "" {
			if ts, ok := parseEndDate(raw); ok {
				s.EndDate = &ts
			} else {
				l.log.Warn("Unparseable subsidy end date", map[string]interface{}{
					"nhpd_id": s.NHPDPropertyID,
					"value":   raw,
				})
			}
		}
		subsidies = append(subsidies, s)
	}

	l.log.Info("Subsidies loaded", map[string]interface{}{
		"file":  path,
		"count": len(subsidies),
	})

	return subsidies, nil
}

// Associations reads an association table previously written by the
// associate step.
func (l *Loader) Associations(path string) ([]models.Association, error) {
	rows, header, err := readAll(path)
	if err != nil {
		return nil, err
	}

	if err := header.require(path, "nhpd_property_id", "parcel_number"); err != nil {
		return nil, err
	}

	associations := make([]models.Association, 0, len(rows))
	for _, row := range rows {
		associations = append(associations, models.Association{
			NHPDPropertyID:       header.get(row, "nhpd_property_id"),
			PropertyName:         header.get(row, "lihtc_property_name"),
			PropertyAddress:      header.get(row, "lihtc_property_address"),
			PropertyParcelNumber: header.get(row, "lihtc_property_parcel_number"),
			DeedDocumentID:       header.get(row, "rtt_document_id"),
			ParcelNumber:         header.get(row, "parcel_number"),
			ParcelAddress:        header.get(row, "parcel_address"),
			Method:               header.get(row, "match_method"),
		})
	}

	l.log.Info("Associations loaded", map[string]interface{}{
		"file":  path,
		"count": len(associations),
	})

	return associations, nil
}

// headerIndex maps column names to their position in a CSV record.
type headerIndex map[string]int

// require returns an error naming the first missing column.
func (h headerIndex) require(path string, columns ...string) error {
	for _, col := range columns {
		if _, ok := h[col]; !ok {
			return fmt.Errorf("%s: missing required column %q", path, col)
		}
	}
	return nil
}

// get returns the trimmed value of the named column, or "" when the
// column is absent.
func (h headerIndex) get(row []string, column string) string {
	idx, ok := h[column]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// readAll slurps a whole CSV file and indexes its header row.
func readAll(path string) ([][]string, headerIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // upstream exports have ragged rows

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("%s: file has no header row", path)
	}

	header := make(headerIndex, len(records[0]))
	for i, name := range records[0] {
		header[strings.TrimSpace(name)] = i
	}

	return records[1:], header, nil
}

// parseCoord parses an optional coordinate value.
func parseCoord(raw string) *float64 {
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseEndDate tries the known subsidy end-date layouts.
func parseEndDate(raw string) (time.Time, bool) {
	for _, layout := range endDateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
