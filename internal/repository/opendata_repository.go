package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lihtc-philly/pipeline/internal/database"
	"github.com/lihtc-philly/pipeline/internal/models"
)

// DeedParcel is one parcel recorded on a deed transfer document.
type DeedParcel struct {
	OPAAccount string
	Address    string
}

// OpenDataRepository defines read access to the open data snapshot
// tables used by the pipeline.
type OpenDataRepository interface {
	// LatestDeedDocument finds the most recent deed transfer document id
	// for the given OPA account number.
	// Returns "", nil when the parcel has no recorded deed (not an error).
	LatestDeedDocument(ctx context.Context, opaAccount string) (string, error)

	// ParcelsOnDocument lists every parcel recorded on a deed document,
	// ordered by account number for deterministic output.
	// Returns an empty slice when the document is unknown (not an error).
	ParcelsOnDocument(ctx context.Context, documentID string) ([]DeedParcel, error)

	// RentalLicense summarizes the active rental licenses of a parcel.
	// Returns nil, nil when the parcel has no active license (not an error).
	RentalLicense(ctx context.Context, opaAccount string) (*models.RentalLicense, error)

	// Centroid returns the parcel's assessment-record coordinates.
	// Returns nil, nil when the parcel has no coordinates (not an error).
	Centroid(ctx context.Context, opaAccount string) (*models.Centroid, error)

	// ViolationsSince lists the parcel's L&I violations dated on or after
	// the cutoff, ordered by date then number for deterministic output.
	// Returns an empty slice when there are none (not an error).
	ViolationsSince(ctx context.Context, opaAccount string, cutoff time.Time) ([]models.Violation, error)
}

// openDataRepository is the concrete implementation of OpenDataRepository.
type openDataRepository struct {
	db *database.Database
}

// NewOpenDataRepository creates a new instance of OpenDataRepository.
func NewOpenDataRepository(db *database.Database) OpenDataRepository {
	return &openDataRepository{
		db: db,
	}
}

// LatestDeedDocument queries rtt_summary for the highest document id
// attached to the account. Document ids are assigned in recording
// order, so the max is the latest transfer.
func (r *openDataRepository) LatestDeedDocument(ctx context.Context, opaAccount string) (string, error) {
	query := `
		SELECT CAST(MAX(CAST(document_id AS INTEGER)) AS TEXT)
		FROM rtt_summary
		WHERE opa_account_num = ?
	`

	var documentID sql.NullString
	err := r.db.DB.QueryRowContext(ctx, query, opaAccount).Scan(&documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to query latest deed for parcel %s: %w", opaAccount, err)
	}

	if !documentID.Valid {
		return "", nil
	}
	return documentID.String, nil
}

// ParcelsOnDocument expands a deed document to every parcel it covers.
// A single deed frequently covers the many tax parcels of one
// subsidized development.
func (r *openDataRepository) ParcelsOnDocument(ctx context.Context, documentID string) ([]DeedParcel, error) {
	query := `
		SELECT DISTINCT opa_account_num, COALESCE(street_address, '')
		FROM rtt_summary
		WHERE document_id = ?
		  AND opa_account_num IS NOT NULL AND opa_account_num != ''
		ORDER BY opa_account_num
	`

	rows, err := r.db.DB.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query parcels on document %s: %w", documentID, err)
	}
	defer rows.Close()

	parcels := []DeedParcel{}
	for rows.Next() {
		var p DeedParcel
		if err := rows.Scan(&p.OPAAccount, &p.Address); err != nil {
			return nil, fmt.Errorf("failed to scan deed parcel row: %w", err)
		}
		parcels = append(parcels, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deed parcel rows: %w", err)
	}

	return parcels, nil
}

// RentalLicense checks business_licenses for active rental licenses and
// takes the largest unit count among them.
func (r *openDataRepository) RentalLicense(ctx context.Context, opaAccount string) (*models.RentalLicense, error) {
	query := `
		SELECT COUNT(*), COALESCE(MAX(CAST(numberofunits AS INTEGER)), 0)
		FROM business_licenses
		WHERE opa_account_num = ?
		  AND licensestatus = 'Active'
	`

	var count, units int
	err := r.db.DB.QueryRowContext(ctx, query, opaAccount).Scan(&count, &units)
	if err != nil {
		return nil, fmt.Errorf("failed to query rental license for parcel %s: %w", opaAccount, err)
	}

	if count == 0 {
		return nil, nil
	}
	return &models.RentalLicense{
		OPAAccount:    opaAccount,
		NumberOfUnits: units,
		Active:        true,
	}, nil
}

// Centroid reads the parcel's lat/lng from the OPA assessment table.
func (r *openDataRepository) Centroid(ctx context.Context, opaAccount string) (*models.Centroid, error) {
	query := `
		SELECT lat, lng
		FROM opa_properties_public
		WHERE parcel_number = ?
		LIMIT 1
	`

	var lat, lng sql.NullFloat64
	err := r.db.DB.QueryRowContext(ctx, query, opaAccount).Scan(&lat, &lng)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query centroid for parcel %s: %w", opaAccount, err)
	}

	if !lat.Valid || !lng.Valid {
		return nil, nil
	}
	return &models.Centroid{
		OPAAccount: opaAccount,
		Lat:        lat.Float64,
		Lng:        lng.Float64,
	}, nil
}

// ViolationsSince lists L&I violations within the lookback window.
// Dates in the snapshot are ISO strings, so lexical comparison against
// the formatted cutoff is correct.
func (r *openDataRepository) ViolationsSince(ctx context.Context, opaAccount string, cutoff time.Time) ([]models.Violation, error) {
	query := `
		SELECT
			COALESCE(violationnumber, ''),
			COALESCE(violationdate, ''),
			COALESCE(violationcode, ''),
			COALESCE(violationcodetitle, ''),
			COALESCE(violationstatus, '')
		FROM violations
		WHERE opa_account_num = ?
		  AND violationdate >= ?
		ORDER BY violationdate, violationnumber
	`

	rows, err := r.db.DB.QueryContext(ctx, query, opaAccount, cutoff.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to query violations for parcel %s: %w", opaAccount, err)
	}
	defer rows.Close()

	violations := []models.Violation{}
	for rows.Next() {
		v := models.Violation{OPAAccount: opaAccount}
		if err := rows.Scan(&v.ViolationNumber, &v.ViolationDate, &v.ViolationCode, &v.ViolationTitle, &v.Status); err != nil {
			return nil, fmt.Errorf("failed to scan violation row: %w", err)
		}
		violations = append(violations, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating violation rows: %w", err)
	}

	return violations, nil
}
