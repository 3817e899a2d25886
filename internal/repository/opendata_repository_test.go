package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/lihtc-philly/pipeline/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestSnapshot builds a small open data snapshot on disk and opens
// it the way the pipeline does.
func newTestSnapshot(t *testing.T) *database.Database {
	t.Helper()

	path := filepath.Join(t.TempDir(), "open_data_philly.db")
	seed, err := sql.Open("sqlite", "file:"+path)
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE rtt_summary (opa_account_num TEXT, document_id TEXT, street_address TEXT)`,
		`CREATE TABLE business_licenses (opa_account_num TEXT, licensestatus TEXT, numberofunits TEXT)`,
		`CREATE TABLE opa_properties_public (parcel_number TEXT, lat REAL, lng REAL)`,
		`CREATE TABLE violations (opa_account_num TEXT, violationnumber TEXT, violationdate TEXT,
			violationcode TEXT, violationcodetitle TEXT, violationstatus TEXT)`,

		// Parcel 881577000 transferred twice; latest deed 55002000 covers two parcels.
		`INSERT INTO rtt_summary VALUES ('881577000', '55001000', '123 MAIN ST')`,
		`INSERT INTO rtt_summary VALUES ('881577000', '55002000', '123 MAIN ST')`,
		`INSERT INTO rtt_summary VALUES ('881577101', '55002000', '125 MAIN ST')`,

		`INSERT INTO business_licenses VALUES ('881577000', 'Active', '24')`,
		`INSERT INTO business_licenses VALUES ('881577000', 'Active', '12')`,
		`INSERT INTO business_licenses VALUES ('881577101', 'Closed', '6')`,

		`INSERT INTO opa_properties_public VALUES ('881577000', 39.95, -75.16)`,
		`INSERT INTO opa_properties_public VALUES ('881577101', NULL, NULL)`,

		`INSERT INTO violations VALUES ('881577000', 'V-2', '2024-03-01', 'CP-302', 'INTERIOR SURFACES', 'OPEN')`,
		`INSERT INTO violations VALUES ('881577000', 'V-1', '2024-03-01', 'PM-102', 'LICENSE REQUIRED', 'CLOSED')`,
		`INSERT INTO violations VALUES ('881577000', 'V-0', '2015-01-01', 'PM-999', 'ANCIENT HISTORY', 'CLOSED')`,
	}
	for _, stmt := range statements {
		_, err := seed.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, seed.Close())

	db, err := database.OpenSnapshot(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func TestOpenSnapshot_MissingFile(t *testing.T) {
	_, err := database.OpenSnapshot(context.Background(), filepath.Join(t.TempDir(), "absent.db"))

	assert.Error(t, err)
}

func TestLatestDeedDocument(t *testing.T) {
	repo := NewOpenDataRepository(newTestSnapshot(t))
	ctx := context.Background()

	docID, err := repo.LatestDeedDocument(ctx, "881577000")
	require.NoError(t, err)
	assert.Equal(t, "55002000", docID)

	// Parcel with no recorded deed
	docID, err = repo.LatestDeedDocument(ctx, "999999999")
	require.NoError(t, err)
	assert.Empty(t, docID)
}

func TestParcelsOnDocument(t *testing.T) {
	repo := NewOpenDataRepository(newTestSnapshot(t))
	ctx := context.Background()

	parcels, err := repo.ParcelsOnDocument(ctx, "55002000")
	require.NoError(t, err)
	require.Len(t, parcels, 2)
	// Ordered by account number
	assert.Equal(t, "881577000", parcels[0].OPAAccount)
	assert.Equal(t, "123 MAIN ST", parcels[0].Address)
	assert.Equal(t, "881577101", parcels[1].OPAAccount)

	// Unknown document yields an empty slice, not an error
	parcels, err = repo.ParcelsOnDocument(ctx, "00000000")
	require.NoError(t, err)
	assert.Empty(t, parcels)
}

func TestRentalLicense(t *testing.T) {
	repo := NewOpenDataRepository(newTestSnapshot(t))
	ctx := context.Background()

	license, err := repo.RentalLicense(ctx, "881577000")
	require.NoError(t, err)
	require.NotNil(t, license)
	assert.True(t, license.Active)
	// Max unit count across active licenses
	assert.Equal(t, 24, license.NumberOfUnits)

	// Closed license does not count as active
	license, err = repo.RentalLicense(ctx, "881577101")
	require.NoError(t, err)
	assert.Nil(t, license)
}

func TestCentroid(t *testing.T) {
	repo := NewOpenDataRepository(newTestSnapshot(t))
	ctx := context.Background()

	centroid, err := repo.Centroid(ctx, "881577000")
	require.NoError(t, err)
	require.NotNil(t, centroid)
	assert.Equal(t, 39.95, centroid.Lat)
	assert.Equal(t, -75.16, centroid.Lng)

	// NULL coordinates are treated as absent
	centroid, err = repo.Centroid(ctx, "881577101")
	require.NoError(t, err)
	assert.Nil(t, centroid)

	// Unknown parcel is not an error
	centroid, err = repo.Centroid(ctx, "999999999")
	require.NoError(t, err)
	assert.Nil(t, centroid)
}

func TestViolationsSince(t *testing.T) {
	repo := NewOpenDataRepository(newTestSnapshot(t))
	ctx := context.Background()
	cutoff := time.Date(2019, 8, 1, 0, 0, 0, 0, time.UTC)

	violations, err := repo.ViolationsSince(ctx, "881577000", cutoff)
	require.NoError(t, err)
	// The 2015 violation falls outside the window
	require.Len(t, violations, 2)
	// Ordered by date then number
	assert.Equal(t, "V-1", violations[0].ViolationNumber)
	assert.Equal(t, "V-2", violations[1].ViolationNumber)
	assert.Equal(t, "LICENSE REQUIRED", violations[0].ViolationTitle)

	// Parcel with no violations yields an empty slice
	violations, err = repo.ViolationsSince(ctx, "999999999", cutoff)
	require.NoError(t, err)
	assert.Empty(t, violations)
}
