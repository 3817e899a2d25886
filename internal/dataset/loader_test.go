package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lihtc-philly/pipeline/internal/logger"
	"github.com/lihtc-philly/pipeline/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestProperties_Success(t *testing.T) {
	// Arrange
	csvData := `NHPD Property ID,Property Name,Property Address,parcel_number / OPA Number,Latitude,Longitude
1001,Main St Apts,123 Main St,881577000,39.95,-75.16
1002,No Geocode Homes,45 Oak Ave,-,,
1003,Bad Geocode Villas,9 Pine St,123456,199.0,-75.16
`
	path := writeTempCSV(t, "props.csv", csvData)
	loader := NewLoader(logger.New("test"))

	// Act
	properties, err := loader.Properties(path)

	// Assert
	require.NoError(t, err)
	require.Len(t, properties, 3)

	assert.Equal(t, "1001", properties[0].NHPDPropertyID)
	assert.Equal(t, "Main St Apts", properties[0].Name)
	assert.True(t, properties[0].HasGeocode())
	assert.Equal(t, 39.95, properties[0].Geocode().Lat)

	// No geocode: row kept, coordinates absent
	assert.False(t, properties[1].HasGeocode())
	assert.False(t, properties[1].HasKnownParcelNumber())

	// Out-of-range latitude: row kept, geocode dropped
	assert.False(t, properties[2].HasGeocode())
	assert.Equal(t, "000123456", properties[2].PaddedParcelNumber())
}

func TestProperties_MissingFile(t *testing.T) {
	loader := NewLoader(logger.New("test"))

	_, err := loader.Properties(filepath.Join(t.TempDir(), "absent.csv"))

	assert.Error(t, err)
}

func TestProperties_MissingColumn(t *testing.T) {
	path := writeTempCSV(t, "bad.csv", "Property Name,Latitude\nX,39.9\n")
	loader := NewLoader(logger.New("test"))

	_, err := loader.Properties(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "NHPD Property ID")
}

func TestLeadCertifications(t *testing.T) {
	csvData := `opa_account,li_rl_license,lhhp_status_type,lhhp_certification_status,lhhp_cert_date,lhhp_cert_expiration_date
881577000,RL-1,Lead Safe,Certified,2023-01-05,2027-01-05
123456,,Lead Free,Certified,2022-03-01,2026-03-01
42,RL-2,Lead Safe,Expired,2019-01-01,2023-01-01
`
	path := writeTempCSV(t, "lead.csv", csvData)
	loader := NewLoader(logger.New("test"))

	certs, err := loader.LeadCertifications(path)

	require.NoError(t, err)
	// Row without a rental license id is skipped
	require.Len(t, certs, 2)
	assert.Equal(t, "881577000", certs[0].OPAAccount)
	assert.Equal(t, "Certified", certs[0].CertificationStatus)
	// Short account numbers are zero-padded
	assert.Equal(t, "000000042", certs[1].OPAAccount)
}

func TestSubsidies(t *testing.T) {
	csvData := `NHPD Property ID,Subsidy Name,Subsidy Status,Start Date,End Date
1001,LIHTC,Active,1995-06-01,2030-06-01
1001,LIHTC,Active,1995-06-01,6/1/2028
1002,Section 8,Active,2000-01-01,not-a-date
1003,LIHTC,Inactive,1990-01-01,
`
	path := writeTempCSV(t, "subsidies.csv", csvData)
	loader := NewLoader(logger.New("test"))

	subsidies, err := loader.Subsidies(path)

	require.NoError(t, err)
	require.Len(t, subsidies, 4)

	require.NotNil(t, subsidies[0].EndDate)
	assert.Equal(t, 2030, subsidies[0].EndDate.Year())
	require.NotNil(t, subsidies[1].EndDate)
	assert.Equal(t, 2028, subsidies[1].EndDate.Year())
	// Unparseable and empty dates stay nil, rows stay present
	assert.Nil(t, subsidies[2].EndDate)
	assert.Nil(t, subsidies[3].EndDate)
}

func TestWriteAndLoadAssociations(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "out", "all_parcels.csv")
	associations := []models.Association{
		{
			NHPDPropertyID:       "1001",
			PropertyName:         "Main St Apts",
			PropertyAddress:      "123 Main St",
			PropertyParcelNumber: "881577000",
			DeedDocumentID:       "55001234",
			ParcelNumber:         "881577000",
			ParcelAddress:        "123 MAIN ST",
			Method:               models.MethodDeed,
		},
		{
			NHPDPropertyID: "1002",
			PropertyName:   "Oak Ave Homes",
			ParcelNumber:   "123456789",
			Method:         models.MethodSpatial,
		},
	}

	// Act
	require.NoError(t, WriteAssociations(path, associations))
	loaded, err := NewLoader(logger.New("test")).Associations(path)

	// Assert
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, associations[0], loaded[0])
	assert.Equal(t, associations[1], loaded[1])
}

func TestWriteAssociations_Deterministic(t *testing.T) {
	dir := t.TempDir()
	associations := []models.Association{
		{NHPDPropertyID: "1001", ParcelNumber: "A", Method: models.MethodAddress},
		{NHPDPropertyID: "1002", ParcelNumber: "B", Method: models.MethodSpatial},
	}

	first := filepath.Join(dir, "first.csv")
	second := filepath.Join(dir, "second.csv")
	require.NoError(t, WriteAssociations(first, associations))
	require.NoError(t, WriteAssociations(second, associations))

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, a, b, "reruns over identical input must be byte-identical")
}
