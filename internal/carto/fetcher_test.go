package carto

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lihtc-philly/pipeline/internal/logger"
	"github.com/lihtc-philly/pipeline/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient is a mock implementation of Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Violations(ctx context.Context, opaAccount string) ([]models.Violation, error) {
	args := m.Called(ctx, opaAccount)
	violations, _ := args.Get(0).([]models.Violation)
	return violations, args.Error(1)
}

func testAssociations() []models.Association {
	return []models.Association{
		{NHPDPropertyID: "1001", PropertyName: "Main St Apts", ParcelNumber: "881577000"},
		{NHPDPropertyID: "1002", PropertyName: "Pine St Rowhomes", ParcelNumber: "123456789"},
	}
}

func TestFetcher_Run(t *testing.T) {
	// Arrange
	mockClient := new(MockClient)
	mockClient.On("Violations", mock.Anything, "881577000").Return([]models.Violation{
		{OPAAccount: "881577000", ViolationNumber: "V-1", ViolationDate: "2024-03-15", ViolationCode: "PM-302.1", ViolationTitle: "EXT AREA SANITATION", Status: "OPEN"},
	}, nil)
	mockClient.On("Violations", mock.Anything, "123456789").Return(nil, nil)

	fetcher, err := NewFetcher(mockClient, logger.New("test"))
	require.NoError(t, err)
	fetcher.interval = time.Millisecond

	path := filepath.Join(t.TempDir(), "violations.csv")

	// Act
	summary, err := fetcher.Run(context.Background(), testAssociations(), path)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Parcels)
	assert.Equal(t, 1, summary.ParcelsWithViolations)
	assert.Equal(t, 1, summary.Violations)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "nhpd_property_id,lihtc_property_name,parcel_number")
	assert.Contains(t, string(content), "1001,Main St Apts,881577000,V-1,2024-03-15,PM-302.1,EXT AREA SANITATION,OPEN")
	mockClient.AssertExpectations(t)
}

func TestFetcher_Run_RequestFailureAborts(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("Violations", mock.Anything, "881577000").Return(nil, assert.AnError)

	fetcher, err := NewFetcher(mockClient, logger.New("test"))
	require.NoError(t, err)
	fetcher.interval = time.Millisecond

	path := filepath.Join(t.TempDir(), "violations.csv")
	_, err = fetcher.Run(context.Background(), testAssociations(), path)

	require.Error(t, err)
	assert.NoFileExists(t, path)
}

func TestFetcher_Run_ContextCancellation(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("Violations", mock.Anything, mock.Anything).Return(nil, nil)

	fetcher, err := NewFetcher(mockClient, logger.New("test"))
	require.NoError(t, err)
	fetcher.interval = time.Hour // force the cancellation branch

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := filepath.Join(t.TempDir(), "violations.csv")
	_, err = fetcher.Run(ctx, testAssociations(), path)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewFetcher_RequiresClient(t *testing.T) {
	_, err := NewFetcher(nil, logger.New("test"))

	assert.Error(t, err)
}
