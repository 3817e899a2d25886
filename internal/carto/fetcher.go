package carto

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lihtc-philly/pipeline/internal/dataset"
	"github.com/lihtc-philly/pipeline/internal/logger"
	"github.com/lihtc-philly/pipeline/internal/models"
)

// requestInterval spaces requests out to stay friendly to the public
// API.
const requestInterval = 100 * time.Millisecond

// ViolationColumns is the fixed schema of the fetched violations
// table: property context first, then the violation itself.
var ViolationColumns = []string{
	"nhpd_property_id",
	"lihtc_property_name",
	"parcel_number",
	"violationnumber",
	"violationdate",
	"violationcode",
	"violationcodetitle",
	"violationstatus",
}

// Summary reports what one fetch run did.
type Summary struct {
	RunID                 string
	Parcels               int
	ParcelsWithViolations int
	Violations            int
}

// Fetcher pulls violations for every associated parcel from the Carto
// API and writes them as a CSV with property context. It is the only
// networked step of the pipeline and runs on demand.
type Fetcher struct {
	client   Client
	interval time.Duration
	log      *logger.Logger
}

// NewFetcher creates a Fetcher using the given client.
func NewFetcher(client Client, log *logger.Logger) (*Fetcher, error) {
	if client == nil {
		return nil, fmt.Errorf("carto client is required")
	}
	return &Fetcher{
		client:   client,
		interval: requestInterval,
		log:      log,
	}, nil
}

// Run queries violations for each unique (property, parcel) pair in
// the association table and writes them to path. Any request failure
// aborts the run; rerunning from scratch is the recovery mechanism.
func (f *Fetcher) Run(ctx context.Context, associations []models.Association, path string) (Summary, error) {
	summary := Summary{RunID: uuid.NewString()}
	log := f.log.WithRun(summary.RunID, "fetch-violations")

	log.Info("Violation fetch started", map[string]interface{}{
		"associations": len(associations),
	})

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	var rows [][]string
	for _, a := range associations {
		if a.ParcelNumber == "" {
			continue
		}
		summary.Parcels++

		violations, err := f.client.Violations(ctx, a.ParcelNumber)
		if err != nil {
			return summary, fmt.Errorf("failed to fetch violations for parcel %s: %w", a.ParcelNumber, err)
		}
		if len(violations) > 0 {
			summary.ParcelsWithViolations++
		}
		for _, v := range violations {
			rows = append(rows, []string{
				a.NHPDPropertyID,
				a.PropertyName,
				a.ParcelNumber,
				v.ViolationNumber,
				v.ViolationDate,
				v.ViolationCode,
				v.ViolationTitle,
				v.Status,
			})
		}

		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		case <-ticker.C:
		}
	}
	summary.Violations = len(rows)

	if err := dataset.WriteCSV(path, ViolationColumns, rows); err != nil {
		return summary, err
	}

	log.Info("Violation fetch finished", map[string]interface{}{
		"parcels":    summary.Parcels,
		"violations": summary.Violations,
	})
	return summary, nil
}
