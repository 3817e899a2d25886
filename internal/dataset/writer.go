package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lihtc-philly/pipeline/internal/models"
)

// AssociationColumns is the fixed schema of the association table.
// The build step and the dashboard both read it by these names.
var AssociationColumns = []string{
	"nhpd_property_id",
	"lihtc_property_name",
	"lihtc_property_address",
	"lihtc_property_parcel_number",
	"rtt_document_id",
	"parcel_number",
	"parcel_address",
	"match_method",
}

// WriteAssociations writes the association table, overwriting any
// previous run's output. Callers are expected to have sorted the
// associations already; this function preserves their order.
func WriteAssociations(path string, associations []models.Association) error {
	rows := make([][]string, 0, len(associations))
	for _, a := range associations {
		rows = append(rows, []string{
			a.NHPDPropertyID,
			a.PropertyName,
			a.PropertyAddress,
			a.PropertyParcelNumber,
			a.DeedDocumentID,
			a.ParcelNumber,
			a.ParcelAddress,
			a.Method,
		})
	}
	return WriteCSV(path, AssociationColumns, rows)
}

// WriteCSV writes a header plus rows to path, creating parent
// directories as needed. Output is fully rewritten so reruns over
// unchanged inputs are byte-identical.
func WriteCSV(path string, header []string, rows [][]string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header to %s: %w", path, err)
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row to %s: %w", path, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}

	return nil
}
