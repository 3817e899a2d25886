package build

import (
	"fmt"
	"path/filepath"

	"github.com/lihtc-philly/pipeline/internal/dataset"
)

// Output file names inside the dashboard data directory.
const (
	PropertiesFile = "properties.csv"
	ViolationsFile = "violations.csv"
	SubsidiesFile  = "subsidies.csv"
)

// Write writes the three dashboard CSVs under dir, overwriting any
// previous run's output.
func (d *Dataset) Write(dir string) error {
	if err := dataset.WriteCSV(filepath.Join(dir, PropertiesFile), PropertyColumns, d.Properties); err != nil {
		return fmt.Errorf("failed to write properties table: %w", err)
	}
	if err := dataset.WriteCSV(filepath.Join(dir, ViolationsFile), ViolationColumns, d.Violations); err != nil {
		return fmt.Errorf("failed to write violations table: %w", err)
	}
	if err := dataset.WriteCSV(filepath.Join(dir, SubsidiesFile), SubsidyColumns, d.Subsidies); err != nil {
		return fmt.Errorf("failed to write subsidies table: %w", err)
	}
	return nil
}
