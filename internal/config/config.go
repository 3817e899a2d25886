package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all pipeline configuration.
type Config struct {
	Env       string
	Associate AssociateConfig
	Build     BuildConfig
	Carto     CartoConfig
}

// AssociateConfig holds input/output locations and matching strategy
// order for the parcel association step.
type AssociateConfig struct {
	PropertiesFile  string
	ParcelLayerFile string
	OpenDataDB      string
	OutputFile      string
	Strategies      []string
}

// BuildConfig holds input/output locations for the dashboard dataset
// build step.
type BuildConfig struct {
	AssociationsFile string
	LeadFile         string
	SubsidiesFile    string
	OpenDataDB       string
	CouncilLayerFile string
	SenateLayerFile  string
	OutputDir        string
	LookbackYears    int
}

// CartoConfig holds settings for the Carto SQL API violations fetcher.
type CartoConfig struct {
	BaseURL    string
	OutputFile string
}

// Strategy names accepted in ASSOCIATE_STRATEGIES.
const (
	StrategyDeed    = "deed"
	StrategySpatial = "spatial"
	StrategyAddress = "address"
)

// Load reads configuration from environment variables.
// It uses viper to read values and provides defaults that match the
// layout of the data/ directory used by the manual workflow.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults matching the documented data layout
	v.SetDefault("ENV", "development")
	v.SetDefault("PROPERTIES_FILE", "data/geocoded_results.csv")
	v.SetDefault("PARCEL_LAYER_FILE", "data/dor_parcels.geojson")
	v.SetDefault("OPEN_DATA_DB", "data/open_data_philly.db")
	v.SetDefault("ASSOCIATIONS_FILE", "data/all_parcels.csv")
	v.SetDefault("ASSOCIATE_STRATEGIES", "deed,spatial,address")
	v.SetDefault("LEAD_FILE", "data/lhhp_lead_certifications.csv")
	v.SetDefault("SUBSIDIES_FILE", "data/all_subsidies.csv")
	v.SetDefault("COUNCIL_LAYER_FILE", "geojson/Council_Districts_2024.geojson")
	v.SetDefault("SENATE_LAYER_FILE", "geojson/PaSenatorial2024_03.geojson")
	v.SetDefault("OUTPUT_DIR", "dashboard_data")
	v.SetDefault("VIOLATION_LOOKBACK_YEARS", 5)
	v.SetDefault("CARTO_URL", "https://phl.carto.com/api/v2/sql")
	v.SetDefault("VIOLATIONS_FILE", "data/violations_raw.csv")

	// Bind environment variables
	v.AutomaticEnv()

	// Build configuration
	cfg := &Config{
		Env: v.GetString("ENV"),
		Associate: AssociateConfig{
			PropertiesFile:  v.GetString("PROPERTIES_FILE"),
			ParcelLayerFile: v.GetString("PARCEL_LAYER_FILE"),
			OpenDataDB:      v.GetString("OPEN_DATA_DB"),
			OutputFile:      v.GetString("ASSOCIATIONS_FILE"),
			Strategies:      ParseStrategies(v.GetString("ASSOCIATE_STRATEGIES")),
		},
		Build: BuildConfig{
			AssociationsFile: v.GetString("ASSOCIATIONS_FILE"),
			LeadFile:         v.GetString("LEAD_FILE"),
			SubsidiesFile:    v.GetString("SUBSIDIES_FILE"),
			OpenDataDB:       v.GetString("OPEN_DATA_DB"),
			CouncilLayerFile: v.GetString("COUNCIL_LAYER_FILE"),
			SenateLayerFile:  v.GetString("SENATE_LAYER_FILE"),
			OutputDir:        v.GetString("OUTPUT_DIR"),
			LookbackYears:    v.GetInt("VIOLATION_LOOKBACK_YEARS"),
		},
		Carto: CartoConfig{
			BaseURL:    v.GetString("CARTO_URL"),
			OutputFile: v.GetString("VIOLATIONS_FILE"),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	// Validate associate config
	if c.Associate.PropertiesFile == "" {
		return fmt.Errorf("PROPERTIES_FILE is required")
	}
	if c.Associate.OutputFile == "" {
		return fmt.Errorf("ASSOCIATIONS_FILE is required")
	}
	if len(c.Associate.Strategies) == 0 {
		return fmt.Errorf("ASSOCIATE_STRATEGIES is required")
	}
	for _, s := range c.Associate.Strategies {
		switch s {
		case StrategyDeed, StrategySpatial, StrategyAddress:
		default:
			return fmt.Errorf("unknown association strategy %q (valid: deed, spatial, address)", s)
		}
	}

	// Validate build config
	if c.Build.AssociationsFile == "" {
		return fmt.Errorf("ASSOCIATIONS_FILE is required")
	}
	if c.Build.OutputDir == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}
	if c.Build.LookbackYears < 1 {
		return fmt.Errorf("VIOLATION_LOOKBACK_YEARS must be at least 1")
	}

	// Validate carto config
	if c.Carto.BaseURL == "" {
		return fmt.Errorf("CARTO_URL is required")
	}

	return nil
}

// ParseStrategies splits a comma-separated strategy list into a slice.
func ParseStrategies(strategies string) []string {
	if strategies == "" {
		return []string{}
	}

	parts := strings.Split(strategies, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.ToLower(strings.TrimSpace(part))
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
