package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lihtc-philly/pipeline/internal/associate"
	"github.com/lihtc-philly/pipeline/internal/build"
	"github.com/lihtc-philly/pipeline/internal/carto"
	"github.com/lihtc-philly/pipeline/internal/config"
	"github.com/lihtc-philly/pipeline/internal/database"
	"github.com/lihtc-philly/pipeline/internal/dataset"
	"github.com/lihtc-philly/pipeline/internal/geo"
	"github.com/lihtc-philly/pipeline/internal/logger"
	"github.com/lihtc-philly/pipeline/internal/models"
	"github.com/lihtc-philly/pipeline/internal/repository"
)

var (
	// Flags overriding environment configuration
	propertiesFile   string
	parcelLayerFile  string
	openDataDB       string
	associationsFile string
	strategiesFlag   string
	outputDir        string
	asOfFlag         string
	lookbackYears    int
	cartoURL         string
	violationsFile   string
)

var rootCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Philadelphia LIHTC housing data pipeline",
	Long: `Batch pipeline that associates HUD-listed LIHTC properties with
Philadelphia tax parcels and assembles the dashboard dataset from city
and state open data.

Typical workflow:
  pipeline associate         # build the property-to-parcel table
  pipeline build             # assemble the dashboard CSVs
  pipeline fetch-violations  # refresh raw violations from the Carto API`,
	SilenceUsage: true,
}

var associateCmd = &cobra.Command{
	Use:   "associate",
	Short: "Associate LIHTC properties with their tax parcels",
	Long: `Runs the configured chain of matching strategies (deed, spatial,
address) over the geocoded property spreadsheet and writes the
property-to-parcel association table.`,
	RunE: runAssociate,
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the dashboard dataset from the association table",
	Long: `Left-joins rental licenses, lead certifications, subsidies,
violations, and district boundaries onto the association table and
writes properties.csv, violations.csv, and subsidies.csv.`,
	RunE: runBuild,
}

var fetchViolationsCmd = &cobra.Command{
	Use:   "fetch-violations",
	Short: "Fetch code violations for associated parcels from the Carto API",
	RunE:  runFetchViolations,
}

func init() {
	associateCmd.Flags().StringVar(&propertiesFile, "properties", "", "geocoded LIHTC properties CSV (overrides PROPERTIES_FILE)")
	associateCmd.Flags().StringVar(&parcelLayerFile, "parcels", "", "parcel boundary layer, GeoJSON or shapefile (overrides PARCEL_LAYER_FILE)")
	associateCmd.Flags().StringVar(&openDataDB, "db", "", "open data SQLite snapshot (overrides OPEN_DATA_DB)")
	associateCmd.Flags().StringVar(&associationsFile, "output", "", "association table output path (overrides ASSOCIATIONS_FILE)")
	associateCmd.Flags().StringVar(&strategiesFlag, "strategies", "", "comma-separated strategy order (overrides ASSOCIATE_STRATEGIES)")

	buildCmd.Flags().StringVar(&associationsFile, "associations", "", "association table path (overrides ASSOCIATIONS_FILE)")
	buildCmd.Flags().StringVar(&openDataDB, "db", "", "open data SQLite snapshot (overrides OPEN_DATA_DB)")
	buildCmd.Flags().StringVar(&outputDir, "output-dir", "", "dashboard output directory (overrides OUTPUT_DIR)")
	buildCmd.Flags().StringVar(&asOfFlag, "as-of", "", "as-of date for the violation lookback window, YYYY-MM-DD (default today)")
	buildCmd.Flags().IntVar(&lookbackYears, "lookback-years", 0, "violation lookback window in years (overrides VIOLATION_LOOKBACK_YEARS)")

	fetchViolationsCmd.Flags().StringVar(&associationsFile, "associations", "", "association table path (overrides ASSOCIATIONS_FILE)")
	fetchViolationsCmd.Flags().StringVar(&cartoURL, "carto-url", "", "Carto SQL API endpoint (overrides CARTO_URL)")
	fetchViolationsCmd.Flags().StringVar(&violationsFile, "output", "", "raw violations output path (overrides VIOLATIONS_FILE)")

	rootCmd.AddCommand(associateCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(fetchViolationsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration, applies flag overrides, and builds the
// logger plus a signal-aware context shared by every subcommand.
func setup() (*config.Config, *logger.Logger, context.Context, context.CancelFunc, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	applyOverrides(cfg)

	log := logger.New(cfg.Env)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return cfg, log, ctx, cancel, nil
}

func applyOverrides(cfg *config.Config) {
	if propertiesFile != "" {
		cfg.Associate.PropertiesFile = propertiesFile
	}
	if parcelLayerFile != "" {
		cfg.Associate.ParcelLayerFile = parcelLayerFile
	}
	if openDataDB != "" {
		cfg.Associate.OpenDataDB = openDataDB
		cfg.Build.OpenDataDB = openDataDB
	}
	if associationsFile != "" {
		cfg.Associate.OutputFile = associationsFile
		cfg.Build.AssociationsFile = associationsFile
	}
	if strategiesFlag != "" {
		cfg.Associate.Strategies = config.ParseStrategies(strategiesFlag)
	}
	if outputDir != "" {
		cfg.Build.OutputDir = outputDir
	}
	if lookbackYears > 0 {
		cfg.Build.LookbackYears = lookbackYears
	}
	if cartoURL != "" {
		cfg.Carto.BaseURL = cartoURL
	}
	if violationsFile != "" {
		cfg.Carto.OutputFile = violationsFile
	}
}

func runAssociate(cmd *cobra.Command, args []string) error {
	cfg, log, ctx, cancel, err := setup()
	if err != nil {
		return err
	}
	defer cancel()

	loader := dataset.NewLoader(log)
	properties, err := loader.Properties(cfg.Associate.PropertiesFile)
	if err != nil {
		return err
	}

	strategies, cleanup, err := buildStrategies(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	associator, err := associate.New(strategies, log)
	if err != nil {
		return err
	}

	associations, summary, err := associator.Run(ctx, properties)
	if err != nil {
		return err
	}

	if err := dataset.WriteAssociations(cfg.Associate.OutputFile, associations); err != nil {
		return err
	}

	log.Info("Association table written", map[string]interface{}{
		"run_id":       summary.RunID,
		"output":       cfg.Associate.OutputFile,
		"properties":   summary.Properties,
		"matched":      summary.Matched,
		"unmatched":    len(summary.Unmatched),
		"associations": summary.Associations,
	})
	return nil
}

// buildStrategies assembles the configured strategy chain, opening the
// open data snapshot and parcel layer only when a strategy needs them.
func buildStrategies(ctx context.Context, cfg *config.Config, log *logger.Logger) ([]associate.Strategy, func(), error) {
	cleanup := func() {}

	var parcels []models.Parcel
	loadParcels := func() ([]models.Parcel, error) {
		if parcels != nil {
			return parcels, nil
		}
		layer, err := geo.LoadLayer(cfg.Associate.ParcelLayerFile)
		if err != nil {
			return nil, err
		}
		log.Info("Parcel layer loaded", map[string]interface{}{
			"path":    cfg.Associate.ParcelLayerFile,
			"parcels": layer.Len(),
		})
		parcels = geo.ParcelsFromLayer(layer)
		return parcels, nil
	}

	var strategies []associate.Strategy
	for _, name := range cfg.Associate.Strategies {
		switch name {
		case config.StrategyDeed:
			db, err := database.OpenSnapshot(ctx, cfg.Associate.OpenDataDB)
			if err != nil {
				return nil, cleanup, err
			}
			cleanup = func() { _ = db.Close() }
			repo := repository.NewOpenDataRepository(db)
			strategies = append(strategies, associate.NewDeedStrategy(repo))
		case config.StrategySpatial:
			p, err := loadParcels()
			if err != nil {
				return nil, cleanup, err
			}
			strategies = append(strategies, associate.NewSpatialStrategy(p))
		case config.StrategyAddress:
			p, err := loadParcels()
			if err != nil {
				return nil, cleanup, err
			}
			strategies = append(strategies, associate.NewAddressStrategy(p))
		default:
			return nil, cleanup, fmt.Errorf("unknown association strategy %q", name)
		}
	}
	return strategies, cleanup, nil
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, log, ctx, cancel, err := setup()
	if err != nil {
		return err
	}
	defer cancel()

	asOf := time.Now().UTC().Truncate(24 * time.Hour)
	if asOfFlag != "" {
		asOf, err = time.Parse("2006-01-02", asOfFlag)
		if err != nil {
			return fmt.Errorf("invalid --as-of date %q: %w", asOfFlag, err)
		}
	}

	loader := dataset.NewLoader(log)
	associations, err := loader.Associations(cfg.Build.AssociationsFile)
	if err != nil {
		return err
	}
	leads, err := loader.LeadCertifications(cfg.Build.LeadFile)
	if err != nil {
		return err
	}
	subsidies, err := loader.Subsidies(cfg.Build.SubsidiesFile)
	if err != nil {
		return err
	}

	council, err := geo.LoadLayer(cfg.Build.CouncilLayerFile)
	if err != nil {
		return err
	}
	senate, err := geo.LoadLayer(cfg.Build.SenateLayerFile)
	if err != nil {
		return err
	}

	db, err := database.OpenSnapshot(ctx, cfg.Build.OpenDataDB)
	if err != nil {
		return err
	}
	defer db.Close()
	repo := repository.NewOpenDataRepository(db)

	builder, err := build.New(repo, council, senate, asOf, cfg.Build.LookbackYears, log)
	if err != nil {
		return err
	}

	ds, summary, err := builder.Run(ctx, build.Inputs{
		Associations: associations,
		Leads:        leads,
		Subsidies:    subsidies,
	})
	if err != nil {
		return err
	}

	if err := ds.Write(cfg.Build.OutputDir); err != nil {
		return err
	}

	log.Info("Dashboard dataset written", map[string]interface{}{
		"run_id":         summary.RunID,
		"output_dir":     cfg.Build.OutputDir,
		"parcels":        summary.Parcels,
		"violation_rows": summary.ViolationRows,
		"subsidy_rows":   summary.SubsidyRows,
	})
	return nil
}

func runFetchViolations(cmd *cobra.Command, args []string) error {
	cfg, log, ctx, cancel, err := setup()
	if err != nil {
		return err
	}
	defer cancel()

	loader := dataset.NewLoader(log)
	associations, err := loader.Associations(cfg.Build.AssociationsFile)
	if err != nil {
		return err
	}

	fetcher, err := carto.NewFetcher(carto.NewClient(cfg.Carto.BaseURL), log)
	if err != nil {
		return err
	}

	summary, err := fetcher.Run(ctx, associations, cfg.Carto.OutputFile)
	if err != nil {
		return err
	}

	log.Info("Raw violations written", map[string]interface{}{
		"run_id":     summary.RunID,
		"output":     cfg.Carto.OutputFile,
		"parcels":    summary.Parcels,
		"violations": summary.Violations,
	})
	return nil
}
