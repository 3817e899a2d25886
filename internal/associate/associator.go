package associate

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/lihtc-philly/pipeline/internal/logger"
	"github.com/lihtc-philly/pipeline/internal/models"
)

// Summary reports what one associator run did. It is logged and shown
// to the operator; nothing downstream consumes it.
type Summary struct {
	RunID        string
	Properties   int
	Matched      int
	Unmatched    []string // names of properties with zero associations
	Associations int
}

// Associator maps each LIHTC property to its plausible tax parcels by
// running a configured chain of matching strategies. The first
// strategy that yields matches for a property wins; later strategies
// are only consulted when earlier ones come up empty.
type Associator struct {
	strategies []Strategy
	log        *logger.Logger
}

// New creates an Associator with the given strategy chain.
func New(strategies []Strategy, log *logger.Logger) (*Associator, error) {
	if len(strategies) == 0 {
		return nil, fmt.Errorf("at least one association strategy is required")
	}
	return &Associator{
		strategies: strategies,
		log:        log,
	}, nil
}

// Run associates every property and returns the full association
// table, sorted for deterministic output. A property with no match in
// any strategy contributes zero rows and is reported in the summary,
// never treated as a failure.
func (a *Associator) Run(ctx context.Context, properties []models.Property) ([]models.Association, Summary, error) {
	summary := Summary{
		RunID:      uuid.NewString(),
		Properties: len(properties),
	}
	log := a.log.WithRun(summary.RunID, "associate")

	log.Info("Association run started", map[string]interface{}{
		"properties": len(properties),
		"strategies": len(a.strategies),
	})

	var associations []models.Association
	for _, property := range properties {
		matches, err := a.matchProperty(ctx, log, property)
		if err != nil {
			return nil, summary, err
		}

		if len(matches) == 0 {
			summary.Unmatched = append(summary.Unmatched, property.Name)
			log.Warn("No parcel association found", map[string]interface{}{
				"property": property.Name,
				"nhpd_id":  property.NHPDPropertyID,
			})
			continue
		}

		summary.Matched++
		associations = append(associations, matches...)
	}

	// Deterministic order: by property, then parcel.
	sort.Slice(associations, func(i, j int) bool {
		if associations[i].NHPDPropertyID != associations[j].NHPDPropertyID {
			return associations[i].NHPDPropertyID < associations[j].NHPDPropertyID
		}
		return associations[i].ParcelNumber < associations[j].ParcelNumber
	})

	summary.Associations = len(associations)
	log.Info("Association run complete", map[string]interface{}{
		"matched":      summary.Matched,
		"unmatched":    len(summary.Unmatched),
		"associations": summary.Associations,
	})

	return associations, summary, nil
}

// matchProperty walks the strategy chain for one property.
func (a *Associator) matchProperty(ctx context.Context, log *logger.Logger, property models.Property) ([]models.Association, error) {
	for _, strategy := range a.strategies {
		matches, err := strategy.Match(ctx, property)
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", strategy.Name(), err)
		}
		if len(matches) > 0 {
			log.Debug("Property matched", map[string]interface{}{
				"property": property.Name,
				"strategy": strategy.Name(),
				"parcels":  len(matches),
			})
			return matches, nil
		}
	}
	return nil, nil
}
