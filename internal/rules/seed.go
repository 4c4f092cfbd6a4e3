package rules

import (
	"context"
	"fmt"

	"github.com/roach88/irts/internal/ir"
)

// Target is where rules are written. *store.Store satisfies it.
type Target interface {
	UpsertMapping(ctx context.Context, m ir.MappingRule) error
	ClearTransformations(ctx context.Context, source string) error
	AddTransformation(ctx context.Context, r ir.TransformationRule) (int64, error)
}

// SeedStats counts what Seed wrote.
type SeedStats struct {
	Sources         int `json:"sources"`
	Mappings        int `json:"mappings"`
	Transformations int `json:"transformations"`
}

// Seed writes a rule set. Mappings are upserted; the transformation list of
// every source named in the set is replaced wholesale, so a rule removed
// from a file disappears from the store. Mapper caches must be cleared
// afterwards.
func Seed(ctx context.Context, target Target, rs *RuleSet) (SeedStats, error) {
	var stats SeedStats

	for _, m := range rs.Mappings {
		if err := target.UpsertMapping(ctx, m); err != nil {
			return stats, fmt.Errorf("seed mapping %s/%s: %w", m.Source, m.SourceField, err)
		}
		stats.Mappings++
	}

	sources := rs.Sources()
	for _, source := range sources {
		if err := target.ClearTransformations(ctx, source); err != nil {
			return stats, fmt.Errorf("seed transformations %s: %w", source, err)
		}
	}
	for _, t := range rs.Transformations {
		if _, err := target.AddTransformation(ctx, t); err != nil {
			return stats, fmt.Errorf("seed transformation %s/%s: %w", t.Source, t.Field, err)
		}
		stats.Transformations++
	}

	stats.Sources = len(sources)
	return stats, nil
}
