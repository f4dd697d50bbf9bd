package seed

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/merchcalc/internal/config"
	"github.com/Simplici0/merchcalc/internal/store"
)

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
	Skipped int
}

// Run inserts the catalog factories that are not stored yet. It is
// idempotent: factories are matched by name and never overwritten.
func Run(ctx context.Context, s *store.Store, factories []config.FactoryEntry) (Stats, error) {
	stats := Stats{}

	err := s.InTx(ctx, func(tx *store.Tx) error {
		for _, entry := range factories {
			if err := ensureFactory(ctx, tx, entry, &stats); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("seed factories: %w", err)
	}
	return stats, nil
}

func ensureFactory(ctx context.Context, tx *store.Tx, entry config.FactoryEntry, stats *Stats) error {
	exists, err := tx.FactoryExists(ctx, entry.Name)
	if err != nil {
		return err
	}
	if exists {
		stats.Skipped++
		return nil
	}

	if _, err := tx.CreateFactory(ctx, store.Factory{
		Name:            entry.Name,
		Contact:         entry.Contact,
		SampleDays:      entry.SampleDays,
		ProductionDays:  entry.ProductionDays,
		SamplePriceYuan: decimal.NewFromFloat(entry.SamplePriceYuan),
	}); err != nil {
		return err
	}
	stats.Inserts++
	return nil
}
