package stock_health

import (
	"context"
	"sort"

	"github.com/andresuchdata/medstock/backend-go/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Analyzer turns raw stock records into one reorder recommendation per series.
//
// It holds no state between calls and is safe for concurrent use.
type Analyzer struct {
	config     Config
	calculator *InventoryCalculator
}

// NewAnalyzer creates an analyzer for the given policy.
func NewAnalyzer(cfg Config) *Analyzer {
	cfg = cfg.withDefaults()
	return &Analyzer{
		config:     cfg,
		calculator: NewInventoryCalculator(cfg),
	}
}

// Config returns the effective configuration, defaults applied.
func (a *Analyzer) Config() Config {
	return a.config
}

// Analyze validates records, groups them into series and returns their
// recommendations sorted by priority, hospital ID and medicine name.
//
// An empty input yields an empty result. Any invalid record fails the whole
// batch with a *domain.RecordError.
func (a *Analyzer) Analyze(ctx context.Context, records []domain.StockRecord) ([]domain.ReorderRecommendation, error) {
	if err := ValidateRecords(records); err != nil {
		return nil, err
	}

	series := GroupSeries(records)
	out := make([]domain.ReorderRecommendation, len(series))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.Workers)
	for i := range series {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = a.AnalyzeSeries(series[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	SortRecommendations(out)
	return out, nil
}

// AnalyzeSeries runs the usage, snapshot, classification and reorder steps for
// one sorted, non-empty series.
func (a *Analyzer) AnalyzeSeries(s Series) domain.ReorderRecommendation {
	averages := TrailingAverages(s.Records, a.config.WindowSize)
	snap, ok := SelectSnapshot(s, averages)
	if !ok {
		return domain.ReorderRecommendation{}
	}
	return a.calculator.Recommend(a.calculator.Classify(snap))
}

// SortRecommendations orders recommendations by priority, then hospital ID,
// then medicine name, all ascending.
func SortRecommendations(recs []domain.ReorderRecommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.HospitalID != b.HospitalID {
			return a.HospitalID < b.HospitalID
		}
		return a.MedicineName < b.MedicineName
	})
}
