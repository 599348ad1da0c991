// Package discovery enumerates candidate model identifiers from the hub
// using several independent strategies. Outputs are concatenated, not
// merged; deduplication happens later so provenance survives into the
// merge tie-break.
package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/quantmap/quantmap/internal/hub"
	"github.com/quantmap/quantmap/pkg/errors"
	"github.com/quantmap/quantmap/pkg/logging"
	"github.com/quantmap/quantmap/pkg/syncer"
)

// Candidate is one discovered model identifier with its provenance.
// Candidates are transient: they are consumed by materialization and
// discarded after merge.
type Candidate struct {
	ID           string
	Strategy     string
	DiscoveredAt time.Time

	// Summary is the listing entry that produced the candidate. Its
	// LastModified feeds the incremental short-circuit without a detail
	// fetch.
	Summary hub.ModelSummary
}

// Lister is the slice of the hub client discovery needs.
type Lister interface {
	ListModels(ctx context.Context, q hub.ListQuery) (*hub.ListPage, error)
}

// Engine runs the configured discovery strategies.
type Engine struct {
	client     Lister
	strategies []syncer.StrategyConfig
	pageSize   int
	maxPages   int
	now        func() time.Time
}

// New creates a discovery engine for the given strategy set.
func New(client Lister, cfg *syncer.RunConfig) *Engine {
	return &Engine{
		client:     client,
		strategies: cfg.Strategies,
		pageSize:   cfg.PageSize,
		maxPages:   cfg.MaxPages,
		now:        time.Now,
	}
}

// Enumerate runs all strategies concurrently and returns the concatenated
// candidates in strategy-configuration order, plus one StrategyError per
// strategy that failed entirely. Concurrency across hub requests is
// already bounded by the scheduler underneath the client.
func (e *Engine) Enumerate(ctx context.Context) ([]Candidate, []error) {
	results := make([][]Candidate, len(e.strategies))
	failures := make([]error, len(e.strategies))

	var wg sync.WaitGroup
	for i, strat := range e.strategies {
		wg.Add(1)
		go func(i int, strat syncer.StrategyConfig) {
			defer wg.Done()
			sctx := logging.WithStrategy(ctx, strat.Name)

			found, err := e.paginate(sctx, strat)
			results[i] = found
			if err != nil {
				failures[i] = errors.NewStrategyError(strat.Name, err)
				logging.Ctx(sctx).Warn().Err(err).
					Int("found_before_failure", len(found)).
					Msg("Discovery strategy failed")
				return
			}
			logging.Ctx(sctx).Info().Int("candidates", len(found)).Msg("Strategy finished")
		}(i, strat)
	}
	wg.Wait()

	var candidates []Candidate
	for _, r := range results {
		candidates = append(candidates, r...)
	}
	var errs []error
	for _, f := range failures {
		if f != nil {
			errs = append(errs, f)
		}
	}
	return candidates, errs
}

// paginate walks one strategy's listing to exhaustion. Candidates found
// before a mid-pagination failure are kept; the error still marks the
// strategy as partially failed.
func (e *Engine) paginate(ctx context.Context, strat syncer.StrategyConfig) ([]Candidate, error) {
	var out []Candidate
	cursor := ""

	for page := 0; e.maxPages == 0 || page < e.maxPages; page++ {
		q := e.query(strat)
		q.Cursor = cursor

		result, err := e.client.ListModels(ctx, q)
		if err != nil {
			return out, err
		}
		if len(result.Models) == 0 {
			break
		}

		now := e.now().UTC()
		for _, m := range result.Models {
			id := m.Identifier()
			if id == "" {
				continue
			}
			out = append(out, Candidate{
				ID:           id,
				Strategy:     strat.Name,
				DiscoveredAt: now,
				Summary:      m,
			})
		}

		cursor = result.NextCursor
		if cursor == "" {
			break
		}
	}
	return out, nil
}

// query maps a strategy onto the hub's listing parameters.
func (e *Engine) query(strat syncer.StrategyConfig) hub.ListQuery {
	q := hub.ListQuery{Limit: e.pageSize}
	switch strat.Name {
	case syncer.StrategyByTag:
		q.Filter = strat.Query
	case syncer.StrategyByAuthor:
		q.Author = strat.Query
	case syncer.StrategyTrending:
		q.Sort = "trendingScore"
	case syncer.StrategyByArchitecture:
		q.Filter = strat.Query
		q.Sort = "downloads"
	}
	return q
}
