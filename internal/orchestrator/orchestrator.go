// Package orchestrator drives one sync run through its stages: resolve
// the mode, discover candidates, materialize records, merge, validate,
// and finally commit or roll back. Stages are strict barriers; nothing
// merges while a fetch is still in flight.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantmap/quantmap/internal/discovery"
	"github.com/quantmap/quantmap/internal/fetch"
	"github.com/quantmap/quantmap/internal/hub"
	"github.com/quantmap/quantmap/internal/recovery"
	"github.com/quantmap/quantmap/internal/scheduler"
	"github.com/quantmap/quantmap/internal/validate"
	"github.com/quantmap/quantmap/pkg/catalogs"
	"github.com/quantmap/quantmap/pkg/errors"
	"github.com/quantmap/quantmap/pkg/logging"
	"github.com/quantmap/quantmap/pkg/syncer"
)

// Stage names, logged on every transition.
const (
	StageIdle         = "idle"
	StageModeResolved = "mode_resolved"
	StageDiscovering  = "discovering"
	StageFetching     = "fetching"
	StageMerging      = "merging"
	StageValidating   = "validating"
	StageCommitting   = "committing"
	StageRollingBack  = "rolling_back"
	StageDone         = "done"
)

// Client is the hub surface the pipeline consumes. *hub.Client satisfies
// it; tests substitute fakes.
type Client interface {
	ListModels(ctx context.Context, q hub.ListQuery) (*hub.ListPage, error)
	GetModel(ctx context.Context, id string) (*hub.ModelDetail, error)
}

// Store is the persistence surface the orchestrator needs.
type Store interface {
	LoadCatalog() (*catalogs.Catalog, error)
	SaveCatalog(cat *catalogs.Catalog, now time.Time) error
	LoadState() (syncer.State, error)
	SaveState(state syncer.State) error
}

// Orchestrator owns the lifecycle of sync runs against one store and one
// hub endpoint. Runs are sequential; concurrency lives inside a run.
type Orchestrator struct {
	cfg    syncer.RunConfig
	store  Store
	client Client
	logger *zerolog.Logger
	now    func() time.Time

	mu sync.Mutex // serializes Run
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClient overrides the hub client, for tests or alternate endpoints.
func WithClient(c Client) Option {
	return func(o *Orchestrator) { o.client = c }
}

// WithLogger overrides the logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator. baseURL and token configure the default
// hub client unless WithClient replaces it.
func New(cfg syncer.RunConfig, store Store, baseURL, token string, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		cfg:    cfg,
		store:  store,
		logger: logging.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.client == nil {
		o.client = hub.New(baseURL, token, o.scheduler())
	}
	return o, nil
}

func (o *Orchestrator) scheduler() *scheduler.Scheduler {
	return scheduler.New(scheduler.Config{
		RequestsPerSecond: o.cfg.RequestsPerSecond,
		RequestsPerHour:   o.cfg.RequestsPerHour,
		MaxConcurrent:     o.cfg.MaxConcurrent,
		RequestTimeout:    o.cfg.RequestTimeout,
		Retry: scheduler.RetryPolicy{
			MaxRetries: o.cfg.MaxRetries,
			Base:       o.cfg.BackoffBase,
			Jitter:     o.cfg.BackoffJitter,
		},
	})
}

// run carries the mutable state of one sync run between stages.
type run struct {
	id       string
	report   *syncer.Report
	manager  *recovery.Manager
	previous *catalogs.Catalog
	state    syncer.State
	stage    string
	logger   zerolog.Logger
}

func (r *run) transition(stage string) {
	r.logger.Info().
		Str("from", r.stage).
		Str("to", stage).
		Msg("Stage transition")
	r.stage = stage
}

// Run executes one sync run and always returns a report, even when the
// run rolled back. The returned error is non-nil only for run-level
// failures (fatal errors and persistence failures); per-record failures
// live in the report.
func (o *Orchestrator) Run(ctx context.Context) (*syncer.Report, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	started := o.now()
	r := &run{
		id:      uuid.New().String(),
		manager: recovery.New(&o.cfg, o.logger),
		stage:   StageIdle,
	}
	r.logger = o.logger.With().Str("run_id", r.id).Logger()
	r.report = &syncer.Report{RunID: r.id, StartedAt: started}
	ctx = logging.WithRunID(logging.WithLogger(ctx, &r.logger), r.id)

	// A fatal error anywhere cancels everything still in flight.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := o.execute(ctx, cancel, r)
	r.report.Elapsed = o.now().Sub(started)
	r.report.Errors = r.manager.Errors()

	// State advances on every run so auto mode sees rolled-back attempts.
	// Dry runs leave it untouched along with the snapshot.
	if !o.cfg.DryRun {
		r.state = r.state.Advance(r.report, o.now())
		if serr := o.store.SaveState(r.state); serr != nil {
			r.logger.Error().Err(serr).Msg("Failed to persist sync state")
			if err == nil {
				err = serr
			}
		}
	}

	r.transition(StageDone)
	r.logger.Info().
		Str("decision", string(r.report.Decision)).
		Int("records", r.report.Records).
		Int("fetched", r.report.Fetched).
		Int("reused", r.report.Reused).
		Int("failed", r.report.Failed).
		Float64("change_ratio", r.report.ChangeRatio).
		Msg("Sync run finished")
	return r.report, err
}

// execute walks the stages. Any returned error has already been decided
// as a rollback; the report reflects it.
func (o *Orchestrator) execute(ctx context.Context, cancel context.CancelFunc, r *run) error {
	// Load previous catalog and state.
	var err error
	if r.previous, err = o.store.LoadCatalog(); err != nil {
		return o.abort(r, errors.NewFatalError("previous catalog unreadable", err))
	}
	if r.state, err = o.store.LoadState(); err != nil {
		return o.abort(r, errors.NewFatalError("sync state unreadable", err))
	}

	mode, note := o.cfg.ResolveMode(r.state, o.now())
	r.report.Mode = mode
	r.report.ModeNote = note
	r.transition(StageModeResolved)
	r.logger.Info().Str("mode", string(mode)).Str("reason", note).Msg("Mode resolved")

	// Discovery.
	r.transition(StageDiscovering)
	engine := discovery.New(o.client, &o.cfg)
	candidates, strategyErrs := engine.Enumerate(ctx)
	for _, serr := range strategyErrs {
		r.manager.Record(serr)
	}
	r.report.Discovered = len(candidates)
	if len(candidates) == 0 && len(strategyErrs) > 0 {
		return o.abort(r, errors.NewFatalError("all discovery strategies failed", strategyErrs[0]))
	}

	// Candidates that multiple strategies produced are fetched once, under
	// the first strategy in configuration order; merge applies the same
	// tie-break to record content.
	unique := dedupe(candidates)
	r.report.Skipped = len(candidates) - len(unique)

	// Fetch fan-out.
	r.transition(StageFetching)
	records, reused := o.materialize(ctx, cancel, r, unique)
	r.report.Reused = reused
	r.report.Fetched = len(records) - reused
	r.report.Failed = len(unique) - len(records)

	if fatal := r.manager.Fatal(); fatal != nil {
		return o.abort(r, nil)
	}
	if err := ctx.Err(); err != nil {
		return o.abort(r, errors.NewFatalError("run canceled", err))
	}

	// Merge.
	r.transition(StageMerging)
	merged := catalogs.Merge(records, o.cfg.StrategyOrder())

	// Validate.
	r.transition(StageValidating)
	verdict := validate.Run(merged, r.previous, &o.cfg)
	r.report.Records = verdict.Catalog.Len()
	r.report.Completeness = verdict.RunCompleteness
	r.report.Quality = verdict.RunQuality
	r.report.ChangeRatio = verdict.ChangeRatio

	outcome := r.manager.Decide(verdict, len(unique))
	if outcome.Decision == syncer.DecisionRolledBack {
		r.transition(StageRollingBack)
		r.report.Decision = syncer.DecisionRolledBack
		r.report.RollbackReason = outcome.Reason
		r.logger.Warn().Str("reason", outcome.Reason).Msg("Rolling back, previous catalog preserved")
		return nil
	}

	// Commit.
	r.transition(StageCommitting)
	if o.cfg.DryRun {
		r.logger.Info().Msg("Dry run, snapshot not written")
		r.report.Decision = syncer.DecisionCommitted
		return nil
	}
	if err := o.store.SaveCatalog(verdict.Catalog, o.now()); err != nil {
		r.manager.Record(errors.NewFatalError("snapshot write failed", err))
		return o.abort(r, nil)
	}
	r.report.Decision = syncer.DecisionCommitted
	return nil
}

// abort records err (when non-nil), marks the run rolled back, and
// returns the latched fatal error.
func (o *Orchestrator) abort(r *run, err error) error {
	if err != nil {
		r.manager.Record(err)
	}
	fatal := r.manager.Fatal()
	r.transition(StageRollingBack)
	r.report.Decision = syncer.DecisionRolledBack
	if fatal != nil {
		r.report.RollbackReason = fatal.Error()
	}
	return fatal
}

// materialize fans candidates out to a bounded worker pool. Workers stop
// picking up new candidates once the context is canceled; candidates in
// flight finish or fail on their own.
func (o *Orchestrator) materialize(ctx context.Context, cancel context.CancelFunc, r *run, candidates []discovery.Candidate) ([]catalogs.Model, int) {
	mat := fetch.New(o.client, r.previous, r.report.Mode, &o.cfg)

	workers := o.cfg.MaxConcurrent
	if workers > len(candidates) {
		workers = len(candidates)
	}
	if workers < 1 {
		workers = 1
	}

	var (
		mu      sync.Mutex
		records []catalogs.Model
		reused  int
	)
	jobs := make(chan discovery.Candidate)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cand := range jobs {
				rec, wasReused, err := mat.Materialize(logging.WithModel(ctx, cand.ID), cand)
				if err != nil {
					r.manager.Record(err)
					if errors.IsFatal(err) {
						cancel()
					}
					continue
				}
				mu.Lock()
				records = append(records, rec)
				if wasReused {
					reused++
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, cand := range candidates {
		select {
		case jobs <- cand:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()
	return records, reused
}

// dedupe collapses candidates sharing an identifier, keeping the first
// occurrence. Candidates arrive concatenated in strategy-configuration
// order, so the survivor carries the highest-priority strategy.
func dedupe(candidates []discovery.Candidate) []discovery.Candidate {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]discovery.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
