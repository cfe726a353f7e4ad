package correlate

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pearmediallc/creative-library-analytics/internal/metrics"
	"github.com/pearmediallc/creative-library-analytics/internal/models"
	"github.com/pearmediallc/creative-library-analytics/internal/owners"
	"github.com/pearmediallc/creative-library-analytics/internal/storage"
)

// RevenueFetcher retrieves revenue counterparts for a set of keys while
// honoring the tracking provider's rate ceiling. tracker.Fetcher
// implements it.
type RevenueFetcher interface {
	Fetch(ctx context.Context, keys []string) (*models.FetchResult, error)
}

// Engine runs one full correlation pass: validate the spend records,
// resolve owners, fetch the matching revenue records, join the two
// sides, derive per-record metrics and produce per-owner roll-ups.
//
// The engine holds no mutable state across runs; the fetcher is the
// only component doing I/O, everything else is a pure transform, so
// independent runs may execute in parallel.
type Engine struct {
	fetcher    RevenueFetcher
	registry   storage.RegistrySource
	logger     *zap.Logger
	metrics    *metrics.Metrics
	runTimeout time.Duration
}

// NewEngine constructs a correlation engine. runTimeout of zero means
// no per-run deadline beyond the caller's context.
func NewEngine(fetcher RevenueFetcher, registry storage.RegistrySource, runTimeout time.Duration, logger *zap.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		fetcher:    fetcher,
		registry:   registry,
		logger:     logger,
		metrics:    m,
		runTimeout: runTimeout,
	}
}

// Run executes one correlation over the given spend records. Invalid
// records are excluded and counted, never fatal. A run that outlives
// its timeout returns the partial result flagged incomplete; metrics
// for keys that could not be fetched are computed against zero revenue.
func (e *Engine) Run(ctx context.Context, spend []models.SpendRecord) (*models.RunResult, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := e.logger.With(zap.String("run_id", runID))

	if e.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.runTimeout)
		defer cancel()
	}

	// One registry snapshot per run; never mutated while the run lives.
	registry, err := e.registry.LoadRegistry(ctx)
	if err != nil {
		return nil, err
	}
	resolver := owners.NewResolver(registry)

	valid := make([]models.SpendRecord, 0, len(spend))
	seen := make(map[string]struct{}, len(spend))
	excluded := 0
	for _, rec := range spend {
		if err := rec.Validate(); err != nil {
			excluded++
			log.Warn("excluding invalid spend record",
				zap.String("key", rec.Key),
				zap.String("label", rec.Label),
				zap.Error(err),
			)
			continue
		}
		// Each key appears at most once per run; later duplicates are
		// excluded so they cannot double-count spend.
		if _, dup := seen[rec.Key]; dup {
			excluded++
			log.Warn("excluding duplicate spend record",
				zap.String("key", rec.Key),
				zap.String("label", rec.Label),
			)
			continue
		}
		seen[rec.Key] = struct{}{}
		valid = append(valid, rec)
	}

	keys := make([]string, 0, len(valid))
	for _, rec := range valid {
		keys = append(keys, rec.Key)
	}

	fetched, err := e.fetcher.Fetch(ctx, keys)
	if err != nil {
		return nil, err
	}

	unified := Join(valid, fetched.Records)
	unresolved := 0
	for i := range unified {
		unified[i] = Annotate(unified[i])
		if owner, ok := resolver.Resolve(unified[i].Label); ok {
			o := owner
			unified[i].Owner = &o
		} else {
			unresolved++
		}
	}

	summaries, overall := Aggregate(unified)

	result := &models.RunResult{
		RunID:      runID,
		Records:    unified,
		Owners:     summaries,
		Overall:    overall,
		Excluded:   excluded,
		Unresolved: unresolved,
		Incomplete: fetched.Incomplete,
	}

	status := "complete"
	if result.Incomplete {
		status = "incomplete"
	}
	if e.metrics != nil {
		e.metrics.RecordRun(status, time.Since(start), len(valid), excluded, unresolved)
	}
	log.Info("correlation run finished",
		zap.String("status", status),
		zap.Int("records", len(unified)),
		zap.Int("excluded", excluded),
		zap.Int("unresolved", unresolved),
		zap.Int("owners", len(summaries)),
		zap.Int("fetch_requests", fetched.Requests),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}
