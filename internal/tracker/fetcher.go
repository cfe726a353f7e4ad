package tracker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pearmediallc/creative-library-analytics/internal/config"
	"github.com/pearmediallc/creative-library-analytics/internal/metrics"
	"github.com/pearmediallc/creative-library-analytics/internal/models"
)

// Lookup outcomes, used for logs and Prometheus labels.
const (
	outcomeOK          = "ok"
	outcomeAbsent      = "absent"
	outcomeFailed      = "failed"
	outcomeRateLimited = "rate_limited"
	outcomeCanceled    = "canceled"
)

// LookupClient is the upstream surface the fetcher paces. *Client
// implements it; tests substitute httptest-backed or scripted fakes.
type LookupClient interface {
	LookupKey(ctx context.Context, key string) (*models.RevenueRecord, error)
	LookupBulk(ctx context.Context, keys []string) (map[string]*models.RevenueRecord, error)
}

// Fetcher retrieves revenue records for a set of keys while enforcing
// the tracking provider's request ceiling. Lookups within one call may
// run concurrently, but every outbound request passes through the
// shared limiter, so the aggregate rate stays under the ceiling.
//
// Failures are isolated per key: a lookup that exhausts its single
// retry resolves to absent and the rest of the fetch proceeds. When the
// context expires mid-fetch the call returns whatever it has, flagged
// incomplete, instead of discarding completed work.
type Fetcher struct {
	client  LookupClient
	limiter Limiter
	clock   Clock
	cache   *RevenueCache
	cfg     config.TrackerConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewFetcher wires a rate-limited fetcher. cache may be nil.
func NewFetcher(client LookupClient, limiter Limiter, cache *RevenueCache, cfg config.TrackerConfig, logger *zap.Logger, m *metrics.Metrics) *Fetcher {
	return &Fetcher{
		client:  client,
		limiter: limiter,
		clock:   RealClock{},
		cache:   cache,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
	}
}

// Fetch retrieves revenue records for the given keys. Keys are deduped;
// keys with no upstream data are absent from the result map. Bulk
// strategy kicks in above the configured threshold, otherwise each key
// is looked up individually.
func (f *Fetcher) Fetch(ctx context.Context, keys []string) (*models.FetchResult, error) {
	if f.client == nil {
		return nil, errors.New("tracker: fetcher has no client")
	}

	res := &models.FetchResult{
		Records: make(map[string]*models.RevenueRecord),
	}

	unique := dedupe(keys)
	remaining := make([]string, 0, len(unique))
	for _, key := range unique {
		if rec, ok := f.cache.Get(ctx, key); ok {
			res.Records[key] = rec
			res.CacheHits++
			if f.metrics != nil {
				f.metrics.RecordCache(true)
			}
			continue
		}
		if f.metrics != nil && f.cache != nil {
			f.metrics.RecordCache(false)
		}
		remaining = append(remaining, key)
	}
	if len(remaining) == 0 {
		return res, nil
	}

	if len(remaining) > f.cfg.BulkThreshold {
		f.fetchBulk(ctx, remaining, res)
	} else {
		f.fetchSequential(ctx, remaining, res)
	}

	f.logger.Info("revenue fetch finished",
		zap.Int("keys", len(unique)),
		zap.Int("fetched", len(res.Records)),
		zap.Int("requests", res.Requests),
		zap.Int("retries", res.Retries),
		zap.Int("cache_hits", res.CacheHits),
		zap.Int("failed", len(res.FailedKeys)),
		zap.Bool("incomplete", res.Incomplete),
	)
	return res, nil
}

// fetchSequential looks keys up one request each, concurrently up to
// the configured bound. The limiter serializes admission.
func (f *Fetcher) fetchSequential(ctx context.Context, keys []string, res *models.FetchResult) {
	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(f.cfg.Concurrency)

	for _, key := range keys {
		key := key
		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				res.Incomplete = true
				mu.Unlock()
				return nil
			}
			if !f.admit(ctx) {
				mu.Lock()
				res.Incomplete = true
				mu.Unlock()
				return nil
			}

			rec, attempts, outcome := f.lookupWithRetry(ctx, key)
			if outcome == outcomeOK {
				f.cache.Set(ctx, key, rec)
			}

			mu.Lock()
			defer mu.Unlock()
			res.Requests += attempts
			if attempts > 1 {
				res.Retries += attempts - 1
			}
			switch outcome {
			case outcomeOK:
				res.Records[key] = rec
			case outcomeCanceled:
				res.Incomplete = true
			case outcomeFailed, outcomeRateLimited:
				res.FailedKeys = append(res.FailedKeys, key)
			}
			if f.metrics != nil {
				f.metrics.RecordFetch(outcome)
			}
			return nil
		})
	}
	g.Wait()
}

// fetchBulk issues chunked multi-key requests. A key omitted from a
// bulk response is recorded as absent and not re-queried; only a failed
// bulk request (after its retry) falls back to sequential lookups for
// that chunk's keys.
func (f *Fetcher) fetchBulk(ctx context.Context, keys []string, res *models.FetchResult) {
	for start := 0; start < len(keys); start += f.cfg.BulkSize {
		end := start + f.cfg.BulkSize
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		if ctx.Err() != nil || !f.admit(ctx) {
			res.Incomplete = true
			return
		}

		rows, err := f.client.LookupBulk(ctx, chunk)
		res.Requests++

		if err != nil && IsTransient(err) && f.cfg.MaxRetries > 0 {
			f.logger.Warn("bulk lookup failed, retrying",
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err),
			)
			res.Retries++
			if f.metrics != nil {
				f.metrics.RecordRetry()
			}
			if f.clock.Sleep(ctx, f.cfg.RetryBackoff) != nil || !f.admit(ctx) {
				res.Incomplete = true
				return
			}
			rows, err = f.client.LookupBulk(ctx, chunk)
			res.Requests++
		}

		switch {
		case err == nil:
			for _, key := range chunk {
				if rec, ok := rows[key]; ok {
					res.Records[key] = rec
					f.cache.Set(ctx, key, rec)
					if f.metrics != nil {
						f.metrics.RecordFetch(outcomeOK)
					}
				} else if f.metrics != nil {
					f.metrics.RecordFetch(outcomeAbsent)
				}
			}
		case errors.Is(err, ErrRateLimited):
			f.logger.Warn("bulk lookup rate limited, backing off",
				zap.Int("chunk_size", len(chunk)),
			)
			res.FailedKeys = append(res.FailedKeys, chunk...)
			if f.metrics != nil {
				f.metrics.RecordFetch(outcomeRateLimited)
			}
			if f.clock.Sleep(ctx, f.cfg.RateLimitBackoff) != nil {
				res.Incomplete = true
				return
			}
		case ctx.Err() != nil:
			res.Incomplete = true
			return
		default:
			// Whole-chunk failure after retry: fall back to per-key
			// lookups so one bad bulk request cannot blank 25 keys.
			f.logger.Warn("bulk lookup exhausted retries, falling back to sequential",
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err),
			)
			f.fetchSequential(ctx, chunk, res)
			if res.Incomplete {
				return
			}
		}
	}
}

// admit blocks on the shared limiter, recording the wait. Returns false
// when the context expired while waiting.
func (f *Fetcher) admit(ctx context.Context) bool {
	start := f.clock.Now()
	if err := f.limiter.Wait(ctx); err != nil {
		return false
	}
	if f.metrics != nil {
		f.metrics.ObserveLimiterWait(f.clock.Now().Sub(start))
	}
	return true
}

// lookupWithRetry performs one key lookup with at most MaxRetries
// retries on transient failures. It returns the outcome plus the number
// of physical attempts made.
func (f *Fetcher) lookupWithRetry(ctx context.Context, key string) (*models.RevenueRecord, int, string) {
	attempts := 0
	for {
		attempts++
		rec, err := f.client.LookupKey(ctx, key)
		switch {
		case err == nil && rec == nil:
			return nil, attempts, outcomeAbsent
		case err == nil:
			return rec, attempts, outcomeOK
		case errors.Is(err, ErrRateLimited):
			// Should not happen when the limiter is set correctly;
			// treat as unavailable plus an elevated backoff so the next
			// admission does not hit the same wall.
			f.logger.Warn("tracker rate limited despite limiter, backing off",
				zap.String("key", key),
			)
			f.clock.Sleep(ctx, f.cfg.RateLimitBackoff)
			return nil, attempts, outcomeRateLimited
		case ctx.Err() != nil:
			return nil, attempts, outcomeCanceled
		case IsTransient(err) && attempts <= f.cfg.MaxRetries:
			f.logger.Debug("transient lookup failure, retrying",
				zap.String("key", key),
				zap.Error(err),
			)
			if f.metrics != nil {
				f.metrics.RecordRetry()
			}
			// The retry is another outbound request and passes the
			// shared limiter like any other.
			if f.clock.Sleep(ctx, f.cfg.RetryBackoff) != nil || !f.admit(ctx) {
				return nil, attempts, outcomeCanceled
			}
		default:
			f.logger.Warn("lookup failed, treating key as absent",
				zap.String("key", key),
				zap.Error(err),
			)
			return nil, attempts, outcomeFailed
		}
	}
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
