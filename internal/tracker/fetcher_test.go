package tracker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pearmediallc/creative-library-analytics/internal/config"
	"github.com/pearmediallc/creative-library-analytics/internal/models"
)

// countingLimiter admits immediately while counting admissions, so
// pacing behavior is observable without real waits.
type countingLimiter struct {
	mu    sync.Mutex
	waits int
}

func (l *countingLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	l.waits++
	l.mu.Unlock()
	return nil
}

func (l *countingLimiter) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waits
}

// fakeClock records sleeps instead of performing them.
type fakeClock struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (c *fakeClock) Now() time.Time { return time.Unix(0, 0) }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.slept = append(c.slept, d)
	c.mu.Unlock()
	return nil
}

type lookupReply struct {
	rec *models.RevenueRecord
	err error
}

// scriptedClient serves canned per-key and bulk replies. A key with an
// exhausted (or missing) script resolves to absent.
type scriptedClient struct {
	mu        sync.Mutex
	replies   map[string][]lookupReply
	bulkRows  map[string]*models.RevenueRecord
	bulkErrs  []error
	keyCalls  int
	bulkCalls int
}

func (c *scriptedClient) LookupKey(_ context.Context, key string) (*models.RevenueRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keyCalls++
	queue := c.replies[key]
	if len(queue) == 0 {
		return nil, nil
	}
	next := queue[0]
	c.replies[key] = queue[1:]
	return next.rec, next.err
}

func (c *scriptedClient) LookupBulk(_ context.Context, keys []string) (map[string]*models.RevenueRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bulkCalls++
	if len(c.bulkErrs) > 0 {
		err := c.bulkErrs[0]
		c.bulkErrs = c.bulkErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	out := make(map[string]*models.RevenueRecord)
	for _, k := range keys {
		if rec, ok := c.bulkRows[k]; ok {
			out[k] = rec
		}
	}
	return out, nil
}

func testTrackerConfig() config.TrackerConfig {
	return config.TrackerConfig{
		RequestsPerMinute: 20,
		BulkThreshold:     10,
		BulkSize:          25,
		MaxRetries:        1,
		RetryBackoff:      2 * time.Second,
		RateLimitBackoff:  15 * time.Second,
		Concurrency:       4,
	}
}

func newTestFetcher(client LookupClient, cfg config.TrackerConfig) (*Fetcher, *countingLimiter, *fakeClock) {
	limiter := &countingLimiter{}
	clock := &fakeClock{}
	f := NewFetcher(client, limiter, nil, cfg, zap.NewNop(), nil)
	f.clock = clock
	return f, limiter, clock
}

func rev(key, amount string) *models.RevenueRecord {
	return &models.RevenueRecord{Key: key, Revenue: decimal.RequireFromString(amount)}
}

func TestFetcher_Sequential_IsolatesFailures(t *testing.T) {
	client := &scriptedClient{
		replies: map[string][]lookupReply{
			"a": {{rec: rev("a", "10")}},
			"b": {}, // absent upstream
			"c": {{err: ErrUnavailable}, {err: ErrUnavailable}},
		},
	}
	f, _, clock := newTestFetcher(client, testTrackerConfig())

	res, err := f.Fetch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)

	// a fetched, b absent, c failed after its one retry; neither bad key
	// disturbs the others.
	require.Contains(t, res.Records, "a")
	assert.NotContains(t, res.Records, "b")
	assert.NotContains(t, res.Records, "c")
	assert.Equal(t, []string{"c"}, res.FailedKeys)
	assert.Equal(t, 4, res.Requests)
	assert.Equal(t, 1, res.Retries)
	assert.False(t, res.Incomplete)
	// The retry waited out the backoff.
	require.Len(t, clock.slept, 1)
	assert.Equal(t, 2*time.Second, clock.slept[0])
}

func TestFetcher_RetryPassesLimiter(t *testing.T) {
	client := &scriptedClient{
		replies: map[string][]lookupReply{
			"a": {{err: ErrUnavailable}, {rec: rev("a", "10")}},
		},
	}
	f, limiter, _ := newTestFetcher(client, testTrackerConfig())

	res, err := f.Fetch(context.Background(), []string{"a"})
	require.NoError(t, err)

	require.Contains(t, res.Records, "a")
	assert.Equal(t, 2, res.Requests)
	assert.Equal(t, 1, res.Retries)
	assert.Equal(t, res.Requests, limiter.count(),
		"every physical request, retries included, must pass the shared limiter")
}

func TestFetcher_Sequential_EveryRequestIsAdmitted(t *testing.T) {
	client := &scriptedClient{replies: map[string][]lookupReply{}}
	cfg := testTrackerConfig()
	cfg.BulkThreshold = 100 // force sequential for all 25 keys

	f, limiter, _ := newTestFetcher(client, cfg)

	keys := make([]string, 25)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
	}

	res, err := f.Fetch(context.Background(), keys)
	require.NoError(t, err)
	assert.Equal(t, 25, res.Requests)
	assert.Equal(t, 25, limiter.count(), "every outbound request must pass the shared limiter")
}

func TestFetcher_DedupesKeys(t *testing.T) {
	client := &scriptedClient{
		replies: map[string][]lookupReply{"a": {{rec: rev("a", "5")}}},
	}
	f, _, _ := newTestFetcher(client, testTrackerConfig())

	res, err := f.Fetch(context.Background(), []string{"a", "a", "b", "a"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Requests)
	assert.Equal(t, 2, client.keyCalls)
}

func TestFetcher_Bulk_OmittedKeysAreAbsent(t *testing.T) {
	client := &scriptedClient{
		bulkRows: map[string]*models.RevenueRecord{
			"key-0": rev("key-0", "1"),
			"key-7": rev("key-7", "2"),
		},
	}
	f, limiter, _ := newTestFetcher(client, testTrackerConfig())

	keys := make([]string, 30)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
	}

	res, err := f.Fetch(context.Background(), keys)
	require.NoError(t, err)

	// Two chunks of 25 and 5, one admission and one request each. Keys
	// the responses omit are absent, never re-queried individually.
	assert.Equal(t, 2, client.bulkCalls)
	assert.Equal(t, 0, client.keyCalls)
	assert.Equal(t, 2, res.Requests)
	assert.Equal(t, 2, limiter.count())
	assert.Len(t, res.Records, 2)
	assert.Empty(t, res.FailedKeys)
	assert.False(t, res.Incomplete)
}

func TestFetcher_Bulk_FallsBackToSequentialOnRequestFailure(t *testing.T) {
	client := &scriptedClient{
		// First bulk call and its retry both fail.
		bulkErrs: []error{ErrUnavailable, ErrUnavailable},
		replies: map[string][]lookupReply{
			"key-0": {{rec: rev("key-0", "3")}},
		},
	}
	f, limiter, _ := newTestFetcher(client, testTrackerConfig())

	keys := make([]string, 12)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
	}

	res, err := f.Fetch(context.Background(), keys)
	require.NoError(t, err)

	assert.Equal(t, 2, client.bulkCalls)
	assert.Equal(t, 12, client.keyCalls, "failed chunk falls back to per-key lookups")
	assert.Equal(t, 14, res.Requests)
	assert.Equal(t, 1, res.Retries)
	assert.Equal(t, 14, limiter.count())
	require.Contains(t, res.Records, "key-0")
	assert.False(t, res.Incomplete)
}

func TestFetcher_Bulk_RateLimitedChunkFails(t *testing.T) {
	client := &scriptedClient{
		bulkErrs: []error{ErrRateLimited},
	}
	f, _, clock := newTestFetcher(client, testTrackerConfig())

	keys := make([]string, 12)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
	}

	res, err := f.Fetch(context.Background(), keys)
	require.NoError(t, err)

	assert.Len(t, res.FailedKeys, 12)
	assert.Empty(t, res.Records)
	// An upstream 429 triggers the elevated backoff before anything else.
	require.NotEmpty(t, clock.slept)
	assert.Equal(t, 15*time.Second, clock.slept[0])
}

func TestFetcher_CanceledContextReturnsPartial(t *testing.T) {
	client := &scriptedClient{replies: map[string][]lookupReply{}}
	f, _, _ := newTestFetcher(client, testTrackerConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.Fetch(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.True(t, res.Incomplete)
	assert.Empty(t, res.Records)
}

func TestFetcher_NoClient(t *testing.T) {
	f := NewFetcher(nil, &countingLimiter{}, nil, testTrackerConfig(), zap.NewNop(), nil)
	_, err := f.Fetch(context.Background(), []string{"a"})
	assert.Error(t, err)
}
