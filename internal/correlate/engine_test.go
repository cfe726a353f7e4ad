package correlate

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pearmediallc/creative-library-analytics/internal/models"
	"github.com/pearmediallc/creative-library-analytics/internal/storage"
)

type stubFetcher struct {
	result  *models.FetchResult
	err     error
	gotKeys []string
}

func (s *stubFetcher) Fetch(_ context.Context, keys []string) (*models.FetchResult, error) {
	s.gotKeys = keys
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newTestEngine(fetcher *stubFetcher, registryOwners []models.Owner) *Engine {
	src := storage.NewInMemoryRegistrySource(registryOwners)
	return NewEngine(fetcher, src, 0, zap.NewNop(), nil)
}

func TestEngine_Run_EndToEnd(t *testing.T) {
	fetcher := &stubFetcher{
		result: &models.FetchResult{
			Records: map[string]*models.RevenueRecord{
				"ad-1": {
					Key:           "ad-1",
					Revenue:       decimal.RequireFromString("450"),
					Conversions:   9,
					LandingClicks: 180,
				},
			},
		},
	}
	engine := newTestEngine(fetcher, []models.Owner{{ID: 7, Name: "Ritu"}})

	spend := []models.SpendRecord{
		{
			Key:         "ad-1",
			Label:       "Summer Sale - Ritu",
			Spend:       decimal.RequireFromString("100"),
			Impressions: 10000,
			Clicks:      200,
		},
	}

	res, err := engine.Run(context.Background(), spend)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []string{"ad-1"}, fetcher.gotKeys)

	require.Len(t, res.Records, 1)
	rec := res.Records[0]
	require.NotNil(t, rec.Owner)
	assert.Equal(t, int64(7), rec.Owner.ID)

	m := rec.Metrics
	assertDecimal(t, "350", m.Profit)
	assertDecimal(t, "4.5", m.ROAS)
	assertDecimal(t, "350", m.ROI)
	assertDecimal(t, "10", m.CPM)
	assertDecimal(t, "0.5", m.CPC)
	assertDecimal(t, "2", m.CTR)
	assertDecimal(t, "11.1111", m.CostPerConversion)
	assertDecimal(t, "2.5", m.EPC)

	require.Len(t, res.Owners, 1)
	assert.Equal(t, "Ritu", res.Owners[0].OwnerName)
	assertDecimal(t, "4.5", res.Owners[0].ROAS)
	assert.Zero(t, res.Unresolved)
	assert.Zero(t, res.Excluded)
	assert.False(t, res.Incomplete)
}

func TestEngine_Run_ExcludesInvalidRecords(t *testing.T) {
	fetcher := &stubFetcher{result: &models.FetchResult{Records: map[string]*models.RevenueRecord{}}}
	engine := newTestEngine(fetcher, nil)

	spend := []models.SpendRecord{
		{Key: "", Label: "no key", Spend: decimal.RequireFromString("5")},
		{Key: "neg", Label: "negative", Spend: decimal.RequireFromString("-1")},
		{Key: "ok", Label: "fine", Spend: decimal.RequireFromString("5")},
	}

	res, err := engine.Run(context.Background(), spend)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Excluded)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "ok", res.Records[0].Key)
	// Only valid keys reach the fetcher.
	assert.Equal(t, []string{"ok"}, fetcher.gotKeys)
}

func TestEngine_Run_ExcludesDuplicateKeys(t *testing.T) {
	fetcher := &stubFetcher{result: &models.FetchResult{Records: map[string]*models.RevenueRecord{}}}
	engine := newTestEngine(fetcher, nil)

	spend := []models.SpendRecord{
		{Key: "a", Label: "first", Spend: decimal.RequireFromString("5")},
		{Key: "a", Label: "second copy", Spend: decimal.RequireFromString("5")},
		{Key: "b", Label: "other", Spend: decimal.RequireFromString("1")},
	}

	res, err := engine.Run(context.Background(), spend)
	require.NoError(t, err)

	// The first occurrence wins; the duplicate may not double-count
	// spend or appear as a second record for the same key.
	assert.Equal(t, 1, res.Excluded)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "a", res.Records[0].Key)
	assert.Equal(t, "first", res.Records[0].Label)
	assert.Equal(t, "b", res.Records[1].Key)
	assertDecimal(t, "6", res.Overall.Spend)
	assert.Equal(t, []string{"a", "b"}, fetcher.gotKeys)
}

func TestEngine_Run_CountsUnresolved(t *testing.T) {
	fetcher := &stubFetcher{result: &models.FetchResult{Records: map[string]*models.RevenueRecord{}}}
	engine := newTestEngine(fetcher, []models.Owner{{ID: 7, Name: "Ritu"}})

	spend := []models.SpendRecord{
		{Key: "a", Label: "Promo - Ritu", Spend: decimal.RequireFromString("1")},
		{Key: "b", Label: "no owner marker", Spend: decimal.RequireFromString("1")},
		{Key: "c", Label: "Promo - Stranger", Spend: decimal.RequireFromString("1")},
	}

	res, err := engine.Run(context.Background(), spend)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Unresolved)

	names := make([]string, 0, len(res.Owners))
	for _, g := range res.Owners {
		names = append(names, g.OwnerName)
	}
	assert.Contains(t, names, models.UnresolvedGroup)
	assert.Contains(t, names, "Ritu")
}

func TestEngine_Run_PropagatesIncomplete(t *testing.T) {
	fetcher := &stubFetcher{
		result: &models.FetchResult{
			Records:    map[string]*models.RevenueRecord{},
			FailedKeys: []string{"a"},
			Incomplete: true,
		},
	}
	engine := newTestEngine(fetcher, nil)

	res, err := engine.Run(context.Background(), []models.SpendRecord{
		{Key: "a", Label: "A", Spend: decimal.RequireFromString("10")},
	})
	require.NoError(t, err)
	assert.True(t, res.Incomplete)
	// The failed key still appears with zero revenue rather than
	// vanishing from the run.
	require.Len(t, res.Records, 1)
	assert.True(t, res.Records[0].Revenue.IsZero())
}

func TestEngine_Run_FetchError(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("tracker down")}
	engine := newTestEngine(fetcher, nil)

	_, err := engine.Run(context.Background(), []models.SpendRecord{
		{Key: "a", Spend: decimal.RequireFromString("1")},
	})
	assert.Error(t, err)
}
