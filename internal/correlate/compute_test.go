package correlate

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pearmediallc/creative-library-analytics/internal/models"
)

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, got.Equal(decimal.RequireFromString(want)),
		"want %s, got %s", want, got)
}

func TestAnnotate_FullMetrics(t *testing.T) {
	rec := models.UnifiedRecord{
		Key:           "ad-1",
		Spend:         decimal.RequireFromString("100"),
		Impressions:   10000,
		Clicks:        200,
		Revenue:       decimal.RequireFromString("450"),
		Conversions:   9,
		LandingClicks: 180,
	}

	out := Annotate(rec)
	m := out.Metrics

	assertDecimal(t, "350", m.Profit)
	assertDecimal(t, "4.5", m.ROAS)
	assertDecimal(t, "350", m.ROI)
	assertDecimal(t, "10", m.CPM)
	assertDecimal(t, "0.5", m.CPC)
	assertDecimal(t, "2", m.CTR)
	assertDecimal(t, "11.1111", m.CostPerConversion)
	assertDecimal(t, "2.5", m.EPC)
	assert.False(t, m.NoSpend)
}

func TestAnnotate_ZeroDenominators(t *testing.T) {
	t.Run("zero spend", func(t *testing.T) {
		out := Annotate(models.UnifiedRecord{
			Revenue:     decimal.RequireFromString("50"),
			Impressions: 1000,
			Clicks:      10,
		})
		m := out.Metrics
		assert.True(t, m.NoSpend)
		assert.True(t, m.ROAS.IsZero())
		assert.True(t, m.ROI.IsZero())
		assert.True(t, m.CPC.IsZero())
		assertDecimal(t, "50", m.Profit)
	})

	t.Run("zero impressions", func(t *testing.T) {
		out := Annotate(models.UnifiedRecord{
			Spend:  decimal.RequireFromString("10"),
			Clicks: 5,
		})
		assert.True(t, out.Metrics.CPM.IsZero())
		assert.True(t, out.Metrics.CTR.IsZero())
	})

	t.Run("zero clicks", func(t *testing.T) {
		out := Annotate(models.UnifiedRecord{
			Spend:       decimal.RequireFromString("10"),
			Impressions: 100,
		})
		assert.True(t, out.Metrics.CPC.IsZero())
	})

	t.Run("zero conversions", func(t *testing.T) {
		out := Annotate(models.UnifiedRecord{Spend: decimal.RequireFromString("10")})
		assert.True(t, out.Metrics.CostPerConversion.IsZero())
	})

	t.Run("zero landing clicks", func(t *testing.T) {
		out := Annotate(models.UnifiedRecord{Revenue: decimal.RequireFromString("10")})
		assert.True(t, out.Metrics.EPC.IsZero())
	})

	t.Run("everything zero", func(t *testing.T) {
		out := Annotate(models.UnifiedRecord{})
		m := out.Metrics
		assert.True(t, m.NoSpend)
		assert.True(t, m.Profit.IsZero())
		assert.True(t, m.ROAS.IsZero())
		assert.True(t, m.CPM.IsZero())
		assert.True(t, m.EPC.IsZero())
	})
}

func TestAnnotate_NegativeProfit(t *testing.T) {
	out := Annotate(models.UnifiedRecord{
		Spend:   decimal.RequireFromString("200"),
		Revenue: decimal.RequireFromString("50"),
	})
	m := out.Metrics
	assertDecimal(t, "-150", m.Profit)
	assertDecimal(t, "0.25", m.ROAS)
	assertDecimal(t, "-75", m.ROI)
	assert.False(t, m.NoSpend)
}

func TestAnnotate_RoundsMoneyBeforeRatios(t *testing.T) {
	out := Annotate(models.UnifiedRecord{
		Spend:   decimal.RequireFromString("33.333"),
		Revenue: decimal.RequireFromString("99.999"),
	})

	// Monetary sides are rounded to cents up front so ratios derive
	// from the same values aggregation later sums.
	assertDecimal(t, "33.33", out.Spend)
	assertDecimal(t, "100.00", out.Revenue)
	assertDecimal(t, "66.67", out.Metrics.Profit)
	assertDecimal(t, "3.0003", out.Metrics.ROAS)
}

func TestAnnotate_RatioScale(t *testing.T) {
	out := Annotate(models.UnifiedRecord{
		Spend:   decimal.RequireFromString("3"),
		Revenue: decimal.RequireFromString("1"),
	})
	// 1/3 rounded to four places.
	assertDecimal(t, "0.3333", out.Metrics.ROAS)
}
