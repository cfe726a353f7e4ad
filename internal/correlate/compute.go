package correlate

import (
	"github.com/shopspring/decimal"

	"github.com/pearmediallc/creative-library-analytics/internal/models"
)

var (
	hundred  = decimal.NewFromInt(100)
	thousand = decimal.NewFromInt(1000)
)

// Annotate fills the derived financial metrics of a unified record and
// returns the annotated copy. Monetary inputs are rounded to the
// monetary scale before any ratio is taken, so ratios always derive
// from the same sums that aggregation sees.
//
// Every ratio with a zero denominator is 0, never an error. A record
// with zero spend additionally carries the NoSpend flag so a 0 ROAS
// from "no meaningful ratio" is distinguishable from a genuine 0.
func Annotate(rec models.UnifiedRecord) models.UnifiedRecord {
	spend := rec.Spend.Round(models.MoneyScale)
	revenue := rec.Revenue.Round(models.MoneyScale)

	rec.Spend = spend
	rec.Revenue = revenue

	m := models.RecordMetrics{
		Profit: revenue.Sub(spend),
		ROAS:   decimal.Zero,
		ROI:    decimal.Zero,
		CPM:    decimal.Zero,
		CPC:    decimal.Zero,
		CTR:    decimal.Zero,
		EPC:    decimal.Zero,

		CostPerConversion: decimal.Zero,
	}

	if spend.IsPositive() {
		m.ROAS = revenue.DivRound(spend, models.RatioScale)
		m.ROI = m.Profit.Mul(hundred).DivRound(spend, models.RatioScale)
	} else {
		m.NoSpend = true
	}
	if rec.Impressions > 0 {
		imps := decimal.NewFromInt(rec.Impressions)
		m.CPM = spend.Mul(thousand).DivRound(imps, models.RatioScale)
		m.CTR = decimal.NewFromInt(rec.Clicks).Mul(hundred).DivRound(imps, models.RatioScale)
	}
	if rec.Clicks > 0 {
		m.CPC = spend.DivRound(decimal.NewFromInt(rec.Clicks), models.RatioScale)
	}
	if rec.Conversions > 0 {
		m.CostPerConversion = spend.DivRound(decimal.NewFromInt(rec.Conversions), models.RatioScale)
	}
	if rec.LandingClicks > 0 {
		m.EPC = revenue.DivRound(decimal.NewFromInt(rec.LandingClicks), models.RatioScale)
	}

	rec.Metrics = m
	return rec
}
