package correlate

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/pearmediallc/creative-library-analytics/internal/models"
)

// Aggregate groups unified records by resolved owner and produces
// per-owner roll-ups plus an overall summary. Records with no resolved
// owner form their own explicit group so resolution gaps stay visible.
//
// Per-group sums come first; group ratios are then derived from the
// summed totals with the same zero-denominator rules as Annotate —
// never averaged from the individual per-record ratios. Output order is
// descending by summed spend, ties broken by owner name ascending.
// groupKey identifies one roll-up group. Grouping runs on owner
// identity, not display name, so a registry owner who happens to be
// named like the unresolved group can never merge with it.
type groupKey struct {
	resolved bool
	ownerID  int64
}

func Aggregate(records []models.UnifiedRecord) ([]models.OwnerSummary, models.Summary) {
	grouped := make(map[groupKey]*models.OwnerSummary)
	order := make([]groupKey, 0)

	for _, rec := range records {
		key := groupKey{}
		name := models.UnresolvedGroup
		if rec.Owner != nil {
			key = groupKey{resolved: true, ownerID: rec.Owner.ID}
			name = rec.Owner.Name
		}
		g, ok := grouped[key]
		if !ok {
			g = &models.OwnerSummary{
				Owner:     rec.Owner,
				OwnerName: name,
				Spend:     decimal.Zero,
				Revenue:   decimal.Zero,
			}
			grouped[key] = g
			order = append(order, key)
		}
		g.Records++
		g.Spend = g.Spend.Add(rec.Spend)
		g.Revenue = g.Revenue.Add(rec.Revenue)
		g.Conversions += rec.Conversions
	}

	summaries := make([]models.OwnerSummary, 0, len(order))
	for _, key := range order {
		g := grouped[key]
		g.Profit = g.Revenue.Sub(g.Spend)
		g.ROAS, g.ROI, g.NoSpend = blendedRatios(g.Spend, g.Revenue, g.Profit)
		summaries = append(summaries, *g)
	}

	sort.Slice(summaries, func(i, j int) bool {
		if c := summaries[i].Spend.Cmp(summaries[j].Spend); c != 0 {
			return c > 0
		}
		return summaries[i].OwnerName < summaries[j].OwnerName
	})

	overall := models.Summary{Spend: decimal.Zero, Revenue: decimal.Zero}
	for _, rec := range records {
		overall.Records++
		overall.Spend = overall.Spend.Add(rec.Spend)
		overall.Revenue = overall.Revenue.Add(rec.Revenue)
		overall.Conversions += rec.Conversions
	}
	overall.Profit = overall.Revenue.Sub(overall.Spend)
	overall.ROAS, overall.ROI, overall.NoSpend = blendedRatios(overall.Spend, overall.Revenue, overall.Profit)

	return summaries, overall
}

// blendedRatios derives ROAS and ROI% from already-summed totals.
func blendedRatios(spend, revenue, profit decimal.Decimal) (roas, roi decimal.Decimal, noSpend bool) {
	if !spend.IsPositive() {
		return decimal.Zero, decimal.Zero, true
	}
	roas = revenue.DivRound(spend, models.RatioScale)
	roi = profit.Mul(hundred).DivRound(spend, models.RatioScale)
	return roas, roi, false
}
