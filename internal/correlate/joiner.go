package correlate

import (
	"github.com/shopspring/decimal"

	"github.com/pearmediallc/creative-library-analytics/internal/models"
)

// Join merges spend-side records with their revenue counterparts into
// unified records, one per spend record, preserving input order. A key
// with no revenue entry gets a zero-valued revenue side; revenue
// entries with no spend counterpart are dropped, since the spend side
// is authoritative for the record universe. Inputs are not mutated.
func Join(spend []models.SpendRecord, revenue map[string]*models.RevenueRecord) []models.UnifiedRecord {
	out := make([]models.UnifiedRecord, 0, len(spend))
	for _, s := range spend {
		u := models.UnifiedRecord{
			Key:         s.Key,
			Label:       s.Label,
			Spend:       s.Spend,
			Impressions: s.Impressions,
			Clicks:      s.Clicks,
			Revenue:     decimal.Zero,
		}
		if r, ok := revenue[s.Key]; ok && r != nil {
			u.Revenue = r.Revenue
			u.Conversions = r.Conversions
			u.LandingClicks = r.LandingClicks
		}
		out = append(out, u)
	}
	return out
}
