package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places kept for monetary sums.
// Ratios are derived from sums already rounded to this scale.
const MoneyScale = 2

// RatioScale is the number of decimal places kept for derived ratios.
const RatioScale = 4

// ===========================================
// SPEND SIDE
// ===========================================

// SpendRecord is one ad's spend-side performance as reported by the
// advertising platform. Records are immutable once fetched; the spend
// side is authoritative for the record universe of a correlation run.
type SpendRecord struct {
	Key         string          `json:"key"`
	Label       string          `json:"label"`
	Spend       decimal.Decimal `json:"spend"`
	Impressions int64           `json:"impressions"`
	Clicks      int64           `json:"clicks"`
}

var (
	ErrEmptyKey      = errors.New("empty record key")
	ErrNegativeValue = errors.New("negative value")
)

// Validate reports whether the record may enter a correlation run.
// Invalid records are excluded from aggregation, never fatal for the run.
func (r SpendRecord) Validate() error {
	if strings.TrimSpace(r.Key) == "" {
		return ErrEmptyKey
	}
	if r.Spend.IsNegative() {
		return fmt.Errorf("spend: %w", ErrNegativeValue)
	}
	if r.Impressions < 0 {
		return fmt.Errorf("impressions: %w", ErrNegativeValue)
	}
	if r.Clicks < 0 {
		return fmt.Errorf("clicks: %w", ErrNegativeValue)
	}
	return nil
}

// ===========================================
// REVENUE SIDE
// ===========================================

// RevenueRecord is the conversion/revenue counterpart for a key, as
// reported by the tracking platform. Zero or one per key; absence is a
// valid state (no conversions yet).
type RevenueRecord struct {
	Key           string          `json:"key"`
	Revenue       decimal.Decimal `json:"revenue"`
	Conversions   int64           `json:"conversions"`
	LandingClicks int64           `json:"lp_clicks"`
}

// Validate rejects malformed upstream rows.
func (r RevenueRecord) Validate() error {
	if strings.TrimSpace(r.Key) == "" {
		return ErrEmptyKey
	}
	if r.Revenue.IsNegative() {
		return fmt.Errorf("revenue: %w", ErrNegativeValue)
	}
	if r.Conversions < 0 || r.LandingClicks < 0 {
		return ErrNegativeValue
	}
	return nil
}

// ===========================================
// OWNER
// ===========================================

// Owner is a person from the application's editor directory. Owners are
// looked up by the resolver, never created by the analytics core.
type Owner struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ===========================================
// UNIFIED RECORD
// ===========================================

// RecordMetrics holds the derived financial ratios for one unified
// record. All zero-denominator cases report 0, never an error; NoSpend
// marks ratios whose denominator (spend) was zero.
type RecordMetrics struct {
	Profit            decimal.Decimal `json:"profit"`
	ROAS              decimal.Decimal `json:"roas"`
	ROI               decimal.Decimal `json:"roi_pct"`
	CPM               decimal.Decimal `json:"cpm"`
	CPC               decimal.Decimal `json:"cpc"`
	CTR               decimal.Decimal `json:"ctr_pct"`
	CostPerConversion decimal.Decimal `json:"cost_per_conversion"`
	EPC               decimal.Decimal `json:"epc"`
	NoSpend           bool            `json:"no_spend,omitempty"`
}

// UnifiedRecord joins one spend record with its revenue counterpart
// (zero-valued when absent) plus the resolved owner and derived metrics.
type UnifiedRecord struct {
	Key           string          `json:"key"`
	Label         string          `json:"label"`
	Owner         *Owner          `json:"owner,omitempty"`
	Spend         decimal.Decimal `json:"spend"`
	Impressions   int64           `json:"impressions"`
	Clicks        int64           `json:"clicks"`
	Revenue       decimal.Decimal `json:"revenue"`
	Conversions   int64           `json:"conversions"`
	LandingClicks int64           `json:"lp_clicks"`
	Metrics       RecordMetrics   `json:"metrics"`
}

// ===========================================
// SUMMARIES
// ===========================================

// UnresolvedGroup is the display name of the explicit group holding
// records whose label matched no known owner.
const UnresolvedGroup = "unresolved"

// OwnerSummary is the roll-up for one owner's records. Ratios are
// derived from the summed totals, never averaged from per-record ratios.
type OwnerSummary struct {
	Owner       *Owner          `json:"owner,omitempty"`
	OwnerName   string          `json:"owner_name"`
	Records     int             `json:"records"`
	Spend       decimal.Decimal `json:"spend"`
	Revenue     decimal.Decimal `json:"revenue"`
	Profit      decimal.Decimal `json:"profit"`
	Conversions int64           `json:"conversions"`
	ROAS        decimal.Decimal `json:"roas"`
	ROI         decimal.Decimal `json:"roi_pct"`
	NoSpend     bool            `json:"no_spend,omitempty"`
}

// Summary is the overall roll-up across every record in a run,
// regardless of owner group.
type Summary struct {
	Records     int             `json:"records"`
	Spend       decimal.Decimal `json:"spend"`
	Revenue     decimal.Decimal `json:"revenue"`
	Profit      decimal.Decimal `json:"profit"`
	Conversions int64           `json:"conversions"`
	ROAS        decimal.Decimal `json:"roas"`
	ROI         decimal.Decimal `json:"roi_pct"`
	NoSpend     bool            `json:"no_spend,omitempty"`
}

// RunResult is the full output of one correlation run.
type RunResult struct {
	RunID      string          `json:"run_id"`
	Records    []UnifiedRecord `json:"records"`
	Owners     []OwnerSummary  `json:"owners"`
	Overall    Summary         `json:"overall"`
	Excluded   int             `json:"excluded_records"`
	Unresolved int             `json:"unresolved_records"`
	Incomplete bool            `json:"incomplete"`
}
