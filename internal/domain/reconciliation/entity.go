package reconciliation

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/playgive/playgive-api/internal/pkg/money"
)

// SettlementRecord is one row of the payment provider's settlement feed.
type SettlementRecord struct {
	ID          uuid.UUID   `db:"id" json:"id"`
	ExternalRef string      `db:"external_ref" json:"external_ref"`
	Amount      money.Money `db:"amount" json:"amount"`
	Provider    string      `db:"provider" json:"provider"`
	SettledAt   time.Time   `db:"settled_at" json:"settled_at"`
	IngestedAt  time.Time   `db:"ingested_at" json:"ingested_at"`
}

// Discrepancy classes. An unmatched internal transaction is missing
// externally; an unmatched settlement record is missing internally.
const (
	DiscrepancyMissingExternally = "missing_externally"
	DiscrepancyMissingInternally = "missing_internally"
	DiscrepancyAmountMismatch    = "amount_mismatch"
	DiscrepancyDuplicate         = "duplicate"
)

// Match phases.
const (
	PhaseExact = "exact"
	PhaseFuzzy = "fuzzy"
)

// Match pairs an internal transaction with a settlement record.
type Match struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	SettlementID  uuid.UUID `json:"settlement_id"`
	Phase         string    `json:"phase"`
	Confidence    float64   `json:"confidence"`
}

// Discrepancy is one classified mismatch. Exactly one of TransactionID and
// SettlementID is set for the missing_* classes; amount_mismatch carries both.
type Discrepancy struct {
	Class         string      `json:"class"`
	TransactionID *uuid.UUID  `json:"transaction_id,omitempty"`
	SettlementID  *uuid.UUID  `json:"settlement_id,omitempty"`
	InternalAmt   money.Money `json:"internal_amount,omitempty"`
	ExternalAmt   money.Money `json:"external_amount,omitempty"`
	Detail        string      `json:"detail,omitempty"`
}

// Result is the classification produced by the matcher, before persistence.
type Result struct {
	Matched       []Match       `json:"matched"`
	ManualReview  []Match       `json:"manual_review"`
	Discrepancies []Discrepancy `json:"discrepancies"`
}

func (r Result) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *Result) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*r = Result{}
		return nil
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	default:
		return fmt.Errorf("cannot scan %T into Result", src)
	}
}

// Report is the persisted outcome of one reconciliation run. One report per
// period; re-running the period replaces it.
type Report struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Period         string    `db:"period" json:"period"`
	PeriodStart    time.Time `db:"period_start" json:"period_start"`
	PeriodEnd      time.Time `db:"period_end" json:"period_end"`
	Transactions   int       `db:"transactions" json:"transactions"`
	Records        int       `db:"records" json:"records"`
	MatchedCount   int       `db:"matched_count" json:"matched_count"`
	ReviewCount    int       `db:"review_count" json:"review_count"`
	DiscrepancyNum int       `db:"discrepancy_count" json:"discrepancy_count"`
	Result         Result    `db:"result" json:"result"`
	GeneratedAt    time.Time `db:"generated_at" json:"generated_at"`
}

// ParsePeriod accepts a YYYY-MM-DD day and returns its UTC bounds,
// [start, end).
func ParsePeriod(period string) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", period, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
	return day, day.Add(24 * time.Hour), nil
}
