package reconciliation

import (
	"sort"
	"time"

	"github.com/playgive/playgive-api/internal/domain/wallet"
)

// Matcher aligns internal transactions against external settlement records.
// It is pure: same inputs, same classification, so re-running a period over
// an unchanged dataset yields an identical report.
type Matcher struct {
	Tolerance           time.Duration // fuzzy-match timestamp window
	ConfidenceThreshold float64       // fuzzy matches below this go to manual review
}

func NewMatcher(tolerance time.Duration, threshold float64) *Matcher {
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.85
	}
	return &Matcher{Tolerance: tolerance, ConfidenceThreshold: threshold}
}

// Match runs the two-phase classification. Inputs are sorted by id first so
// the output ordering is deterministic regardless of storage order.
func (m *Matcher) Match(txns []wallet.Transaction, records []SettlementRecord) Result {
	txns = append([]wallet.Transaction(nil), txns...)
	records = append([]SettlementRecord(nil), records...)
	sort.Slice(txns, func(i, j int) bool { return txns[i].ID.String() < txns[j].ID.String() })
	sort.Slice(records, func(i, j int) bool { return records[i].ID.String() < records[j].ID.String() })

	var result Result
	usedTxn := make(map[int]bool)
	usedRec := make(map[int]bool)

	// Phase 1: exact match on external reference. A second record carrying a
	// reference that already claimed a transaction is a duplicate.
	byRef := make(map[string]int)
	for i, txn := range txns {
		if txn.ExternalRef != nil && *txn.ExternalRef != "" {
			byRef[*txn.ExternalRef] = i
		}
	}
	claimed := make(map[string]bool)
	for j, rec := range records {
		i, ok := byRef[rec.ExternalRef]
		if !ok {
			continue
		}
		if claimed[rec.ExternalRef] {
			usedRec[j] = true
			result.Discrepancies = append(result.Discrepancies, Discrepancy{
				Class:        DiscrepancyDuplicate,
				SettlementID: ref(rec.ID),
				ExternalAmt:  rec.Amount,
				Detail:       "settlement record repeats external ref " + rec.ExternalRef,
			})
			continue
		}
		claimed[rec.ExternalRef] = true
		usedTxn[i] = true
		usedRec[j] = true
		if !txns[i].Amount.Equal(rec.Amount) {
			result.Discrepancies = append(result.Discrepancies, Discrepancy{
				Class:         DiscrepancyAmountMismatch,
				TransactionID: ref(txns[i].ID),
				SettlementID:  ref(rec.ID),
				InternalAmt:   txns[i].Amount,
				ExternalAmt:   rec.Amount,
			})
			continue
		}
		result.Matched = append(result.Matched, Match{
			TransactionID: txns[i].ID,
			SettlementID:  rec.ID,
			Phase:         PhaseExact,
			Confidence:    1.0,
		})
	}

	// Phase 2: fuzzy match on equal amount within the tolerance window.
	// Each transaction greedily takes the closest-in-time unused record;
	// ties break on record id to keep runs deterministic.
	for i, txn := range txns {
		if usedTxn[i] {
			continue
		}
		best := -1
		var bestDist time.Duration
		for j, rec := range records {
			if usedRec[j] {
				continue
			}
			if !txn.Amount.Equal(rec.Amount) {
				continue
			}
			dist := absDuration(rec.SettledAt.Sub(txnTime(txn)))
			if dist > m.Tolerance {
				continue
			}
			if best == -1 || dist < bestDist {
				best, bestDist = j, dist
			}
		}
		if best == -1 {
			continue
		}
		usedTxn[i] = true
		usedRec[best] = true
		match := Match{
			TransactionID: txn.ID,
			SettlementID:  records[best].ID,
			Phase:         PhaseFuzzy,
			Confidence:    m.confidence(bestDist),
		}
		if match.Confidence >= m.ConfidenceThreshold {
			result.Matched = append(result.Matched, match)
		} else {
			result.ManualReview = append(result.ManualReview, match)
		}
	}

	for i, txn := range txns {
		if usedTxn[i] {
			continue
		}
		result.Discrepancies = append(result.Discrepancies, Discrepancy{
			Class:         DiscrepancyMissingExternally,
			TransactionID: ref(txn.ID),
			InternalAmt:   txn.Amount,
		})
	}
	for j, rec := range records {
		if usedRec[j] {
			continue
		}
		result.Discrepancies = append(result.Discrepancies, Discrepancy{
			Class:        DiscrepancyMissingInternally,
			SettlementID: ref(rec.ID),
			ExternalAmt:  rec.Amount,
		})
	}
	return result
}

// confidence decays linearly from 1.0 at zero distance to 0.5 at the
// tolerance boundary.
func (m *Matcher) confidence(dist time.Duration) float64 {
	return 1.0 - 0.5*float64(dist)/float64(m.Tolerance)
}

func txnTime(txn wallet.Transaction) time.Time {
	if txn.CompletedAt != nil {
		return *txn.CompletedAt
	}
	return txn.CreatedAt
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func ref[T any](v T) *T { return &v }
