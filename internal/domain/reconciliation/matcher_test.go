package reconciliation

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/playgive/playgive-api/internal/domain/wallet"
	"github.com/playgive/playgive-api/internal/pkg/money"
)

var settledNoon = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func donation(amount, externalRef string, completedAt time.Time) wallet.Transaction {
	txn := wallet.Transaction{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		Type:        wallet.TransactionTypeDonated,
		Status:      wallet.StatusCompleted,
		Amount:      money.MustFromString(amount),
		CreatedAt:   completedAt,
		CompletedAt: &completedAt,
	}
	if externalRef != "" {
		txn.ExternalRef = &externalRef
	}
	return txn
}

func record(amount, externalRef string, settledAt time.Time) SettlementRecord {
	return SettlementRecord{
		ID:          uuid.New(),
		ExternalRef: externalRef,
		Amount:      money.MustFromString(amount),
		Provider:    "wakala",
		SettledAt:   settledAt,
	}
}

func TestMatcherExactByExternalRef(t *testing.T) {
	m := NewMatcher(5*time.Minute, 0.85)
	txn := donation("10.00", "pay-1", settledNoon)
	rec := record("10.00", "pay-1", settledNoon.Add(2*time.Hour))

	result := m.Match([]wallet.Transaction{txn}, []SettlementRecord{rec})
	if len(result.Matched) != 1 || len(result.Discrepancies) != 0 {
		t.Fatalf("matched=%d discrepancies=%d", len(result.Matched), len(result.Discrepancies))
	}
	got := result.Matched[0]
	if got.Phase != PhaseExact || got.Confidence != 1.0 {
		t.Fatalf("phase=%s confidence=%v", got.Phase, got.Confidence)
	}
	if got.TransactionID != txn.ID || got.SettlementID != rec.ID {
		t.Fatal("wrong pairing")
	}
}

func TestMatcherAmountMismatchOnSharedRef(t *testing.T) {
	m := NewMatcher(5*time.Minute, 0.85)
	txn := donation("10.00", "pay-1", settledNoon)
	rec := record("9.50", "pay-1", settledNoon)

	result := m.Match([]wallet.Transaction{txn}, []SettlementRecord{rec})
	if len(result.Matched) != 0 || len(result.Discrepancies) != 1 {
		t.Fatalf("matched=%d discrepancies=%d", len(result.Matched), len(result.Discrepancies))
	}
	d := result.Discrepancies[0]
	if d.Class != DiscrepancyAmountMismatch {
		t.Fatalf("class = %s", d.Class)
	}
	if d.InternalAmt.String() != "10.00" || d.ExternalAmt.String() != "9.50" {
		t.Fatalf("amounts = %s / %s", d.InternalAmt, d.ExternalAmt)
	}
}

func TestMatcherDuplicateRecord(t *testing.T) {
	m := NewMatcher(5*time.Minute, 0.85)
	txn := donation("10.00", "pay-1", settledNoon)
	first := record("10.00", "pay-1", settledNoon)
	second := record("10.00", "pay-1", settledNoon.Add(time.Minute))
	// Deterministic ordering is by record id, so force the claimed one first.
	if second.ID.String() < first.ID.String() {
		first, second = second, first
	}

	result := m.Match([]wallet.Transaction{txn}, []SettlementRecord{first, second})
	if len(result.Matched) != 1 {
		t.Fatalf("matched = %d, want 1", len(result.Matched))
	}
	if len(result.Discrepancies) != 1 || result.Discrepancies[0].Class != DiscrepancyDuplicate {
		t.Fatalf("discrepancies = %+v", result.Discrepancies)
	}
}

func TestMatcherFuzzyConfidence(t *testing.T) {
	m := NewMatcher(5*time.Minute, 0.85)

	t.Run("close in time auto-resolves", func(t *testing.T) {
		txn := donation("7.00", "", settledNoon)
		rec := record("7.00", "other-ref", settledNoon.Add(time.Minute))

		result := m.Match([]wallet.Transaction{txn}, []SettlementRecord{rec})
		if len(result.Matched) != 1 {
			t.Fatalf("matched = %d, want 1", len(result.Matched))
		}
		got := result.Matched[0]
		if got.Phase != PhaseFuzzy {
			t.Fatalf("phase = %s", got.Phase)
		}
		if got.Confidence < 0.89 || got.Confidence > 0.91 {
			t.Fatalf("confidence = %v, want ~0.9", got.Confidence)
		}
	})

	t.Run("far in time goes to manual review", func(t *testing.T) {
		txn := donation("7.00", "", settledNoon)
		rec := record("7.00", "other-ref", settledNoon.Add(4*time.Minute))

		result := m.Match([]wallet.Transaction{txn}, []SettlementRecord{rec})
		if len(result.Matched) != 0 || len(result.ManualReview) != 1 {
			t.Fatalf("matched=%d review=%d", len(result.Matched), len(result.ManualReview))
		}
	})

	t.Run("outside tolerance never matches", func(t *testing.T) {
		txn := donation("7.00", "", settledNoon)
		rec := record("7.00", "other-ref", settledNoon.Add(6*time.Minute))

		result := m.Match([]wallet.Transaction{txn}, []SettlementRecord{rec})
		if len(result.Matched)+len(result.ManualReview) != 0 {
			t.Fatal("should not match outside the tolerance window")
		}
		if len(result.Discrepancies) != 2 {
			t.Fatalf("discrepancies = %d, want 2", len(result.Discrepancies))
		}
	})
}

func TestMatcherClassifiesLeftovers(t *testing.T) {
	m := NewMatcher(5*time.Minute, 0.85)
	txn := donation("3.00", "", settledNoon)
	rec := record("8.00", "pay-9", settledNoon)

	result := m.Match([]wallet.Transaction{txn}, []SettlementRecord{rec})
	if len(result.Discrepancies) != 2 {
		t.Fatalf("discrepancies = %d, want 2", len(result.Discrepancies))
	}
	classes := map[string]bool{}
	for _, d := range result.Discrepancies {
		classes[d.Class] = true
	}
	if !classes[DiscrepancyMissingExternally] || !classes[DiscrepancyMissingInternally] {
		t.Fatalf("classes = %v", classes)
	}
}

func TestMatcherDeterministic(t *testing.T) {
	m := NewMatcher(5*time.Minute, 0.85)

	var txns []wallet.Transaction
	var records []SettlementRecord
	for i := 0; i < 5; i++ {
		at := settledNoon.Add(time.Duration(i) * time.Minute)
		txns = append(txns, donation("5.00", "", at))
		records = append(records, record("5.00", "", at.Add(30*time.Second)))
	}

	first := m.Match(txns, records)

	// Reversed input order must not change the classification.
	revTxns := make([]wallet.Transaction, len(txns))
	revRecs := make([]SettlementRecord, len(records))
	for i := range txns {
		revTxns[len(txns)-1-i] = txns[i]
		revRecs[len(records)-1-i] = records[i]
	}
	second := m.Match(revTxns, revRecs)

	if !reflect.DeepEqual(first, second) {
		t.Fatal("classification depends on input order")
	}
}
