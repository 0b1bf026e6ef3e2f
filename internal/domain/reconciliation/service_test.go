package reconciliation

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/playgive/playgive-api/internal/domain/wallet"
	"github.com/playgive/playgive-api/internal/pkg/money"
)

func TestReconcileIdempotentForUnchangedDataset(t *testing.T) {
	ctx := context.Background()
	recipient := uuid.New()
	wallets := wallet.NewMemoryStore()
	ledger := wallet.NewService(wallets, wallet.NewMemoryRecipients(recipient), nil, nil, 50)

	userID := uuid.New()
	if _, _, err := ledger.Credit(ctx, wallet.ApplyRequest{
		UserID: userID,
		Type:   wallet.TransactionTypeEarned,
		Amount: money.MustFromString("20.00"),
	}); err != nil {
		t.Fatalf("credit: %v", err)
	}

	externalRef := "pay-42"
	_, matched, err := ledger.Donate(ctx, userID, recipient, money.MustFromString("5.00"), &externalRef)
	if err != nil {
		t.Fatalf("donate: %v", err)
	}
	if _, _, err := ledger.Donate(ctx, userID, recipient, money.MustFromString("3.00"), nil); err != nil {
		t.Fatalf("donate: %v", err)
	}

	store := NewMemoryStore()
	if err := store.UpsertRecords(ctx, []SettlementRecord{
		{
			ID:          uuid.New(),
			ExternalRef: externalRef,
			Amount:      money.MustFromString("5.00"),
			Provider:    "wakala",
			SettledAt:   time.Now().UTC(),
		},
	}); err != nil {
		t.Fatalf("upsert records: %v", err)
	}

	svc := NewService(store, wallets, NewMatcher(5*time.Minute, 0.85), nil, nil)
	period := time.Now().UTC().Format("2006-01-02")

	first, err := svc.Reconcile(ctx, period, uuid.New())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if first.MatchedCount != 1 {
		t.Fatalf("matched = %d, want 1", first.MatchedCount)
	}
	if first.Result.Matched[0].TransactionID != matched.ID {
		t.Fatal("wrong transaction matched")
	}
	// The 3.00 donation has no settlement record.
	if first.DiscrepancyNum != 1 || first.Result.Discrepancies[0].Class != DiscrepancyMissingExternally {
		t.Fatalf("discrepancies = %+v", first.Result.Discrepancies)
	}

	second, err := svc.Reconcile(ctx, period, uuid.New())
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if !reflect.DeepEqual(first.Result, second.Result) {
		t.Fatal("re-running an unchanged period changed the classification")
	}

	stored, err := svc.GetReport(ctx, period)
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if stored.ID != second.ID {
		t.Fatal("re-trigger did not replace the stored report")
	}
}

func TestReconcileRejectsBadPeriod(t *testing.T) {
	svc := NewService(NewMemoryStore(), wallet.NewMemoryStore(), NewMatcher(0, 0), nil, nil)
	if _, err := svc.Reconcile(context.Background(), "июнь", uuid.New()); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("err = %v, want ErrInvalidPeriod", err)
	}
	if _, err := svc.GetReport(context.Background(), "2025-13-40"); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("err = %v, want ErrInvalidPeriod", err)
	}
}

func TestGetReportNotFound(t *testing.T) {
	svc := NewService(NewMemoryStore(), wallet.NewMemoryStore(), NewMatcher(0, 0), nil, nil)
	if _, err := svc.GetReport(context.Background(), "2025-06-02"); !errors.Is(err, ErrReportNotFound) {
		t.Fatalf("err = %v, want ErrReportNotFound", err)
	}
}
