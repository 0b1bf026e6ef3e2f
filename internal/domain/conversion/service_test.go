package conversion_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/playgive/playgive-api/internal/domain/conversion"
	"github.com/playgive/playgive-api/internal/domain/wallet"
)

// fakeWindow is an in-memory Window for asserting when the
// rapid-succession timestamp is written.
type fakeWindow struct {
	mu   sync.Mutex
	last map[uuid.UUID]time.Time
}

func newFakeWindow() *fakeWindow {
	return &fakeWindow{last: make(map[uuid.UUID]time.Time)}
}

func (f *fakeWindow) Last(ctx context.Context, userID uuid.UUID) *time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.last[userID]
	if !ok {
		return nil
	}
	return &t
}

func (f *fakeWindow) Touch(ctx context.Context, userID uuid.UUID, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last[userID] = at
}

func newTestStack(holdThreshold int) (*conversion.Service, *wallet.MemoryStore) {
	store := wallet.NewMemoryStore()
	ledger := wallet.NewService(store, wallet.NewMemoryRecipients(), nil, nil, 5)
	eng := conversion.NewEngine(conversion.EngineConfig{
		BaseRatePerMinute: decimal.RequireFromString("0.01"),
		EarningsCeiling:   decimal.RequireFromString("0.10"),
		MaxMultiplier:     decimal.RequireFromString("10.0"),
	})
	return conversion.NewService(eng, ledger, nil, 0, holdThreshold), store
}

func TestProcessCreditsWallet(t *testing.T) {
	svc, store := newTestStack(50)
	userID := uuid.New()

	outcome, err := svc.Process(context.Background(), conversion.ConvertRequest{
		UserID:     userID,
		DurationMS: 600_000,
		Tags:       []string{"weekend"},
		SessionID:  "session-1",
		At:         time.Date(2025, 6, 7, 15, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if outcome.Held {
		t.Fatal("clean conversion should not be held")
	}
	if outcome.Transaction == nil {
		t.Fatal("expected a transaction")
	}
	// 10 min * 0.01 * 1.1 = 0.11
	if outcome.Conversion.Credits.String() != "0.11" {
		t.Fatalf("credits = %s, want 0.11", outcome.Conversion.Credits)
	}

	w, err := store.GetWallet(context.Background(), userID)
	if err != nil {
		t.Fatalf("get wallet failed: %v", err)
	}
	if w.Balance.String() != "0.11" {
		t.Fatalf("wallet balance = %s, want 0.11", w.Balance)
	}

	txn, err := store.GetTransaction(context.Background(), outcome.Transaction.ID)
	if err != nil {
		t.Fatalf("get transaction failed: %v", err)
	}
	if txn.Metadata.SessionID != "session-1" {
		t.Fatalf("session metadata missing: %+v", txn.Metadata)
	}
	if len(txn.Metadata.MultiplierTags) != 1 || txn.Metadata.MultiplierTags[0] != "weekend" {
		t.Fatalf("multiplier metadata missing: %+v", txn.Metadata)
	}
}

func TestProcessZeroDurationCreatesNothing(t *testing.T) {
	svc, store := newTestStack(50)
	userID := uuid.New()

	outcome, err := svc.Process(context.Background(), conversion.ConvertRequest{
		UserID:     userID,
		DurationMS: 0,
	})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if outcome.Transaction != nil {
		t.Fatal("zero duration must not create a transaction")
	}
	if _, err := store.GetWallet(context.Background(), userID); err != wallet.ErrWalletNotFound {
		t.Fatalf("zero duration must not touch the wallet, got %v", err)
	}
}

func TestWindowStampedOnlyOnSuccessfulConversion(t *testing.T) {
	ctx := context.Background()
	window := newFakeWindow()
	store := wallet.NewMemoryStore()
	ledger := wallet.NewService(store, wallet.NewMemoryRecipients(), nil, nil, 5)
	eng := conversion.NewEngine(conversion.EngineConfig{
		BaseRatePerMinute: decimal.RequireFromString("0.01"),
	})
	svc := conversion.NewService(eng, ledger, window, 30*time.Second, 0)

	at := time.Date(2025, 6, 7, 15, 0, 0, 0, time.UTC)

	// A deactivated wallet fails the credit after the engine has run; the
	// user's next attempt must not be flagged rapid_succession by it.
	blocked := uuid.New()
	if err := store.EnsureWallet(ctx, blocked); err != nil {
		t.Fatalf("ensure wallet failed: %v", err)
	}
	if err := ledger.Deactivate(ctx, blocked, uuid.New()); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if _, err := svc.Process(ctx, conversion.ConvertRequest{UserID: blocked, DurationMS: 600_000, At: at}); err == nil {
		t.Fatal("expected credit failure on deactivated wallet")
	}
	if window.Last(ctx, blocked) != nil {
		t.Fatal("failed conversion stamped the rapid-succession window")
	}

	userID := uuid.New()
	outcome, err := svc.Process(ctx, conversion.ConvertRequest{UserID: userID, DurationMS: 600_000, At: at})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if outcome.Transaction == nil {
		t.Fatal("expected a transaction")
	}
	last := window.Last(ctx, userID)
	if last == nil {
		t.Fatal("successful conversion did not stamp the window")
	}
	if !last.Equal(at) {
		t.Fatalf("window stamped %s, want %s", last, at)
	}
}

func TestProcessHighRiskIsHeld(t *testing.T) {
	// Ceiling of 0.10 makes a 30-minute session (0.30 credits) flag
	// high_earnings; threshold 30 routes it to a hold.
	svc, store := newTestStack(30)
	userID := uuid.New()

	outcome, err := svc.Process(context.Background(), conversion.ConvertRequest{
		UserID:     userID,
		DurationMS: 30 * 60_000,
		At:         time.Date(2025, 6, 7, 15, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if !outcome.Held {
		t.Fatalf("expected hold, score=%d flags=%v", outcome.Conversion.Assessment.Score, outcome.Conversion.Assessment.Flags)
	}
	if outcome.Transaction.Status != wallet.StatusPending {
		t.Fatalf("expected pending transaction, got %s", outcome.Transaction.Status)
	}

	// Held credits never touch the balance.
	w, err := store.GetWallet(context.Background(), userID)
	if err != nil {
		t.Fatalf("get wallet failed: %v", err)
	}
	if !w.Balance.IsZero() || w.Version != 0 {
		t.Fatalf("hold mutated wallet: balance=%s version=%d", w.Balance, w.Version)
	}
}
