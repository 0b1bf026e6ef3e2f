package wallet_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/playgive/playgive-api/internal/domain/wallet"
	"github.com/playgive/playgive-api/internal/pkg/money"
)

func newTestService(recipients ...uuid.UUID) (*wallet.Service, *wallet.MemoryStore) {
	store := wallet.NewMemoryStore()
	return wallet.NewService(store, wallet.NewMemoryRecipients(recipients...), nil, nil, 50), store
}

func TestCreditUpdatesBalanceAndTotals(t *testing.T) {
	svc, _ := newTestService()
	userID := uuid.New()

	w, txn, err := svc.Credit(context.Background(), wallet.ApplyRequest{
		UserID: userID,
		Type:   wallet.TransactionTypeEarned,
		Amount: money.MustFromString("5.00"),
	})
	if err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if w.Balance.String() != "5.00" || w.TotalEarned.String() != "5.00" {
		t.Fatalf("unexpected wallet state: balance=%s earned=%s", w.Balance, w.TotalEarned)
	}
	if w.Version != 1 {
		t.Fatalf("expected version 1, got %d", w.Version)
	}
	if txn.Status != wallet.StatusCompleted {
		t.Fatalf("expected completed transaction, got %s", txn.Status)
	}
	if txn.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
}

func TestAdjustCreditsBalanceWithNote(t *testing.T) {
	svc, _ := newTestService()
	userID := uuid.New()

	w, txn, err := svc.Adjust(context.Background(), userID, uuid.New(), money.MustFromString("2.50"), "support correction")
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if w.Balance.String() != "2.50" {
		t.Fatalf("balance = %s, want 2.50", w.Balance)
	}
	if txn.Type != wallet.TransactionTypeAdjustment {
		t.Fatalf("type = %s, want %s", txn.Type, wallet.TransactionTypeAdjustment)
	}
	if txn.Metadata.Note != "support correction" {
		t.Fatalf("note = %q, want reason preserved", txn.Metadata.Note)
	}
}

func TestDonateInsufficientFunds(t *testing.T) {
	recipient := uuid.New()
	svc, store := newTestService(recipient)
	userID := uuid.New()

	mustCredit(t, svc, userID, "1.00")

	_, _, err := svc.Donate(context.Background(), userID, recipient, money.MustFromString("2.00"), nil)
	if !errors.Is(err, wallet.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// No mutation on failure: version and balance untouched.
	w, err := store.GetWallet(context.Background(), userID)
	if err != nil {
		t.Fatalf("get wallet failed: %v", err)
	}
	if w.Version != 1 || w.Balance.String() != "1.00" {
		t.Fatalf("failed debit mutated wallet: version=%d balance=%s", w.Version, w.Balance)
	}
}

func TestDonateUnknownRecipient(t *testing.T) {
	svc, _ := newTestService()
	userID := uuid.New()
	mustCredit(t, svc, userID, "10.00")

	_, _, err := svc.Donate(context.Background(), userID, uuid.New(), money.MustFromString("1.00"), nil)
	if !errors.Is(err, wallet.ErrUnknownRecipient) {
		t.Fatalf("expected ErrUnknownRecipient, got %v", err)
	}
}

func TestBalanceEqualsEarnedMinusDonated(t *testing.T) {
	recipient := uuid.New()
	svc, _ := newTestService(recipient)
	userID := uuid.New()

	mustCredit(t, svc, userID, "10.00")
	mustCredit(t, svc, userID, "2.50")

	w, _, err := svc.Donate(context.Background(), userID, recipient, money.MustFromString("4.25"), nil)
	if err != nil {
		t.Fatalf("donate failed: %v", err)
	}

	want := w.TotalEarned.Sub(w.TotalDonated)
	if !w.Balance.Equal(want) {
		t.Fatalf("invariant broken: balance=%s earned-donated=%s", w.Balance, want)
	}
	if w.Balance.String() != "8.25" {
		t.Fatalf("expected balance 8.25, got %s", w.Balance)
	}
	if w.Version != 3 {
		t.Fatalf("expected version 3 after three applies, got %d", w.Version)
	}
}

func TestConcurrentDebitsThreeOfFiveSucceed(t *testing.T) {
	recipient := uuid.New()
	svc, store := newTestService(recipient)
	userID := uuid.New()

	// Balance covers exactly 3 of 5 equal debits.
	mustCredit(t, svc, userID, "3.00")

	const writers = 5
	var wg sync.WaitGroup
	var mu sync.Mutex
	success, insufficient := 0, 0

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.Donate(context.Background(), userID, recipient, money.MustFromString("1.00"), nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, wallet.ErrInsufficientFunds):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if success != 3 || insufficient != 2 {
		t.Fatalf("expected 3 successes and 2 insufficient, got %d/%d", success, insufficient)
	}

	w, err := store.GetWallet(context.Background(), userID)
	if err != nil {
		t.Fatalf("get wallet failed: %v", err)
	}
	if !w.Balance.IsZero() {
		t.Fatalf("expected zero balance, got %s", w.Balance)
	}
	// 1 credit + 3 donations = 4 version increments, one per success.
	if w.Version != 4 {
		t.Fatalf("expected version 4, got %d", w.Version)
	}
}

func TestAutoDonationTriggeredByCredit(t *testing.T) {
	recipient := uuid.New()
	svc, store := newTestService(recipient)
	userID := uuid.New()

	_, err := svc.SetAutoDonationPolicy(context.Background(), userID, wallet.AutoDonationPolicy{
		Enabled:     true,
		Threshold:   money.MustFromString("10.00"),
		Percentage:  50,
		RecipientID: recipient,
	})
	if err != nil {
		t.Fatalf("set policy failed: %v", err)
	}

	mustCredit(t, svc, userID, "14.00")

	// Excess 4.00 at 50% donates 2.00 automatically.
	w, err := store.GetWallet(context.Background(), userID)
	if err != nil {
		t.Fatalf("get wallet failed: %v", err)
	}
	if w.Balance.String() != "12.00" {
		t.Fatalf("expected balance 12.00 after auto-donation, got %s", w.Balance)
	}
	if w.TotalDonated.String() != "2.00" {
		t.Fatalf("expected total_donated 2.00, got %s", w.TotalDonated)
	}
}

func TestHoldReleaseAndReject(t *testing.T) {
	svc, store := newTestService()
	userID := uuid.New()

	held, err := svc.Hold(context.Background(), wallet.ApplyRequest{
		UserID:   userID,
		Type:     wallet.TransactionTypeEarned,
		Amount:   money.MustFromString("7.00"),
		Metadata: wallet.TransactionMeta{RiskScore: 80, FraudFlags: []string{"high_earnings"}},
	})
	if err != nil {
		t.Fatalf("hold failed: %v", err)
	}
	if held.Status != wallet.StatusPending {
		t.Fatalf("expected pending, got %s", held.Status)
	}

	// Pending rows never touch the balance.
	w, _ := store.GetWallet(context.Background(), userID)
	if !w.Balance.IsZero() || w.Version != 0 {
		t.Fatalf("hold mutated wallet: balance=%s version=%d", w.Balance, w.Version)
	}

	w, txn, err := svc.ReleaseHold(context.Background(), held.ID, uuid.New())
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if txn.Status != wallet.StatusCompleted || w.Balance.String() != "7.00" {
		t.Fatalf("release mismatch: status=%s balance=%s", txn.Status, w.Balance)
	}

	// A released hold cannot be released or rejected again.
	if _, _, err := svc.ReleaseHold(context.Background(), held.ID, uuid.New()); !errors.Is(err, wallet.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	other, err := svc.Hold(context.Background(), wallet.ApplyRequest{
		UserID: userID,
		Type:   wallet.TransactionTypeEarned,
		Amount: money.MustFromString("3.00"),
	})
	if err != nil {
		t.Fatalf("hold failed: %v", err)
	}
	rejected, err := svc.RejectHold(context.Background(), other.ID, uuid.New())
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if rejected.Status != wallet.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", rejected.Status)
	}
}

func TestConcurrentReleasesCreditOnce(t *testing.T) {
	svc, store := newTestService()
	userID := uuid.New()

	const rounds = 50
	for round := 0; round < rounds; round++ {
		held, err := svc.Hold(context.Background(), wallet.ApplyRequest{
			UserID: userID,
			Type:   wallet.TransactionTypeEarned,
			Amount: money.MustFromString("1.00"),
		})
		if err != nil {
			t.Fatalf("hold failed: %v", err)
		}

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, _, errs[i] = svc.ReleaseHold(context.Background(), held.ID, uuid.New())
			}(i)
		}
		wg.Wait()

		successes := 0
		for _, err := range errs {
			switch {
			case err == nil:
				successes++
			case errors.Is(err, wallet.ErrInvalidTransition), errors.Is(err, wallet.ErrConflict):
			default:
				t.Fatalf("unexpected release error: %v", err)
			}
		}
		if successes != 1 {
			t.Fatalf("round %d: %d releases succeeded, want exactly 1", round, successes)
		}
	}

	w, err := store.GetWallet(context.Background(), userID)
	if err != nil {
		t.Fatalf("get wallet failed: %v", err)
	}
	if w.Balance.String() != "50.00" {
		t.Fatalf("balance = %s, want 50.00 (one credit per hold)", w.Balance)
	}
}

func TestConcurrentRefundsCompensateOnce(t *testing.T) {
	recipient := uuid.New()
	svc, store := newTestService(recipient)
	userID := uuid.New()

	mustCredit(t, svc, userID, "10.00")
	_, donation, err := svc.Donate(context.Background(), userID, recipient, money.MustFromString("4.00"), nil)
	if err != nil {
		t.Fatalf("donate failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.Refund(context.Background(), donation.ID, uuid.New())
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, wallet.ErrInvalidTransition):
		default:
			t.Fatalf("unexpected refund error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("%d refunds succeeded, want exactly 1", successes)
	}

	w, err := store.GetWallet(context.Background(), userID)
	if err != nil {
		t.Fatalf("get wallet failed: %v", err)
	}
	if w.Balance.String() != "10.00" {
		t.Fatalf("balance = %s, want 10.00 (single compensating credit)", w.Balance)
	}
	orig, err := store.GetTransaction(context.Background(), donation.ID)
	if err != nil {
		t.Fatalf("get transaction failed: %v", err)
	}
	if orig.Status != wallet.StatusRefunded {
		t.Fatalf("original status = %s, want %s", orig.Status, wallet.StatusRefunded)
	}
}

func TestRefundDonation(t *testing.T) {
	recipient := uuid.New()
	svc, store := newTestService(recipient)
	userID := uuid.New()

	mustCredit(t, svc, userID, "10.00")
	_, donation, err := svc.Donate(context.Background(), userID, recipient, money.MustFromString("4.00"), nil)
	if err != nil {
		t.Fatalf("donate failed: %v", err)
	}

	w, refund, err := svc.Refund(context.Background(), donation.ID, uuid.New())
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if refund.Type != wallet.TransactionTypeRefund {
		t.Fatalf("expected refund type, got %s", refund.Type)
	}
	if w.Balance.String() != "10.00" {
		t.Fatalf("expected balance restored to 10.00, got %s", w.Balance)
	}

	orig, err := store.GetTransaction(context.Background(), donation.ID)
	if err != nil {
		t.Fatalf("get transaction failed: %v", err)
	}
	if orig.Status != wallet.StatusRefunded {
		t.Fatalf("expected refunded, got %s", orig.Status)
	}

	// Refunding twice is illegal: Refunded is terminal.
	if _, _, err := svc.Refund(context.Background(), donation.ID, uuid.New()); !errors.Is(err, wallet.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestDeactivatedWalletRejectsApplies(t *testing.T) {
	svc, _ := newTestService()
	userID := uuid.New()
	mustCredit(t, svc, userID, "1.00")

	if err := svc.Deactivate(context.Background(), userID, uuid.New()); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}

	_, _, err := svc.Credit(context.Background(), wallet.ApplyRequest{
		UserID: userID,
		Type:   wallet.TransactionTypeEarned,
		Amount: money.MustFromString("1.00"),
	})
	if !errors.Is(err, wallet.ErrWalletInactive) {
		t.Fatalf("expected ErrWalletInactive, got %v", err)
	}
}

func TestApplyRejectsInvalidInput(t *testing.T) {
	svc, _ := newTestService()

	_, _, err := svc.Apply(context.Background(), wallet.ApplyRequest{
		UserID: uuid.New(),
		Type:   wallet.TransactionType("gift"),
		Amount: money.MustFromString("1.00"),
	})
	if !errors.Is(err, wallet.ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}

	_, _, err = svc.Apply(context.Background(), wallet.ApplyRequest{
		UserID: uuid.New(),
		Type:   wallet.TransactionTypeEarned,
		Amount: money.Zero(),
	})
	if !errors.Is(err, wallet.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestHistoryFiltersAndCounts(t *testing.T) {
	recipient := uuid.New()
	svc, _ := newTestService(recipient)
	userID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		mustCredit(t, svc, userID, "2.00")
	}
	if _, _, err := svc.Donate(ctx, userID, recipient, money.MustFromString("1.00"), nil); err != nil {
		t.Fatalf("donate failed: %v", err)
	}

	all, total, err := svc.History(ctx, userID, "", 10, 0)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if total != 4 || len(all) != 4 {
		t.Fatalf("total=%d rows=%d, want 4/4", total, len(all))
	}

	donated, total, err := svc.History(ctx, userID, wallet.TransactionTypeDonated, 10, 0)
	if err != nil {
		t.Fatalf("filtered history failed: %v", err)
	}
	if total != 1 || len(donated) != 1 || donated[0].Type != wallet.TransactionTypeDonated {
		t.Fatalf("donated filter: total=%d rows=%d", total, len(donated))
	}

	// The total covers the whole filtered set, not just the returned page.
	page, total, err := svc.History(ctx, userID, "", 2, 2)
	if err != nil {
		t.Fatalf("paged history failed: %v", err)
	}
	if total != 4 || len(page) != 2 {
		t.Fatalf("page: total=%d rows=%d, want 4/2", total, len(page))
	}
}

func mustCredit(t *testing.T, svc *wallet.Service, userID uuid.UUID, amount string) {
	t.Helper()
	_, _, err := svc.Credit(context.Background(), wallet.ApplyRequest{
		UserID: userID,
		Type:   wallet.TransactionTypeEarned,
		Amount: money.MustFromString(amount),
	})
	if err != nil {
		t.Fatalf("credit failed: %v", err)
	}
}
