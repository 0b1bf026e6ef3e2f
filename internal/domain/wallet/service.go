package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/playgive/playgive-api/internal/pkg/events"
	"github.com/playgive/playgive-api/internal/pkg/money"
)

// AuditLog records administrative ledger actions on the audit chain.
// Implemented by the audit service; nil disables recording (unit tests).
type AuditLog interface {
	Record(ctx context.Context, actionType string, actorID uuid.UUID, payload interface{}) error
}

// ApplyRequest describes one balance mutation. Amount is always positive;
// the delta sign comes from the transaction type.
type ApplyRequest struct {
	UserID      uuid.UUID
	RecipientID *uuid.UUID
	Type        TransactionType
	Amount      money.Money
	ExternalRef *string
	Metadata    TransactionMeta
}

// Service is the wallet ledger. It owns the only write path to the
// balance/version pair: a read, check, compare-and-swap loop with a bounded
// number of conflict retries. Every successful apply lands exactly one
// transaction row and re-evaluates the wallet's auto-donation policy.
type Service struct {
	store      Store
	recipients RecipientDirectory
	bus        *events.Bus
	audit      AuditLog
	maxRetries int
}

func NewService(store Store, recipients RecipientDirectory, bus *events.Bus, audit AuditLog, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Service{
		store:      store,
		recipients: recipients,
		bus:        bus,
		audit:      audit,
		maxRetries: maxRetries,
	}
}

// Apply runs the optimistic-concurrency loop for one mutation. Conflict
// retries are internal; callers only ever see ErrConflict once the retry
// budget is exhausted. InsufficientFunds is not retried.
func (s *Service) Apply(ctx context.Context, req ApplyRequest) (Wallet, Transaction, error) {
	w, txn, err := s.apply(ctx, req)
	if err != nil {
		return Wallet{}, Transaction{}, err
	}

	s.publish(w, txn)
	s.maybeAutoDonate(ctx, w, txn)
	return w, txn, nil
}

func (s *Service) apply(ctx context.Context, req ApplyRequest) (Wallet, Transaction, error) {
	if !req.Type.Valid() {
		return Wallet{}, Transaction{}, ErrInvalidType
	}
	if !req.Amount.IsPositive() {
		return Wallet{}, Transaction{}, ErrInvalidAmount
	}

	if err := s.store.EnsureWallet(ctx, req.UserID); err != nil {
		return Wallet{}, Transaction{}, fmt.Errorf("ensure wallet: %w", err)
	}

	now := time.Now().UTC()
	txn := Transaction{
		ID:          uuid.New(),
		UserID:      req.UserID,
		RecipientID: req.RecipientID,
		Type:        req.Type,
		Status:      StatusCompleted,
		Amount:      req.Amount,
		ExternalRef: req.ExternalRef,
		Metadata:    req.Metadata,
		CreatedAt:   now,
		CompletedAt: &now,
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		w, err := s.store.GetWallet(ctx, req.UserID)
		if err != nil {
			return Wallet{}, Transaction{}, err
		}
		if !w.Active {
			return Wallet{}, Transaction{}, ErrWalletInactive
		}

		next, err := mutate(w, req.Type, req.Amount)
		if err != nil {
			return Wallet{}, Transaction{}, err
		}

		err = s.store.ApplyCAS(ctx, next, w.Version, txn)
		if err == nil {
			return next, txn, nil
		}
		if !errors.Is(err, ErrConflict) {
			return Wallet{}, Transaction{}, err
		}
		sleepBackoff(attempt)
	}

	log.Warn().
		Str("user_id", req.UserID.String()).
		Str("type", string(req.Type)).
		Int("retries", s.maxRetries).
		Msg("wallet apply retries exhausted")
	return Wallet{}, Transaction{}, ErrConflict
}

// mutate computes the next wallet state without touching storage.
// Credits raise TotalEarned, debits raise TotalDonated, so both stay
// monotonic and Balance = TotalEarned - TotalDonated holds exactly.
func mutate(w Wallet, t TransactionType, amount money.Money) (Wallet, error) {
	if t.IsDebit() {
		next := w.Balance.Sub(amount)
		if next.IsNegative() {
			return Wallet{}, ErrInsufficientFunds
		}
		w.Balance = next
		w.TotalDonated = w.TotalDonated.Add(amount)
	} else {
		w.Balance = w.Balance.Add(amount)
		w.TotalEarned = w.TotalEarned.Add(amount)
	}
	w.Version++
	return w, nil
}

func sleepBackoff(attempt int) {
	if attempt > 5 {
		attempt = 5
	}
	base := time.Duration(1<<uint(attempt)) * 2 * time.Millisecond
	jitter := time.Duration(rand.Int63n(int64(base) + 1))
	time.Sleep(base + jitter)
}

// Credit applies an earning-side transaction (earned/bonus/refund/adjustment).
func (s *Service) Credit(ctx context.Context, req ApplyRequest) (Wallet, Transaction, error) {
	if req.Type.IsDebit() {
		return Wallet{}, Transaction{}, ErrInvalidType
	}
	return s.Apply(ctx, req)
}

// Donate validates the recipient and applies a donation debit.
func (s *Service) Donate(ctx context.Context, userID, recipientID uuid.UUID, amount money.Money, externalRef *string) (Wallet, Transaction, error) {
	if !amount.IsPositive() {
		return Wallet{}, Transaction{}, ErrInvalidAmount
	}
	ok, err := s.recipients.RecipientExists(ctx, recipientID)
	if err != nil {
		return Wallet{}, Transaction{}, fmt.Errorf("recipient lookup: %w", err)
	}
	if !ok {
		return Wallet{}, Transaction{}, ErrUnknownRecipient
	}

	w, txn, err := s.Apply(ctx, ApplyRequest{
		UserID:      userID,
		RecipientID: &recipientID,
		Type:        TransactionTypeDonated,
		Amount:      amount,
		ExternalRef: externalRef,
	})
	if err != nil {
		return Wallet{}, Transaction{}, err
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("recipient_id", recipientID.String()).
		Str("amount", amount.String()).
		Str("transaction_id", txn.ID.String()).
		Msg("donation applied")
	return w, txn, nil
}

// Hold records a pending transaction without touching the balance. Used when
// a conversion's fraud score routes it to manual review.
func (s *Service) Hold(ctx context.Context, req ApplyRequest) (Transaction, error) {
	if !req.Type.Valid() {
		return Transaction{}, ErrInvalidType
	}
	if !req.Amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}
	if err := s.store.EnsureWallet(ctx, req.UserID); err != nil {
		return Transaction{}, fmt.Errorf("ensure wallet: %w", err)
	}

	txn := Transaction{
		ID:          uuid.New(),
		UserID:      req.UserID,
		RecipientID: req.RecipientID,
		Type:        req.Type,
		Status:      StatusPending,
		Amount:      req.Amount,
		ExternalRef: req.ExternalRef,
		Metadata:    req.Metadata,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.InsertTransaction(ctx, txn); err != nil {
		return Transaction{}, err
	}

	if s.bus != nil {
		s.bus.Publish(events.TransactionHeld{
			UserID:        req.UserID,
			TransactionID: txn.ID,
			RiskScore:     req.Metadata.RiskScore,
			Flags:         req.Metadata.FraudFlags,
		})
	}
	log.Info().
		Str("user_id", req.UserID.String()).
		Str("transaction_id", txn.ID.String()).
		Int("risk_score", req.Metadata.RiskScore).
		Msg("transaction held for review")
	return txn, nil
}

// ReleaseHold completes a pending transaction, applying its balance delta.
func (s *Service) ReleaseHold(ctx context.Context, txnID, actorID uuid.UUID) (Wallet, Transaction, error) {
	held, err := s.store.GetTransaction(ctx, txnID)
	if err != nil {
		return Wallet{}, Transaction{}, err
	}
	if !held.Status.CanTransitionTo(StatusCompleted) {
		return Wallet{}, Transaction{}, ErrInvalidTransition
	}

	now := time.Now().UTC()
	held.Status = StatusCompleted
	held.CompletedAt = &now

	var applied Wallet
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		w, err := s.store.GetWallet(ctx, held.UserID)
		if err != nil {
			return Wallet{}, Transaction{}, err
		}
		next, err := mutate(w, held.Type, held.Amount)
		if err != nil {
			return Wallet{}, Transaction{}, err
		}
		err = s.store.ApplyCAS(ctx, next, w.Version, held)
		if err == nil {
			applied = next
			break
		}
		if !errors.Is(err, ErrConflict) {
			return Wallet{}, Transaction{}, err
		}
		if attempt == s.maxRetries-1 {
			return Wallet{}, Transaction{}, ErrConflict
		}
		sleepBackoff(attempt)
	}

	s.record(ctx, "hold_released", actorID, map[string]string{
		"transaction_id": txnID.String(),
		"user_id":        held.UserID.String(),
		"amount":         held.Amount.String(),
	})
	s.publish(applied, held)
	s.maybeAutoDonate(ctx, applied, held)
	return applied, held, nil
}

// RejectHold cancels a pending transaction without applying it.
func (s *Service) RejectHold(ctx context.Context, txnID, actorID uuid.UUID) (Transaction, error) {
	held, err := s.store.GetTransaction(ctx, txnID)
	if err != nil {
		return Transaction{}, err
	}
	if !held.Status.CanTransitionTo(StatusCancelled) {
		return Transaction{}, ErrInvalidTransition
	}
	if err := s.store.UpdateTransactionStatus(ctx, txnID, StatusPending, StatusCancelled, nil); err != nil {
		return Transaction{}, err
	}
	held.Status = StatusCancelled

	s.record(ctx, "hold_rejected", actorID, map[string]string{
		"transaction_id": txnID.String(),
		"user_id":        held.UserID.String(),
	})
	return held, nil
}

// Refund compensates a completed donation: credits the amount back and flips
// the original row to Refunded.
func (s *Service) Refund(ctx context.Context, txnID, actorID uuid.UUID) (Wallet, Transaction, error) {
	orig, err := s.store.GetTransaction(ctx, txnID)
	if err != nil {
		return Wallet{}, Transaction{}, err
	}
	if orig.Type != TransactionTypeDonated || !orig.Status.CanTransitionTo(StatusRefunded) {
		return Wallet{}, Transaction{}, ErrInvalidTransition
	}

	// Claim the original row first: of two racing refunds, only one wins the
	// Completed->Refunded flip, so only one compensating credit is applied.
	if err := s.store.UpdateTransactionStatus(ctx, orig.ID, StatusCompleted, StatusRefunded, orig.CompletedAt); err != nil {
		return Wallet{}, Transaction{}, err
	}

	ref := orig.ID.String()
	w, refund, err := s.Apply(ctx, ApplyRequest{
		UserID:      orig.UserID,
		RecipientID: orig.RecipientID,
		Type:        TransactionTypeRefund,
		Amount:      orig.Amount,
		ExternalRef: &ref,
	})
	if err != nil {
		if rerr := s.store.UpdateTransactionStatus(ctx, orig.ID, StatusRefunded, StatusCompleted, orig.CompletedAt); rerr != nil {
			log.Error().Err(rerr).Str("transaction_id", orig.ID.String()).Msg("refund claim rollback failed")
		}
		return Wallet{}, Transaction{}, err
	}

	s.record(ctx, "donation_refunded", actorID, map[string]string{
		"original_transaction_id": orig.ID.String(),
		"refund_transaction_id":   refund.ID.String(),
		"amount":                  orig.Amount.String(),
	})
	return w, refund, nil
}

// Adjust applies a manual balance correction on behalf of an admin.
func (s *Service) Adjust(ctx context.Context, userID, actorID uuid.UUID, amount money.Money, reason string) (Wallet, Transaction, error) {
	w, txn, err := s.Apply(ctx, ApplyRequest{
		UserID:   userID,
		Type:     TransactionTypeAdjustment,
		Amount:   amount,
		Metadata: TransactionMeta{Note: reason},
	})
	if err != nil {
		return Wallet{}, Transaction{}, err
	}

	s.record(ctx, "wallet_adjusted", actorID, map[string]string{
		"user_id":        userID.String(),
		"transaction_id": txn.ID.String(),
		"amount":         amount.String(),
		"reason":         reason,
	})
	return w, txn, nil
}

// SetAutoDonationPolicy replaces the wallet's policy under the CAS discipline.
func (s *Service) SetAutoDonationPolicy(ctx context.Context, userID uuid.UUID, policy AutoDonationPolicy) (Wallet, error) {
	if policy.Enabled {
		if policy.Percentage < 1 || policy.Percentage > 100 {
			return Wallet{}, ErrInvalidPolicy
		}
		if policy.Threshold.IsNegative() {
			return Wallet{}, ErrInvalidPolicy
		}
		ok, err := s.recipients.RecipientExists(ctx, policy.RecipientID)
		if err != nil {
			return Wallet{}, fmt.Errorf("recipient lookup: %w", err)
		}
		if !ok {
			return Wallet{}, ErrUnknownRecipient
		}
	}

	if err := s.store.EnsureWallet(ctx, userID); err != nil {
		return Wallet{}, fmt.Errorf("ensure wallet: %w", err)
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		w, err := s.store.GetWallet(ctx, userID)
		if err != nil {
			return Wallet{}, err
		}
		w.AutoDonation = policy
		w.Version++
		err = s.store.UpdateWalletCAS(ctx, w, w.Version-1)
		if err == nil {
			return w, nil
		}
		if !errors.Is(err, ErrConflict) {
			return Wallet{}, err
		}
		sleepBackoff(attempt)
	}
	return Wallet{}, ErrConflict
}

// Deactivate switches the wallet off. Wallets are never deleted.
func (s *Service) Deactivate(ctx context.Context, userID, actorID uuid.UUID) error {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		w, err := s.store.GetWallet(ctx, userID)
		if err != nil {
			return err
		}
		if !w.Active {
			return nil
		}
		w.Active = false
		w.Version++
		err = s.store.UpdateWalletCAS(ctx, w, w.Version-1)
		if err == nil {
			s.record(ctx, "wallet_deactivated", actorID, map[string]string{"user_id": userID.String()})
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
		sleepBackoff(attempt)
	}
	return ErrConflict
}

func (s *Service) GetWallet(ctx context.Context, userID uuid.UUID) (Wallet, error) {
	if err := s.store.EnsureWallet(ctx, userID); err != nil {
		return Wallet{}, err
	}
	return s.store.GetWallet(ctx, userID)
}

func (s *Service) GetTransaction(ctx context.Context, id uuid.UUID) (Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

// History returns one page of the user's ledger plus the total row count for
// pagination. An empty typeFilter matches every transaction type.
func (s *Service) History(ctx context.Context, userID uuid.UUID, typeFilter TransactionType, limit, offset int) ([]Transaction, int, error) {
	if limit <= 0 {
		limit = 20
	}
	txns, err := s.store.ListTransactions(ctx, userID, typeFilter, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.CountTransactions(ctx, userID, typeFilter)
	if err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

// maybeAutoDonate evaluates the policy after a successful credit and routes
// the resulting request through the same Apply path. Donations themselves do
// not re-trigger evaluation, so a policy can never cascade.
func (s *Service) maybeAutoDonate(ctx context.Context, w Wallet, applied Transaction) {
	if applied.Type.IsDebit() {
		return
	}
	req, ok := EvaluateAutoDonation(w)
	if !ok {
		return
	}
	if _, _, err := s.Donate(ctx, req.UserID, req.RecipientID, req.Amount, nil); err != nil {
		log.Error().Err(err).
			Str("user_id", req.UserID.String()).
			Str("amount", req.Amount.String()).
			Msg("auto-donation failed")
	}
}

func (s *Service) publish(w Wallet, txn Transaction) {
	if s.bus == nil {
		return
	}
	if txn.Type == TransactionTypeDonated {
		recipient := uuid.Nil
		if txn.RecipientID != nil {
			recipient = *txn.RecipientID
		}
		s.bus.Publish(events.DonationCompleted{
			UserID:        txn.UserID,
			RecipientID:   recipient,
			TransactionID: txn.ID,
			Amount:        txn.Amount,
			Balance:       w.Balance,
		})
		return
	}
	s.bus.Publish(events.CreditApplied{
		UserID:        txn.UserID,
		TransactionID: txn.ID,
		Type:          string(txn.Type),
		Amount:        txn.Amount,
		Balance:       w.Balance,
	})
}

func (s *Service) record(ctx context.Context, action string, actorID uuid.UUID, payload interface{}) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, action, actorID, payload); err != nil {
		log.Error().Err(err).Str("action", action).Msg("audit record failed")
	}
}
