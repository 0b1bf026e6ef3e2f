package wallet

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/playgive/playgive-api/internal/pkg/money"
)

// MemoryStore is an in-memory Store with the same CAS semantics as the
// Postgres repository. It backs unit tests for the ledger, the batch
// coordinator and reconciliation.
type MemoryStore struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]Wallet
	txns    map[uuid.UUID]Transaction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets: make(map[uuid.UUID]Wallet),
		txns:    make(map[uuid.UUID]Transaction),
	}
}

func (s *MemoryStore) EnsureWallet(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.wallets[userID]; !ok {
		now := time.Now().UTC()
		s.wallets[userID] = Wallet{
			UserID:       userID,
			Balance:      money.Zero(),
			TotalEarned:  money.Zero(),
			TotalDonated: money.Zero(),
			Version:      0,
			Active:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}
	return nil
}

func (s *MemoryStore) GetWallet(ctx context.Context, userID uuid.UUID) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[userID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return w, nil
}

func (s *MemoryStore) ApplyCAS(ctx context.Context, w Wallet, expectedVersion int64, txn Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.wallets[w.UserID]
	if !ok {
		return ErrWalletNotFound
	}
	if current.Version != expectedVersion {
		return ErrConflict
	}
	// Overwriting an existing row is only legal while it is still pending,
	// mirroring the guarded upsert in the Postgres repository.
	if existing, ok := s.txns[txn.ID]; ok && existing.Status != StatusPending {
		return ErrInvalidTransition
	}
	w.UpdatedAt = time.Now().UTC()
	s.wallets[w.UserID] = w
	s.txns[txn.ID] = txn
	return nil
}

func (s *MemoryStore) UpdateWalletCAS(ctx context.Context, w Wallet, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.casLocked(w, expectedVersion)
}

func (s *MemoryStore) casLocked(w Wallet, expectedVersion int64) error {
	current, ok := s.wallets[w.UserID]
	if !ok {
		return ErrWalletNotFound
	}
	if current.Version != expectedVersion {
		return ErrConflict
	}
	w.UpdatedAt = time.Now().UTC()
	s.wallets[w.UserID] = w
	return nil
}

func (s *MemoryStore) InsertTransaction(ctx context.Context, txn Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txns[txn.ID] = txn
	return nil
}

func (s *MemoryStore) GetTransaction(ctx context.Context, id uuid.UUID) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.txns[id]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return txn, nil
}

func (s *MemoryStore) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, from, to TransactionStatus, completedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.txns[id]
	if !ok {
		return ErrTransactionNotFound
	}
	if txn.Status != from {
		return ErrInvalidTransition
	}
	txn.Status = to
	txn.CompletedAt = completedAt
	s.txns[id] = txn
	return nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context, userID uuid.UUID, typeFilter TransactionType, limit, offset int) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Transaction
	for _, txn := range s.txns {
		if txn.UserID != userID {
			continue
		}
		if typeFilter != "" && txn.Type != typeFilter {
			continue
		}
		out = append(out, txn)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if offset >= len(out) {
		return []Transaction{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CountTransactions(ctx context.Context, userID uuid.UUID, typeFilter TransactionType) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, txn := range s.txns {
		if txn.UserID != userID {
			continue
		}
		if typeFilter != "" && txn.Type != typeFilter {
			continue
		}
		total++
	}
	return total, nil
}

func (s *MemoryStore) ListTransactionsInPeriod(ctx context.Context, from, to time.Time) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Transaction
	for _, txn := range s.txns {
		if txn.Status != StatusCompleted && txn.Status != StatusRefunded {
			continue
		}
		if txn.CreatedAt.Before(from) || !txn.CreatedAt.Before(to) {
			continue
		}
		out = append(out, txn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// MemoryRecipients is a RecipientDirectory fake for tests.
type MemoryRecipients struct {
	mu  sync.Mutex
	ids map[uuid.UUID]bool
}

func NewMemoryRecipients(ids ...uuid.UUID) *MemoryRecipients {
	m := &MemoryRecipients{ids: make(map[uuid.UUID]bool)}
	for _, id := range ids {
		m.ids[id] = true
	}
	return m
}

func (m *MemoryRecipients) Add(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[id] = true
}

func (m *MemoryRecipients) RecipientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ids[id], nil
}
