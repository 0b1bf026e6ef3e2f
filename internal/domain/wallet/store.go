package wallet

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence boundary for wallets and their transaction log.
// The sqlx implementation lives in repository.go; MemoryStore backs unit tests.
//
// The wallet's balance/version pair is mutated only through ApplyCAS and
// UpdateWalletCAS: both compare the stored version against expectedVersion and
// fail with ErrConflict without mutating anything when another writer got
// there first.
type Store interface {
	// EnsureWallet creates the wallet row lazily on first use. Idempotent.
	EnsureWallet(ctx context.Context, userID uuid.UUID) error
	GetWallet(ctx context.Context, userID uuid.UUID) (Wallet, error)

	// ApplyCAS persists the mutated wallet (w.Version = expectedVersion+1)
	// together with its ledger row in one atomic step. The transaction is
	// upserted by id so completing a previously held (pending) row rides the
	// same path as inserting a fresh one. Overwriting an existing row is only
	// legal while that row is still pending; otherwise nothing is written and
	// ErrInvalidTransition is returned, so two racing releases of the same
	// hold can never both credit the wallet.
	ApplyCAS(ctx context.Context, w Wallet, expectedVersion int64, txn Transaction) error

	// UpdateWalletCAS persists a non-ledger wallet mutation (policy change,
	// deactivation) under the same version discipline.
	UpdateWalletCAS(ctx context.Context, w Wallet, expectedVersion int64) error

	InsertTransaction(ctx context.Context, txn Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (Transaction, error)
	// UpdateTransactionStatus flips a row from one status to another as a
	// single compare-and-swap. ErrInvalidTransition when the row is no longer
	// in the expected status.
	UpdateTransactionStatus(ctx context.Context, id uuid.UUID, from, to TransactionStatus, completedAt *time.Time) error
	// ListTransactions returns one page of the user's ledger, newest first.
	// An empty typeFilter matches every transaction type.
	ListTransactions(ctx context.Context, userID uuid.UUID, typeFilter TransactionType, limit, offset int) ([]Transaction, error)
	CountTransactions(ctx context.Context, userID uuid.UUID, typeFilter TransactionType) (int, error)
	// ListTransactionsInPeriod returns completed/refunded rows created inside
	// [from, to), ordered by id. Used by reconciliation.
	ListTransactionsInPeriod(ctx context.Context, from, to time.Time) ([]Transaction, error)
}

// RecipientDirectory answers whether a donation recipient is known. The
// recipient registry itself (charity onboarding, verification) is an external
// collaborator; the ledger only needs existence checks.
type RecipientDirectory interface {
	RecipientExists(ctx context.Context, id uuid.UUID) (bool, error)
}
