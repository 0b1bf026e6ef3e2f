package wallet

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository is the Postgres-backed Store.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) EnsureWallet(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO wallets (user_id, balance, total_earned, total_donated, version, active, auto_donation)
		VALUES ($1, 0, 0, 0, 0, true, '{}')
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	return err
}

func (r *Repository) GetWallet(ctx context.Context, userID uuid.UUID) (Wallet, error) {
	var w Wallet
	err := r.db.GetContext(ctx, &w, `
		SELECT user_id, balance, total_earned, total_donated, version, active, auto_donation, created_at, updated_at
		FROM wallets WHERE user_id = $1
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return Wallet{}, ErrWalletNotFound
	}
	return w, err
}

func (r *Repository) ApplyCAS(ctx context.Context, w Wallet, expectedVersion int64, txn Transaction) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := casWallet(ctx, tx, w, expectedVersion); err != nil {
		return err
	}

	// Upsert so that completing a held (pending) transaction and inserting a
	// fresh one share the same path. The DO UPDATE is guarded on the stored
	// status: a row that already left pending stays untouched, the insert
	// affects zero rows and the wallet mutation rolls back with it.
	res, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_transactions (id, user_id, recipient_id, type, status, amount, external_ref, metadata, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, completed_at = EXCLUDED.completed_at
		WHERE wallet_transactions.status = 'pending'
	`, txn.ID, txn.UserID, txn.RecipientID, txn.Type, txn.Status, txn.Amount, txn.ExternalRef, txn.Metadata, txn.CreatedAt, txn.CompletedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInvalidTransition
	}

	return tx.Commit()
}

func (r *Repository) UpdateWalletCAS(ctx context.Context, w Wallet, expectedVersion int64) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := casWallet(ctx, tx, w, expectedVersion); err != nil {
		return err
	}
	return tx.Commit()
}

func casWallet(ctx context.Context, tx *sqlx.Tx, w Wallet, expectedVersion int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET balance = $1, total_earned = $2, total_donated = $3, version = $4,
		    active = $5, auto_donation = $6, updated_at = now()
		WHERE user_id = $7 AND version = $8
	`, w.Balance, w.TotalEarned, w.TotalDonated, w.Version, w.Active, w.AutoDonation, w.UserID, expectedVersion)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

func (r *Repository) InsertTransaction(ctx context.Context, txn Transaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO wallet_transactions (id, user_id, recipient_id, type, status, amount, external_ref, metadata, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, txn.ID, txn.UserID, txn.RecipientID, txn.Type, txn.Status, txn.Amount, txn.ExternalRef, txn.Metadata, txn.CreatedAt, txn.CompletedAt)
	return err
}

func (r *Repository) GetTransaction(ctx context.Context, id uuid.UUID) (Transaction, error) {
	var txn Transaction
	err := r.db.GetContext(ctx, &txn, `
		SELECT id, user_id, recipient_id, type, status, amount, external_ref, metadata, created_at, completed_at
		FROM wallet_transactions WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, ErrTransactionNotFound
	}
	return txn, err
}

func (r *Repository) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, from, to TransactionStatus, completedAt *time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE wallet_transactions SET status = $1, completed_at = $2 WHERE id = $3 AND status = $4
	`, to, completedAt, id, from)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists bool
		if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM wallet_transactions WHERE id = $1)`, id); err != nil {
			return err
		}
		if exists {
			return ErrInvalidTransition
		}
		return ErrTransactionNotFound
	}
	return nil
}

func (r *Repository) ListTransactions(ctx context.Context, userID uuid.UUID, typeFilter TransactionType, limit, offset int) ([]Transaction, error) {
	txns := []Transaction{}
	err := r.db.SelectContext(ctx, &txns, `
		SELECT id, user_id, recipient_id, type, status, amount, external_ref, metadata, created_at, completed_at
		FROM wallet_transactions
		WHERE user_id = $1 AND ($2::text = '' OR type = $2::text)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`, userID, string(typeFilter), limit, offset)
	return txns, err
}

func (r *Repository) CountTransactions(ctx context.Context, userID uuid.UUID, typeFilter TransactionType) (int, error) {
	var total int
	err := r.db.GetContext(ctx, &total, `
		SELECT COUNT(*) FROM wallet_transactions
		WHERE user_id = $1 AND ($2::text = '' OR type = $2::text)
	`, userID, string(typeFilter))
	return total, err
}

func (r *Repository) ListTransactionsInPeriod(ctx context.Context, from, to time.Time) ([]Transaction, error) {
	txns := []Transaction{}
	err := r.db.SelectContext(ctx, &txns, `
		SELECT id, user_id, recipient_id, type, status, amount, external_ref, metadata, created_at, completed_at
		FROM wallet_transactions
		WHERE created_at >= $1 AND created_at < $2
		  AND status IN ('completed', 'refunded')
		ORDER BY id
	`, from, to)
	return txns, err
}

// RecipientRepository answers recipient existence from the recipients table,
// which an external onboarding flow maintains.
type RecipientRepository struct {
	db *sqlx.DB
}

func NewRecipientRepository(db *sqlx.DB) *RecipientRepository {
	return &RecipientRepository{db: db}
}

func (r *RecipientRepository) RecipientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM recipients WHERE id = $1 AND active)`, id)
	return exists, err
}
