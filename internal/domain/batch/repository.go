package batch

import (
	"context"
	"database/sql"
	"errors"

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

func (r *Repository) CreateBatch(ctx context.Context, op Operation, items []Item) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO batch_operations (id, operation_type, total_items, processed_items, successful_items, failed_items, status, error_log, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, op.ID, op.OperationType, op.TotalItems, op.ProcessedItems, op.SuccessfulItems, op.FailedItems, op.Status, op.ErrorLog, op.CreatedAt); err != nil {
		return err
	}

	for _, item := range items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO batch_items (id, batch_id, user_id, recipient_id, amount, status, retry_count, last_error, transaction_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, item.ID, item.BatchID, item.UserID, item.RecipientID, item.Amount, item.Status, item.RetryCount, item.LastError, item.TransactionID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *Repository) GetBatch(ctx context.Context, id uuid.UUID) (Operation, error) {
	var op Operation
	err := r.db.GetContext(ctx, &op, `
		SELECT id, operation_type, total_items, processed_items, successful_items, failed_items, status, error_log, created_at, started_at, completed_at
		FROM batch_operations WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Operation{}, ErrBatchNotFound
	}
	return op, err
}

func (r *Repository) UpdateBatch(ctx context.Context, op Operation) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE batch_operations
		SET processed_items = $1, successful_items = $2, failed_items = $3,
		    status = $4, error_log = $5, started_at = $6, completed_at = $7
		WHERE id = $8
	`, op.ProcessedItems, op.SuccessfulItems, op.FailedItems, op.Status, op.ErrorLog, op.StartedAt, op.CompletedAt, op.ID)
	return err
}

func (r *Repository) GetItems(ctx context.Context, batchID uuid.UUID) ([]Item, error) {
	items := []Item{}
	err := r.db.SelectContext(ctx, &items, `
		SELECT id, batch_id, user_id, recipient_id, amount, status, retry_count, last_error, transaction_id
		FROM batch_items WHERE batch_id = $1 ORDER BY id
	`, batchID)
	return items, err
}

func (r *Repository) UpdateItem(ctx context.Context, item Item) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE batch_items
		SET status = $1, retry_count = $2, last_error = $3, transaction_id = $4
		WHERE id = $5
	`, item.Status, item.RetryCount, item.LastError, item.TransactionID, item.ID)
	return err
}
