package batch

import (
	"context"

	"github.com/google/uuid"
)

// Store persists batch operations and their items. Progress writes on the
// operation record are flushed in chunks by the coordinator, so the store
// only needs simple row updates.
type Store interface {
	CreateBatch(ctx context.Context, op Operation, items []Item) error
	GetBatch(ctx context.Context, id uuid.UUID) (Operation, error)
	UpdateBatch(ctx context.Context, op Operation) error
	GetItems(ctx context.Context, batchID uuid.UUID) ([]Item, error)
	UpdateItem(ctx context.Context, item Item) error
}
