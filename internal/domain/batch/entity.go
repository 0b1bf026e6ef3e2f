package batch

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/playgive/playgive-api/internal/pkg/money"
)

// Status is the batch lifecycle:
// Queued -> Processing -> Completed | Failed | PartialSuccess | Cancelled.
type Status string

const (
	StatusQueued         Status = "queued"
	StatusProcessing     Status = "processing"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusPartialSuccess Status = "partial_success"
	StatusCancelled      Status = "cancelled"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusPartialSuccess, StatusCancelled:
		return true
	}
	return false
}

// ItemStatus is the per-item lifecycle inside a batch.
type ItemStatus string

const (
	ItemQueued     ItemStatus = "queued"
	ItemProcessing ItemStatus = "processing"
	ItemCompleted  ItemStatus = "completed"
	ItemFailed     ItemStatus = "failed"
	ItemCancelled  ItemStatus = "cancelled"
)

// ErrorEntry is one recorded item failure.
type ErrorEntry struct {
	ItemID uuid.UUID `json:"item_id"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// ErrorLog is a bounded ring of recent failures: appending past capacity
// drops the oldest entry. Persisted as JSONB on the batch record.
type ErrorLog struct {
	Cap     int          `json:"cap"`
	Entries []ErrorEntry `json:"entries"`
}

func NewErrorLog(capacity int) ErrorLog {
	if capacity <= 0 {
		capacity = 50
	}
	return ErrorLog{Cap: capacity}
}

func (l *ErrorLog) Append(entry ErrorEntry) {
	l.Entries = append(l.Entries, entry)
	if l.Cap > 0 && len(l.Entries) > l.Cap {
		l.Entries = l.Entries[len(l.Entries)-l.Cap:]
	}
}

func (l ErrorLog) Value() (driver.Value, error) {
	return json.Marshal(l)
}

func (l *ErrorLog) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*l = ErrorLog{}
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("cannot scan %T into ErrorLog", src)
	}
}

// Operation is one bulk donation job.
//
// Invariant: ProcessedItems = SuccessfulItems + FailedItems <= TotalItems,
// monotonically increasing until the status is terminal.
type Operation struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	OperationType   string     `db:"operation_type" json:"operation_type"`
	TotalItems      int        `db:"total_items" json:"total_items"`
	ProcessedItems  int        `db:"processed_items" json:"processed_items"`
	SuccessfulItems int        `db:"successful_items" json:"successful_items"`
	FailedItems     int        `db:"failed_items" json:"failed_items"`
	Status          Status     `db:"status" json:"status"`
	ErrorLog        ErrorLog   `db:"error_log" json:"error_log"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	StartedAt       *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt     *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// Progress is the completion percentage, 0-100.
func (o Operation) Progress() int {
	if o.TotalItems == 0 {
		return 0
	}
	return o.ProcessedItems * 100 / o.TotalItems
}

// Item is one donation inside a batch. TransactionID is a weak reference:
// the transaction's lifecycle is independent of the batch's.
type Item struct {
	ID            uuid.UUID   `db:"id" json:"id"`
	BatchID       uuid.UUID   `db:"batch_id" json:"batch_id"`
	UserID        uuid.UUID   `db:"user_id" json:"user_id"`
	RecipientID   uuid.UUID   `db:"recipient_id" json:"recipient_id"`
	Amount        money.Money `db:"amount" json:"amount"`
	Status        ItemStatus  `db:"status" json:"status"`
	RetryCount    int         `db:"retry_count" json:"retry_count"`
	LastError     *string     `db:"last_error" json:"last_error,omitempty"`
	TransactionID *uuid.UUID  `db:"transaction_id" json:"transaction_id,omitempty"`
}

// ItemRequest is one donation in a submitted batch job.
type ItemRequest struct {
	UserID      uuid.UUID   `json:"user_id"`
	RecipientID uuid.UUID   `json:"recipient_id"`
	Amount      money.Money `json:"amount"`
}

// OperationTypeDonation is the only bulk operation type today.
const OperationTypeDonation = "donation"
