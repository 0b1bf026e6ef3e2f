package reconciliation

import (
	"context"
	"time"
)

// Store persists settlement records and period reports.
type Store interface {
	UpsertRecords(ctx context.Context, records []SettlementRecord) error
	ListRecords(ctx context.Context, from, to time.Time) ([]SettlementRecord, error)
	SaveReport(ctx context.Context, report Report) error
	GetReport(ctx context.Context, period string) (Report, error)
}
