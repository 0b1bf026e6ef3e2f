package reconciliation

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// Repository is the Postgres-backed Store.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) UpsertRecords(ctx context.Context, records []SettlementRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO settlement_records (id, external_ref, amount, provider, settled_at, ingested_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING
		`, rec.ID, rec.ExternalRef, rec.Amount, rec.Provider, rec.SettledAt, rec.IngestedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Repository) ListRecords(ctx context.Context, from, to time.Time) ([]SettlementRecord, error) {
	records := []SettlementRecord{}
	err := r.db.SelectContext(ctx, &records, `
		SELECT id, external_ref, amount, provider, settled_at, ingested_at
		FROM settlement_records
		WHERE settled_at >= $1 AND settled_at < $2
		ORDER BY id
	`, from, to)
	return records, err
}

func (r *Repository) SaveReport(ctx context.Context, report Report) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reconciliation_reports
			(id, period, period_start, period_end, transactions, records,
			 matched_count, review_count, discrepancy_count, result, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (period) DO UPDATE SET
			id = EXCLUDED.id,
			transactions = EXCLUDED.transactions,
			records = EXCLUDED.records,
			matched_count = EXCLUDED.matched_count,
			review_count = EXCLUDED.review_count,
			discrepancy_count = EXCLUDED.discrepancy_count,
			result = EXCLUDED.result,
			generated_at = EXCLUDED.generated_at
	`, report.ID, report.Period, report.PeriodStart, report.PeriodEnd,
		report.Transactions, report.Records, report.MatchedCount,
		report.ReviewCount, report.DiscrepancyNum, report.Result, report.GeneratedAt)
	return err
}

func (r *Repository) GetReport(ctx context.Context, period string) (Report, error) {
	var report Report
	err := r.db.GetContext(ctx, &report, `
		SELECT id, period, period_start, period_end, transactions, records,
		       matched_count, review_count, discrepancy_count, result, generated_at
		FROM reconciliation_reports WHERE period = $1
	`, period)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, ErrReportNotFound
	}
	return report, err
}
