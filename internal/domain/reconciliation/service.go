package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/playgive/playgive-api/internal/domain/wallet"
)

// TransactionSource exposes the slice of the ledger reconciliation reads.
type TransactionSource interface {
	ListTransactionsInPeriod(ctx context.Context, from, to time.Time) ([]wallet.Transaction, error)
}

// Feed pulls settlement records for a period from the external provider.
type Feed interface {
	Fetch(ctx context.Context, period string) ([]SettlementRecord, error)
}

type Service struct {
	store   Store
	txns    TransactionSource
	matcher *Matcher
	feed    Feed // nil when ingestion happens out of band
	audit   wallet.AuditLog
}

func NewService(store Store, txns TransactionSource, matcher *Matcher, feed Feed, audit wallet.AuditLog) *Service {
	return &Service{store: store, txns: txns, matcher: matcher, feed: feed, audit: audit}
}

// Reconcile runs the matcher for one period and persists the report,
// replacing any previous report for the same period.
func (s *Service) Reconcile(ctx context.Context, period string, actorID uuid.UUID) (Report, error) {
	from, to, err := ParsePeriod(period)
	if err != nil {
		return Report{}, err
	}

	// Feed unavailability degrades to reconciling already-ingested records.
	if s.feed != nil {
		fetched, err := s.feed.Fetch(ctx, period)
		if err != nil {
			log.Warn().Err(err).Str("period", period).Msg("settlement feed fetch failed")
		} else if err := s.store.UpsertRecords(ctx, fetched); err != nil {
			return Report{}, fmt.Errorf("ingest settlement records: %w", err)
		}
	}

	records, err := s.store.ListRecords(ctx, from, to)
	if err != nil {
		return Report{}, fmt.Errorf("list settlement records: %w", err)
	}
	all, err := s.txns.ListTransactionsInPeriod(ctx, from, to)
	if err != nil {
		return Report{}, fmt.Errorf("list transactions: %w", err)
	}

	// Only donations settle with the provider.
	donations := all[:0:0]
	for _, txn := range all {
		if txn.Type == wallet.TransactionTypeDonated {
			donations = append(donations, txn)
		}
	}

	result := s.matcher.Match(donations, records)
	report := Report{
		ID:             uuid.New(),
		Period:         period,
		PeriodStart:    from,
		PeriodEnd:      to,
		Transactions:   len(donations),
		Records:        len(records),
		MatchedCount:   len(result.Matched),
		ReviewCount:    len(result.ManualReview),
		DiscrepancyNum: len(result.Discrepancies),
		Result:         result,
		GeneratedAt:    time.Now().UTC(),
	}
	if err := s.store.SaveReport(ctx, report); err != nil {
		return Report{}, fmt.Errorf("save report: %w", err)
	}

	if s.audit != nil {
		if err := s.audit.Record(ctx, "reconciliation_run", actorID, map[string]interface{}{
			"period":        period,
			"matched":       report.MatchedCount,
			"review":        report.ReviewCount,
			"discrepancies": report.DiscrepancyNum,
		}); err != nil {
			log.Error().Err(err).Str("period", period).Msg("audit record failed")
		}
	}

	log.Info().
		Str("period", period).
		Int("matched", report.MatchedCount).
		Int("review", report.ReviewCount).
		Int("discrepancies", report.DiscrepancyNum).
		Msg("reconciliation finished")
	return report, nil
}

func (s *Service) GetReport(ctx context.Context, period string) (Report, error) {
	if _, _, err := ParsePeriod(period); err != nil {
		return Report{}, err
	}
	return s.store.GetReport(ctx, period)
}
