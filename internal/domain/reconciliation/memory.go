package reconciliation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]SettlementRecord
	reports map[string]Report
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]SettlementRecord),
		reports: make(map[string]Report),
	}
}

func (m *MemoryStore) UpsertRecords(_ context.Context, records []SettlementRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		if _, ok := m.records[rec.ID.String()]; ok {
			continue
		}
		m.records[rec.ID.String()] = rec
	}
	return nil
}

func (m *MemoryStore) ListRecords(_ context.Context, from, to time.Time) ([]SettlementRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SettlementRecord
	for _, rec := range m.records {
		if rec.SettledAt.Before(from) || !rec.SettledAt.Before(to) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *MemoryStore) SaveReport(_ context.Context, report Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[report.Period] = report
	return nil
}

func (m *MemoryStore) GetReport(_ context.Context, period string) (Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	report, ok := m.reports[period]
	if !ok {
		return Report{}, ErrReportNotFound
	}
	return report, nil
}
