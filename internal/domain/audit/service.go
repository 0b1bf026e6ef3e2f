package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Service is the single writer to the chain. Appends are serialized so each
// new entry links to the real head; the store's unique seq index backstops a
// second process racing us.
type Service struct {
	store Store

	mu   sync.Mutex
	head *Entry // nil until the first read or append
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Append links a new entry to the chain head and persists it.
func (s *Service) Append(ctx context.Context, actionType string, actorID uuid.UUID, payload interface{}) (Entry, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal audit payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.head == nil {
		last, err := s.store.Last(ctx)
		switch {
		case errors.Is(err, ErrEmptyChain):
		case err != nil:
			return Entry{}, err
		default:
			s.head = &last
		}
	}

	entry := Entry{
		ID:         uuid.New(),
		Seq:        1,
		ActionType: actionType,
		ActorID:    actorID,
		Payload:    raw,
		Timestamp:  time.Now().UTC(),
	}
	if s.head != nil {
		entry.Seq = s.head.Seq + 1
		entry.PrevHash = s.head.Hash
	}
	entry.Hash = entry.ComputeHash()

	if err := s.store.Append(ctx, entry); err != nil {
		// Force a head re-read on the next append in case another writer won.
		s.head = nil
		return Entry{}, err
	}
	s.head = &entry
	return entry, nil
}

// Record satisfies the ledger's audit hook.
func (s *Service) Record(ctx context.Context, actionType string, actorID uuid.UUID, payload interface{}) error {
	_, err := s.Append(ctx, actionType, actorID, payload)
	return err
}

// Verify recomputes hashes over [fromSeq, toSeq] and reports every entry
// whose stored hash disagrees, plus every break in the prev-hash linkage
// (a missing or reordered seq shows up at the following entry).
func (s *Service) Verify(ctx context.Context, fromSeq, toSeq int64) (IntegrityReport, error) {
	if fromSeq < 1 || toSeq < fromSeq {
		return IntegrityReport{}, ErrInvalidRange
	}

	// One entry of lead-in anchors the first link of the range.
	readFrom := fromSeq
	if readFrom > 1 {
		readFrom--
	}
	entries, err := s.store.Range(ctx, readFrom, toSeq)
	if err != nil {
		return IntegrityReport{}, err
	}

	report := IntegrityReport{FromSeq: fromSeq, ToSeq: toSeq}
	var prev *Entry
	for i := range entries {
		entry := entries[i]
		inRange := entry.Seq >= fromSeq

		if inRange {
			report.Checked++
			if entry.ComputeHash() != entry.Hash {
				report.Violations = append(report.Violations, Violation{
					Seq:     entry.Seq,
					EntryID: entry.ID,
					Kind:    ViolationHashMismatch,
					Detail:  "stored hash does not match recomputed hash",
				})
			}
		}

		if prev != nil && inRange {
			switch {
			case entry.Seq != prev.Seq+1:
				report.Violations = append(report.Violations, Violation{
					Seq:     entry.Seq,
					EntryID: entry.ID,
					Kind:    ViolationLinkageBreak,
					Detail:  fmt.Sprintf("seq jumps from %d to %d", prev.Seq, entry.Seq),
				})
			case entry.PrevHash != prev.Hash:
				report.Violations = append(report.Violations, Violation{
					Seq:     entry.Seq,
					EntryID: entry.ID,
					Kind:    ViolationLinkageBreak,
					Detail:  "prev_hash does not match the preceding entry",
				})
			}
		}
		if inRange && prev == nil && entry.Seq == 1 && entry.PrevHash != "" {
			report.Violations = append(report.Violations, Violation{
				Seq:     entry.Seq,
				EntryID: entry.ID,
				Kind:    ViolationLinkageBreak,
				Detail:  "genesis entry carries a prev_hash",
			})
		}
		prev = &entries[i]
	}
	return report, nil
}
