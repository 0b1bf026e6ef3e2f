package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entry is one link of the append-only audit chain. Hash covers the entry's
// canonical serialization plus the previous entry's hash, so any later edit,
// deletion or reordering is detectable.
type Entry struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	Seq        int64           `db:"seq" json:"seq"`
	ActionType string          `db:"action_type" json:"action_type"`
	ActorID    uuid.UUID       `db:"actor_id" json:"actor_id"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	Timestamp  time.Time       `db:"timestamp" json:"timestamp"`
	PrevHash   string          `db:"prev_hash" json:"prev_hash"`
	Hash       string          `db:"hash" json:"hash"`
}

// canonical is the byte string the hash commits to. Field order and the
// timestamp encoding are fixed; changing either invalidates every stored hash.
func (e Entry) canonical() string {
	return fmt.Sprintf("seq=%d|action=%s|actor=%s|ts=%s|payload=%s",
		e.Seq, e.ActionType, e.ActorID, e.Timestamp.UTC().Format(time.RFC3339Nano), e.Payload)
}

// ComputeHash recomputes the chained hash from the entry's fields and its
// PrevHash. The genesis entry has an empty PrevHash.
func (e Entry) ComputeHash() string {
	sum := sha256.Sum256([]byte(e.canonical() + e.PrevHash))
	return hex.EncodeToString(sum[:])
}

// Violation kinds reported by Verify.
const (
	ViolationHashMismatch = "hash_mismatch"
	ViolationLinkageBreak = "linkage_break"
)

// Violation is one detected integrity failure.
type Violation struct {
	Seq     int64     `json:"seq"`
	EntryID uuid.UUID `json:"entry_id"`
	Kind    string    `json:"kind"`
	Detail  string    `json:"detail"`
}

// IntegrityReport is the outcome of verifying a chain range. An intact range
// has zero violations; any violation means the range cannot be trusted.
type IntegrityReport struct {
	FromSeq    int64       `json:"from_seq"`
	ToSeq      int64       `json:"to_seq"`
	Checked    int         `json:"checked"`
	Violations []Violation `json:"violations"`
}

func (r IntegrityReport) Intact() bool {
	return len(r.Violations) == 0
}
