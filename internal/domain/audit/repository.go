package audit

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// Repository is the Postgres-backed Store. audit_entries has a unique index
// on seq; a duplicate append surfaces as a constraint error.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Append(ctx context.Context, entry Entry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_entries (id, seq, action_type, actor_id, payload, timestamp, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.Seq, entry.ActionType, entry.ActorID, entry.Payload,
		entry.Timestamp, entry.PrevHash, entry.Hash)
	return err
}

func (r *Repository) Last(ctx context.Context) (Entry, error) {
	var entry Entry
	err := r.db.GetContext(ctx, &entry, `
		SELECT id, seq, action_type, actor_id, payload, timestamp, prev_hash, hash
		FROM audit_entries ORDER BY seq DESC LIMIT 1
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrEmptyChain
	}
	return entry, err
}

func (r *Repository) Range(ctx context.Context, fromSeq, toSeq int64) ([]Entry, error) {
	entries := []Entry{}
	err := r.db.SelectContext(ctx, &entries, `
		SELECT id, seq, action_type, actor_id, payload, timestamp, prev_hash, hash
		FROM audit_entries
		WHERE seq >= $1 AND seq <= $2
		ORDER BY seq
	`, fromSeq, toSeq)
	return entries, err
}
