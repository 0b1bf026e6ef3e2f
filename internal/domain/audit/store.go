package audit

import "context"

// Store persists the chain. Append must reject a duplicate seq so two racing
// writers cannot both extend the same link.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	Last(ctx context.Context) (Entry, error)
	Range(ctx context.Context, fromSeq, toSeq int64) ([]Entry, error)
}
