// Package history is the SQLite index of saved searches. It stores rows that
// point at image artifacts; the artifacts themselves live elsewhere.
package history

import "context"

// Row is one index entry. CapturedAt is unix nanoseconds; Result is the
// encoded result payload and may be nil.
type Row struct {
	ID          string
	CapturedAt  int64
	ArtifactKey string
	Result      []byte
}

// Repository describes index operations used by the history store.
type Repository interface {
	Insert(ctx context.Context, row Row) error

	// List returns every row, most recent first.
	List(ctx context.Context) ([]Row, error)

	// GetByID returns common.ErrorNotFound for an unknown id.
	GetByID(ctx context.Context, id string) (*Row, error)

	// DeleteByID returns common.ErrorNotFound for an unknown id.
	DeleteByID(ctx context.Context, id string) error

	// CountByArtifact returns how many rows reference key.
	CountByArtifact(ctx context.Context, key string) (int, error)

	// ListBeyond returns the rows older than the newest keep rows,
	// oldest first.
	ListBeyond(ctx context.Context, keep int) ([]Row, error)
}
