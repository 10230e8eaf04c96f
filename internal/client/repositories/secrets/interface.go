// Package secrets stores sealed credential values in the local SQLite
// database. Values and nonces are opaque to this layer.
package secrets

import "context"

// Sealed is one encrypted credential entry.
type Sealed struct {
	Value []byte
	Nonce []byte
}

// Repository persists sealed credentials by key. Get returns
// common.ErrorNotFound for a missing key.
type Repository interface {
	Get(ctx context.Context, key string) (Sealed, error)
	Put(ctx context.Context, key string, s Sealed) error
	Delete(ctx context.Context, key string) error
}
