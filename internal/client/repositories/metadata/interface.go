// Package metadata persists small key/value settings of the local client:
// the credential salt, the cached entitlement state and the offer catalog.
package metadata

import "context"

// Repository stores opaque byte values by key. Get returns (nil, nil) for a
// missing key; Set overwrites.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}
