// Package credentials is the durable key/value store for device identity,
// user identity and the session token. Values are sealed with AES-GCM under
// a key derived from a configured secret and a per-install salt.
//
// The store performs no retries; callers own the retry policy.
package credentials

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dmitrijs2005/revsearch/internal/client/models"
	"github.com/dmitrijs2005/revsearch/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/revsearch/internal/client/repositories/secrets"
	"github.com/dmitrijs2005/revsearch/internal/common"
	"github.com/dmitrijs2005/revsearch/internal/cryptox"
	"github.com/dmitrijs2005/revsearch/internal/dbx"
)

const (
	saltMetadataKey = "credentials.salt"
	saltSize        = 16
)

// Store is safe for concurrent use.
type Store struct {
	repo secrets.Repository
	key  []byte
}

// New returns a store sealing values with key.
func New(repo secrets.Repository, key []byte) *Store {
	return &Store{repo: repo, key: key}
}

// Open loads (or creates on first run) the install salt, derives the sealing
// key from secret and returns a store backed by db.
func Open(ctx context.Context, db *sql.DB, secret string) (*Store, error) {
	var salt []byte
	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		meta := metadata.NewSQLiteRepository(tx)
		s, err := meta.Get(ctx, saltMetadataKey)
		if err != nil {
			return err
		}
		if s == nil {
			s = common.GenerateRandByteArray(saltSize)
			if err := meta.Set(ctx, saltMetadataKey, s); err != nil {
				return err
			}
		}
		salt = s
		return nil
	})
	if err != nil {
		return nil, accessError("init", saltMetadataKey, err)
	}

	key := cryptox.DeriveKey([]byte(secret), salt)
	return New(secrets.NewSQLiteRepository(db), key), nil
}

// Get returns the value under key. ok is false when nothing is stored.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	sealed, err := s.repo.Get(ctx, key)
	if errors.Is(err, common.ErrorNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, accessError("get", key, err)
	}

	plain, err := cryptox.Open(sealed.Value, sealed.Nonce, s.key, []byte(key))
	if err != nil {
		return "", false, accessError("open", key, err)
	}
	defer common.WipeByteArray(plain)
	return string(plain), true, nil
}

// Set seals value and stores it under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	plain := []byte(value)
	defer common.WipeByteArray(plain)

	ct, nonce, err := cryptox.Seal(plain, s.key, []byte(key))
	if err != nil {
		return accessError("seal", key, err)
	}
	if err := s.repo.Put(ctx, key, secrets.Sealed{Value: ct, Nonce: nonce}); err != nil {
		return accessError("set", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.repo.Delete(ctx, key); err != nil {
		return accessError("delete", key, err)
	}
	return nil
}

// Identity reads the three identity entries.
func (s *Store) Identity(ctx context.Context) (models.Identity, error) {
	var id models.Identity
	for key, dst := range map[string]*string{
		common.KeyDeviceID:     &id.DeviceID,
		common.KeyUserID:       &id.UserID,
		common.KeySessionToken: &id.SessionToken,
	} {
		v, _, err := s.Get(ctx, key)
		if err != nil {
			return models.Identity{}, err
		}
		*dst = v
	}
	return id, nil
}
