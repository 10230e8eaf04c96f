package artifacts

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/revsearch/internal/common"
	"github.com/dmitrijs2005/revsearch/internal/filex"
)

const artifactPerm = 0o640

// FSStore keeps artifacts as files in one directory.
type FSStore struct {
	dir string
}

// NewFSStore creates dir under base if needed.
func NewFSStore(base, dir string) (*FSStore, error) {
	path, err := filex.EnsureSubdDir(base, dir)
	if err != nil {
		return nil, common.NewStorageError(common.ErrWriteFailed, dir, err)
	}
	return &FSStore{dir: path}, nil
}

func (s *FSStore) Dir() string { return s.dir }

func (s *FSStore) path(key string) (string, error) {
	if !validKey(key) {
		return "", common.NewStorageError(common.ErrArtifactMissing, key, errors.New("malformed key"))
	}
	return filepath.Join(s.dir, key), nil
}

func (s *FSStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validKey(key) {
		return common.NewStorageError(common.ErrWriteFailed, key, errors.New("malformed key"))
	}
	p := filepath.Join(s.dir, key)
	if err := filex.WriteFileAtomic(p, data, artifactPerm); err != nil {
		return common.NewStorageError(common.ErrWriteFailed, key, err)
	}
	return nil
}

func (s *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, common.NewStorageError(common.ErrArtifactMissing, key, nil)
	}
	if err != nil {
		return nil, common.NewStorageError(common.ErrArtifactMissing, key, err)
	}
	return data, nil
}

func (s *FSStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return common.NewStorageError(common.ErrWriteFailed, key, err)
	}
	return nil
}
