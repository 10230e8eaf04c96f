// Package history keeps completed searches: the source image as an
// artifact and the result as a row in the SQLite index.
//
// The artifact is always written before its row, so every listed record
// points at an image that was fully stored when the record was created.
// Records are never modified after creation.
package history

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/revsearch/internal/client/artifacts"
	"github.com/dmitrijs2005/revsearch/internal/client/models"
	historyrepo "github.com/dmitrijs2005/revsearch/internal/client/repositories/history"
	"github.com/dmitrijs2005/revsearch/internal/common"
	"github.com/dmitrijs2005/revsearch/internal/dbx"
	"github.com/dmitrijs2005/revsearch/internal/logging"
)

// ErrNotFound is returned for unknown record ids.
var ErrNotFound = common.ErrorNotFound

// Store is safe for concurrent use.
type Store struct {
	db        *sql.DB
	artifacts artifacts.Store
	log       logging.Logger
	locks     *keyLocks
	now       func() time.Time
}

func New(db *sql.DB, store artifacts.Store, log logging.Logger) *Store {
	if log == nil {
		log = logging.Nop()
	}
	return &Store{
		db:        db,
		artifacts: store,
		log:       log.With("component", "history"),
		locks:     newKeyLocks(),
		now:       time.Now,
	}
}

func (s *Store) repo(db dbx.DBTX) historyrepo.Repository {
	return historyrepo.NewSQLiteRepository(db)
}

// Save stores image and result as a new record. Failures are
// *common.StorageError values of kind ErrWriteFailed.
func (s *Store) Save(ctx context.Context, image []byte, result *models.SearchResult) (models.HistoryRecord, error) {
	key := artifacts.Key(image)

	var payload []byte
	if result != nil {
		var err error
		payload, err = json.Marshal(result)
		if err != nil {
			return models.HistoryRecord{}, common.NewStorageError(common.ErrWriteFailed, key, err)
		}
	}

	rec := models.HistoryRecord{
		ID:          uuid.NewString(),
		CapturedAt:  s.now().UTC(),
		ArtifactKey: key,
		Result:      result,
	}

	unlock := s.locks.lock(key)
	defer unlock()

	if err := s.artifacts.Put(ctx, key, image); err != nil {
		return models.HistoryRecord{}, asWriteFailed(key, err)
	}

	err := s.repo(s.db).Insert(ctx, historyrepo.Row{
		ID:          rec.ID,
		CapturedAt:  rec.CapturedAt.UnixNano(),
		ArtifactKey: key,
		Result:      payload,
	})
	if err != nil {
		return models.HistoryRecord{}, common.NewStorageError(common.ErrWriteFailed, key, err)
	}

	s.log.Info(ctx, "search saved", "record_id", rec.ID, "artifact_key", key)
	return rec, nil
}

// LoadAll returns every readable record, most recent first. Rows whose
// result cannot be decoded are logged and skipped.
func (s *Store) LoadAll(ctx context.Context) ([]models.HistoryRecord, error) {
	rows, err := s.repo(s.db).List(ctx)
	if err != nil {
		return nil, common.NewStorageError(common.ErrStorage, "history", err)
	}

	out := make([]models.HistoryRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := decode(row)
		if err != nil {
			s.log.Warn(ctx, "skipping unreadable history record", "record_id", row.ID, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Get returns one record. It returns ErrNotFound for unknown ids and for
// rows that cannot be decoded.
func (s *Store) Get(ctx context.Context, id string) (models.HistoryRecord, error) {
	row, err := s.repo(s.db).GetByID(ctx, id)
	if errors.Is(err, common.ErrorNotFound) {
		return models.HistoryRecord{}, ErrNotFound
	}
	if err != nil {
		return models.HistoryRecord{}, common.NewStorageError(common.ErrStorage, id, err)
	}
	rec, err := decode(*row)
	if err != nil {
		s.log.Warn(ctx, "unreadable history record", "record_id", id, "error", err)
		return models.HistoryRecord{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return rec, nil
}

// LoadImage returns the artifact for key. It reports false when the
// artifact is missing or its content no longer matches the key.
func (s *Store) LoadImage(ctx context.Context, key string) ([]byte, bool) {
	data, err := s.artifacts.Get(ctx, key)
	if err != nil {
		s.log.Debug(ctx, "artifact unavailable", "artifact_key", key, "error", err)
		return nil, false
	}
	if !artifacts.Verify(key, data) {
		s.log.Warn(ctx, "artifact content does not match its key", "artifact_key", key)
		return nil, false
	}
	return data, true
}

// Delete removes a record, and its artifact when no other record
// references it.
func (s *Store) Delete(ctx context.Context, id string) error {
	row, err := s.repo(s.db).GetByID(ctx, id)
	if errors.Is(err, common.ErrorNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return common.NewStorageError(common.ErrStorage, id, err)
	}
	return s.remove(ctx, *row)
}

// Prune deletes the oldest records so that at most keep remain, and
// returns how many were removed.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must not be negative: %d", keep)
	}
	rows, err := s.repo(s.db).ListBeyond(ctx, keep)
	if err != nil {
		return 0, common.NewStorageError(common.ErrStorage, "history", err)
	}

	removed := 0
	for _, row := range rows {
		if err := s.remove(ctx, row); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				continue
			}
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		s.log.Info(ctx, "history pruned", "removed", removed, "kept", keep)
	}
	return removed, nil
}

func (s *Store) remove(ctx context.Context, row historyrepo.Row) error {
	unlock := s.locks.lock(row.ArtifactKey)
	defer unlock()

	var refs int
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repo(tx)
		if err := repo.DeleteByID(ctx, row.ID); err != nil {
			return err
		}
		n, err := repo.CountByArtifact(ctx, row.ArtifactKey)
		refs = n
		return err
	})
	if errors.Is(err, common.ErrorNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return common.NewStorageError(common.ErrWriteFailed, row.ArtifactKey, err)
	}

	if refs == 0 {
		if err := s.artifacts.Delete(ctx, row.ArtifactKey); err != nil {
			// the row is gone; an orphaned artifact only costs space
			s.log.Warn(ctx, "failed to delete artifact", "artifact_key", row.ArtifactKey, "error", err)
		}
	}
	s.log.Info(ctx, "history record deleted", "record_id", row.ID)
	return nil
}

// decode maps a row to a record. A NULL or JSON null payload is a record
// without a result.
func decode(row historyrepo.Row) (models.HistoryRecord, error) {
	rec := models.HistoryRecord{
		ID:          row.ID,
		CapturedAt:  time.Unix(0, row.CapturedAt).UTC(),
		ArtifactKey: row.ArtifactKey,
	}
	if row.Result == nil || bytes.Equal(bytes.TrimSpace(row.Result), []byte("null")) {
		return rec, nil
	}
	var result models.SearchResult
	if err := json.Unmarshal(row.Result, &result); err != nil {
		return models.HistoryRecord{}, fmt.Errorf("decode result: %w", err)
	}
	rec.Result = &result
	return rec, nil
}

func asWriteFailed(key string, err error) error {
	var se *common.StorageError
	if errors.As(err, &se) && errors.Is(err, common.ErrWriteFailed) {
		return err
	}
	return common.NewStorageError(common.ErrWriteFailed, key, err)
}
