package secrets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/revsearch/internal/common"
	"github.com/dmitrijs2005/revsearch/internal/dbx"
)

// SQLiteRepository implements Repository over the credentials table.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, key string) (Sealed, error) {
	var s Sealed
	err := r.db.QueryRowContext(ctx, `SELECT value, nonce FROM credentials WHERE key = ?`, key).
		Scan(&s.Value, &s.Nonce)
	if errors.Is(err, sql.ErrNoRows) {
		return Sealed{}, common.ErrorNotFound
	}
	if err != nil {
		return Sealed{}, fmt.Errorf("failed to get credential[%s]: %w", key, err)
	}
	return s, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, key string, s Sealed) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO credentials (key, value, nonce) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, nonce = excluded.nonce
	`, key, s.Value, s.Nonce)
	if err != nil {
		return fmt.Errorf("failed to put credential[%s]: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete credential[%s]: %w", key, err)
	}
	return nil
}
