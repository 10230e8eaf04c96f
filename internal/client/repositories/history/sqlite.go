package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/revsearch/internal/common"
	"github.com/dmitrijs2005/revsearch/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Insert stores a nil Result as NULL.
func (r *SQLiteRepository) Insert(ctx context.Context, row Row) error {
	var result any
	if row.Result != nil {
		result = row.Result
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO history (id, captured_at, artifact_key, result) VALUES (?, ?, ?, ?)`,
		row.ID, row.CapturedAt, row.ArtifactKey, result)
	if err != nil {
		return fmt.Errorf("failed to insert history row: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]Row, error) {
	return r.query(ctx, `SELECT id, captured_at, artifact_key, result FROM history
		ORDER BY captured_at DESC, id DESC`)
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Row, error) {
	var row Row
	err := r.db.QueryRowContext(ctx,
		`SELECT id, captured_at, artifact_key, result FROM history WHERE id = ?`, id).
		Scan(&row.ID, &row.CapturedAt, &row.ArtifactKey, &row.Result)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history row: %w", err)
	}
	return &row, nil
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	err := dbx.ExecOne(ctx, r.db, `DELETE FROM history WHERE id = ?`, id)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return fmt.Errorf("failed to delete history row: %w", err)
	}
	return err
}

func (r *SQLiteRepository) CountByArtifact(ctx context.Context, key string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM history WHERE artifact_key = ?`, key).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count artifact references: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) ListBeyond(ctx context.Context, keep int) ([]Row, error) {
	if keep < 0 {
		keep = 0
	}
	rows, err := r.query(ctx, `SELECT id, captured_at, artifact_key, result FROM history
		ORDER BY captured_at DESC, id DESC LIMIT -1 OFFSET ?`, keep)
	if err != nil {
		return nil, err
	}
	slices.Reverse(rows)
	return rows, nil
}

func (r *SQLiteRepository) query(ctx context.Context, q string, args ...any) ([]Row, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select history: %w", err)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		var item Row
		if err := rows.Scan(&item.ID, &item.CapturedAt, &item.ArtifactKey, &item.Result); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history rows: %w", err)
	}
	return result, nil
}
