package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tribegate/tribegate/pkg/types"
)

// TribeRepository handles tribe data operations
type TribeRepository struct {
	store *Store
}

// NewTribeRepository creates a new TribeRepository
func NewTribeRepository(store *Store) *TribeRepository {
	return &TribeRepository{store: store}
}

// List returns all tribes ordered by name.
func (r *TribeRepository) List(ctx context.Context) ([]*types.Tribe, error) {
	rows, err := r.store.db.QueryContext(ctx, `SELECT name, created_at FROM tribes ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tribes: %w", err)
	}
	defer rows.Close()

	var tribes []*types.Tribe
	for rows.Next() {
		var t types.Tribe
		if err := rows.Scan(&t.Name, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tribe: %w", err)
		}
		tribes = append(tribes, &t)
	}
	return tribes, rows.Err()
}

// Get returns a tribe by name, or nil, nil when absent.
func (r *TribeRepository) Get(ctx context.Context, name string) (*types.Tribe, error) {
	return r.GetTx(ctx, r.store.db, name)
}

// GetTx is Get on the provided transaction or connection.
func (r *TribeRepository) GetTx(ctx context.Context, db DBTX, name string) (*types.Tribe, error) {
	query := r.store.Rebind(`SELECT name, created_at FROM tribes WHERE name = ?`)

	var t types.Tribe
	err := db.QueryRowContext(ctx, query, name).Scan(&t.Name, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tribe: %w", err)
	}
	return &t, nil
}

// CreateTx inserts a tribe. A duplicate name surfaces as ErrUniqueViolation.
func (r *TribeRepository) CreateTx(ctx context.Context, db DBTX, t *types.Tribe) error {
	query := r.store.Rebind(`INSERT INTO tribes (name, created_at) VALUES (?, ?)`)

	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.store.Now()
	}
	if _, err := db.ExecContext(ctx, query, t.Name, t.CreatedAt); err != nil {
		return fmt.Errorf("failed to create tribe: %w", mapError(err))
	}
	return nil
}

// RenameTx renames the tribe row only. Returns false when it does not exist.
func (r *TribeRepository) RenameTx(ctx context.Context, db DBTX, from, to string) (bool, error) {
	query := r.store.Rebind(`UPDATE tribes SET name = ? WHERE name = ?`)

	res, err := db.ExecContext(ctx, query, to, from)
	if err != nil {
		return false, fmt.Errorf("failed to rename tribe: %w", mapError(err))
	}
	return affected(res)
}
