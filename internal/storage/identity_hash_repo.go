package storage

import (
	"context"
	"fmt"

	"github.com/tribegate/tribegate/pkg/types"
)

// IdentityHashRepository stores salted hashes of erased identities so a
// deleted account cannot silently sign back in.
type IdentityHashRepository struct {
	store *Store
}

// NewIdentityHashRepository creates a new IdentityHashRepository
func NewIdentityHashRepository(store *Store) *IdentityHashRepository {
	return &IdentityHashRepository{store: store}
}

// AddTx records a hash. Re-adding an existing hash is a no-op.
func (r *IdentityHashRepository) AddTx(ctx context.Context, db DBTX, hash string, kind types.IdentityKind) error {
	query := r.store.Rebind(`
		INSERT INTO identity_hashes (hash, kind, created_at) VALUES (?, ?, ?)
		ON CONFLICT (hash) DO NOTHING
	`)

	if _, err := db.ExecContext(ctx, query, hash, string(kind), r.store.Now()); err != nil {
		return fmt.Errorf("failed to add identity hash: %w", err)
	}
	return nil
}

// Exists reports whether the hash is on the denylist.
func (r *IdentityHashRepository) Exists(ctx context.Context, hash string) (bool, error) {
	query := r.store.Rebind(`SELECT COUNT(*) FROM identity_hashes WHERE hash = ?`)

	var n int
	if err := r.store.db.QueryRowContext(ctx, query, hash).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check identity hash: %w", err)
	}
	return n > 0, nil
}
