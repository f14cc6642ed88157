package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tribegate/tribegate/pkg/types"
)

// WalletRepository handles wallet binding data operations
type WalletRepository struct {
	store *Store
}

// NewWalletRepository creates a new WalletRepository
func NewWalletRepository(store *Store) *WalletRepository {
	return &WalletRepository{store: store}
}

const walletColumns = `id, account_id, address, verified_at, deleted_at, created_at`

func scanWallet(row interface{ Scan(...any) error }) (*types.WalletBinding, error) {
	var (
		w         types.WalletBinding
		deletedAt sql.NullTime
	)
	if err := row.Scan(&w.ID, &w.AccountID, &w.Address, &w.VerifiedAt, &deletedAt, &w.CreatedAt); err != nil {
		return nil, err
	}
	w.DeletedAt = timePtr(deletedAt)
	return &w, nil
}

func (r *WalletRepository) queryWallets(ctx context.Context, db DBTX, query string, args ...any) ([]*types.WalletBinding, error) {
	rows, err := db.QueryContext(ctx, r.store.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallets: %w", err)
	}
	defer rows.Close()

	var wallets []*types.WalletBinding
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// GetByID retrieves a binding by ID regardless of state. Returns nil, nil when absent.
func (r *WalletRepository) GetByID(ctx context.Context, id string) (*types.WalletBinding, error) {
	return r.GetByIDTx(ctx, r.store.db, id)
}

// GetByIDTx is GetByID on the provided transaction or connection.
func (r *WalletRepository) GetByIDTx(ctx context.Context, db DBTX, id string) (*types.WalletBinding, error) {
	query := r.store.Rebind(`SELECT ` + walletColumns + ` FROM wallet_bindings WHERE id = ?`)

	w, err := scanWallet(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet by ID: %w", err)
	}
	return w, nil
}

// FindByAddressTx returns the active binding for a normalized address, or the
// most recently soft-deleted one when none is active. Returns nil, nil when
// the address has never been bound.
func (r *WalletRepository) FindByAddressTx(ctx context.Context, db DBTX, address string) (*types.WalletBinding, error) {
	query := r.store.Rebind(`
		SELECT ` + walletColumns + `
		FROM wallet_bindings
		WHERE address = ?
		ORDER BY CASE WHEN deleted_at IS NULL THEN 0 ELSE 1 END, deleted_at DESC
		LIMIT 1
	`)

	w, err := scanWallet(db.QueryRowContext(ctx, query, address))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet by address: %w", err)
	}
	return w, nil
}

// CreateTx inserts a new active binding. A concurrent active binding for the
// same address surfaces as ErrUniqueViolation.
func (r *WalletRepository) CreateTx(ctx context.Context, db DBTX, w *types.WalletBinding) error {
	query := r.store.Rebind(`
		INSERT INTO wallet_bindings (id, account_id, address, verified_at, deleted_at, created_at)
		VALUES (?, ?, ?, ?, NULL, ?)
	`)

	if w.CreatedAt.IsZero() {
		w.CreatedAt = r.store.Now()
	}
	_, err := db.ExecContext(ctx, query, w.ID, w.AccountID, w.Address, w.VerifiedAt, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", mapError(err))
	}
	w.DeletedAt = nil
	return nil
}

// RelinkTx reactivates a soft-deleted binding for a (possibly different)
// owner. Returns false when the binding is not soft-deleted anymore.
func (r *WalletRepository) RelinkTx(ctx context.Context, db DBTX, id string, accountID int64, verifiedAt time.Time) (bool, error) {
	query := r.store.Rebind(`
		UPDATE wallet_bindings
		SET account_id = ?, deleted_at = NULL, verified_at = ?
		WHERE id = ? AND deleted_at IS NOT NULL
	`)

	res, err := db.ExecContext(ctx, query, accountID, verifiedAt, id)
	if err != nil {
		return false, fmt.Errorf("failed to relink wallet: %w", mapError(err))
	}
	return affected(res)
}

// SoftDeleteTx marks an active binding deleted. Returns false when the binding
// is absent or already soft-deleted.
func (r *WalletRepository) SoftDeleteTx(ctx context.Context, db DBTX, id string, at time.Time) (bool, error) {
	query := r.store.Rebind(`UPDATE wallet_bindings SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`)

	res, err := db.ExecContext(ctx, query, at, id)
	if err != nil {
		return false, fmt.Errorf("failed to soft-delete wallet: %w", err)
	}
	return affected(res)
}

// ListActiveByAccount returns the account's active bindings, newest first.
func (r *WalletRepository) ListActiveByAccount(ctx context.Context, accountID int64) ([]*types.WalletBinding, error) {
	return r.queryWallets(ctx, r.store.db, `
		SELECT `+walletColumns+`
		FROM wallet_bindings
		WHERE account_id = ? AND deleted_at IS NULL
		ORDER BY verified_at DESC
	`, accountID)
}

// ListByAccountTx returns every binding the account owns, in any state.
func (r *WalletRepository) ListByAccountTx(ctx context.Context, db DBTX, accountID int64) ([]*types.WalletBinding, error) {
	return r.queryWallets(ctx, db, `
		SELECT `+walletColumns+`
		FROM wallet_bindings
		WHERE account_id = ?
		ORDER BY created_at ASC
	`, accountID)
}

// CountActiveByAddress counts active bindings for an address. Used to check
// the uniqueness invariant.
func (r *WalletRepository) CountActiveByAddress(ctx context.Context, address string) (int, error) {
	query := r.store.Rebind(`SELECT COUNT(*) FROM wallet_bindings WHERE address = ? AND deleted_at IS NULL`)

	var n int
	if err := r.store.db.QueryRowContext(ctx, query, address).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count wallets: %w", err)
	}
	return n, nil
}

// HardDeleteByAccountTx removes every binding owned by the account. Only
// full account erasure does this.
func (r *WalletRepository) HardDeleteByAccountTx(ctx context.Context, db DBTX, accountID int64) (int64, error) {
	query := r.store.Rebind(`DELETE FROM wallet_bindings WHERE account_id = ?`)

	res, err := db.ExecContext(ctx, query, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete wallets: %w", err)
	}
	return res.RowsAffected()
}
