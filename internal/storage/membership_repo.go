package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tribegate/tribegate/pkg/types"
)

// MembershipRepository handles tribe membership data operations
type MembershipRepository struct {
	store *Store
}

// NewMembershipRepository creates a new MembershipRepository
func NewMembershipRepository(store *Store) *MembershipRepository {
	return &MembershipRepository{store: store}
}

const membershipColumns = `account_id, tribe, is_admin, wallet_id, source, created_at`

func scanMembership(row interface{ Scan(...any) error }) (*types.TribeMembership, error) {
	var (
		m        types.TribeMembership
		walletID sql.NullString
		source   string
	)
	if err := row.Scan(&m.AccountID, &m.Tribe, &m.IsAdmin, &walletID, &source, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.WalletID = stringPtr(walletID)
	m.Source = types.MembershipSource(source)
	return &m, nil
}

// ListByAccount returns all memberships of an account ordered by tribe name.
func (r *MembershipRepository) ListByAccount(ctx context.Context, accountID int64) ([]*types.TribeMembership, error) {
	return r.ListByAccountTx(ctx, r.store.db, accountID)
}

// ListByAccountTx is ListByAccount on the provided transaction or connection.
func (r *MembershipRepository) ListByAccountTx(ctx context.Context, db DBTX, accountID int64) ([]*types.TribeMembership, error) {
	query := r.store.Rebind(`SELECT ` + membershipColumns + ` FROM tribe_memberships WHERE account_id = ? ORDER BY tribe ASC`)

	rows, err := db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*types.TribeMembership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

// GetTx returns one membership, or nil, nil when the account is not in the tribe.
func (r *MembershipRepository) GetTx(ctx context.Context, db DBTX, accountID int64, tribe string) (*types.TribeMembership, error) {
	query := r.store.Rebind(`SELECT ` + membershipColumns + ` FROM tribe_memberships WHERE account_id = ? AND tribe = ?`)

	m, err := scanMembership(db.QueryRowContext(ctx, query, accountID, tribe))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

// UpsertTx inserts a membership or updates the admin flag, source and wallet
// reference of the existing one. A nil WalletID keeps the current reference.
func (r *MembershipRepository) UpsertTx(ctx context.Context, db DBTX, m *types.TribeMembership) error {
	query := r.store.Rebind(`
		INSERT INTO tribe_memberships (account_id, tribe, is_admin, wallet_id, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, tribe) DO UPDATE
		SET is_admin = excluded.is_admin,
		    wallet_id = COALESCE(excluded.wallet_id, tribe_memberships.wallet_id),
		    source = excluded.source
	`)

	if m.CreatedAt.IsZero() {
		m.CreatedAt = r.store.Now()
	}
	if m.Source == "" {
		m.Source = types.MembershipSourceSystem
	}
	_, err := db.ExecContext(ctx, query, m.AccountID, m.Tribe, m.IsAdmin, nullString(m.WalletID), string(m.Source), m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert membership: %w", err)
	}
	return nil
}

// SetAdminTx flips the per-tribe admin flag. Returns false when the account
// is not a member of the tribe.
func (r *MembershipRepository) SetAdminTx(ctx context.Context, db DBTX, accountID int64, tribe string, isAdmin bool) (bool, error) {
	query := r.store.Rebind(`UPDATE tribe_memberships SET is_admin = ? WHERE account_id = ? AND tribe = ?`)

	res, err := db.ExecContext(ctx, query, isAdmin, accountID, tribe)
	if err != nil {
		return false, fmt.Errorf("failed to set tribe admin: %w", err)
	}
	return affected(res)
}

// DeleteTx removes a membership. Returns false when it did not exist.
func (r *MembershipRepository) DeleteTx(ctx context.Context, db DBTX, accountID int64, tribe string) (bool, error) {
	query := r.store.Rebind(`DELETE FROM tribe_memberships WHERE account_id = ? AND tribe = ?`)

	res, err := db.ExecContext(ctx, query, accountID, tribe)
	if err != nil {
		return false, fmt.Errorf("failed to delete membership: %w", err)
	}
	return affected(res)
}

// DeleteByAccountTx removes every membership of an account.
func (r *MembershipRepository) DeleteByAccountTx(ctx context.Context, db DBTX, accountID int64) error {
	query := r.store.Rebind(`DELETE FROM tribe_memberships WHERE account_id = ?`)

	if _, err := db.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("failed to delete memberships: %w", err)
	}
	return nil
}

// ClearWalletRefTx nulls the weak wallet reference on every membership that
// points at the binding. Memberships themselves persist.
func (r *MembershipRepository) ClearWalletRefTx(ctx context.Context, db DBTX, walletID string) (int64, error) {
	query := r.store.Rebind(`UPDATE tribe_memberships SET wallet_id = NULL WHERE wallet_id = ?`)

	res, err := db.ExecContext(ctx, query, walletID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear wallet references: %w", err)
	}
	return res.RowsAffected()
}

// RenameTribeTx moves every membership from one tribe name to another.
func (r *MembershipRepository) RenameTribeTx(ctx context.Context, db DBTX, from, to string) (int64, error) {
	query := r.store.Rebind(`UPDATE tribe_memberships SET tribe = ? WHERE tribe = ?`)

	res, err := db.ExecContext(ctx, query, to, from)
	if err != nil {
		return 0, fmt.Errorf("failed to rename tribe memberships: %w", mapError(err))
	}
	return res.RowsAffected()
}

// CountByWalletRef counts memberships referencing a binding.
func (r *MembershipRepository) CountByWalletRef(ctx context.Context, walletID string) (int, error) {
	query := r.store.Rebind(`SELECT COUNT(*) FROM tribe_memberships WHERE wallet_id = ?`)

	var n int
	if err := r.store.db.QueryRowContext(ctx, query, walletID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count wallet references: %w", err)
	}
	return n, nil
}
