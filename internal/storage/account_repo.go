package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tribegate/tribegate/pkg/types"
)

// AccountRepository handles account data operations
type AccountRepository struct {
	store *Store
}

// NewAccountRepository creates a new AccountRepository
func NewAccountRepository(store *Store) *AccountRepository {
	return &AccountRepository{store: store}
}

const accountColumns = `id, external_id, username, discriminator, is_admin, last_login_at, created_at`

func scanAccount(row interface{ Scan(...any) error }) (*types.Account, error) {
	var (
		a         types.Account
		lastLogin sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.ExternalID, &a.Username, &a.Discriminator, &a.IsAdmin, &lastLogin, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.LastLoginAt = timePtr(lastLogin)
	return &a, nil
}

// GetByID retrieves an account by ID. Returns nil, nil when absent.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*types.Account, error) {
	return r.GetByIDTx(ctx, r.store.db, id)
}

// GetByIDTx retrieves an account by ID using the provided transaction or connection
func (r *AccountRepository) GetByIDTx(ctx context.Context, db DBTX, id int64) (*types.Account, error) {
	query := r.store.Rebind(`SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`)

	a, err := scanAccount(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by ID: %w", err)
	}
	return a, nil
}

// GetByExternalID retrieves an account by its identity-provider id.
func (r *AccountRepository) GetByExternalID(ctx context.Context, externalID string) (*types.Account, error) {
	return r.GetByExternalIDTx(ctx, r.store.db, externalID)
}

// GetByExternalIDTx is GetByExternalID on the provided transaction or connection.
func (r *AccountRepository) GetByExternalIDTx(ctx context.Context, db DBTX, externalID string) (*types.Account, error) {
	query := r.store.Rebind(`SELECT ` + accountColumns + ` FROM accounts WHERE external_id = ?`)

	a, err := scanAccount(db.QueryRowContext(ctx, query, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by external ID: %w", err)
	}
	return a, nil
}

// CreateTx inserts a new account and fills in its generated ID.
func (r *AccountRepository) CreateTx(ctx context.Context, db DBTX, a *types.Account) error {
	query := r.store.Rebind(`
		INSERT INTO accounts (external_id, username, discriminator, is_admin, last_login_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.store.Now()
	}
	err := db.QueryRowContext(ctx, query,
		a.ExternalID,
		a.Username,
		a.Discriminator,
		a.IsAdmin,
		nullTime(a.LastLoginAt),
		a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", mapError(err))
	}
	return nil
}

// RecordLoginTx refreshes the display name and last-login time.
func (r *AccountRepository) RecordLoginTx(ctx context.Context, db DBTX, id int64, username, discriminator string, at time.Time) error {
	query := r.store.Rebind(`UPDATE accounts SET username = ?, discriminator = ?, last_login_at = ? WHERE id = ?`)

	if _, err := db.ExecContext(ctx, query, username, discriminator, at, id); err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return nil
}

// UpdateTx applies the non-nil fields. Returns false when the account is absent.
func (r *AccountRepository) UpdateTx(ctx context.Context, db DBTX, id int64, username *string, isAdmin *bool) (bool, error) {
	query := r.store.Rebind(`
		UPDATE accounts
		SET username = COALESCE(?, username),
		    is_admin = COALESCE(?, is_admin)
		WHERE id = ?
	`)

	res, err := db.ExecContext(ctx, query, nullString(username), nullBool(isAdmin), id)
	if err != nil {
		return false, fmt.Errorf("failed to update account: %w", err)
	}
	return affected(res)
}

// AnonymizeTx scrubs identifying fields in place. The row survives so audit
// references remain valid.
func (r *AccountRepository) AnonymizeTx(ctx context.Context, db DBTX, id int64) error {
	query := r.store.Rebind(`
		UPDATE accounts
		SET external_id = ?, username = 'Deleted User', discriminator = '0000',
		    is_admin = ?, last_login_at = NULL
		WHERE id = ?
	`)

	if _, err := db.ExecContext(ctx, query, fmt.Sprintf("deleted-%d", id), false, id); err != nil {
		return fmt.Errorf("failed to anonymize account: %w", err)
	}
	return nil
}

// List returns accounts ordered by username, for administrative listings.
func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]*types.Account, error) {
	query := r.store.Rebind(`SELECT ` + accountColumns + ` FROM accounts ORDER BY username ASC, id ASC LIMIT ? OFFSET ?`)

	rows, err := r.store.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*types.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
