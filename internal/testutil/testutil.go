// Package testutil provides common test utilities: an in-memory SQLite store
// with the schema applied, fixture factories, and HTTP assertions.
package testutil

import (
	"context"
	"fmt"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tribegate/tribegate/internal/storage"
	"github.com/tribegate/tribegate/pkg/types"
)

// NewTestContext creates a context with timeout for tests.
func NewTestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// NewStore opens a private in-memory SQLite database with all migrations applied.
func NewStore(t *testing.T) *storage.Store {
	t.Helper()
	ctx := NewTestContext(t)

	store, err := storage.Open(ctx, storage.DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	_, err = store.Migrate(ctx, storage.MigrateUp, 0)
	require.NoError(t, err)

	return store
}

// FailAuditInserts installs a trigger that aborts every audit_log insert, to
// exercise rollback of the paired mutation.
func FailAuditInserts(t *testing.T, store *storage.Store) {
	t.Helper()
	_, err := store.DB().Exec(`
		CREATE TRIGGER audit_log_fail_insert BEFORE INSERT ON audit_log
		BEGIN
			SELECT RAISE(ABORT, 'audit insert rejected');
		END
	`)
	require.NoError(t, err)
}

var externalSeq atomic.Int64

// CreateAccount inserts an account with a unique external id.
func CreateAccount(t *testing.T, store *storage.Store, username string, globalAdmin bool) *types.Account {
	t.Helper()

	now := store.Now()
	a := &types.Account{
		ExternalID:    fmt.Sprintf("ext-%d", 1000+externalSeq.Add(1)),
		Username:      username,
		Discriminator: "0",
		IsAdmin:       globalAdmin,
		LastLoginAt:   &now,
		CreatedAt:     now,
	}
	require.NoError(t, storage.NewAccountRepository(store).CreateTx(NewTestContext(t), store.DB(), a))
	return a
}

// CreateTribe inserts a tribe.
func CreateTribe(t *testing.T, store *storage.Store, name string) *types.Tribe {
	t.Helper()

	tr := &types.Tribe{Name: name}
	require.NoError(t, storage.NewTribeRepository(store).CreateTx(NewTestContext(t), store.DB(), tr))
	return tr
}

// AddMember puts an account in a tribe, creating the tribe row if needed.
func AddMember(t *testing.T, store *storage.Store, accountID int64, tribe string, tribeAdmin bool) {
	t.Helper()
	ctx := NewTestContext(t)

	tribes := storage.NewTribeRepository(store)
	existing, err := tribes.Get(ctx, tribe)
	require.NoError(t, err)
	if existing == nil {
		CreateTribe(t, store, tribe)
	}

	require.NoError(t, storage.NewMembershipRepository(store).UpsertTx(ctx, store.DB(), &types.TribeMembership{
		AccountID: accountID,
		Tribe:     tribe,
		IsAdmin:   tribeAdmin,
		Source:    types.MembershipSourceSystem,
	}))
}

// CreateWallet inserts an active binding for the account.
func CreateWallet(t *testing.T, store *storage.Store, accountID int64, address string) *types.WalletBinding {
	t.Helper()

	w := &types.WalletBinding{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		Address:    address,
		VerifiedAt: store.Now(),
	}
	require.NoError(t, storage.NewWalletRepository(store).CreateTx(NewTestContext(t), store.DB(), w))
	return w
}

// AuditEntries returns the entries for an action, newest first.
func AuditEntries(t *testing.T, store *storage.Store, action types.AuditAction) []*types.AuditLogEntry {
	t.Helper()

	entries, err := storage.NewAuditLogRepository(store).Query(NewTestContext(t), storage.AuditFilter{Action: action})
	require.NoError(t, err)
	return entries
}

// AssertErrorResponse checks that an HTTP response is an error with expected status.
func AssertErrorResponse(t *testing.T, resp *httptest.ResponseRecorder, expectedStatus int) {
	t.Helper()
	require.Equal(t, expectedStatus, resp.Code,
		"Expected status %d, got %d. Body: %s",
		expectedStatus, resp.Code, resp.Body.String())
}

// AssertSuccessResponse checks that an HTTP response is successful (2xx).
func AssertSuccessResponse(t *testing.T, resp *httptest.ResponseRecorder) {
	t.Helper()
	require.True(t, resp.Code >= 200 && resp.Code < 300,
		"Expected success status (2xx), got %d. Body: %s",
		resp.Code, resp.Body.String())
}
