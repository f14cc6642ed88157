package audit_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tribegate/tribegate/internal/audit"
	"github.com/tribegate/tribegate/internal/storage"
	"github.com/tribegate/tribegate/internal/testutil"
	apperrors "github.com/tribegate/tribegate/pkg/errors"
	"github.com/tribegate/tribegate/pkg/types"
)

type recordingNotifier struct {
	mu      sync.Mutex
	entries []*types.AuditLogEntry
	err     error
}

func (n *recordingNotifier) Notify(_ context.Context, entry *types.AuditLogEntry) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries = append(n.entries, entry)
	return n.err
}

func (n *recordingNotifier) calls() []*types.AuditLogEntry {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*types.AuditLogEntry(nil), n.entries...)
}

// ============================================================================
// Commit path
// ============================================================================

func TestRunAudited_CommitsMutationAndEntry(t *testing.T) {
	store := testutil.NewStore(t)
	ctx := testutil.NewTestContext(t)
	actor := testutil.CreateAccount(t, store, "root", false)
	notifier := &recordingNotifier{}
	coord := audit.NewCoordinator(store, notifier)
	tribes := storage.NewTribeRepository(store)

	entry, err := coord.RunAudited(ctx, actor.ID, types.AuditSuperAdminCreateTribe,
		func(ctx context.Context, tx storage.DBTX, e *audit.Entry) error {
			if err := tribes.CreateTx(ctx, tx, &types.Tribe{Name: "Earth"}); err != nil {
				return err
			}
			e.Details = "Created tribe Earth"
			return nil
		})
	require.NoError(t, err)
	coord.Wait()

	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, actor.ID, entry.ActorID)
	assert.Nil(t, entry.TargetID)

	tribe, err := tribes.Get(ctx, "Earth")
	require.NoError(t, err)
	require.NotNil(t, tribe)

	entries := testutil.AuditEntries(t, store, types.AuditSuperAdminCreateTribe)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.ID, entries[0].ID)
	assert.Equal(t, "Created tribe Earth", entries[0].Details)

	calls := notifier.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, entry.ID, calls[0].ID)
}

func TestRunAudited_NonPrivilegedActionIsNotNotified(t *testing.T) {
	store := testutil.NewStore(t)
	ctx := testutil.NewTestContext(t)
	actor := testutil.CreateAccount(t, store, "alice", false)
	notifier := &recordingNotifier{}
	coord := audit.NewCoordinator(store, notifier)

	_, err := coord.RunAudited(ctx, actor.ID, types.AuditLinkWallet,
		func(ctx context.Context, tx storage.DBTX, e *audit.Entry) error {
			e.Target(actor.ID)
			e.Details = "Linked wallet 0xabc"
			return nil
		})
	require.NoError(t, err)
	coord.Wait()

	assert.Empty(t, notifier.calls())
	entries := testutil.AuditEntries(t, store, types.AuditLinkWallet)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].TargetID)
	assert.Equal(t, actor.ID, *entries[0].TargetID)
}

func TestRunAudited_NotifierFailureDoesNotAffectResult(t *testing.T) {
	store := testutil.NewStore(t)
	ctx := testutil.NewTestContext(t)
	actor := testutil.CreateAccount(t, store, "root", false)
	notifier := &recordingNotifier{err: errors.New("webhook down")}
	coord := audit.NewCoordinator(store, notifier)

	_, err := coord.RunAudited(ctx, actor.ID, types.AuditAdminGrant,
		func(ctx context.Context, tx storage.DBTX, e *audit.Entry) error {
			e.Details = "Granted admin"
			return nil
		})
	require.NoError(t, err)
	coord.Wait()

	assert.Len(t, notifier.calls(), 1)
	assert.Len(t, testutil.AuditEntries(t, store, types.AuditAdminGrant), 1)
}

// ============================================================================
// Rollback paths
// ============================================================================

func TestRunAudited_MutationErrorRollsBackAndPassesThrough(t *testing.T) {
	store := testutil.NewStore(t)
	ctx := testutil.NewTestContext(t)
	actor := testutil.CreateAccount(t, store, "root", false)
	notifier := &recordingNotifier{}
	coord := audit.NewCoordinator(store, notifier)
	tribes := storage.NewTribeRepository(store)

	_, err := coord.RunAudited(ctx, actor.ID, types.AuditSuperAdminCreateTribe,
		func(ctx context.Context, tx storage.DBTX, e *audit.Entry) error {
			if err := tribes.CreateTx(ctx, tx, &types.Tribe{Name: "Fire"}); err != nil {
				return err
			}
			return apperrors.Conflict("tribe already exists")
		})
	coord.Wait()

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConflict), "domain error code must survive: %v", err)

	tribe, err := tribes.Get(ctx, "Fire")
	require.NoError(t, err)
	assert.Nil(t, tribe, "tribe insert must be rolled back")
	assert.Empty(t, testutil.AuditEntries(t, store, types.AuditSuperAdminCreateTribe))
	assert.Empty(t, notifier.calls())
}

func TestRunAudited_AuditInsertFailureRollsBackRename(t *testing.T) {
	store := testutil.NewStore(t)
	ctx := testutil.NewTestContext(t)
	actor := testutil.CreateAccount(t, store, "root", false)
	member := testutil.CreateAccount(t, store, "bob", false)
	testutil.AddMember(t, store, member.ID, "Earth", false)
	testutil.FailAuditInserts(t, store)

	notifier := &recordingNotifier{}
	coord := audit.NewCoordinator(store, notifier)
	tribes := storage.NewTribeRepository(store)
	memberships := storage.NewMembershipRepository(store)

	_, err := coord.RunAudited(ctx, actor.ID, types.AuditSuperAdminUpdateTribe,
		func(ctx context.Context, tx storage.DBTX, e *audit.Entry) error {
			if _, err := tribes.RenameTx(ctx, tx, "Earth", "Terra"); err != nil {
				return err
			}
			if _, err := memberships.RenameTribeTx(ctx, tx, "Earth", "Terra"); err != nil {
				return err
			}
			e.Details = "Renamed tribe Earth to Terra"
			return nil
		})
	coord.Wait()

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInternalError))

	old, err := tribes.Get(ctx, "Earth")
	require.NoError(t, err)
	assert.NotNil(t, old, "rename must be rolled back")

	renamed, err := tribes.Get(ctx, "Terra")
	require.NoError(t, err)
	assert.Nil(t, renamed)

	ms, err := memberships.ListByAccount(ctx, member.ID)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, "Earth", ms[0].Tribe)

	assert.Empty(t, notifier.calls())
}

func TestRunAudited_CommitFailureIsInternalAndNotNotified(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := storage.NewWithDB(db, storage.DialectPostgres)
	notifier := &recordingNotifier{}
	coord := audit.NewCoordinator(store, notifier)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE tribes").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_log").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("connection lost during commit"))

	_, err = coord.RunAudited(context.Background(), 1, types.AuditSuperAdminUpdateTribe,
		func(ctx context.Context, tx storage.DBTX, e *audit.Entry) error {
			_, err := tx.ExecContext(ctx, "UPDATE tribes SET name = $1 WHERE name = $2", "Terra", "Earth")
			e.Details = "Renamed tribe Earth to Terra"
			return err
		})
	coord.Wait()

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInternalError))
	assert.NotContains(t, err.Error(), "connection lost", "internal detail must not leak into the message")
	assert.Empty(t, notifier.calls())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunAudited_BeginFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := storage.NewWithDB(db, storage.DialectPostgres)
	coord := audit.NewCoordinator(store, nil)

	mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	called := false
	_, err = coord.RunAudited(context.Background(), 1, types.AuditLogin,
		func(ctx context.Context, tx storage.DBTX, e *audit.Entry) error {
			called = true
			return nil
		})

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInternalError))
	assert.False(t, called)
}

func TestRunAudited_UnknownAction(t *testing.T) {
	store := testutil.NewStore(t)
	coord := audit.NewCoordinator(store, nil)

	_, err := coord.RunAudited(testutil.NewTestContext(t), 1, types.AuditAction("DROP_TABLES"),
		func(ctx context.Context, tx storage.DBTX, e *audit.Entry) error { return nil })
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInternalError))
}

// ============================================================================
// Best-effort records
// ============================================================================

func TestRecord(t *testing.T) {
	store := testutil.NewStore(t)
	ctx := testutil.NewTestContext(t)
	actor := testutil.CreateAccount(t, store, "alice", false)
	coord := audit.NewCoordinator(store, nil)

	coord.Record(ctx, actor.ID, types.AuditViewRoster, nil, "Viewed roster of Earth")
	entries := testutil.AuditEntries(t, store, types.AuditViewRoster)
	require.Len(t, entries, 1)
	assert.Equal(t, "Viewed roster of Earth", entries[0].Details)

	testutil.FailAuditInserts(t, store)
	assert.NotPanics(t, func() {
		coord.Record(ctx, actor.ID, types.AuditViewRoster, nil, "Viewed roster of Earth")
	})
	assert.Len(t, testutil.AuditEntries(t, store, types.AuditViewRoster), 1)
}

func TestRunAudited_ActorSetByMutation(t *testing.T) {
	store := testutil.NewStore(t)
	ctx := testutil.NewTestContext(t)
	coord := audit.NewCoordinator(store, nil)
	accounts := storage.NewAccountRepository(store)

	var created *types.Account
	entry, err := coord.RunAudited(ctx, 0, types.AuditLogin,
		func(ctx context.Context, tx storage.DBTX, e *audit.Entry) error {
			created = &types.Account{ExternalID: "discord-1", Username: "newbie", Discriminator: "0", CreatedAt: store.Now()}
			if err := accounts.CreateTx(ctx, tx, created); err != nil {
				return err
			}
			e.ActorID = created.ID
			e.Details = "User newbie logged in via Discord"
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, created.ID, entry.ActorID)

	_, err = coord.RunAudited(ctx, 0, types.AuditLogin,
		func(ctx context.Context, tx storage.DBTX, e *audit.Entry) error { return nil })
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInternalError), "an entry without an actor is rejected")
}
