package app

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tribegate/tribegate/internal/auth"
	"github.com/tribegate/tribegate/internal/storage"
	"github.com/tribegate/tribegate/internal/testutil"
	apperrors "github.com/tribegate/tribegate/pkg/errors"
	"github.com/tribegate/tribegate/pkg/types"
)

// =============================================================================
// Login
// =============================================================================

func TestLogin_CreatesThenUpdatesAccount(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.NewTestContext(t)

	first, err := f.accounts.Login(ctx, &auth.DiscordProfile{ID: "555", Username: "scout", Discriminator: "0"})
	require.NoError(t, err)
	require.NotZero(t, first.ID)
	assert.Equal(t, "scout", first.Username)
	assert.False(t, first.IsAdmin)

	second, err := f.accounts.Login(ctx, &auth.DiscordProfile{ID: "555", Username: "ranger", Discriminator: "1234"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	stored, err := storage.NewAccountRepository(f.store).GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "ranger", stored.Username)
	assert.Equal(t, "1234", stored.Discriminator)
	assert.NotNil(t, stored.LastLoginAt)

	logins := testutil.AuditEntries(t, f.store, types.AuditLogin)
	require.Len(t, logins, 2)
	assert.Equal(t, first.ID, logins[0].ActorID)
	assert.Nil(t, logins[0].TargetID)
	assert.Equal(t, "User ranger logged in via Discord", logins[0].Details)
	assert.Empty(t, testutil.AuditEntries(t, f.store, types.AuditAdminGrant))
}

func TestLogin_PromotesInitialAdminOnce(t *testing.T) {
	f := newFixtureWithInitialAdmin(t, "777")
	ctx := testutil.NewTestContext(t)

	account, err := f.accounts.Login(ctx, &auth.DiscordProfile{ID: "777", Username: "founder"})
	require.NoError(t, err)
	assert.True(t, account.IsAdmin)

	_, err = f.accounts.Login(ctx, &auth.DiscordProfile{ID: "777", Username: "founder"})
	require.NoError(t, err)

	grants := testutil.AuditEntries(t, f.store, types.AuditAdminGrant)
	require.Len(t, grants, 1, "an existing admin is not promoted again")
	assert.Equal(t, account.ID, grants[0].ActorID)
	require.NotNil(t, grants[0].TargetID)
	assert.Equal(t, account.ID, *grants[0].TargetID)
	assert.Equal(t, "User founder granted admin via INITIAL_ADMIN_ID", grants[0].Details)

	other, err := f.accounts.Login(ctx, &auth.DiscordProfile{ID: "778", Username: "guest"})
	require.NoError(t, err)
	assert.False(t, other.IsAdmin)
}

func TestLogin_RefusesErasedIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.NewTestContext(t)

	account, err := f.accounts.Login(ctx, &auth.DiscordProfile{ID: "999", Username: "leaver"})
	require.NoError(t, err)
	require.NoError(t, f.accounts.DeleteMe(ctx, account.ID))

	_, err = f.accounts.Login(ctx, &auth.DiscordProfile{ID: "999", Username: "leaver"})
	requireCode(t, err, apperrors.ErrCodeIdentityDeleted)
}

// =============================================================================
// Profile
// =============================================================================

func TestMe(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.NewTestContext(t)

	a := testutil.CreateAccount(t, f.store, "member", false)
	testutil.AddMember(t, f.store, a.ID, "Earth", true)
	testutil.AddMember(t, f.store, a.ID, "Water", false)
	w := testutil.CreateWallet(t, f.store, a.ID, "0x"+strings.Repeat("12", 32))
	require.NoError(t, storage.NewMembershipRepository(f.store).UpsertTx(ctx, f.store.DB(), &types.TribeMembership{
		AccountID: a.ID, Tribe: "Water", WalletID: &w.ID,
	}))

	profile, err := f.accounts.Me(ctx, a.ID)
	require.NoError(t, err)

	assert.Equal(t, a.ExternalID, profile.DiscordID)
	assert.Equal(t, []string{"Earth", "Water"}, profile.Tribes)
	assert.Equal(t, []string{"Earth"}, profile.AdminTribes)
	assert.False(t, profile.IsSuperAdmin)
	require.Len(t, profile.Wallets, 1)
	assert.Equal(t, w.ID, profile.Wallets[0].ID)
	assert.Equal(t, []string{"Water"}, profile.Wallets[0].Tribes)

	super, err := f.accounts.Me(ctx, f.superAdmin.ID)
	require.NoError(t, err)
	assert.True(t, super.IsSuperAdmin)
	assert.Empty(t, super.Tribes)
	assert.NotNil(t, super.Wallets)

	_, err = f.accounts.Me(ctx, 31337)
	requireCode(t, err, apperrors.ErrCodeUnauthorized)
}

// =============================================================================
// Erasure
// =============================================================================

func TestDeleteMe_ErasesAndDenylists(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.NewTestContext(t)

	victim := testutil.CreateAccount(t, f.store, "victim", true)
	admin := testutil.CreateAccount(t, f.store, "admin", false)
	testutil.AddMember(t, f.store, victim.ID, "Earth", false)
	testutil.AddMember(t, f.store, admin.ID, "Earth", true)

	active := testutil.CreateWallet(t, f.store, victim.ID, "0x"+strings.Repeat("aa", 20))
	unlinked := testutil.CreateWallet(t, f.store, victim.ID, "0x"+strings.Repeat("bb", 20))
	require.NoError(t, f.wallets.UnlinkWallet(ctx, victim.ID, unlinked.ID))

	_, err := f.notes.Create(ctx, admin.ID, "Earth", victim.ExternalID, "about the victim")
	require.NoError(t, err)

	require.NoError(t, f.accounts.DeleteMe(ctx, victim.ID))

	stored, err := storage.NewAccountRepository(f.store).GetByID(ctx, victim.ID)
	require.NoError(t, err)
	require.NotNil(t, stored, "account row survives for audit references")
	assert.Equal(t, "Deleted User", stored.Username)
	assert.NotEqual(t, victim.ExternalID, stored.ExternalID)
	assert.False(t, stored.IsAdmin)

	wallets, err := storage.NewWalletRepository(f.store).ListByAccountTx(ctx, f.store.DB(), victim.ID)
	require.NoError(t, err)
	assert.Empty(t, wallets)

	memberships, err := storage.NewMembershipRepository(f.store).ListByAccount(ctx, victim.ID)
	require.NoError(t, err)
	assert.Empty(t, memberships)

	notes, err := storage.NewNoteRepository(f.store).ListForMember(ctx, victim.ID, "Earth")
	require.NoError(t, err)
	assert.Empty(t, notes)

	hashes := storage.NewIdentityHashRepository(f.store)
	for _, value := range []string{
		auth.HashIdentity(victim.ExternalID, testPepper),
		auth.HashWalletAddress(active.Address, testPepper),
		auth.HashWalletAddress(unlinked.Address, testPepper),
	} {
		ok, err := hashes.Exists(ctx, value)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	entries := testutil.AuditEntries(t, f.store, types.AuditDeleteUser)
	require.Len(t, entries, 1)
	assert.Equal(t, victim.ID, entries[0].ActorID)
	assert.Equal(t, "User deleted their own account", entries[0].Details)
}

func TestDeleteMe_AuditFailureKeepsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.NewTestContext(t)

	a := testutil.CreateAccount(t, f.store, "stayer", false)
	testutil.CreateWallet(t, f.store, a.ID, "0x"+strings.Repeat("cc", 20))
	testutil.FailAuditInserts(t, f.store)

	requireCode(t, f.accounts.DeleteMe(ctx, a.ID), apperrors.ErrCodeInternalError)

	stored, err := storage.NewAccountRepository(f.store).GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "stayer", stored.Username)

	ok, err := storage.NewIdentityHashRepository(f.store).Exists(ctx, auth.HashIdentity(a.ExternalID, testPepper))
	require.NoError(t, err)
	assert.False(t, ok)

	wallets, err := f.wallets.ListWallets(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, wallets, 1)
}
