package app

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tribegate/tribegate/internal/challenge"
	"github.com/tribegate/tribegate/internal/sigverify"
	"github.com/tribegate/tribegate/internal/sigverify/sigtest"
	"github.com/tribegate/tribegate/internal/storage"
	"github.com/tribegate/tribegate/internal/testutil"
	apperrors "github.com/tribegate/tribegate/pkg/errors"
	"github.com/tribegate/tribegate/pkg/types"
)

// =============================================================================
// Link
// =============================================================================

func TestLinkWallet_AllSchemes(t *testing.T) {
	wallets := []struct {
		name   string
		wallet func(t *testing.T) sigtest.Wallet
	}{
		{"sui_ed25519", func(t *testing.T) sigtest.Wallet { return sigtest.NewSuiEd25519(t) }},
		{"sui_secp256k1", func(t *testing.T) sigtest.Wallet { return sigtest.NewSuiSecp256k1(t) }},
		{"sui_secp256r1", func(t *testing.T) sigtest.Wallet { return sigtest.NewSuiSecp256r1(t) }},
		{"ethereum", func(t *testing.T) sigtest.Wallet { return sigtest.NewEthereum(t) }},
	}

	for _, tt := range wallets {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := testutil.NewTestContext(t)
			owner := testutil.CreateAccount(t, f.store, "owner", false)
			w := tt.wallet(t)

			nonce, err := f.wallets.IssueLinkNonce(ctx, owner.ID, w.Address())
			require.NoError(t, err)

			binding, outcome, err := f.wallets.LinkWallet(ctx, owner.ID, w.Address(), w.Sign(t, nonce))
			require.NoError(t, err)
			assert.Equal(t, LinkOutcomeLinked, outcome)
			assert.Equal(t, owner.ID, binding.AccountID)
			assert.Equal(t, w.Address(), binding.Address)
			assert.True(t, binding.IsActive())

			entries := testutil.AuditEntries(t, f.store, types.AuditLinkWallet)
			require.Len(t, entries, 1)
			assert.Equal(t, owner.ID, entries[0].ActorID)
			assert.Equal(t, "Linked wallet "+w.Address(), entries[0].Details)
		})
	}
}

func TestLinkWallet_UppercaseAddressSharesNonce(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.NewTestContext(t)
	owner := testutil.CreateAccount(t, f.store, "owner", false)
	w := sigtest.NewEthereum(t)
	upper := "0x" + strings.ToUpper(w.Address()[2:])

	nonce, err := f.wallets.IssueLinkNonce(ctx, owner.ID, upper)
	require.NoError(t, err)

	binding, _, err := f.wallets.LinkWallet(ctx, owner.ID, w.Address(), w.Sign(t, nonce))
	require.NoError(t, err)
	assert.Equal(t, w.Address(), binding.Address, "stored address must be lower-case")
}

func TestIssueLinkNonce_RejectsMalformedAddress(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.NewTestContext(t)

	for _, addr := range []string{"", "0x1234", "not-an-address", "0x" + strings.Repeat("z", 64)} {
		_, err := f.wallets.IssueLinkNonce(ctx, 1, addr)
		requireCode(t, err, apperrors.ErrCodeValidation)
	}
	assert.Equal(t, 0, f.nonces.Len())
}

func TestLinkWallet_NonceFailures(t *testing.T) {
	t.Run("never_issued", func(t *testing.T) {
		f := newFixture(t)
		ctx := testutil.NewTestContext(t)
		owner := testutil.CreateAccount(t, f.store, "owner", false)
		w := sigtest.NewSuiEd25519(t)

		_, _, err := f.wallets.LinkWallet(ctx, owner.ID, w.Address(), w.Sign(t, "anything"))
		requireCode(t, err, apperrors.ErrCodeInvalidNonce)
	})

	t.Run("expired", func(t *testing.T) {
		f := newFixture(t)
		ctx := testutil.NewTestContext(t)
		owner := testutil.CreateAccount(t, f.store, "owner", false)

		now := time.Now()
		var mu sync.Mutex
		clock := func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}
		nonces := challenge.NewMemoryCache(5*time.Minute, challenge.WithClock(clock))
		svc := NewWalletService(f.store, nonces, sigverify.New(), f.coord, f.authz)
		w := sigtest.NewSuiEd25519(t)

		nonce, err := svc.IssueLinkNonce(ctx, owner.ID, w.Address())
		require.NoError(t, err)

		mu.Lock()
		now = now.Add(5*time.Minute + time.Second)
		mu.Unlock()

		_, _, err = svc.LinkWallet(ctx, owner.ID, w.Address(), w.Sign(t, nonce))
		requireCode(t, err, apperrors.ErrCodeInvalidNonce)
		assert.Empty(t, testutil.AuditEntries(t, f.store, types.AuditLinkWallet))
	})

	t.Run("replaced_by_newer_nonce", func(t *testing.T) {
		f := newFixture(t)
		ctx := testutil.NewTestContext(t)
		owner := testutil.CreateAccount(t, f.store, "owner", false)
		w := sigtest.NewSuiEd25519(t)

		first, err := f.wallets.IssueLinkNonce(ctx, owner.ID, w.Address())
		require.NoError(t, err)
		_, err = f.wallets.IssueLinkNonce(ctx, owner.ID, w.Address())
		require.NoError(t, err)

		_, _, err = f.wallets.LinkWallet(ctx, owner.ID, w.Address(), w.Sign(t, first))
		requireCode(t, err, apperrors.ErrCodeInvalidSignature)
	})
}

func TestLinkWallet_BadSignatureSpendsNonce(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.NewTestContext(t)
	owner := testutil.CreateAccount(t, f.store, "owner", false)
	w := sigtest.NewSuiEd25519(t)
	other := sigtest.NewSuiEd25519(t)

	nonce, err := f.wallets.IssueLinkNonce(ctx, owner.ID, w.Address())
	require.NoError(t, err)

	_, _, err = f.wallets.LinkWallet(ctx, owner.ID, w.Address(), other.Sign(t, nonce))
	requireCode(t, err, apperrors.ErrCodeInvalidSignature)

	// The correct signature no longer helps: the nonce is gone.
	_, _, err = f.wallets.LinkWallet(ctx, owner.ID, w.Address(), w.Sign(t, nonce))
	requireCode(t, err, apperrors.ErrCodeInvalidNonce)

	_, _, err = f.wallets.LinkWallet(ctx, owner.ID, w.Address(), "%%%not-base64")
	requireCode(t, err, apperrors.ErrCodeInvalidNonce)
}

func TestLinkWallet_AlreadyLinked(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.NewTestContext(t)
	alice := testutil.CreateAccount(t, f.store, "alice", false)
	bob := testutil.CreateAccount(t, f.store, "bob", false)
	w := sigtest.NewEthereum(t)

	link := func(accountID int64) error {
		nonce, err := f.wallets.IssueLinkNonce(ctx, accountID, w.Address())
		require.NoError(t, err)
		_, _, err = f.wallets.LinkWallet(ctx, accountID, w.Address(), w.Sign(t, nonce))
		return err
	}

	require.NoError(t, link(alice.ID))

	for _, accountID := range []int64{bob.ID, alice.ID} {
		err := link(accountID)
		requireCode(t, err, apperrors.ErrCodeWalletAlreadyLinked)
		appErr, _ := apperrors.IsAppError(err)
		assert.Equal(t, "Wallet already linked", appErr.Message)
	}

	assert.Len(t, testutil.AuditEntries(t, f.store, types.AuditLinkWallet), 1, "rejected links leave no audit row")
}

// =============================================================================
// Relink and unlink
// =============================================================================

func TestLinkWallet_RelinkAfterUnlink(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.NewTestContext(t)
	alice := testutil.CreateAccount(t, f.store, "alice", false)
	bob := testutil.CreateAccount(t, f.store, "bob", false)
	w := sigtest.NewSuiSecp256k1(t)

	nonce, err := f.wallets.IssueLinkNonce(ctx, alice.ID, w.Address())
	require.NoError(t, err)
	original, _, err := f.wallets.LinkWallet(ctx, alice.ID, w.Address(), w.Sign(t, nonce))
	require.NoError(t, err)

	require.NoError(t, f.wallets.UnlinkWallet(ctx, alice.ID, original.ID))

	nonce, err = f.wallets.IssueLinkNonce(ctx, bob.ID, w.Address())
	require.NoError(t, err)
	relinked, outcome, err := f.wallets.LinkWallet(ctx, bob.ID, w.Address(), w.Sign(t, nonce))
	require.NoError(t, err)

	assert.Equal(t, LinkOutcomeRelinked, outcome)
	assert.Equal(t, original.ID, relinked.ID, "relink reuses the soft-deleted binding")
	assert.Equal(t, bob.ID, relinked.AccountID)
	assert.Nil(t, relinked.DeletedAt)

	stored, err := storage.NewWalletRepository(f.store).GetByID(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, stored.AccountID)
	assert.True(t, stored.IsActive())

	entries := testutil.AuditEntries(t, f.store, types.AuditLinkWallet)
	require.Len(t, entries, 2)
	assert.Equal(t, "Re-linked wallet "+w.Address(), entries[0].Details)
	assert.Equal(t, bob.ID, entries[0].ActorID)

	aliceWallets, err := f.wallets.ListWallets(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, aliceWallets)
}

func TestUnlinkWallet_ClearsMembershipReference(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.NewTestContext(t)
	owner := testutil.CreateAccount(t, f.store, "owner", false)
	binding := testutil.CreateWallet(t, f.store, owner.ID, "0x"+strings.Repeat("ab", 32))
	testutil.CreateTribe(t, f.store, "Earth")

	memberships := storage.NewMembershipRepository(f.store)
	require.NoError(t, memberships.UpsertTx(ctx, f.store.DB(), &types.TribeMembership{
		AccountID: owner.ID,
		Tribe:     "Earth",
		WalletID:  &binding.ID,
	}))

	require.NoError(t, f.wallets.UnlinkWallet(ctx, owner.ID, binding.ID))

	n, err := memberships.CountByWalletRef(ctx, binding.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	m, err := memberships.GetTx(ctx, f.store.DB(), owner.ID, "Earth")
	require.NoError(t, err)
	require.NotNil(t, m, "membership itself persists")
	assert.Nil(t, m.WalletID)

	entries := testutil.AuditEntries(t, f.store, types.AuditUnlinkWallet)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Details, binding.Address)
}

func TestUnlinkWallet_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.NewTestContext(t)
	owner := testutil.CreateAccount(t, f.store, "owner", false)
	stranger := testutil.CreateAccount(t, f.store, "stranger", false)
	binding := testutil.CreateWallet(t, f.store, owner.ID, "0x"+strings.Repeat("cd", 20))

	requireCode(t, f.wallets.UnlinkWallet(ctx, stranger.ID, binding.ID), apperrors.ErrCodeNotFound)
	requireCode(t, f.wallets.UnlinkWallet(ctx, owner.ID, "missing"), apperrors.ErrCodeNotFound)

	require.NoError(t, f.wallets.UnlinkWallet(ctx, owner.ID, binding.ID))
	requireCode(t, f.wallets.UnlinkWallet(ctx, owner.ID, binding.ID), apperrors.ErrCodeNotFound)
}

func TestForceDeleteWallet(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.NewTestContext(t)
	owner := testutil.CreateAccount(t, f.store, "owner", false)
	tribeAdmin := testutil.CreateAccount(t, f.store, "tribe-admin", true)
	binding := testutil.CreateWallet(t, f.store, owner.ID, "0x"+strings.Repeat("ef", 20))

	err := f.wallets.ForceDeleteWallet(ctx, tribeAdmin.ID, binding.ID)
	requireForbidden(t, err, "super admin required")

	require.NoError(t, f.wallets.ForceDeleteWallet(ctx, f.superAdmin.ID, binding.ID))
	requireCode(t, f.wallets.ForceDeleteWallet(ctx, f.superAdmin.ID, binding.ID), apperrors.ErrCodeNotFound)

	entries := testutil.AuditEntries(t, f.store, types.AuditSuperAdminDeleteWallet)
	require.Len(t, entries, 1)
	assert.Equal(t, f.superAdmin.ID, entries[0].ActorID)
	require.NotNil(t, entries[0].TargetID)
	assert.Equal(t, owner.ID, *entries[0].TargetID)
}

// =============================================================================
// Concurrency
// =============================================================================

func TestRecordBinding_ConcurrentLinksHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.NewTestContext(t)
	address := "0x" + strings.Repeat("7e", 32)

	const racers = 8
	accounts := make([]*types.Account, racers)
	for i := range accounts {
		accounts[i] = testutil.CreateAccount(t, f.store, "racer", false)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		losers  int
		others  []error
	)
	for _, a := range accounts {
		wg.Add(1)
		go func(accountID int64) {
			defer wg.Done()
			_, _, err := f.wallets.recordBinding(ctx, accountID, address)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case apperrors.HasCode(err, apperrors.ErrCodeWalletAlreadyLinked):
				losers++
			default:
				others = append(others, err)
			}
		}(a.ID)
	}
	wg.Wait()

	assert.Empty(t, others)
	assert.Equal(t, 1, winners)
	assert.Equal(t, racers-1, losers)

	n, err := storage.NewWalletRepository(f.store).CountActiveByAddress(ctx, address)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, testutil.AuditEntries(t, f.store, types.AuditLinkWallet), 1)
}

func TestBindingError(t *testing.T) {
	assert.True(t, apperrors.HasCode(bindingError(storage.ErrUniqueViolation), apperrors.ErrCodeWalletAlreadyLinked))
	assert.True(t, apperrors.HasCode(bindingError(assert.AnError), apperrors.ErrCodeInternalError))
}

func TestLinkWallet_AuditFailureRollsBackBinding(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.NewTestContext(t)
	owner := testutil.CreateAccount(t, f.store, "owner", false)
	address := "0x" + strings.Repeat("5a", 32)
	testutil.FailAuditInserts(t, f.store)

	_, _, err := f.wallets.recordBinding(ctx, owner.ID, address)
	requireCode(t, err, apperrors.ErrCodeInternalError)

	n, err := storage.NewWalletRepository(f.store).CountActiveByAddress(ctx, address)
	require.NoError(t, err)
	assert.Zero(t, n)
}
