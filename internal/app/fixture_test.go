package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tribegate/tribegate/internal/audit"
	"github.com/tribegate/tribegate/internal/challenge"
	"github.com/tribegate/tribegate/internal/config"
	"github.com/tribegate/tribegate/internal/sigverify"
	"github.com/tribegate/tribegate/internal/storage"
	"github.com/tribegate/tribegate/internal/testutil"
	apperrors "github.com/tribegate/tribegate/pkg/errors"
	"github.com/tribegate/tribegate/pkg/types"
)

const testPepper = "test-pepper"

type fixture struct {
	store      *storage.Store
	coord      *audit.Coordinator
	authz      *TribeAuthorizer
	nonces     *challenge.MemoryCache
	wallets    *WalletService
	accounts   *AccountService
	roster     *RosterService
	notes      *NoteService
	admin      *AdminService
	superAdmin *types.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithInitialAdmin(t, "")
}

func newFixtureWithInitialAdmin(t *testing.T, initialAdminID string) *fixture {
	t.Helper()

	store := testutil.NewStore(t)
	superAdmin := testutil.CreateAccount(t, store, "overseer", false)
	authz := NewTribeAuthorizer(store, config.NewIDSet(superAdmin.ExternalID))
	coord := audit.NewCoordinator(store, nil)
	nonces := challenge.NewMemoryCache(5 * time.Minute)

	return &fixture{
		store:      store,
		coord:      coord,
		authz:      authz,
		nonces:     nonces,
		wallets:    NewWalletService(store, nonces, sigverify.New(), coord, authz),
		accounts:   NewAccountService(store, coord, authz, initialAdminID, testPepper),
		roster:     NewRosterService(store, coord, authz),
		notes:      NewNoteService(store, coord, authz),
		admin:      NewAdminService(store, coord, authz),
		superAdmin: superAdmin,
	}
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	if !assert.Error(t, err) {
		t.FailNow()
	}
	if !assert.True(t, apperrors.HasCode(err, code), "expected code %s, got %v", code, err) {
		t.FailNow()
	}
}

func requireForbidden(t *testing.T, err error, reason string) {
	t.Helper()
	requireCode(t, err, apperrors.ErrCodeForbidden)
	appErr, _ := apperrors.IsAppError(err)
	assert.Equal(t, reason, appErr.Message)
}
