package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllAuditActions(t *testing.T) {
	actions := AllAuditActions()

	assert.Len(t, actions, 16)
	assert.Contains(t, actions, AuditLinkWallet)
	assert.Contains(t, actions, AuditSuperAdminDeleteWallet)
}

func TestIsValidAuditAction(t *testing.T) {
	tests := []struct {
		action string
		valid  bool
	}{
		{action: "LINK_WALLET", valid: true},
		{action: "ADMIN_GRANT", valid: true},
		{action: "SUPER_ADMIN_UPDATE_TRIBE", valid: true},
		{action: "link_wallet", valid: false},
		{action: "MUMBLE_LOGIN", valid: false},
		{action: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidAuditAction(tt.action))
		})
	}
}

func TestAuditAction_Privileged(t *testing.T) {
	assert.True(t, AuditAdminGrant.Privileged())
	assert.True(t, AuditSuperAdminDeleteWallet.Privileged())
	assert.True(t, AuditDeleteUser.Privileged())
	assert.False(t, AuditLinkWallet.Privileged())
	assert.False(t, AuditLogin.Privileged())
	assert.False(t, AuditViewRoster.Privileged())
}

func TestWalletBinding_State(t *testing.T) {
	w := &WalletBinding{ID: "b1", Address: "0xabc"}
	assert.Equal(t, BindingActive, w.State())
	assert.True(t, w.IsActive())

	now := time.Now()
	w.DeletedAt = &now
	assert.Equal(t, BindingSoftDeleted, w.State())
	assert.False(t, w.IsActive())
}
