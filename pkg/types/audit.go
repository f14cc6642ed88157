package types

import "time"

// AuditAction is the closed set of audited action kinds.
type AuditAction string

const (
	AuditLogin                  AuditAction = "LOGIN"
	AuditLinkWallet             AuditAction = "LINK_WALLET"
	AuditUnlinkWallet           AuditAction = "UNLINK_WALLET"
	AuditViewRoster             AuditAction = "VIEW_ROSTER"
	AuditViewMember             AuditAction = "VIEW_MEMBER"
	AuditAdminGrant             AuditAction = "ADMIN_GRANT"
	AuditAdminRevoke            AuditAction = "ADMIN_REVOKE"
	AuditTribeJoin              AuditAction = "TRIBE_JOIN"
	AuditTribeLeave             AuditAction = "TRIBE_LEAVE"
	AuditNoteCreate             AuditAction = "NOTE_CREATE"
	AuditNoteEdit               AuditAction = "NOTE_EDIT"
	AuditDeleteUser             AuditAction = "DELETE_USER"
	AuditSuperAdminUpdateUser   AuditAction = "SUPER_ADMIN_UPDATE_USER"
	AuditSuperAdminCreateTribe  AuditAction = "SUPER_ADMIN_CREATE_TRIBE"
	AuditSuperAdminUpdateTribe  AuditAction = "SUPER_ADMIN_UPDATE_TRIBE"
	AuditSuperAdminDeleteWallet AuditAction = "SUPER_ADMIN_DELETE_WALLET"
)

// AllAuditActions returns every valid audit action.
func AllAuditActions() []AuditAction {
	return []AuditAction{
		AuditLogin,
		AuditLinkWallet,
		AuditUnlinkWallet,
		AuditViewRoster,
		AuditViewMember,
		AuditAdminGrant,
		AuditAdminRevoke,
		AuditTribeJoin,
		AuditTribeLeave,
		AuditNoteCreate,
		AuditNoteEdit,
		AuditDeleteUser,
		AuditSuperAdminUpdateUser,
		AuditSuperAdminCreateTribe,
		AuditSuperAdminUpdateTribe,
		AuditSuperAdminDeleteWallet,
	}
}

// IsValidAuditAction checks if a string names a known audit action.
func IsValidAuditAction(s string) bool {
	for _, a := range AllAuditActions() {
		if string(a) == s {
			return true
		}
	}
	return false
}

// Privileged reports whether the action is an administrative mutation that
// operators are alerted about once it commits.
func (a AuditAction) Privileged() bool {
	switch a {
	case AuditAdminGrant, AuditAdminRevoke,
		AuditTribeJoin, AuditTribeLeave,
		AuditDeleteUser,
		AuditSuperAdminUpdateUser, AuditSuperAdminCreateTribe,
		AuditSuperAdminUpdateTribe, AuditSuperAdminDeleteWallet:
		return true
	default:
		return false
	}
}

// AuditLogEntry is an append-only record of an action.
type AuditLogEntry struct {
	ID        string      `json:"id"`
	Action    AuditAction `json:"action"`
	ActorID   int64       `json:"actorId,string"`
	TargetID  *int64      `json:"targetId,omitempty,string"`
	Details   string      `json:"details"`
	CreatedAt time.Time   `json:"createdAt"`
}
