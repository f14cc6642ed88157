package types

import "time"

// Account is an identity-provider-linked user. Accounts are anonymized in
// place on erasure and never row-deleted, so audit references stay valid.
type Account struct {
	ID            int64      `json:"id,string"`
	ExternalID    string     `json:"discordId"`
	Username      string     `json:"username"`
	Discriminator string     `json:"discriminator"`
	IsAdmin       bool       `json:"isAdmin"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// BindingState is the lifecycle state of a wallet binding.
type BindingState string

const (
	BindingActive      BindingState = "ACTIVE"
	BindingSoftDeleted BindingState = "SOFT_DELETED"
)

// WalletBinding associates one normalized address with one account at a time.
type WalletBinding struct {
	ID         string     `json:"id"`
	AccountID  int64      `json:"userId,string"`
	Address    string     `json:"address"`
	VerifiedAt time.Time  `json:"verifiedAt"`
	DeletedAt  *time.Time `json:"deletedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// State derives the lifecycle state from the soft-delete marker.
func (w *WalletBinding) State() BindingState {
	if w.DeletedAt != nil {
		return BindingSoftDeleted
	}
	return BindingActive
}

// IsActive reports whether the binding is usable by its owner.
func (w *WalletBinding) IsActive() bool {
	return w.State() == BindingActive
}

// MembershipSource records how a membership came to exist.
type MembershipSource string

const (
	MembershipSourceSystem MembershipSource = "SYSTEM"
	MembershipSourceManual MembershipSource = "MANUAL"
)

// TribeMembership joins an account to a named tribe. WalletID is a weak
// reference: it is cleared when the binding is soft-deleted.
type TribeMembership struct {
	AccountID int64            `json:"userId,string"`
	Tribe     string           `json:"tribe"`
	IsAdmin   bool             `json:"isAdmin"`
	WalletID  *string          `json:"walletId,omitempty"`
	Source    MembershipSource `json:"source"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Tribe is a named group.
type Tribe struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// MaxTribeNameLength bounds tribe names.
const MaxTribeNameLength = 100

// Note is free text an admin keeps about a member within one tribe.
type Note struct {
	ID              string    `json:"id"`
	TargetAccountID int64     `json:"targetUserId,string"`
	AuthorID        int64     `json:"authorId,string"`
	Tribe           string    `json:"tribe"`
	Content         string    `json:"content"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// NoteWithAuthor is a note joined with its author's display name.
type NoteWithAuthor struct {
	Note
	AuthorUsername      string `json:"authorUsername"`
	AuthorDiscriminator string `json:"authorDiscriminator"`
}

// MaxNoteLength bounds note content.
const MaxNoteLength = 10_000

// IdentityKind classifies an erased identity hash.
type IdentityKind string

const (
	IdentityKindDiscord IdentityKind = "DISCORD"
	IdentityKindWallet  IdentityKind = "WALLET"
)
