package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/tribegate/tribegate/internal/config"
	"github.com/tribegate/tribegate/internal/storage"
	apperrors "github.com/tribegate/tribegate/pkg/errors"
	"github.com/tribegate/tribegate/pkg/types"
)

// Resolver rejection reasons, rendered to clients as-is.
const (
	reasonNoTribes       = "not in any tribe"
	reasonNotMember      = "not a member of that tribe"
	reasonNotTribeAdmin  = "not an admin of this tribe"
	reasonNoAdminTribes  = "not an admin of any tribe"
	reasonAmbiguousTribe = "ambiguous - specify a tribe"
	reasonSuperAdminOnly = "super admin required"
)

// AdminContext is the outcome of resolving which tribe an admin action is for.
type AdminContext struct {
	Account *types.Account
	Tribe   string
	// MemberTribes lists every tribe the account belongs to.
	MemberTribes []string
}

// TribeAuthorizer answers "may this account act as an admin, and for which
// tribe". It reads only and holds no locks; callers run it per request.
type TribeAuthorizer struct {
	accounts    *storage.AccountRepository
	memberships *storage.MembershipRepository
	superAdmins config.IDSet
}

// NewTribeAuthorizer creates a resolver. superAdmins is keyed by external id.
func NewTribeAuthorizer(store *storage.Store, superAdmins config.IDSet) *TribeAuthorizer {
	if superAdmins == nil {
		superAdmins = config.NewIDSet()
	}
	return &TribeAuthorizer{
		accounts:    storage.NewAccountRepository(store),
		memberships: storage.NewMembershipRepository(store),
		superAdmins: superAdmins,
	}
}

// ResolveAdminContext determines the tribe an admin action applies to. With
// an explicit tribe the account must be a member and an admin there. Without
// one, the account must administer exactly one tribe. The legacy global admin
// flag counts as admin only in tribes the account is a member of.
func (a *TribeAuthorizer) ResolveAdminContext(ctx context.Context, accountID int64, explicitTribe string) (*AdminContext, error) {
	account, err := a.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to load account: %w", err))
	}
	if account == nil {
		return nil, apperrors.ErrUnauthorized
	}

	memberships, err := a.memberships.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to load memberships: %w", err))
	}
	if len(memberships) == 0 {
		return nil, apperrors.Forbidden(reasonNoTribes)
	}

	memberTribes := make([]string, 0, len(memberships))
	for _, m := range memberships {
		memberTribes = append(memberTribes, m.Tribe)
	}

	if tribe := strings.TrimSpace(explicitTribe); tribe != "" {
		var membership *types.TribeMembership
		for _, m := range memberships {
			if m.Tribe == tribe {
				membership = m
				break
			}
		}
		if membership == nil {
			return nil, apperrors.Forbidden(reasonNotMember)
		}
		if !account.IsAdmin && !membership.IsAdmin {
			return nil, apperrors.Forbidden(reasonNotTribeAdmin)
		}
		return &AdminContext{Account: account, Tribe: tribe, MemberTribes: memberTribes}, nil
	}

	eligible := adminEligibleTribes(account, memberships)
	switch len(eligible) {
	case 0:
		return nil, apperrors.Forbidden(reasonNoAdminTribes)
	case 1:
		return &AdminContext{Account: account, Tribe: eligible[0], MemberTribes: memberTribes}, nil
	default:
		return nil, apperrors.BadRequest(reasonAmbiguousTribe)
	}
}

// AdminTribes lists the tribes the account may administer.
func (a *TribeAuthorizer) AdminTribes(ctx context.Context, accountID int64) ([]string, error) {
	account, err := a.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to load account: %w", err))
	}
	if account == nil {
		return nil, apperrors.ErrUnauthorized
	}

	memberships, err := a.memberships.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to load memberships: %w", err))
	}
	return adminEligibleTribes(account, memberships), nil
}

// RequireSuperAdmin loads the account and checks it against the configured
// super admin set. Super admin is independent of any tribe admin flag.
func (a *TribeAuthorizer) RequireSuperAdmin(ctx context.Context, accountID int64) (*types.Account, error) {
	account, err := a.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to load account: %w", err))
	}
	if account == nil {
		return nil, apperrors.ErrUnauthorized
	}
	if !a.IsSuperAdmin(account) {
		return nil, apperrors.Forbidden(reasonSuperAdminOnly)
	}
	return account, nil
}

// IsSuperAdmin reports whether the account is in the super admin set.
func (a *TribeAuthorizer) IsSuperAdmin(account *types.Account) bool {
	return account != nil && a.superAdmins.Contains(account.ExternalID)
}

func adminEligibleTribes(account *types.Account, memberships []*types.TribeMembership) []string {
	var tribes []string
	for _, m := range memberships {
		if account.IsAdmin || m.IsAdmin {
			tribes = append(tribes, m.Tribe)
		}
	}
	return tribes
}
