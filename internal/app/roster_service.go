package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/tribegate/tribegate/internal/audit"
	"github.com/tribegate/tribegate/internal/logger"
	"github.com/tribegate/tribegate/internal/storage"
	"github.com/tribegate/tribegate/internal/validation"
	apperrors "github.com/tribegate/tribegate/pkg/errors"
	"github.com/tribegate/tribegate/pkg/types"
)

// Member audit paging defaults.
const (
	DefaultAuditPageSize = 10
	MaxAuditPageSize     = 100
)

// RosterRequest selects and orders a roster.
type RosterRequest struct {
	Tribe  string
	Sort   string
	Order  string
	Search string
}

// Roster is one tribe's member list.
type Roster struct {
	Tribe   string                  `json:"tribe"`
	Members []*storage.RosterMember `json:"members"`
}

// MemberDetail is everything an admin sees about one member.
type MemberDetail struct {
	Account    *types.Account                 `json:"account"`
	Tribe      string                         `json:"tribe"`
	Tribes     []string                       `json:"tribes"`
	Wallets    []*WalletWithTribes            `json:"wallets"`
	Audits     []*storage.AuditEntryWithActor `json:"audits"`
	AuditPage  int                            `json:"auditPage"`
	AuditTotal int64                          `json:"auditTotal"`
	TotalPages int64                          `json:"totalPages"`
	PerPage    int                            `json:"perPage"`
}

// RosterService serves tribe-scoped admin views and tribe admin grants.
type RosterService struct {
	accountRepo    *storage.AccountRepository
	walletRepo     *storage.WalletRepository
	membershipRepo *storage.MembershipRepository
	rosterRepo     *storage.RosterRepository
	auditRepo      *storage.AuditLogRepository
	coord          *audit.Coordinator
	authz          *TribeAuthorizer
}

// NewRosterService creates a new roster service
func NewRosterService(store *storage.Store, coord *audit.Coordinator, authz *TribeAuthorizer) *RosterService {
	return &RosterService{
		accountRepo:    storage.NewAccountRepository(store),
		walletRepo:     storage.NewWalletRepository(store),
		membershipRepo: storage.NewMembershipRepository(store),
		rosterRepo:     storage.NewRosterRepository(store),
		auditRepo:      storage.NewAuditLogRepository(store),
		coord:          coord,
		authz:          authz,
	}
}

// List returns the roster of the caller's resolved tribe. A caller in no
// tribe at all gets an empty roster rather than an error.
func (s *RosterService) List(ctx context.Context, actorID int64, req RosterRequest) (*Roster, error) {
	sort, ok := storage.ParseRosterSort(req.Sort)
	if !ok {
		return nil, apperrors.Validation(fmt.Sprintf("invalid sort %q", req.Sort))
	}
	order, ok := storage.ParseSortOrder(req.Order)
	if !ok {
		return nil, apperrors.Validation(fmt.Sprintf("invalid order %q", req.Order))
	}

	ac, err := s.authz.ResolveAdminContext(ctx, actorID, req.Tribe)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Code == apperrors.ErrCodeForbidden && appErr.Message == reasonNoTribes {
			return &Roster{Members: []*storage.RosterMember{}}, nil
		}
		return nil, err
	}

	members, err := s.rosterRepo.List(ctx, storage.RosterQuery{
		Tribe:  ac.Tribe,
		Sort:   sort,
		Order:  order,
		Search: req.Search,
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if members == nil {
		members = []*storage.RosterMember{}
	}

	s.coord.Record(ctx, actorID, types.AuditViewRoster, nil, fmt.Sprintf("Viewed roster for tribe %s", ac.Tribe))
	return &Roster{Tribe: ac.Tribe, Members: members}, nil
}

// Member returns one member of the caller's resolved tribe together with a
// page of their audit history.
func (s *RosterService) Member(ctx context.Context, actorID int64, tribe, externalID string, auditPage, auditPerPage int) (*MemberDetail, error) {
	ac, err := s.authz.ResolveAdminContext(ctx, actorID, tribe)
	if err != nil {
		return nil, err
	}

	target, err := s.accountRepo.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if target == nil {
		return nil, apperrors.NotFound("Member")
	}

	memberships, err := s.membershipRepo.ListByAccount(ctx, target.ID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	tribes := make([]string, 0, len(memberships))
	inTribe := false
	for _, m := range memberships {
		tribes = append(tribes, m.Tribe)
		if m.Tribe == ac.Tribe {
			inTribe = true
		}
	}
	if !inTribe {
		return nil, apperrors.Forbidden("Member is not in your tribe")
	}

	wallets, err := s.walletRepo.ListActiveByAccount(ctx, target.ID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	page, err := validation.ValidatePage(auditPage, auditPerPage, DefaultAuditPageSize, MaxAuditPageSize)
	if err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	audits, err := s.auditRepo.ListForMember(ctx, target.ID, page.Limit, page.Offset)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if audits == nil {
		audits = []*storage.AuditEntryWithActor{}
	}
	total, err := s.auditRepo.CountForMember(ctx, target.ID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	if target.ID != actorID {
		s.coord.Record(ctx, actorID, types.AuditViewMember, &target.ID,
			fmt.Sprintf("Viewed member %s (%s)", target.Username, target.ExternalID))
	}

	return &MemberDetail{
		Account:    target,
		Tribe:      ac.Tribe,
		Tribes:     tribes,
		Wallets:    attachTribes(wallets, memberships),
		Audits:     audits,
		AuditPage:  page.Offset/page.Limit + 1,
		AuditTotal: total,
		TotalPages: (total + int64(page.Limit) - 1) / int64(page.Limit),
		PerPage:    page.Limit,
	}, nil
}

// GrantAdmin makes the member an admin of the caller's resolved tribe. A
// walletID, when given, must name an active binding the member owns; it is
// kept as the membership's weak wallet reference.
func (s *RosterService) GrantAdmin(ctx context.Context, actorID int64, tribe, externalID string, walletID *string) error {
	ac, err := s.authz.ResolveAdminContext(ctx, actorID, tribe)
	if err != nil {
		return err
	}

	target, err := s.accountRepo.GetByExternalID(ctx, externalID)
	if err != nil {
		return apperrors.Internal(err)
	}
	if target == nil {
		return apperrors.NotFound("User")
	}

	_, err = s.coord.RunAudited(ctx, actorID, types.AuditAdminGrant, func(ctx context.Context, tx storage.DBTX, e *audit.Entry) error {
		via := ""
		if walletID != nil && *walletID != "" {
			w, err := s.walletRepo.GetByIDTx(ctx, tx, *walletID)
			if err != nil {
				return apperrors.Internal(err)
			}
			if w == nil || !w.IsActive() || w.AccountID != target.ID {
				return apperrors.NotFound("Wallet")
			}
			via = fmt.Sprintf(" via wallet %s", w.Address)
		} else {
			walletID = nil
		}

		if err := s.membershipRepo.UpsertTx(ctx, tx, &types.TribeMembership{
			AccountID: target.ID,
			Tribe:     ac.Tribe,
			IsAdmin:   true,
			WalletID:  walletID,
			Source:    types.MembershipSourceManual,
		}); err != nil {
			return apperrors.Internal(err)
		}

		e.Target(target.ID)
		e.Details = fmt.Sprintf("Granted admin to %s in tribe %s%s", target.Username, ac.Tribe, via)
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "tribe admin granted", "tribe", ac.Tribe, "target_id", target.ID)
	return nil
}

// RevokeAdmin clears the member's admin flag in the caller's resolved tribe.
// The membership itself stays.
func (s *RosterService) RevokeAdmin(ctx context.Context, actorID int64, tribe, externalID string) error {
	ac, err := s.authz.ResolveAdminContext(ctx, actorID, tribe)
	if err != nil {
		return err
	}

	target, err := s.accountRepo.GetByExternalID(ctx, externalID)
	if err != nil {
		return apperrors.Internal(err)
	}
	if target == nil {
		return apperrors.NotFound("User")
	}

	_, err = s.coord.RunAudited(ctx, actorID, types.AuditAdminRevoke, func(ctx context.Context, tx storage.DBTX, e *audit.Entry) error {
		ok, err := s.membershipRepo.SetAdminTx(ctx, tx, target.ID, ac.Tribe, false)
		if err != nil {
			return apperrors.Internal(err)
		}
		if !ok {
			return apperrors.NotFound("Membership")
		}
		e.Target(target.ID)
		e.Details = fmt.Sprintf("Revoked admin from %s in tribe %s", target.Username, ac.Tribe)
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "tribe admin revoked", "tribe", ac.Tribe, "target_id", target.ID)
	return nil
}
