package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tribegate/tribegate/internal/audit"
	"github.com/tribegate/tribegate/internal/logger"
	"github.com/tribegate/tribegate/internal/storage"
	"github.com/tribegate/tribegate/internal/validation"
	apperrors "github.com/tribegate/tribegate/pkg/errors"
	"github.com/tribegate/tribegate/pkg/types"
)

// User listing defaults.
const (
	DefaultUserPageSize = 50
	MaxUserPageSize     = 100
)

// UpdateUserRequest carries the fields a super admin may change. Nil means
// unchanged.
type UpdateUserRequest struct {
	Username *string
	IsAdmin  *bool
}

// AuditQuery is a super admin audit search.
type AuditQuery struct {
	ActorID  *int64
	TargetID *int64
	Action   string
	Limit    int
	Offset   int
}

// AuditPage is one page of audit search results.
type AuditPage struct {
	Entries []*types.AuditLogEntry `json:"entries"`
	Total   int64                  `json:"total"`
	Limit   int                    `json:"limit"`
	Offset  int                    `json:"offset"`
}

// AdminService handles super admin user and tribe management.
type AdminService struct {
	accountRepo    *storage.AccountRepository
	tribeRepo      *storage.TribeRepository
	membershipRepo *storage.MembershipRepository
	noteRepo       *storage.NoteRepository
	auditRepo      *storage.AuditLogRepository
	coord          *audit.Coordinator
	authz          *TribeAuthorizer
}

// NewAdminService creates a new admin service
func NewAdminService(store *storage.Store, coord *audit.Coordinator, authz *TribeAuthorizer) *AdminService {
	return &AdminService{
		accountRepo:    storage.NewAccountRepository(store),
		tribeRepo:      storage.NewTribeRepository(store),
		membershipRepo: storage.NewMembershipRepository(store),
		noteRepo:       storage.NewNoteRepository(store),
		auditRepo:      storage.NewAuditLogRepository(store),
		coord:          coord,
		authz:          authz,
	}
}

// ListUsers pages through every account.
func (s *AdminService) ListUsers(ctx context.Context, actorID int64, page, perPage int) ([]*types.Account, error) {
	if _, err := s.authz.RequireSuperAdmin(ctx, actorID); err != nil {
		return nil, err
	}

	p, err := validation.ValidatePage(page, perPage, DefaultUserPageSize, MaxUserPageSize)
	if err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	accounts, err := s.accountRepo.List(ctx, p.Limit, p.Offset)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if accounts == nil {
		accounts = []*types.Account{}
	}
	return accounts, nil
}

// UpdateUser changes an account's display name or global admin flag.
func (s *AdminService) UpdateUser(ctx context.Context, actorID, userID int64, req UpdateUserRequest) (*types.Account, error) {
	if _, err := s.authz.RequireSuperAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	if req.Username == nil && req.IsAdmin == nil {
		return nil, apperrors.Validation("nothing to update")
	}
	if req.Username != nil {
		username, err := validation.ValidateUsername(*req.Username)
		if err != nil {
			return nil, apperrors.Validation(err.Error())
		}
		req.Username = &username
	}

	var updated *types.Account
	_, err := s.coord.RunAudited(ctx, actorID, types.AuditSuperAdminUpdateUser, func(ctx context.Context, tx storage.DBTX, e *audit.Entry) error {
		before, err := s.accountRepo.GetByIDTx(ctx, tx, userID)
		if err != nil {
			return apperrors.Internal(err)
		}
		if before == nil {
			return apperrors.NotFound("User")
		}

		if _, err := s.accountRepo.UpdateTx(ctx, tx, userID, req.Username, req.IsAdmin); err != nil {
			return apperrors.Internal(err)
		}

		after := *before
		var changes []string
		if req.IsAdmin != nil {
			after.IsAdmin = *req.IsAdmin
			changes = append(changes, fmt.Sprintf("is_admin: %t->%t", before.IsAdmin, after.IsAdmin))
		}
		if req.Username != nil {
			after.Username = *req.Username
			changes = append(changes, fmt.Sprintf("username: %s->%s", before.Username, after.Username))
		}
		updated = &after

		e.Target(userID)
		e.Details = fmt.Sprintf("Updated User %d: %s", userID, strings.Join(changes, ", "))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListTribes returns every tribe for a super admin, and the tribes the
// caller administers otherwise.
func (s *AdminService) ListTribes(ctx context.Context, actorID int64) ([]string, error) {
	if _, err := s.authz.RequireSuperAdmin(ctx, actorID); err == nil {
		tribes, err := s.tribeRepo.List(ctx)
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		names := make([]string, 0, len(tribes))
		for _, t := range tribes {
			names = append(names, t.Name)
		}
		return names, nil
	} else if !apperrors.HasCode(err, apperrors.ErrCodeForbidden) {
		return nil, err
	}

	tribes, err := s.authz.AdminTribes(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if len(tribes) == 0 {
		return nil, apperrors.Forbidden(reasonNoAdminTribes)
	}
	return tribes, nil
}

// CreateTribe adds a tribe. A taken name is a conflict.
func (s *AdminService) CreateTribe(ctx context.Context, actorID int64, name string) (*types.Tribe, error) {
	if _, err := s.authz.RequireSuperAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	name, err := validation.ValidateTribeName(name)
	if err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	tribe := &types.Tribe{Name: name}
	_, err = s.coord.RunAudited(ctx, actorID, types.AuditSuperAdminCreateTribe, func(ctx context.Context, tx storage.DBTX, e *audit.Entry) error {
		if err := s.tribeRepo.CreateTx(ctx, tx, tribe); err != nil {
			if errors.Is(err, storage.ErrUniqueViolation) {
				return apperrors.Conflict("Tribe already exists")
			}
			return apperrors.Internal(err)
		}
		e.Details = fmt.Sprintf("Created Tribe '%s'", name)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tribe, nil
}

// RenameTribe renames a tribe everywhere it is referenced, atomically.
func (s *AdminService) RenameTribe(ctx context.Context, actorID int64, from, to string) error {
	if _, err := s.authz.RequireSuperAdmin(ctx, actorID); err != nil {
		return err
	}
	to, err := validation.ValidateTribeName(to)
	if err != nil {
		return apperrors.Validation(err.Error())
	}
	if to == from {
		return apperrors.Validation("new tribe name is unchanged")
	}

	_, err = s.coord.RunAudited(ctx, actorID, types.AuditSuperAdminUpdateTribe, func(ctx context.Context, tx storage.DBTX, e *audit.Entry) error {
		existing, err := s.tribeRepo.GetTx(ctx, tx, to)
		if err != nil {
			return apperrors.Internal(err)
		}
		if existing != nil {
			return apperrors.Conflict("Tribe already exists")
		}

		ok, err := s.tribeRepo.RenameTx(ctx, tx, from, to)
		if err != nil {
			if errors.Is(err, storage.ErrUniqueViolation) {
				return apperrors.Conflict("Tribe already exists")
			}
			return apperrors.Internal(err)
		}
		if !ok {
			return apperrors.NotFound("Tribe")
		}
		if _, err := s.membershipRepo.RenameTribeTx(ctx, tx, from, to); err != nil {
			return apperrors.Internal(err)
		}
		if _, err := s.noteRepo.RenameTribeTx(ctx, tx, from, to); err != nil {
			return apperrors.Internal(err)
		}

		e.Details = fmt.Sprintf("Renamed Tribe '%s' to '%s'", from, to)
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "tribe renamed", "from", from, "to", to)
	return nil
}

// AddMember puts an account in a tribe. Super admins may add to any tribe;
// tribe admins only to the tribe the resolver grants them.
func (s *AdminService) AddMember(ctx context.Context, actorID int64, tribe, explicitTribe string, userID int64, isAdmin bool) error {
	if err := s.requireTribeManager(ctx, actorID, tribe, explicitTribe); err != nil {
		return err
	}

	_, err := s.coord.RunAudited(ctx, actorID, types.AuditTribeJoin, func(ctx context.Context, tx storage.DBTX, e *audit.Entry) error {
		t, err := s.tribeRepo.GetTx(ctx, tx, tribe)
		if err != nil {
			return apperrors.Internal(err)
		}
		if t == nil {
			return apperrors.NotFound("Tribe")
		}
		user, err := s.accountRepo.GetByIDTx(ctx, tx, userID)
		if err != nil {
			return apperrors.Internal(err)
		}
		if user == nil {
			return apperrors.NotFound("User")
		}

		if err := s.membershipRepo.UpsertTx(ctx, tx, &types.TribeMembership{
			AccountID: userID,
			Tribe:     tribe,
			IsAdmin:   isAdmin,
			Source:    types.MembershipSourceManual,
		}); err != nil {
			return apperrors.Internal(err)
		}

		e.Target(userID)
		e.Details = fmt.Sprintf("Added User '%s' to Tribe '%s'", user.Username, tribe)
		return nil
	})
	return err
}

// RemoveMember takes an account out of a tribe. Same gate as AddMember.
func (s *AdminService) RemoveMember(ctx context.Context, actorID int64, tribe, explicitTribe string, userID int64) error {
	if err := s.requireTribeManager(ctx, actorID, tribe, explicitTribe); err != nil {
		return err
	}

	_, err := s.coord.RunAudited(ctx, actorID, types.AuditTribeLeave, func(ctx context.Context, tx storage.DBTX, e *audit.Entry) error {
		user, err := s.accountRepo.GetByIDTx(ctx, tx, userID)
		if err != nil {
			return apperrors.Internal(err)
		}
		if user == nil {
			return apperrors.NotFound("User")
		}

		ok, err := s.membershipRepo.DeleteTx(ctx, tx, userID, tribe)
		if err != nil {
			return apperrors.Internal(err)
		}
		if !ok {
			return apperrors.NotFound("Membership")
		}

		e.Target(userID)
		e.Details = fmt.Sprintf("Removed User '%s' from Tribe '%s'", user.Username, tribe)
		return nil
	})
	return err
}

// requireTribeManager admits super admins, and callers whose resolved admin
// tribe is the one being changed.
func (s *AdminService) requireTribeManager(ctx context.Context, actorID int64, tribe, explicitTribe string) error {
	_, err := s.authz.RequireSuperAdmin(ctx, actorID)
	if err == nil {
		return nil
	}
	if !apperrors.HasCode(err, apperrors.ErrCodeForbidden) {
		return err
	}

	if explicitTribe == "" {
		explicitTribe = tribe
	}
	ac, err := s.authz.ResolveAdminContext(ctx, actorID, explicitTribe)
	if err != nil {
		return err
	}
	if ac.Tribe != tribe {
		return apperrors.Forbidden(reasonNotTribeAdmin)
	}
	return nil
}

// QueryAudit searches the audit log.
func (s *AdminService) QueryAudit(ctx context.Context, actorID int64, q AuditQuery) (*AuditPage, error) {
	if _, err := s.authz.RequireSuperAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	if q.Action != "" && !types.IsValidAuditAction(q.Action) {
		return nil, apperrors.Validation(fmt.Sprintf("unknown audit action %q", q.Action))
	}
	if q.Limit < 0 || q.Offset < 0 {
		return nil, apperrors.Validation("limit and offset cannot be negative")
	}

	filter := storage.AuditFilter{
		ActorID:  q.ActorID,
		TargetID: q.TargetID,
		Action:   types.AuditAction(q.Action),
		Limit:    q.Limit,
		Offset:   q.Offset,
	}
	entries, err := s.auditRepo.Query(ctx, filter)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	total, err := s.auditRepo.Count(ctx, filter)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if entries == nil {
		entries = []*types.AuditLogEntry{}
	}

	limit := q.Limit
	if limit <= 0 || limit > storage.MaxAuditPageSize {
		limit = storage.MaxAuditPageSize
	}
	return &AuditPage{Entries: entries, Total: total, Limit: limit, Offset: q.Offset}, nil
}
