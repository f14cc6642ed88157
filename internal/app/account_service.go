package app

import (
	"context"
	"fmt"
	"time"

	"github.com/tribegate/tribegate/internal/audit"
	"github.com/tribegate/tribegate/internal/auth"
	"github.com/tribegate/tribegate/internal/logger"
	"github.com/tribegate/tribegate/internal/storage"
	apperrors "github.com/tribegate/tribegate/pkg/errors"
	"github.com/tribegate/tribegate/pkg/types"
)

// WalletWithTribes is a binding plus the tribes whose membership references it.
type WalletWithTribes struct {
	*types.WalletBinding
	Tribes []string `json:"tribes"`
}

// Profile is what an account sees about itself.
type Profile struct {
	ID            int64               `json:"id,string"`
	DiscordID     string              `json:"discordId"`
	Username      string              `json:"username"`
	Discriminator string              `json:"discriminator"`
	Tribes        []string            `json:"tribes"`
	AdminTribes   []string            `json:"adminTribes"`
	IsAdmin       bool                `json:"isAdmin"`
	IsSuperAdmin  bool                `json:"isSuperAdmin"`
	LastLoginAt   *time.Time          `json:"lastLoginAt,omitempty"`
	Wallets       []*WalletWithTribes `json:"wallets"`
}

// AccountService handles login, self-service profile reads and erasure.
type AccountService struct {
	accountRepo    *storage.AccountRepository
	walletRepo     *storage.WalletRepository
	membershipRepo *storage.MembershipRepository
	noteRepo       *storage.NoteRepository
	identityRepo   *storage.IdentityHashRepository
	coord          *audit.Coordinator
	authz          *TribeAuthorizer
	store          *storage.Store

	initialAdminID string
	pepper         string
}

// NewAccountService creates a new account service. initialAdminID names the
// external id promoted to global admin on login, or "" for none.
func NewAccountService(
	store *storage.Store,
	coord *audit.Coordinator,
	authz *TribeAuthorizer,
	initialAdminID string,
	pepper string,
) *AccountService {
	return &AccountService{
		accountRepo:    storage.NewAccountRepository(store),
		walletRepo:     storage.NewWalletRepository(store),
		membershipRepo: storage.NewMembershipRepository(store),
		noteRepo:       storage.NewNoteRepository(store),
		identityRepo:   storage.NewIdentityHashRepository(store),
		coord:          coord,
		authz:          authz,
		store:          store,
		initialAdminID: initialAdminID,
		pepper:         pepper,
	}
}

// Login upserts the account for an identity-provider profile and audits it.
// Erased identities are refused with ErrIdentityDeleted.
func (s *AccountService) Login(ctx context.Context, profile *auth.DiscordProfile) (*types.Account, error) {
	denied, err := s.identityRepo.Exists(ctx, auth.HashIdentity(profile.ID, s.pepper))
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if denied {
		logger.Warn(ctx, "login refused for erased identity")
		return nil, apperrors.ErrIdentityDeleted
	}

	var account *types.Account
	_, err = s.coord.RunAudited(ctx, 0, types.AuditLogin, func(ctx context.Context, tx storage.DBTX, e *audit.Entry) error {
		now := s.store.Now()

		existing, err := s.accountRepo.GetByExternalIDTx(ctx, tx, profile.ID)
		if err != nil {
			return apperrors.Internal(err)
		}

		if existing == nil {
			account = &types.Account{
				ExternalID:    profile.ID,
				Username:      profile.Username,
				Discriminator: profile.Discriminator,
				LastLoginAt:   &now,
				CreatedAt:     now,
			}
			if err := s.accountRepo.CreateTx(ctx, tx, account); err != nil {
				return apperrors.Internal(err)
			}
		} else {
			if err := s.accountRepo.RecordLoginTx(ctx, tx, existing.ID, profile.Username, profile.Discriminator, now); err != nil {
				return apperrors.Internal(err)
			}
			existing.Username = profile.Username
			existing.Discriminator = profile.Discriminator
			existing.LastLoginAt = &now
			account = existing
		}

		e.ActorID = account.ID
		e.Details = fmt.Sprintf("User %s logged in via Discord", account.Username)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.initialAdminID != "" && profile.ID == s.initialAdminID && !account.IsAdmin {
		if err := s.promoteInitialAdmin(ctx, account); err != nil {
			return nil, err
		}
	}

	logger.Info(ctx, "account logged in", "account_id", account.ID)
	return account, nil
}

func (s *AccountService) promoteInitialAdmin(ctx context.Context, account *types.Account) error {
	_, err := s.coord.RunAudited(ctx, account.ID, types.AuditAdminGrant, func(ctx context.Context, tx storage.DBTX, e *audit.Entry) error {
		isAdmin := true
		if _, err := s.accountRepo.UpdateTx(ctx, tx, account.ID, nil, &isAdmin); err != nil {
			return apperrors.Internal(err)
		}
		e.Target(account.ID)
		e.Details = fmt.Sprintf("User %s granted admin via INITIAL_ADMIN_ID", account.Username)
		return nil
	})
	if err != nil {
		return err
	}
	account.IsAdmin = true
	return nil
}

// Me returns the caller's profile.
func (s *AccountService) Me(ctx context.Context, accountID int64) (*Profile, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if account == nil {
		return nil, apperrors.ErrUnauthorized
	}

	memberships, err := s.membershipRepo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	wallets, err := s.walletRepo.ListActiveByAccount(ctx, accountID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	profile := &Profile{
		ID:            account.ID,
		DiscordID:     account.ExternalID,
		Username:      account.Username,
		Discriminator: account.Discriminator,
		Tribes:        []string{},
		AdminTribes:   []string{},
		IsAdmin:       account.IsAdmin,
		IsSuperAdmin:  s.authz.IsSuperAdmin(account),
		LastLoginAt:   account.LastLoginAt,
		Wallets:       attachTribes(wallets, memberships),
	}
	for _, m := range memberships {
		profile.Tribes = append(profile.Tribes, m.Tribe)
	}
	profile.AdminTribes = append(profile.AdminTribes, adminEligibleTribes(account, memberships)...)

	return profile, nil
}

// DeleteMe erases the caller: identity hashes go on the denylist, wallets,
// memberships and notes are removed, and the account row is anonymized.
// Everything happens in one audited transaction.
func (s *AccountService) DeleteMe(ctx context.Context, accountID int64) error {
	_, err := s.coord.RunAudited(ctx, accountID, types.AuditDeleteUser, func(ctx context.Context, tx storage.DBTX, e *audit.Entry) error {
		account, err := s.accountRepo.GetByIDTx(ctx, tx, accountID)
		if err != nil {
			return apperrors.Internal(err)
		}
		if account == nil {
			return apperrors.ErrUnauthorized
		}

		if err := s.identityRepo.AddTx(ctx, tx, auth.HashIdentity(account.ExternalID, s.pepper), types.IdentityKindDiscord); err != nil {
			return apperrors.Internal(err)
		}

		wallets, err := s.walletRepo.ListByAccountTx(ctx, tx, accountID)
		if err != nil {
			return apperrors.Internal(err)
		}
		for _, w := range wallets {
			if err := s.identityRepo.AddTx(ctx, tx, auth.HashWalletAddress(w.Address, s.pepper), types.IdentityKindWallet); err != nil {
				return apperrors.Internal(err)
			}
		}

		if err := s.membershipRepo.DeleteByAccountTx(ctx, tx, accountID); err != nil {
			return apperrors.Internal(err)
		}
		if _, err := s.walletRepo.HardDeleteByAccountTx(ctx, tx, accountID); err != nil {
			return apperrors.Internal(err)
		}
		if _, err := s.noteRepo.DeleteByAccountTx(ctx, tx, accountID); err != nil {
			return apperrors.Internal(err)
		}
		if err := s.accountRepo.AnonymizeTx(ctx, tx, accountID); err != nil {
			return apperrors.Internal(err)
		}

		e.Details = "User deleted their own account"
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "account erased", "account_id", accountID)
	return nil
}

// attachTribes pairs each binding with the tribes that reference it.
func attachTribes(wallets []*types.WalletBinding, memberships []*types.TribeMembership) []*WalletWithTribes {
	out := make([]*WalletWithTribes, 0, len(wallets))
	for _, w := range wallets {
		ww := &WalletWithTribes{WalletBinding: w, Tribes: []string{}}
		for _, m := range memberships {
			if m.WalletID != nil && *m.WalletID == w.ID {
				ww.Tribes = append(ww.Tribes, m.Tribe)
			}
		}
		out = append(out, ww)
	}
	return out
}
