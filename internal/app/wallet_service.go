package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tribegate/tribegate/internal/audit"
	"github.com/tribegate/tribegate/internal/challenge"
	"github.com/tribegate/tribegate/internal/logger"
	"github.com/tribegate/tribegate/internal/sigverify"
	"github.com/tribegate/tribegate/internal/storage"
	"github.com/tribegate/tribegate/internal/validation"
	apperrors "github.com/tribegate/tribegate/pkg/errors"
	"github.com/tribegate/tribegate/pkg/types"
)

// LinkOutcome tells a caller whether a link created a binding or revived one.
type LinkOutcome string

const (
	LinkOutcomeLinked   LinkOutcome = "linked"
	LinkOutcomeRelinked LinkOutcome = "relinked"
)

// WalletService handles wallet linking: challenge issue, proof of control,
// and the binding lifecycle.
type WalletService struct {
	walletRepo     *storage.WalletRepository
	membershipRepo *storage.MembershipRepository
	nonces         challenge.Cache
	verifier       sigverify.Verifier
	coord          *audit.Coordinator
	authz          *TribeAuthorizer
	store          *storage.Store
}

// NewWalletService creates a new wallet service
func NewWalletService(
	store *storage.Store,
	nonces challenge.Cache,
	verifier sigverify.Verifier,
	coord *audit.Coordinator,
	authz *TribeAuthorizer,
) *WalletService {
	return &WalletService{
		walletRepo:     storage.NewWalletRepository(store),
		membershipRepo: storage.NewMembershipRepository(store),
		nonces:         nonces,
		verifier:       verifier,
		coord:          coord,
		authz:          authz,
		store:          store,
	}
}

// IssueLinkNonce issues a challenge for the address. A newer nonce replaces
// any outstanding one for the same address.
func (s *WalletService) IssueLinkNonce(ctx context.Context, accountID int64, address string) (string, error) {
	normalized, err := validation.ValidateWalletAddress(address)
	if err != nil {
		return "", apperrors.Validation(err.Error())
	}

	nonce, err := s.nonces.Issue(ctx, challenge.NormalizeKey(normalized))
	if err != nil {
		return "", apperrors.Internal(fmt.Errorf("failed to issue nonce: %w", err))
	}

	logger.Debug(ctx, "issued link nonce", "account_id", accountID, "address", normalized)
	return nonce, nil
}

// LinkWallet consumes the address's nonce, verifies that signature signs it
// with the address's key, then binds the address to the account. The nonce
// is spent whatever the outcome.
func (s *WalletService) LinkWallet(ctx context.Context, accountID int64, address, signature string) (*types.WalletBinding, LinkOutcome, error) {
	key := challenge.NormalizeKey(address)

	nonce, err := s.nonces.Consume(ctx, key)
	if err != nil {
		if errors.Is(err, challenge.ErrNotFound) {
			return nil, "", apperrors.ErrNonceInvalid
		}
		return nil, "", apperrors.Internal(fmt.Errorf("failed to consume nonce: %w", err))
	}

	normalized, _, err := sigverify.NormalizeAddress(address)
	if err != nil {
		return nil, "", apperrors.Wrap(err, apperrors.ErrSignatureInvalid)
	}

	if err := s.verifier.Verify(normalized, nonce, signature); err != nil {
		logger.Info(ctx, "wallet signature rejected", "account_id", accountID, "address", normalized, "error", err)
		return nil, "", apperrors.Wrap(err, apperrors.ErrSignatureInvalid)
	}

	return s.recordBinding(ctx, accountID, normalized)
}

// recordBinding writes the binding for an already verified address.
func (s *WalletService) recordBinding(ctx context.Context, accountID int64, address string) (*types.WalletBinding, LinkOutcome, error) {
	var (
		binding *types.WalletBinding
		outcome LinkOutcome
	)

	_, err := s.coord.RunAudited(ctx, accountID, types.AuditLinkWallet, func(ctx context.Context, tx storage.DBTX, e *audit.Entry) error {
		existing, err := s.walletRepo.FindByAddressTx(ctx, tx, address)
		if err != nil {
			return apperrors.Internal(err)
		}

		now := s.store.Now()
		switch {
		case existing != nil && existing.IsActive():
			return apperrors.ErrWalletAlreadyLinked

		case existing != nil:
			ok, err := s.walletRepo.RelinkTx(ctx, tx, existing.ID, accountID, now)
			if err != nil {
				return bindingError(err)
			}
			if !ok {
				return apperrors.ErrWalletAlreadyLinked
			}
			existing.AccountID = accountID
			existing.VerifiedAt = now
			existing.DeletedAt = nil
			binding, outcome = existing, LinkOutcomeRelinked
			e.Details = fmt.Sprintf("Re-linked wallet %s", address)

		default:
			w := &types.WalletBinding{
				ID:         uuid.NewString(),
				AccountID:  accountID,
				Address:    address,
				VerifiedAt: now,
				CreatedAt:  now,
			}
			if err := s.walletRepo.CreateTx(ctx, tx, w); err != nil {
				return bindingError(err)
			}
			binding, outcome = w, LinkOutcomeLinked
			e.Details = fmt.Sprintf("Linked wallet %s", address)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	logger.Info(ctx, "wallet linked", "account_id", accountID, "wallet_id", binding.ID, "outcome", outcome)
	return binding, outcome, nil
}

// bindingError maps a lost race on the active-address index to AlreadyLinked.
func bindingError(err error) error {
	if errors.Is(err, storage.ErrUniqueViolation) {
		return apperrors.Wrap(err, apperrors.ErrWalletAlreadyLinked)
	}
	return apperrors.Internal(err)
}

// UnlinkWallet soft-deletes one of the caller's active bindings.
func (s *WalletService) UnlinkWallet(ctx context.Context, accountID int64, bindingID string) error {
	_, err := s.coord.RunAudited(ctx, accountID, types.AuditUnlinkWallet, func(ctx context.Context, tx storage.DBTX, e *audit.Entry) error {
		w, err := s.walletRepo.GetByIDTx(ctx, tx, bindingID)
		if err != nil {
			return apperrors.Internal(err)
		}
		if w == nil || !w.IsActive() || w.AccountID != accountID {
			return apperrors.NotFound("Wallet")
		}
		if err := s.softDelete(ctx, tx, w); err != nil {
			return err
		}
		e.Details = fmt.Sprintf("Unlinked wallet %s", w.Address)
		return nil
	})
	return err
}

// ForceDeleteWallet soft-deletes any active binding. Super admins only.
func (s *WalletService) ForceDeleteWallet(ctx context.Context, actorID int64, bindingID string) error {
	if _, err := s.authz.RequireSuperAdmin(ctx, actorID); err != nil {
		return err
	}

	_, err := s.coord.RunAudited(ctx, actorID, types.AuditSuperAdminDeleteWallet, func(ctx context.Context, tx storage.DBTX, e *audit.Entry) error {
		w, err := s.walletRepo.GetByIDTx(ctx, tx, bindingID)
		if err != nil {
			return apperrors.Internal(err)
		}
		if w == nil || !w.IsActive() {
			return apperrors.NotFound("Wallet")
		}
		if err := s.softDelete(ctx, tx, w); err != nil {
			return err
		}
		e.Target(w.AccountID)
		e.Details = fmt.Sprintf("Super admin deleted wallet %s", w.Address)
		return nil
	})
	return err
}

// softDelete moves a binding to SoftDeleted and drops the weak membership
// references to it in the same transaction.
func (s *WalletService) softDelete(ctx context.Context, tx storage.DBTX, w *types.WalletBinding) error {
	now := s.store.Now()
	ok, err := s.walletRepo.SoftDeleteTx(ctx, tx, w.ID, now)
	if err != nil {
		return apperrors.Internal(err)
	}
	if !ok {
		return apperrors.NotFound("Wallet")
	}
	if _, err := s.membershipRepo.ClearWalletRefTx(ctx, tx, w.ID); err != nil {
		return apperrors.Internal(err)
	}
	w.DeletedAt = &now
	return nil
}

// ListWallets returns the account's active bindings.
func (s *WalletService) ListWallets(ctx context.Context, accountID int64) ([]*types.WalletBinding, error) {
	wallets, err := s.walletRepo.ListActiveByAccount(ctx, accountID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return wallets, nil
}
