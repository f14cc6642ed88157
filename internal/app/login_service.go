package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tribegate/tribegate/internal/auth"
	"github.com/tribegate/tribegate/internal/challenge"
	"github.com/tribegate/tribegate/internal/logger"
	apperrors "github.com/tribegate/tribegate/pkg/errors"
)

// IdentityProvider runs an OAuth authorization-code flow.
type IdentityProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.DiscordProfile, error)
}

// LoginService drives browser login: state issue, provider callback, and
// the one-time auth code the frontend trades for a session token.
type LoginService struct {
	provider  IdentityProvider
	accounts  *AccountService
	authz     *TribeAuthorizer
	sessions  *auth.SessionManager
	states    challenge.Cache
	authCodes challenge.Cache
}

// NewLoginService creates a new login service
func NewLoginService(
	provider IdentityProvider,
	accounts *AccountService,
	authz *TribeAuthorizer,
	sessions *auth.SessionManager,
	states challenge.Cache,
	authCodes challenge.Cache,
) *LoginService {
	return &LoginService{
		provider:  provider,
		accounts:  accounts,
		authz:     authz,
		sessions:  sessions,
		states:    states,
		authCodes: authCodes,
	}
}

// Begin returns the provider URL to redirect to, carrying a fresh state.
func (s *LoginService) Begin(ctx context.Context) (string, error) {
	state := challenge.NewToken()
	if err := s.states.Put(ctx, state, state); err != nil {
		return "", apperrors.Internal(fmt.Errorf("failed to store OAuth state: %w", err))
	}
	return s.provider.AuthURL(state), nil
}

// Complete handles the provider callback. It returns a single-use auth code
// bound to a freshly issued session token.
func (s *LoginService) Complete(ctx context.Context, code, state string) (string, error) {
	if code == "" || state == "" {
		return "", apperrors.BadRequest("missing code or state")
	}

	if _, err := s.states.Consume(ctx, state); err != nil {
		if errors.Is(err, challenge.ErrNotFound) {
			return "", apperrors.BadRequest("Invalid or expired OAuth state")
		}
		return "", apperrors.Internal(err)
	}

	profile, err := s.provider.Exchange(ctx, code)
	if err != nil {
		logger.Warn(ctx, "OAuth exchange failed", "error", err)
		return "", apperrors.New(apperrors.ErrCodeBadRequest, "Discord OAuth failed", http.StatusBadRequest)
	}

	account, err := s.accounts.Login(ctx, profile)
	if err != nil {
		return "", err
	}

	token, err := s.sessions.Issue(account, s.authz.IsSuperAdmin(account))
	if err != nil {
		return "", apperrors.Internal(err)
	}

	authCode := challenge.NewToken()
	if err := s.authCodes.Put(ctx, authCode, token); err != nil {
		return "", apperrors.Internal(fmt.Errorf("failed to store auth code: %w", err))
	}
	return authCode, nil
}

// Exchange trades an auth code for its session token, once.
func (s *LoginService) Exchange(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", apperrors.ErrUnauthorized
	}
	token, err := s.authCodes.Consume(ctx, code)
	if err != nil {
		if errors.Is(err, challenge.ErrNotFound) {
			return "", apperrors.New(apperrors.ErrCodeUnauthorized, "Invalid or expired code", http.StatusUnauthorized)
		}
		return "", apperrors.Internal(err)
	}
	return token, nil
}
