package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// Discord API endpoints.
const (
	DiscordAuthURL     = "https://discord.com/api/oauth2/authorize"
	DiscordTokenURL    = "https://discord.com/api/oauth2/token"
	DiscordUserInfoURL = "https://discord.com/api/users/@me"
)

// DiscordProfile is the part of the /users/@me response we keep.
type DiscordProfile struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	GlobalName    string `json:"global_name"`
}

// DiscordProvider runs the Authorization Code flow against Discord.
type DiscordProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

// DiscordOption customises a provider.
type DiscordOption func(*DiscordProvider)

// WithDiscordEndpoints points the provider at other token and user-info
// endpoints. Used by tests with an httptest server.
func WithDiscordEndpoints(authURL, tokenURL, userInfoURL string) DiscordOption {
	return func(p *DiscordProvider) {
		p.config.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams}
		p.userInfoURL = userInfoURL
	}
}

// NewDiscordProvider creates a provider requesting the identify scope.
func NewDiscordProvider(clientID, clientSecret, redirectURL string, opts ...DiscordOption) *DiscordProvider {
	p := &DiscordProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"identify"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   DiscordAuthURL,
				TokenURL:  DiscordTokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: DiscordUserInfoURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AuthURL returns the provider URL to redirect the browser to.
func (p *DiscordProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the callback code for the user's profile.
func (p *DiscordProvider) Exchange(ctx context.Context, code string) (*DiscordProfile, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange OAuth code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build user info request: %w", err)
	}

	resp, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch Discord user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("discord user API returned status %d", resp.StatusCode)
	}

	var profile DiscordProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode Discord user: %w", err)
	}
	if profile.ID == "" {
		return nil, fmt.Errorf("discord returned a user without an id")
	}
	if profile.Discriminator == "" {
		profile.Discriminator = "0"
	}

	return &profile, nil
}
