package registration

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/teemow/smtpbridge/internal/google"
)

// Provider is the OAuth authorization server.
type Provider interface {
	AuthCodeURL(state string) string
	// Exchange redeems code. An already used or expired code yields an error
	// wrapping ErrCodeAlreadyRedeemed.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	UserEmail(ctx context.Context, tok *oauth2.Token) (string, error)
	Revoke(ctx context.Context, token string) error
}

// GoogleProvider implements Provider against Google's OAuth endpoints.
type GoogleProvider struct {
	config   *oauth2.Config
	client   *http.Client
	userInfo *google.UserInfoClient
	revoker  *google.Revoker
}

// GoogleProviderOption configures a GoogleProvider.
type GoogleProviderOption func(*googleProviderOptions)

type googleProviderOptions struct {
	client           *http.Client
	userInfoEndpoint string
	revokeEndpoint   string
}

// WithProviderHTTPClient sets the client for every Google call.
func WithProviderHTTPClient(client *http.Client) GoogleProviderOption {
	return func(o *googleProviderOptions) {
		o.client = client
	}
}

// WithUserInfoEndpoint overrides the userinfo API base URL.
func WithUserInfoEndpoint(endpoint string) GoogleProviderOption {
	return func(o *googleProviderOptions) {
		o.userInfoEndpoint = endpoint
	}
}

// WithRevokeEndpoint overrides the revocation URL.
func WithRevokeEndpoint(endpoint string) GoogleProviderOption {
	return func(o *googleProviderOptions) {
		o.revokeEndpoint = endpoint
	}
}

// NewGoogleProvider creates a GoogleProvider for config.
func NewGoogleProvider(config *oauth2.Config, opts ...GoogleProviderOption) *GoogleProvider {
	o := googleProviderOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.client == nil {
		o.client = google.NewHTTPClient()
	}
	return &GoogleProvider{
		config:   config,
		client:   o.client,
		userInfo: google.NewUserInfoClient(o.client, o.userInfoEndpoint),
		revoker:  google.NewRevoker(o.client, o.revokeEndpoint),
	}
}

func (p *GoogleProvider) AuthCodeURL(state string) string {
	return google.AuthCodeURL(p.config, state)
}

func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := p.config.Exchange(google.WithHTTPClient(ctx, p.client), code)
	if err != nil {
		if google.IsInvalidGrant(err) {
			return nil, fmt.Errorf("%w: %v", ErrCodeAlreadyRedeemed, err)
		}
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return tok, nil
}

func (p *GoogleProvider) UserEmail(ctx context.Context, tok *oauth2.Token) (string, error) {
	return p.userInfo.Email(ctx, tok)
}

func (p *GoogleProvider) Revoke(ctx context.Context, token string) error {
	return p.revoker.Revoke(ctx, token)
}
