package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/teemow/smtpbridge/internal/google"
)

// Refreshed is the result of redeeming a refresh token.
type Refreshed struct {
	AccessToken string
	// Expiry is the absolute expiry in unix seconds; zero if not reported.
	Expiry int64
	// RefreshToken is set when the provider rotated the refresh token.
	RefreshToken string
}

// Refresher redeems a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Refreshed, error)
}

// ErrInvalidGrant is wrapped by OAuthRefresher when the provider rejects the
// refresh token as revoked or expired.
var ErrInvalidGrant = errors.New("refresh token rejected by provider")

// OAuthRefresher refreshes tokens against an OAuth2 token endpoint.
type OAuthRefresher struct {
	config *oauth2.Config
	client *http.Client
}

// NewOAuthRefresher creates a refresher. A nil client uses google.NewHTTPClient.
func NewOAuthRefresher(config *oauth2.Config, client *http.Client) *OAuthRefresher {
	if client == nil {
		client = google.NewHTTPClient()
	}
	return &OAuthRefresher{config: config, client: client}
}

// Refresh implements Refresher.
func (r *OAuthRefresher) Refresh(ctx context.Context, refreshToken string) (*Refreshed, error) {
	if refreshToken == "" {
		return nil, errors.New("no refresh token available")
	}

	ctx = google.WithHTTPClient(ctx, r.client)
	tok, err := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		if google.IsInvalidGrant(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGrant, err)
		}
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	out := &Refreshed{AccessToken: tok.AccessToken}
	if !tok.Expiry.IsZero() {
		out.Expiry = tok.Expiry.Unix()
	}
	if tok.RefreshToken != "" && tok.RefreshToken != refreshToken {
		out.RefreshToken = tok.RefreshToken
	}
	return out, nil
}
