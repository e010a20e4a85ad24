package google

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// RevokeURL is Google's token revocation endpoint.
	RevokeURL = "https://oauth2.googleapis.com/revoke"

	// CallbackPath is where Google redirects after consent.
	CallbackPath = "/oauth/callback"

	// DefaultHTTPTimeout bounds every call to a Google endpoint.
	DefaultHTTPTimeout = 30 * time.Second

	errorCodeInvalidGrant = "invalid_grant"
)

// OAuthConfig identifies the OAuth client registered in Google Cloud.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	// RedirectURL must match an authorized redirect URI of the client,
	// normally BaseURL + CallbackPath.
	RedirectURL string
	// Endpoint overrides google.Endpoint. Zero value uses Google.
	Endpoint oauth2.Endpoint
}

// NewOAuthConfig returns the oauth2 configuration for the given client.
func NewOAuthConfig(cfg OAuthConfig) *oauth2.Config {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" && endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       DefaultOAuthScopes,
	}
}

// AuthCodeURL builds a consent URL that always yields a refresh token:
// offline access with a forced consent prompt.
func AuthCodeURL(conf *oauth2.Config, state string) string {
	return conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// NewHTTPClient returns the client used for Google endpoints.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultHTTPTimeout}
}

// WithHTTPClient makes oauth2 use client for token endpoint calls made with ctx.
func WithHTTPClient(ctx context.Context, client *http.Client) context.Context {
	if client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}

// IsInvalidGrant reports whether err is the token endpoint rejecting a code
// or refresh token as invalid, expired, revoked or already used.
func IsInvalidGrant(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return retrieveErr.ErrorCode == errorCodeInvalidGrant
	}
	return false
}
