package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// UserInfoClient resolves the mailbox address behind an access token.
type UserInfoClient struct {
	client   *http.Client
	endpoint string
}

// NewUserInfoClient creates a UserInfoClient. An empty endpoint uses the
// public Google API base URL.
func NewUserInfoClient(client *http.Client, endpoint string) *UserInfoClient {
	if client == nil {
		client = NewHTTPClient()
	}
	return &UserInfoClient{client: client, endpoint: endpoint}
}

// Email returns the verified address of the account that issued tok.
func (u *UserInfoClient) Email(ctx context.Context, tok *oauth2.Token) (string, error) {
	ctx = WithHTTPClient(ctx, u.client)

	opts := []option.ClientOption{
		option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))),
	}
	if u.endpoint != "" {
		opts = append(opts, option.WithEndpoint(u.endpoint))
	}

	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create userinfo service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to fetch user info: %w", err)
	}
	if info.Email == "" {
		return "", errors.New("user info has no email address")
	}
	if info.VerifiedEmail != nil && !*info.VerifiedEmail {
		return "", errors.New("email address is not verified")
	}
	return info.Email, nil
}
