package google

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Revoker revokes OAuth tokens at Google.
type Revoker struct {
	client *http.Client
	url    string
}

// NewRevoker creates a Revoker. An empty endpoint uses RevokeURL.
func NewRevoker(client *http.Client, endpoint string) *Revoker {
	if client == nil {
		client = NewHTTPClient()
	}
	if endpoint == "" {
		endpoint = RevokeURL
	}
	return &Revoker{client: client, url: endpoint}
}

// Revoke invalidates token (access or refresh) at the revocation endpoint.
func (r *Revoker) Revoke(ctx context.Context, token string) error {
	form := url.Values{}
	form.Set("token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token revocation returned status %d", resp.StatusCode)
	}
	return nil
}
