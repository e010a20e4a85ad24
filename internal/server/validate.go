package server

import (
	"fmt"
	"net/url"
)

// ValidateBaseURL checks the public base URL Google redirects to. Plain
// HTTP is only accepted for loopback hosts.
func ValidateBaseURL(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	switch u.Scheme {
	case "https":
	case "http":
		host := u.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("base URL must use https outside of localhost (got: %s)", baseURL)
		}
	default:
		return fmt.Errorf("invalid URL scheme: %q. Must be http (localhost only) or https", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("base URL has no host: %s", baseURL)
	}
	return nil
}
