package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{name: "https", baseURL: "https://bridge.example.com", wantErr: false},
		{name: "https with path", baseURL: "https://bridge.example.com/smtp", wantErr: false},
		{name: "https with port", baseURL: "https://bridge.example.com:8443", wantErr: false},
		{name: "http localhost", baseURL: "http://localhost:8080", wantErr: false},
		{name: "http 127.0.0.1", baseURL: "http://127.0.0.1:8080", wantErr: false},
		{name: "http ipv6 loopback", baseURL: "http://[::1]:8080", wantErr: false},
		{name: "http public host", baseURL: "http://bridge.example.com", wantErr: true},
		{name: "localhost as subdomain", baseURL: "http://localhost.example.com", wantErr: true},
		{name: "loopback ip in domain", baseURL: "http://127.0.0.1.example.com", wantErr: true},
		{name: "empty", baseURL: "", wantErr: true},
		{name: "no scheme", baseURL: "not a url", wantErr: true},
		{name: "ftp", baseURL: "ftp://example.com", wantErr: true},
		{name: "https without host", baseURL: "https://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBaseURL(tt.baseURL)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
