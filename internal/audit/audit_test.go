package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewLogger(slog.New(slog.NewJSONHandler(&buf, nil))), &buf
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_AuthSuccess(t *testing.T) {
	a, buf := newTestLogger()
	a.AuthSuccess("bob@example.com", "10.0.0.1:2525")

	entry := decode(t, buf)
	assert.Equal(t, string(EventAuthSuccess), entry["event_type"])
	assert.Equal(t, true, entry["success"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "10.0.0.1:2525", entry["remote_addr"])
	assert.Equal(t, "audit", entry["component"])

	hash, _ := entry["user_hash"].(string)
	assert.True(t, strings.HasPrefix(hash, "user:"))
	assert.NotContains(t, buf.String(), "bob@example.com")
}

func TestLogger_AuthFailure(t *testing.T) {
	a, buf := newTestLogger()
	a.AuthFailure("bob@example.com", "", "invalid_key")

	entry := decode(t, buf)
	assert.Equal(t, string(EventAuthFailure), entry["event_type"])
	assert.Equal(t, false, entry["success"])
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "invalid_key", entry["reason"])
	assert.NotContains(t, entry, "remote_addr")
}

func TestLogger_TokenEvents(t *testing.T) {
	a, buf := newTestLogger()
	a.TokenRefreshed("alice@example.com", true)
	entry := decode(t, buf)
	assert.Equal(t, "true", entry["meta_rotated"])

	buf.Reset()
	a.TokenRefreshFailed("alice@example.com", true, "invalid_grant")
	entry = decode(t, buf)
	assert.Equal(t, string(EventTokenRefreshError), entry["event_type"])
	assert.Equal(t, "true", entry["meta_reauthorize"])

	buf.Reset()
	a.TokenRevoked("alice@example.com", errors.New("status 400"))
	entry = decode(t, buf)
	assert.Equal(t, false, entry["success"])
	assert.Equal(t, "status 400", entry["reason"])
}

func TestLogger_Registration(t *testing.T) {
	a, buf := newTestLogger()
	a.RegistrationRejected("carol@example.com", "register", "missing_scope")

	entry := decode(t, buf)
	assert.Equal(t, string(EventRegistrationRejected), entry["event_type"])
	assert.Equal(t, "register", entry["meta_action"])
	assert.Equal(t, "missing_scope", entry["reason"])
}

func TestLogger_EmptyEmailIsOmitted(t *testing.T) {
	a, buf := newTestLogger()
	a.AuthFailure("", "", "missing_credentials")

	entry := decode(t, buf)
	assert.NotContains(t, entry, "user_hash")
}

func TestLogger_Nil(t *testing.T) {
	var a *Logger
	assert.NotPanics(t, func() {
		a.AuthSuccess("bob@example.com", "")
		a.AccountDeleted("bob@example.com")
	})
}
