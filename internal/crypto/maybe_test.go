package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	c := newTestCipher(t)

	envelope, err := c.Encrypt("secret")
	require.NoError(t, err)

	sealed := Classify(envelope)
	assert.Equal(t, KindEnvelope, sealed.Kind())
	assert.False(t, sealed.IsLegacy())

	legacy := Classify("1//plain-refresh-token")
	assert.Equal(t, KindLegacyPlaintext, legacy.Kind())
	assert.True(t, legacy.IsLegacy())
	assert.Equal(t, "legacy_plaintext", legacy.Kind().String())
}

func TestCipher_Resolve(t *testing.T) {
	c := newTestCipher(t)

	envelope, err := c.Encrypt("secret")
	require.NoError(t, err)

	got, err := c.Resolve(Classify(envelope))
	require.NoError(t, err)
	assert.Equal(t, "secret", got)

	got, err = c.Resolve(Classify("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", got)
}

func TestCipher_ResolveCorruptEnvelopeIsHardError(t *testing.T) {
	c := newTestCipher(t)

	envelope, err := c.Encrypt("secret")
	require.NoError(t, err)
	corrupt := flipByte(t, envelope, 2, 0)

	// Still shaped like an envelope, so it must not be treated as plaintext.
	m := Classify(corrupt)
	require.Equal(t, KindEnvelope, m.Kind())

	got, err := c.Resolve(m)
	assert.ErrorIs(t, err, ErrTamperedOrCorrupt)
	assert.Empty(t, got)
}

func TestClassify_DamagedEnvelopeIsNotPlaintext(t *testing.T) {
	c := newTestCipher(t)

	envelope, err := c.Encrypt("secret")
	require.NoError(t, err)
	parts := strings.Split(envelope, ":")

	tests := []struct {
		name string
		raw  string
	}{
		{name: "ciphertext segment dropped", raw: parts[0] + ":" + parts[1]},
		{name: "extra segment", raw: envelope + ":00"},
		{name: "short nonce", raw: parts[0][:20] + ":" + parts[1] + ":" + parts[2]},
		{name: "empty ciphertext", raw: parts[0] + ":" + parts[1] + ":"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Classify(tt.raw)
			require.Equal(t, KindEnvelope, m.Kind())

			got, err := c.Resolve(m)
			assert.ErrorIs(t, err, ErrTamperedOrCorrupt)
			assert.Empty(t, got)
		})
	}
}

func TestClassify_GoogleTokensAreLegacy(t *testing.T) {
	for _, raw := range []string{
		"1//0gLpQz-refresh_token-Value",
		"ya29.a0AfH6SMBx",
		"deadbeef",
	} {
		assert.Equal(t, KindLegacyPlaintext, Classify(raw).Kind(), raw)
	}
}
