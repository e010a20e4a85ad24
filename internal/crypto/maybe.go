package crypto

import "strings"

// Kind tells how a stored credential column was written.
type Kind int

const (
	// KindEnvelope is a value sealed by Cipher.Encrypt.
	KindEnvelope Kind = iota
	// KindLegacyPlaintext is a value written before encryption at rest existed.
	KindLegacyPlaintext
)

func (k Kind) String() string {
	switch k {
	case KindEnvelope:
		return "envelope"
	case KindLegacyPlaintext:
		return "legacy_plaintext"
	default:
		return "unknown"
	}
}

// MaybeEncrypted is a stored credential classified once at read time.
type MaybeEncrypted struct {
	kind Kind
	raw  string
}

// Classify inspects a raw column value. Any colon-separated value made only
// of hex segments is treated as an envelope, even with the wrong segment
// count or lengths, so a damaged envelope fails to resolve instead of being
// mistaken for plaintext. Google tokens never contain a colon.
func Classify(raw string) MaybeEncrypted {
	if IsEnvelope(raw) || looksSealed(raw) {
		return MaybeEncrypted{kind: KindEnvelope, raw: raw}
	}
	return MaybeEncrypted{kind: KindLegacyPlaintext, raw: raw}
}

func looksSealed(raw string) bool {
	if !strings.Contains(raw, envelopeSeparator) {
		return false
	}
	for _, r := range raw {
		switch {
		case r == ':', r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// Kind returns the classification.
func (m MaybeEncrypted) Kind() Kind {
	return m.kind
}

// IsLegacy reports whether the value was stored as plaintext.
func (m MaybeEncrypted) IsLegacy() bool {
	return m.kind == KindLegacyPlaintext
}

// Resolve returns the plaintext of m. Envelopes are decrypted; legacy values
// are returned as stored. Callers decide whether legacy values are acceptable.
func (c *Cipher) Resolve(m MaybeEncrypted) (string, error) {
	if m.kind == KindLegacyPlaintext {
		return m.raw, nil
	}
	return c.Decrypt(m.raw)
}
