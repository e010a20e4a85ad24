package crypto

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	// APIKeyPrefix marks smtpbridge API keys.
	APIKeyPrefix = "sk_"
	// APIKeyRandomLength is the number of random characters after the prefix.
	APIKeyRandomLength = 32

	// 64 symbols, so masking a random byte with 63 is unbiased.
	apiKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
)

// GenerateAPIKey returns a new plaintext API key of the form sk_ followed by
// 32 URL-safe random characters.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, APIKeyRandomLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}

	var b strings.Builder
	b.Grow(len(APIKeyPrefix) + APIKeyRandomLength)
	b.WriteString(APIKeyPrefix)
	for _, v := range buf {
		b.WriteByte(apiKeyAlphabet[v&63])
	}
	return b.String(), nil
}
