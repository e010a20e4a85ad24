package account

import "errors"

var (
	// ErrDuplicateAccount is returned when the email or API key hash is already in use.
	ErrDuplicateAccount = errors.New("account already exists")

	// ErrAccountNotFound is returned when no account matches.
	ErrAccountNotFound = errors.New("account not found")

	// ErrNoAccessToken is returned when an account has no cached access token.
	ErrNoAccessToken = errors.New("account has no access token")

	// ErrLegacyPlaintext is returned when a stored token is not encrypted and
	// the store does not accept legacy plaintext.
	ErrLegacyPlaintext = errors.New("stored token is not encrypted")
)
