package smtpauth

import (
	"errors"

	"github.com/teemow/smtpbridge/internal/instrumentation"
)

var (
	// ErrMissingCredentials is returned when username or password is empty.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrAccountNotRegistered is returned when no account exists for the username.
	ErrAccountNotRegistered = errors.New("account not registered")

	// ErrInvalidAPIKey is returned when the password does not match the account's API key.
	ErrInvalidAPIKey = errors.New("invalid api key")
)

const publicAuthFailure = "Authentication credentials invalid"

// AuthError is returned by Authenticate for rejected credentials. Reason is
// one of the sentinel errors above.
type AuthError struct {
	Username string
	Reason   error
}

func (e *AuthError) Error() string {
	return "smtp authentication failed: " + e.Reason.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Reason
}

// PublicMessage is the text safe to send back to the SMTP client. It does not
// reveal whether the account exists.
func (e *AuthError) PublicMessage() string {
	if errors.Is(e.Reason, ErrMissingCredentials) {
		return "Username and password are required"
	}
	return publicAuthFailure
}

// reasonLabel is the metric and audit label for an AuthError reason.
func reasonLabel(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return instrumentation.AuthResultMissingCredentials
	case errors.Is(err, ErrAccountNotRegistered):
		return instrumentation.AuthResultNotRegistered
	default:
		return instrumentation.AuthResultInvalidKey
	}
}
