package registration

import "errors"

var (
	// ErrInvalidAction is returned for a state that is neither register nor regenerate.
	ErrInvalidAction = errors.New("invalid action")

	// ErrMissingCode is returned when the callback carries neither code nor error.
	ErrMissingCode = errors.New("authorization code missing")

	// ErrCodeAlreadyRedeemed is returned when the authorization code was
	// already exchanged or has expired. The user can simply start over.
	ErrCodeAlreadyRedeemed = errors.New("authorization code already redeemed or expired")

	// ErrMissingScope is returned when the user did not grant gmail.send.
	ErrMissingScope = errors.New("gmail send permission not granted")

	// ErrNoRefreshToken is returned when a new registration yields no refresh token.
	ErrNoRefreshToken = errors.New("no refresh token issued")
)
