package token

import (
	"errors"
	"fmt"
)

// ErrTokenRefreshFailed is matched by every *RefreshError.
var ErrTokenRefreshFailed = errors.New("token refresh failed")

// RefreshError reports a failed refresh for an account.
type RefreshError struct {
	Email string
	// Reauthorize is set when the provider rejected the refresh token itself,
	// so the mailbox owner has to register again.
	Reauthorize bool
	Err         error
}

func (e *RefreshError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s for %s", ErrTokenRefreshFailed, e.Email)
	}
	return fmt.Sprintf("%s for %s: %v", ErrTokenRefreshFailed, e.Email, e.Err)
}

// Is makes errors.Is(err, ErrTokenRefreshFailed) true.
func (e *RefreshError) Is(target error) bool {
	return target == ErrTokenRefreshFailed
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}
