package registration

import (
	"errors"

	"github.com/teemow/smtpbridge/internal/account"
)

// Guidance returns the message shown to the user for out.
func Guidance(out *Outcome) string {
	switch out.Status {
	case StatusRegistered:
		return "Your mailbox is registered. Copy the API key below now; it is shown only once. " +
			"Use your email address as SMTP username and the key as password."
	case StatusRegenerated:
		return "A new API key was issued. The previous key no longer works. " +
			"Copy the key below now; it is shown only once."
	case StatusAlreadyRegistered:
		return "This mailbox is already registered. If you lost your API key, use \"Regenerate API key\" instead."
	case StatusCancelled:
		return "Authorization was cancelled. No changes were made. You can start again at any time."
	case StatusRejected:
		return rejectionGuidance(out.Reason)
	}
	return "Something went wrong. Please try again."
}

func rejectionGuidance(reason error) string {
	switch {
	case errors.Is(reason, ErrMissingScope):
		return "The bridge needs permission to send email on your behalf. " +
			"Start again and leave the \"Send email on your behalf\" box checked on the consent screen."
	case errors.Is(reason, ErrCodeAlreadyRedeemed):
		return "This authorization link has already been used or has expired. Please start again."
	case errors.Is(reason, ErrNoRefreshToken):
		return "Google did not grant offline access. Remove the bridge from your Google account's " +
			"third-party access page and register again."
	case errors.Is(reason, account.ErrAccountNotFound):
		return "No account is registered for this mailbox, so there is no key to regenerate. Register first."
	case errors.Is(reason, ErrMissingCode):
		return "The authorization response was incomplete. Please start again."
	case errors.Is(reason, ErrInvalidAction):
		return "Unknown request. Start from the home page and choose register or regenerate."
	}
	return "The request could not be completed. Please try again."
}
