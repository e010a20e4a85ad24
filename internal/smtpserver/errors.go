package smtpserver

import (
	"errors"

	"github.com/emersion/go-smtp"

	"github.com/teemow/smtpbridge/internal/account"
	"github.com/teemow/smtpbridge/internal/gmail"
	"github.com/teemow/smtpbridge/internal/instrumentation"
	"github.com/teemow/smtpbridge/internal/smtpauth"
	"github.com/teemow/smtpbridge/internal/token"
)

var (
	errAuthRequired = &smtp.SMTPError{
		Code:         530,
		EnhancedCode: smtp.EnhancedCode{5, 7, 0},
		Message:      "Authentication required",
	}
	errBadSequence = &smtp.SMTPError{
		Code:         503,
		EnhancedCode: smtp.EnhancedCode{5, 5, 1},
		Message:      "MAIL FROM required before RCPT TO",
	}
	errTempAuthFailure = &smtp.SMTPError{
		Code:         454,
		EnhancedCode: smtp.EnhancedCode{4, 7, 0},
		Message:      "Temporary authentication failure",
	}
	errAuthzMismatch = &smtp.SMTPError{
		Code:         535,
		EnhancedCode: smtp.EnhancedCode{5, 7, 8},
		Message:      "Authorization identity must match username",
	}
)

// authReply maps an Authenticate error to an AUTH reply.
func authReply(err error) *smtp.SMTPError {
	var authErr *smtpauth.AuthError
	if errors.As(err, &authErr) {
		return &smtp.SMTPError{
			Code:         535,
			EnhancedCode: smtp.EnhancedCode{5, 7, 8},
			Message:      authErr.PublicMessage(),
		}
	}
	return errTempAuthFailure
}

// deliveryReply maps a DATA failure to a reply and a metric status.
func deliveryReply(err error, registerURL string) (*smtp.SMTPError, string) {
	var apiErr *gmail.UpstreamAPIError
	switch {
	case errors.Is(err, token.ErrTokenRefreshFailed):
		msg := "Mailbox authorization expired or was revoked"
		if registerURL != "" {
			msg += "; register again at " + registerURL
		}
		return &smtp.SMTPError{Code: 454, EnhancedCode: smtp.EnhancedCode{4, 7, 0}, Message: msg},
			instrumentation.SendStatusAuthError
	case errors.Is(err, account.ErrAccountNotFound):
		return &smtp.SMTPError{Code: 554, EnhancedCode: smtp.EnhancedCode{5, 7, 1}, Message: "Account is no longer registered"},
			instrumentation.SendStatusAuthError
	case errors.Is(err, gmail.ErrMalformedMessage):
		return &smtp.SMTPError{Code: 554, EnhancedCode: smtp.EnhancedCode{5, 6, 0}, Message: "Malformed message header"},
			instrumentation.SendStatusClientError
	case errors.As(err, &apiErr) && !apiErr.Temporary():
		return &smtp.SMTPError{Code: 554, EnhancedCode: smtp.EnhancedCode{5, 0, 0}, Message: "Message rejected by Gmail"},
			instrumentation.SendStatusClientError
	default:
		return &smtp.SMTPError{Code: 451, EnhancedCode: smtp.EnhancedCode{4, 3, 0}, Message: "Temporary delivery failure, try again later"},
			instrumentation.SendStatusServerError
	}
}
