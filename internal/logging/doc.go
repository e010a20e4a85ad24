// Package logging provides structured logging utilities for smtpbridge.
//
// All components log through log/slog. This package centralizes attribute
// naming and the redaction helpers that keep mailbox addresses, OAuth tokens
// and API keys out of log output.
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithComponent(slog.Default(), "smtp")
//	logger.Info("session opened", logging.Session(id), logging.Remote(addr))
//
// Hash mailbox addresses before logging:
//
//	logger.Info("token refreshed", logging.UserHash(email))
//
// # Security Considerations
//
//   - Mailbox addresses are hashed so entries can be correlated without PII
//   - Tokens and API keys are never logged; SanitizeToken only reports length
package logging
