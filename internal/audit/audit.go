// Package audit writes security-relevant events as structured log records.
// Email addresses are hashed before they reach the log.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/teemow/smtpbridge/internal/logging"
)

// EventType identifies an audit event.
type EventType string

const (
	EventAuthSuccess EventType = "smtp_auth_success"
	EventAuthFailure EventType = "smtp_auth_failure"

	EventTokenRefreshed    EventType = "token_refreshed"
	EventTokenRefreshError EventType = "token_refresh_failed"
	EventTokenRevoked      EventType = "token_revoked"

	EventAccountRegistered    EventType = "account_registered"
	EventAPIKeyRegenerated    EventType = "api_key_regenerated"
	EventRegistrationRejected EventType = "registration_rejected"
	EventAccountDeleted       EventType = "account_deleted"
)

// Event is a single audit record.
type Event struct {
	Timestamp     time.Time
	Type          EventType
	UserEmailHash string
	RemoteAddr    string
	Success       bool
	Reason        string
	Metadata      map[string]string
}

// Logger writes audit events. A nil *Logger discards everything.
type Logger struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewLogger creates an audit logger on top of logger.
func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{
		logger: logging.WithComponent(logger, "audit"),
		now:    time.Now,
	}
}

// Log writes event. Failures and reauthorization events are logged at warn.
func (a *Logger) Log(event Event) {
	if a == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = a.now()
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("event_type", string(event.Type)),
		slog.Time("timestamp", event.Timestamp),
		slog.Bool("success", event.Success),
	}
	if event.UserEmailHash != "" {
		attrs = append(attrs, slog.String(logging.KeyUserHash, event.UserEmailHash))
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String(logging.KeyRemote, event.RemoteAddr))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, slog.String("meta_"+k, v))
	}

	a.logger.LogAttrs(context.Background(), level, "audit_event", attrs...)
}

func (a *Logger) AuthSuccess(email, remote string) {
	a.Log(Event{Type: EventAuthSuccess, UserEmailHash: hash(email), RemoteAddr: remote, Success: true})
}

func (a *Logger) AuthFailure(email, remote, reason string) {
	a.Log(Event{Type: EventAuthFailure, UserEmailHash: hash(email), RemoteAddr: remote, Reason: reason})
}

func (a *Logger) TokenRefreshed(email string, rotated bool) {
	a.Log(Event{
		Type:          EventTokenRefreshed,
		UserEmailHash: hash(email),
		Success:       true,
		Metadata:      map[string]string{"rotated": boolString(rotated)},
	})
}

func (a *Logger) TokenRefreshFailed(email string, reauthorize bool, reason string) {
	a.Log(Event{
		Type:          EventTokenRefreshError,
		UserEmailHash: hash(email),
		Reason:        reason,
		Metadata:      map[string]string{"reauthorize": boolString(reauthorize)},
	})
}

// TokenRevoked records a revocation attempt at the provider.
func (a *Logger) TokenRevoked(email string, err error) {
	ev := Event{Type: EventTokenRevoked, UserEmailHash: hash(email), Success: err == nil}
	if err != nil {
		ev.Reason = err.Error()
	}
	a.Log(ev)
}

func (a *Logger) AccountRegistered(email string) {
	a.Log(Event{Type: EventAccountRegistered, UserEmailHash: hash(email), Success: true})
}

func (a *Logger) APIKeyRegenerated(email string) {
	a.Log(Event{Type: EventAPIKeyRegenerated, UserEmailHash: hash(email), Success: true})
}

func (a *Logger) RegistrationRejected(email, action, reason string) {
	a.Log(Event{
		Type:          EventRegistrationRejected,
		UserEmailHash: hash(email),
		Reason:        reason,
		Metadata:      map[string]string{"action": action},
	})
}

func (a *Logger) AccountDeleted(email string) {
	a.Log(Event{Type: EventAccountDeleted, UserEmailHash: hash(email), Success: true})
}

func hash(email string) string {
	if email == "" {
		return ""
	}
	return logging.AnonymizeEmail(email)
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
