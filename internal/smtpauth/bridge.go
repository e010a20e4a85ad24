package smtpauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/teemow/smtpbridge/internal/account"
	"github.com/teemow/smtpbridge/internal/audit"
	"github.com/teemow/smtpbridge/internal/instrumentation"
	"github.com/teemow/smtpbridge/internal/logging"
)

// AccountLookup finds accounts by email.
type AccountLookup interface {
	GetByEmail(ctx context.Context, email string) (*account.Account, error)
}

// Verifier compares an API key with a stored hash.
type Verifier interface {
	Verify(secret, hash string) bool
	// VerifyDummy performs a comparison of equal cost against a fixed hash.
	VerifyDummy(secret string) bool
}

// Identity is an authenticated mailbox.
type Identity struct {
	Email     string
	AccountID uint
}

// Bridge authenticates SMTP clients.
type Bridge struct {
	accounts AccountLookup
	verifier Verifier
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
	audit    *audit.Logger
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics records one counter increment per attempt.
func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(b *Bridge) {
		b.metrics = metrics
	}
}

// WithAudit records one audit event per attempt.
func WithAudit(a *audit.Logger) Option {
	return func(b *Bridge) {
		b.audit = a
	}
}

// NewBridge creates a Bridge.
func NewBridge(accounts AccountLookup, verifier Verifier, opts ...Option) *Bridge {
	b := &Bridge{
		accounts: accounts,
		verifier: verifier,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logging.WithComponent(b.logger, "smtpauth")
	return b
}

type remoteKey struct{}

// WithRemoteAddr attaches the client address to ctx for audit records.
func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, remoteKey{}, addr)
}

func remoteAddr(ctx context.Context) string {
	addr, _ := ctx.Value(remoteKey{}).(string)
	return addr
}

// Authenticate verifies username and password. Rejections are *AuthError;
// any other error is a storage failure.
func (b *Bridge) Authenticate(ctx context.Context, username, password string) (Identity, error) {
	if username == "" || password == "" {
		return Identity{}, b.reject(ctx, username, ErrMissingCredentials)
	}

	acc, err := b.accounts.GetByEmail(ctx, username)
	if errors.Is(err, account.ErrAccountNotFound) {
		b.verifier.VerifyDummy(password)
		return Identity{}, b.reject(ctx, username, ErrAccountNotRegistered)
	}
	if err != nil {
		b.logger.Error("account lookup failed", logging.UserHash(username), logging.Err(err))
		return Identity{}, fmt.Errorf("failed to look up account: %w", err)
	}

	if !b.verifier.Verify(password, acc.APIKeyHash) {
		return Identity{}, b.reject(ctx, username, ErrInvalidAPIKey)
	}

	b.metrics.RecordSMTPAuth(ctx, instrumentation.AuthResultSuccess)
	b.audit.AuthSuccess(acc.Email, remoteAddr(ctx))
	b.logger.Debug("smtp client authenticated", logging.UserHash(acc.Email))

	return Identity{Email: acc.Email, AccountID: acc.ID}, nil
}

func (b *Bridge) reject(ctx context.Context, username string, reason error) error {
	label := reasonLabel(reason)
	b.metrics.RecordSMTPAuth(ctx, label)
	b.audit.AuthFailure(username, remoteAddr(ctx), label)
	b.logger.Info("smtp authentication rejected", logging.UserHash(username), slog.String("reason", label))
	return &AuthError{Username: username, Reason: reason}
}
