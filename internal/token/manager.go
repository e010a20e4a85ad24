package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/smtpbridge/internal/account"
	"github.com/teemow/smtpbridge/internal/audit"
	"github.com/teemow/smtpbridge/internal/instrumentation"
	"github.com/teemow/smtpbridge/internal/logging"
)

const (
	// DefaultExpiryBuffer is how long before expiry a cached token stops
	// being handed out.
	DefaultExpiryBuffer = 300 * time.Second

	// DefaultAccessTokenTTL is assumed when the provider reports no expiry.
	DefaultAccessTokenTTL = time.Hour
)

// Store is the subset of account.Store the manager needs.
type Store interface {
	GetByEmail(ctx context.Context, email string) (*account.Account, error)
	DecryptedAccessToken(acc *account.Account) (string, error)
	DecryptedRefreshToken(acc *account.Account) (string, error)
	UpdateAccessToken(ctx context.Context, email, accessToken string, expiry int64) error
	UpdateRefreshToken(ctx context.Context, email, refreshToken string) error
	ClearAccessToken(ctx context.Context, email string) error
}

// Manager supplies valid access tokens for registered accounts.
type Manager struct {
	store     Store
	refresher Refresher
	buffer    time.Duration
	now       func() time.Time
	logger    *slog.Logger
	metrics   *instrumentation.Metrics
	audit     *audit.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithExpiryBuffer sets how much lifetime a cached token must have left.
func WithExpiryBuffer(d time.Duration) Option {
	return func(m *Manager) {
		m.buffer = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics records cache and refresh metrics.
func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithAudit records refresh events.
func WithAudit(a *audit.Logger) Option {
	return func(m *Manager) {
		m.audit = a
	}
}

// NewManager creates a Manager.
func NewManager(store Store, refresher Refresher, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		refresher: refresher,
		buffer:    DefaultExpiryBuffer,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.WithComponent(m.logger, "token")
	return m
}

// GetValidAccessToken returns an access token for email with at least the
// expiry buffer of lifetime left, refreshing it if necessary.
//
// account.ErrAccountNotFound is returned for unknown accounts. Refresh
// failures are returned as *RefreshError, which matches ErrTokenRefreshFailed.
func (m *Manager) GetValidAccessToken(ctx context.Context, email string) (string, error) {
	acc, err := m.store.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	if m.usable(acc) {
		token, err := m.store.DecryptedAccessToken(acc)
		if err != nil {
			return "", err
		}
		m.metrics.RecordTokenCache(ctx, true)
		return token, nil
	}
	m.metrics.RecordTokenCache(ctx, false)

	return m.refresh(ctx, acc)
}

// usable reports whether the cached token can be handed out. A missing
// expiry always counts as expired.
func (m *Manager) usable(acc *account.Account) bool {
	if !acc.HasAccessToken() {
		return false
	}
	deadline := time.Unix(*acc.TokenExpiry, 0).Add(-m.buffer)
	return m.now().Before(deadline)
}

func (m *Manager) refresh(ctx context.Context, acc *account.Account) (string, error) {
	ctx, span := instrumentation.StartSpan(ctx, "token.refresh",
		attribute.String(instrumentation.SpanAttrUserHash, logging.AnonymizeEmail(acc.Email)))
	defer span.End()

	refreshToken, err := m.store.DecryptedRefreshToken(acc)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return "", err
	}

	result, err := m.refresher.Refresh(ctx, refreshToken)
	if err == nil && (result == nil || result.AccessToken == "") {
		err = errors.New("provider returned no access token")
	}
	if err != nil {
		return "", m.refreshFailed(ctx, span, acc, err)
	}

	expiry := result.Expiry
	if expiry == 0 {
		expiry = m.now().Add(DefaultAccessTokenTTL).Unix()
	}

	if err := m.store.UpdateAccessToken(ctx, acc.Email, result.AccessToken, expiry); err != nil {
		instrumentation.SetSpanError(span, err)
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}
	rotated := result.RefreshToken != ""
	if rotated {
		if err := m.store.UpdateRefreshToken(ctx, acc.Email, result.RefreshToken); err != nil {
			// The new access token is already stored; the old refresh token
			// stays usable until Google expires it.
			m.logger.Warn("failed to persist rotated refresh token", logging.UserHash(acc.Email), logging.Err(err))
		}
	}

	m.metrics.RecordTokenRefresh(ctx, instrumentation.RefreshResultSuccess)
	m.audit.TokenRefreshed(acc.Email, rotated)
	m.logger.Debug("access token refreshed",
		logging.UserHash(acc.Email),
		slog.Time("expiry", time.Unix(expiry, 0)))
	instrumentation.SetSpanSuccess(span)

	return result.AccessToken, nil
}

// refreshFailed drops the cached access token so no caller keeps using a
// token whose refresh state is unknown.
func (m *Manager) refreshFailed(ctx context.Context, span trace.Span, acc *account.Account, cause error) error {
	reauth := errors.Is(cause, ErrInvalidGrant)
	instrumentation.SetSpanError(span, cause)

	if err := m.store.ClearAccessToken(ctx, acc.Email); err != nil && !errors.Is(err, account.ErrAccountNotFound) {
		m.logger.Warn("failed to clear access token after refresh failure", logging.UserHash(acc.Email), logging.Err(err))
	}

	result := instrumentation.RefreshResultFailure
	if reauth {
		result = instrumentation.RefreshResultRevoked
	}
	m.metrics.RecordTokenRefresh(ctx, result)
	m.audit.TokenRefreshFailed(acc.Email, reauth, cause.Error())
	m.logger.Warn("access token refresh failed",
		logging.UserHash(acc.Email),
		slog.Bool("reauthorize", reauth),
		logging.Err(cause))

	return &RefreshError{Email: acc.Email, Reauthorize: reauth, Err: cause}
}
