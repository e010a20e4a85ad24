package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/smtpbridge/internal/account"
	"github.com/teemow/smtpbridge/internal/audit"
	"github.com/teemow/smtpbridge/internal/crypto"
	"github.com/teemow/smtpbridge/internal/google"
	"github.com/teemow/smtpbridge/internal/instrumentation"
	"github.com/teemow/smtpbridge/internal/logging"
)

// DefaultRevokeTimeout bounds a background revocation.
const DefaultRevokeTimeout = 5 * time.Second

// Action selects what a completed consent does.
type Action string

const (
	ActionRegister   Action = "register"
	ActionRegenerate Action = "regenerate"
)

// ParseAction returns the Action named by s.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionRegister, ActionRegenerate:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
}

// label names a for metrics and logs; unknown states collapse to one value.
func (a Action) label() string {
	if a == "" {
		return "unknown"
	}
	return string(a)
}

// Status is the terminal state of a callback.
type Status string

const (
	StatusRegistered        Status = "registered"
	StatusAlreadyRegistered Status = "already_registered"
	StatusRegenerated       Status = "regenerated"
	StatusRejected          Status = "rejected"
	StatusCancelled         Status = "cancelled"
)

// Outcome is the result of HandleCallback.
type Outcome struct {
	Action Action
	Status Status
	Email  string
	// APIKey is set for StatusRegistered and StatusRegenerated only.
	APIKey string
	// Reason is set for StatusRejected.
	Reason error
	// ProviderError is the error parameter Google sent for StatusCancelled.
	ProviderError string
}

// Callback holds the query parameters of the OAuth redirect.
type Callback struct {
	State string
	Code  string
	Error string
}

// Store is the subset of account.Store the flow uses.
type Store interface {
	GetByEmail(ctx context.Context, email string) (*account.Account, error)
	Create(ctx context.Context, email, refreshToken, apiKey string) (*account.Account, error)
	UpdateAccessToken(ctx context.Context, email, accessToken string, expiry int64) error
	UpdateRefreshToken(ctx context.Context, email, refreshToken string) error
	UpdateAPIKey(ctx context.Context, email, apiKey string) error
}

// Flow runs registrations and key regenerations.
type Flow struct {
	provider      Provider
	store         Store
	generateKey   func() (string, error)
	revokeTimeout time.Duration
	logger        *slog.Logger
	metrics       *instrumentation.Metrics
	audit         *audit.Logger

	revocations sync.WaitGroup
}

// Option configures a Flow.
type Option func(*Flow)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Flow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithMetrics records one counter increment per callback.
func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(f *Flow) {
		f.metrics = metrics
	}
}

// WithAudit records registrations, regenerations and rejections.
func WithAudit(a *audit.Logger) Option {
	return func(f *Flow) {
		f.audit = a
	}
}

// WithKeyGenerator replaces crypto.GenerateAPIKey.
func WithKeyGenerator(gen func() (string, error)) Option {
	return func(f *Flow) {
		f.generateKey = gen
	}
}

// WithRevokeTimeout sets the deadline of a background revocation.
func WithRevokeTimeout(d time.Duration) Option {
	return func(f *Flow) {
		f.revokeTimeout = d
	}
}

// NewFlow creates a Flow.
func NewFlow(provider Provider, store Store, opts ...Option) *Flow {
	f := &Flow{
		provider:      provider,
		store:         store,
		generateKey:   crypto.GenerateAPIKey,
		revokeTimeout: DefaultRevokeTimeout,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = logging.WithComponent(f.logger, "registration")
	return f
}

// AuthorizationURL returns the consent URL for action.
func (f *Flow) AuthorizationURL(action Action) (string, error) {
	if _, err := ParseAction(string(action)); err != nil {
		return "", err
	}
	return f.provider.AuthCodeURL(string(action)), nil
}

// HandleCallback completes a flow. Conditions the user can act on are
// reported in the Outcome; the returned error is reserved for internal
// failures.
func (f *Flow) HandleCallback(ctx context.Context, cb Callback) (*Outcome, error) {
	out, err := f.handle(ctx, cb)
	if err != nil {
		action, _ := ParseAction(cb.State)
		f.metrics.RecordRegistration(ctx, action.label(), instrumentation.StatusError)
		f.logger.Error("registration callback failed", slog.String("action", action.label()), logging.Err(err))
		return nil, err
	}

	f.metrics.RecordRegistration(ctx, out.Action.label(), string(out.Status))
	switch out.Status {
	case StatusRegistered:
		f.audit.AccountRegistered(out.Email)
	case StatusRegenerated:
		f.audit.APIKeyRegenerated(out.Email)
	case StatusRejected:
		f.audit.RegistrationRejected(out.Email, string(out.Action), out.Reason.Error())
	}
	f.logger.Info("registration callback handled",
		slog.String("action", out.Action.label()),
		logging.Status(string(out.Status)),
		logging.UserHash(out.Email))
	return out, nil
}

func (f *Flow) handle(ctx context.Context, cb Callback) (*Outcome, error) {
	action, actionErr := ParseAction(cb.State)

	if cb.Error != "" {
		return &Outcome{Action: action, Status: StatusCancelled, ProviderError: cb.Error}, nil
	}
	if actionErr != nil {
		return rejected(action, "", ErrInvalidAction), nil
	}
	if cb.Code == "" {
		return rejected(action, "", ErrMissingCode), nil
	}

	tok, err := f.provider.Exchange(ctx, cb.Code)
	if errors.Is(err, ErrCodeAlreadyRedeemed) {
		return rejected(action, "", ErrCodeAlreadyRedeemed), nil
	}
	if err != nil {
		return nil, err
	}

	if !google.CanSendMail(tok) {
		f.logger.Info("consent lacks gmail.send", slog.String("granted", google.GrantedScopes(tok)))
		f.revokeAsync(ctx, "", tok.AccessToken)
		return rejected(action, "", ErrMissingScope), nil
	}

	email, err := f.provider.UserEmail(ctx, tok)
	if err != nil {
		return nil, err
	}
	email = account.NormalizeEmail(email)

	existing, err := f.store.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, account.ErrAccountNotFound) {
		return nil, err
	}

	switch action {
	case ActionRegister:
		if existing != nil {
			return &Outcome{Action: action, Status: StatusAlreadyRegistered, Email: email}, nil
		}
		return f.register(ctx, email, tok)
	default:
		if existing == nil {
			return rejected(action, email, account.ErrAccountNotFound), nil
		}
		return f.regenerate(ctx, email, tok)
	}
}

func (f *Flow) register(ctx context.Context, email string, tok *oauth2.Token) (*Outcome, error) {
	if tok.RefreshToken == "" {
		f.revokeAsync(ctx, email, tok.AccessToken)
		return rejected(ActionRegister, email, ErrNoRefreshToken), nil
	}

	apiKey, err := f.generateKey()
	if err != nil {
		return nil, err
	}
	if _, err := f.store.Create(ctx, email, tok.RefreshToken, apiKey); err != nil {
		if errors.Is(err, account.ErrDuplicateAccount) {
			// Lost a race with a concurrent registration of the same mailbox.
			return &Outcome{Action: ActionRegister, Status: StatusAlreadyRegistered, Email: email}, nil
		}
		return nil, err
	}
	f.cacheAccessToken(ctx, email, tok)

	return &Outcome{Action: ActionRegister, Status: StatusRegistered, Email: email, APIKey: apiKey}, nil
}

func (f *Flow) regenerate(ctx context.Context, email string, tok *oauth2.Token) (*Outcome, error) {
	apiKey, err := f.generateKey()
	if err != nil {
		return nil, err
	}
	if err := f.store.UpdateAPIKey(ctx, email, apiKey); err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			return rejected(ActionRegenerate, email, account.ErrAccountNotFound), nil
		}
		return nil, err
	}

	// The key is already rotated; token updates below only log on failure so
	// the new key is still shown.
	if tok.RefreshToken != "" {
		if err := f.store.UpdateRefreshToken(ctx, email, tok.RefreshToken); err != nil {
			f.logger.Warn("failed to store refresh token", logging.UserHash(email), logging.Err(err))
		}
	}
	f.cacheAccessToken(ctx, email, tok)

	return &Outcome{Action: ActionRegenerate, Status: StatusRegenerated, Email: email, APIKey: apiKey}, nil
}

func (f *Flow) cacheAccessToken(ctx context.Context, email string, tok *oauth2.Token) {
	if tok.AccessToken == "" || tok.Expiry.IsZero() {
		return
	}
	if err := f.store.UpdateAccessToken(ctx, email, tok.AccessToken, tok.Expiry.Unix()); err != nil {
		f.logger.Warn("failed to cache access token", logging.UserHash(email), logging.Err(err))
	}
}

// revokeAsync revokes token in the background. The callback never waits
// for it and a failure is only logged.
func (f *Flow) revokeAsync(ctx context.Context, email, token string) {
	if token == "" {
		return
	}
	f.revocations.Add(1)
	go func() {
		defer f.revocations.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.revokeTimeout)
		defer cancel()

		err := f.provider.Revoke(ctx, token)
		f.audit.TokenRevoked(email, err)
		if err != nil {
			f.logger.Warn("token revocation failed", logging.Err(err))
			return
		}
		f.logger.Debug("token revoked")
	}()
}

// Wait blocks until background revocations have finished.
func (f *Flow) Wait() {
	f.revocations.Wait()
}

func rejected(action Action, email string, reason error) *Outcome {
	return &Outcome{Action: action, Status: StatusRejected, Email: email, Reason: reason}
}
