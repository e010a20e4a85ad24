package smtpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/smtpbridge/internal/gmail"
	"github.com/teemow/smtpbridge/internal/instrumentation"
	"github.com/teemow/smtpbridge/internal/logging"
	"github.com/teemow/smtpbridge/internal/smtpauth"
)

// Authenticator verifies SMTP credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (smtpauth.Identity, error)
}

// TokenSource returns an access token for a mailbox.
type TokenSource interface {
	GetValidAccessToken(ctx context.Context, email string) (string, error)
}

// Deliverer sends a raw message with an access token.
type Deliverer interface {
	Send(ctx context.Context, accessToken string, raw []byte) (string, error)
}

// Backend implements smtp.Backend.
type Backend struct {
	auth        Authenticator
	tokens      TokenSource
	deliverer   Deliverer
	registerURL string
	logger      *slog.Logger
	metrics     *instrumentation.Metrics
	baseCtx     context.Context
}

var _ smtp.Backend = (*Backend)(nil)

// BackendOption configures a Backend.
type BackendOption func(*Backend)

// WithRegisterURL is included in replies that ask the user to register again.
func WithRegisterURL(u string) BackendOption {
	return func(b *Backend) {
		b.registerURL = u
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) BackendOption {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics records session and message metrics.
func WithMetrics(metrics *instrumentation.Metrics) BackendOption {
	return func(b *Backend) {
		b.metrics = metrics
	}
}

// WithBaseContext sets the parent context of every session. Cancelling it
// aborts in-flight token refreshes and sends.
func WithBaseContext(ctx context.Context) BackendOption {
	return func(b *Backend) {
		b.baseCtx = ctx
	}
}

// NewBackend creates a Backend.
func NewBackend(auth Authenticator, tokens TokenSource, deliverer Deliverer, opts ...BackendOption) *Backend {
	b := &Backend{
		auth:      auth,
		tokens:    tokens,
		deliverer: deliverer,
		logger:    slog.Default(),
		baseCtx:   context.Background(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logging.WithComponent(b.logger, "smtp")
	return b
}

// NewSession implements smtp.Backend.
func (b *Backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	id := uuid.NewString()
	remote := ""
	if nc := c.Conn(); nc != nil {
		remote = nc.RemoteAddr().String()
	}

	ctx, cancel := context.WithCancel(smtpauth.WithRemoteAddr(b.baseCtx, remote))
	b.metrics.SessionOpened(ctx)

	return &session{
		backend: b,
		ctx:     ctx,
		cancel:  cancel,
		logger:  b.logger.With(logging.Session(id), logging.Remote(remote)),
	}, nil
}

type session struct {
	backend *Backend
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger

	identity *smtpauth.Identity
	from     string
	rcpts    []string
}

var _ smtp.AuthSession = (*session)(nil)

func (s *session) AuthMechanisms() []string {
	return []string{sasl.Plain, sasl.Login}
}

func (s *session) Auth(mech string) (sasl.Server, error) {
	switch mech {
	case sasl.Plain:
		return sasl.NewPlainServer(func(identity, username, password string) error {
			if identity != "" && identity != username {
				return errAuthzMismatch
			}
			return s.authenticate(username, password)
		}), nil
	case sasl.Login:
		return newLoginServer(s.authenticate), nil
	}
	return nil, smtp.ErrAuthUnsupported
}

func (s *session) authenticate(username, password string) error {
	id, err := s.backend.auth.Authenticate(s.ctx, username, password)
	if err != nil {
		var authErr *smtpauth.AuthError
		if !errors.As(err, &authErr) {
			s.logger.Error("authentication backend failed", logging.Err(err))
		}
		return authReply(err)
	}
	s.identity = &id
	s.logger = s.logger.With(logging.UserHash(id.Email))
	return nil
}

func (s *session) Mail(from string, _ *smtp.MailOptions) error {
	if s.identity == nil {
		return errAuthRequired
	}
	s.from = from
	return nil
}

func (s *session) Rcpt(to string, _ *smtp.RcptOptions) error {
	if s.identity == nil {
		return errAuthRequired
	}
	if s.from == "" {
		return errBadSequence
	}
	s.rcpts = append(s.rcpts, to)
	return nil
}

func (s *session) Data(r io.Reader) error {
	if s.identity == nil {
		return errAuthRequired
	}

	ctx, span := instrumentation.StartSpan(s.ctx, "smtp.data",
		attribute.Int(instrumentation.SpanAttrRecipient, len(s.rcpts)))
	defer span.End()

	start := time.Now()
	id, err := s.deliver(ctx, r)
	if err != nil {
		reply, status := deliveryReply(err, s.backend.registerURL)
		s.backend.metrics.RecordSMTPMessage(ctx, status)
		instrumentation.SetSpanError(span, err)
		s.logger.Warn("message delivery failed",
			slog.Int("smtp_code", reply.Code),
			slog.Int("recipients", len(s.rcpts)),
			logging.Err(err))
		return reply
	}

	s.backend.metrics.RecordSMTPMessage(ctx, instrumentation.StatusSuccess)
	instrumentation.SetSpanSuccess(span)
	s.logger.Info("message relayed",
		slog.String("message_id", id),
		slog.Int("recipients", len(s.rcpts)),
		slog.Duration(logging.KeyDuration, time.Since(start)))
	return nil
}

func (s *session) deliver(ctx context.Context, r io.Reader) (string, error) {
	raw, err := gmail.Rewrite(r, s.identity.Email, s.rcpts)
	if err != nil {
		return "", err
	}
	accessToken, err := s.backend.tokens.GetValidAccessToken(ctx, s.identity.Email)
	if err != nil {
		return "", fmt.Errorf("failed to get access token: %w", err)
	}
	return s.backend.deliverer.Send(ctx, accessToken, raw)
}

// Reset clears the transaction but keeps the authenticated identity.
func (s *session) Reset() {
	s.from = ""
	s.rcpts = nil
}

func (s *session) Logout() error {
	s.backend.metrics.SessionClosed(s.ctx)
	s.cancel()
	return nil
}
