package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/smtpbridge/internal/google"
	"github.com/teemow/smtpbridge/internal/instrumentation"
	"github.com/teemow/smtpbridge/internal/logging"
)

// UpstreamAPIError is returned when the Gmail API answered with an error
// status.
type UpstreamAPIError struct {
	Status  int
	Message string
}

func (e *UpstreamAPIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gmail api error: status %d", e.Status)
	}
	return fmt.Sprintf("gmail api error: status %d: %s", e.Status, e.Message)
}

// Temporary reports whether retrying later may succeed. Rate limiting and
// server errors are temporary; other client errors are not.
func (e *UpstreamAPIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Sender sends raw messages through users.messages.send.
type Sender struct {
	client   *http.Client
	endpoint string
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
}

// Option configures a Sender.
type Option func(*Sender)

// WithHTTPClient sets the base HTTP client. The access token is added on top
// of its transport.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Sender) {
		s.client = client
	}
}

// WithEndpoint overrides the Gmail API base URL.
func WithEndpoint(endpoint string) Option {
	return func(s *Sender) {
		s.endpoint = endpoint
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sender) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records send counts and latency.
func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(s *Sender) {
		s.metrics = metrics
	}
}

// NewSender creates a Sender.
func NewSender(opts ...Option) *Sender {
	s := &Sender{
		client: google.NewHTTPClient(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.WithComponent(s.logger, "gmail")
	return s
}

// Send delivers raw as the mailbox that accessToken belongs to and returns
// the Gmail message ID. API failures are returned as *UpstreamAPIError.
func (s *Sender) Send(ctx context.Context, accessToken string, raw []byte) (string, error) {
	if accessToken == "" {
		return "", errors.New("access token is required")
	}
	if len(raw) == 0 {
		return "", errors.New("message is empty")
	}

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, "gmail", "messages.send",
		attribute.Int("message.size", len(raw)))
	defer span.End()

	start := time.Now()
	id, err := s.send(ctx, accessToken, raw)
	duration := time.Since(start)

	if err != nil {
		status := instrumentation.SendStatusServerError
		var apiErr *UpstreamAPIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			status = instrumentation.SendStatusClientError
		}
		s.metrics.RecordGmailSend(ctx, status, duration)
		instrumentation.SetSpanError(span, err)
		return "", err
	}

	s.metrics.RecordGmailSend(ctx, instrumentation.StatusSuccess, duration)
	instrumentation.SetSpanSuccess(span)
	s.logger.Debug("message sent", slog.String("message_id", id), slog.Duration(logging.KeyDuration, duration))
	return id, nil
}

func (s *Sender) send(ctx context.Context, accessToken string, raw []byte) (string, error) {
	httpClient := oauth2.NewClient(google.WithHTTPClient(ctx, s.client),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create gmail service: %w", err)
	}

	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	sent, err := svc.Users.Messages.Send("me", msg).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			return "", &UpstreamAPIError{Status: gerr.Code, Message: gerr.Message}
		}
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	return sent.Id, nil
}
