package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrMethod  = "method"
	attrPath    = "path"
	attrStatus  = "status"
	attrResult  = "result"
	attrOutcome = "outcome"
	attrAction  = "action"
)

// Metrics provides methods for recording observability metrics.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// SMTP metrics
	smtpAuthTotal      metric.Int64Counter
	smtpSessionsActive metric.Int64UpDownCounter
	smtpMessagesTotal  metric.Int64Counter

	// Token metrics
	tokenRefreshTotal metric.Int64Counter
	tokenCacheTotal   metric.Int64Counter

	// Delivery metrics
	gmailSendTotal    metric.Int64Counter
	gmailSendDuration metric.Float64Histogram

	// Registration metrics
	registrationTotal metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with all instruments initialized.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	if m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	); err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	if m.smtpAuthTotal, err = meter.Int64Counter(
		"smtp_auth_total",
		metric.WithDescription("Total number of SMTP AUTH attempts"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create smtp_auth_total counter: %w", err)
	}

	if m.smtpSessionsActive, err = meter.Int64UpDownCounter(
		"smtp_sessions_active",
		metric.WithDescription("Number of open SMTP sessions"),
		metric.WithUnit("{session}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create smtp_sessions_active gauge: %w", err)
	}

	if m.smtpMessagesTotal, err = meter.Int64Counter(
		"smtp_messages_total",
		metric.WithDescription("Total number of messages received over SMTP"),
		metric.WithUnit("{message}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create smtp_messages_total counter: %w", err)
	}

	if m.tokenRefreshTotal, err = meter.Int64Counter(
		"oauth_token_refresh_total",
		metric.WithDescription("Total number of OAuth token refresh attempts"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_refresh_total counter: %w", err)
	}

	if m.tokenCacheTotal, err = meter.Int64Counter(
		"token_cache_total",
		metric.WithDescription("Access token lookups served from the account store"),
		metric.WithUnit("{lookup}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create token_cache_total counter: %w", err)
	}

	if m.gmailSendTotal, err = meter.Int64Counter(
		"gmail_send_total",
		metric.WithDescription("Total number of Gmail API send calls"),
		metric.WithUnit("{message}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create gmail_send_total counter: %w", err)
	}

	if m.gmailSendDuration, err = meter.Float64Histogram(
		"gmail_send_duration_seconds",
		metric.WithDescription("Gmail API send duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	); err != nil {
		return nil, fmt.Errorf("failed to create gmail_send_duration_seconds histogram: %w", err)
	}

	if m.registrationTotal, err = meter.Int64Counter(
		"registration_total",
		metric.WithDescription("Total number of completed registration callbacks"),
		metric.WithUnit("{callback}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create registration_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordSMTPAuth records an SMTP AUTH attempt. Result is one of the AuthResult constants.
func (m *Metrics) RecordSMTPAuth(ctx context.Context, result string) {
	if m == nil || m.smtpAuthTotal == nil {
		return
	}
	m.smtpAuthTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// SessionOpened increments the open SMTP sessions gauge.
func (m *Metrics) SessionOpened(ctx context.Context) {
	if m == nil || m.smtpSessionsActive == nil {
		return
	}
	m.smtpSessionsActive.Add(ctx, 1)
}

// SessionClosed decrements the open SMTP sessions gauge.
func (m *Metrics) SessionClosed(ctx context.Context) {
	if m == nil || m.smtpSessionsActive == nil {
		return
	}
	m.smtpSessionsActive.Add(ctx, -1)
}

// RecordSMTPMessage records the final status of a DATA command.
func (m *Metrics) RecordSMTPMessage(ctx context.Context, status string) {
	if m == nil || m.smtpMessagesTotal == nil {
		return
	}
	m.smtpMessagesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, status)))
}

// RecordTokenRefresh records an OAuth token refresh attempt.
// Result should be one of the RefreshResult constants.
func (m *Metrics) RecordTokenRefresh(ctx context.Context, result string) {
	if m == nil || m.tokenRefreshTotal == nil {
		return
	}
	m.tokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordTokenCache records whether a cached access token could be reused.
func (m *Metrics) RecordTokenCache(ctx context.Context, hit bool) {
	if m == nil || m.tokenCacheTotal == nil {
		return
	}
	result := CacheMiss
	if hit {
		result = CacheHit
	}
	m.tokenCacheTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordGmailSend records a Gmail API send call with its status and duration.
func (m *Metrics) RecordGmailSend(ctx context.Context, status string, duration time.Duration) {
	if m == nil || m.gmailSendTotal == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(attrStatus, status))
	m.gmailSendTotal.Add(ctx, 1, attrs)
	m.gmailSendDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordRegistration records the terminal outcome of a registration callback.
func (m *Metrics) RecordRegistration(ctx context.Context, action, outcome string) {
	if m == nil || m.registrationTotal == nil {
		return
	}
	m.registrationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrAction, action),
		attribute.String(attrOutcome, outcome),
	))
}
