// Package instrumentation provides OpenTelemetry metrics and tracing for
// smtpbridge.
//
// # Metrics
//
// SMTP:
//   - smtp_auth_total: AUTH attempts by result
//   - smtp_sessions_active: open SMTP sessions
//   - smtp_messages_total: DATA commands by status
//
// Tokens:
//   - oauth_token_refresh_total: refresh attempts by result
//   - token_cache_total: access token lookups by result (hit, miss)
//
// Delivery:
//   - gmail_send_total: Gmail API sends by status
//   - gmail_send_duration_seconds: Gmail API send latency
//
// Registration and HTTP:
//   - registration_total: OAuth callbacks by outcome
//   - http_requests_total, http_request_duration_seconds
//
// # Tracing
//
// Spans are created around token refresh (token.refresh), Gmail delivery
// (google.gmail.send) and the registration callback (registration.callback).
//
// # Configuration
//
// Instrumentation is configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: smtpbridge)
//
// A nil *Metrics and a zero Metrics are both safe to record on; every
// Record method is a no-op until NewMetrics has initialized the instruments.
package instrumentation
