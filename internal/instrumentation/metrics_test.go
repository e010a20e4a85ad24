package instrumentation

import (
	"context"
	"testing"
	"time"
)

func TestMetrics_RecordAll(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := NewProvider(ctx, testConfig(ExporterPrometheus, ExporterNone))
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	defer func() { _ = provider.Shutdown(ctx) }()

	m := provider.Metrics()
	if m == nil {
		t.Fatal("expected metrics to be non-nil")
	}

	// Should not panic
	m.RecordHTTPRequest(ctx, "GET", "/register", 302, 10*time.Millisecond)
	m.RecordSMTPAuth(ctx, AuthResultSuccess)
	m.RecordSMTPAuth(ctx, AuthResultInvalidKey)
	m.SessionOpened(ctx)
	m.SessionClosed(ctx)
	m.RecordSMTPMessage(ctx, StatusSuccess)
	m.RecordTokenRefresh(ctx, RefreshResultFailure)
	m.RecordTokenCache(ctx, true)
	m.RecordTokenCache(ctx, false)
	m.RecordGmailSend(ctx, SendStatusServerError, 300*time.Millisecond)
	m.RecordRegistration(ctx, "register", "registered")
}

func TestMetrics_NilSafe(t *testing.T) {
	ctx := context.Background()

	var nilMetrics *Metrics
	zero := &Metrics{}

	for _, m := range []*Metrics{nilMetrics, zero} {
		m.RecordHTTPRequest(ctx, "GET", "/", 200, time.Millisecond)
		m.RecordSMTPAuth(ctx, AuthResultSuccess)
		m.SessionOpened(ctx)
		m.SessionClosed(ctx)
		m.RecordSMTPMessage(ctx, StatusError)
		m.RecordTokenRefresh(ctx, RefreshResultSuccess)
		m.RecordTokenCache(ctx, true)
		m.RecordGmailSend(ctx, StatusSuccess, time.Millisecond)
		m.RecordRegistration(ctx, "regenerate", "rejected")
	}
}
