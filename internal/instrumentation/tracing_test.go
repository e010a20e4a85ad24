package instrumentation

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestStartSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "token.refresh", attribute.String(SpanAttrUserHash, "user:abc"))
	defer span.End()

	if ctx == nil || span == nil {
		t.Fatal("expected context and span")
	}

	SetSpanError(span, errors.New("boom"))
	SetSpanError(span, nil)
	SetSpanSuccess(span)
}

func TestStartGoogleAPISpan(t *testing.T) {
	_, span := StartGoogleAPISpan(context.Background(), "gmail", "send", attribute.Int(SpanAttrRecipient, 2))
	defer span.End()

	if span == nil {
		t.Fatal("expected span")
	}
}

func TestGetTraceID_NoSpan(t *testing.T) {
	if id := GetTraceID(context.Background()); id != "" {
		t.Errorf("expected empty trace id, got %q", id)
	}
}
