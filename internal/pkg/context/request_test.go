package context

import (
	"context"
	"testing"
)

func TestRequestID(t *testing.T) {
	ctx := context.Background()

	if got := RequestID(ctx); got != "" {
		t.Errorf("RequestID() on empty context = %q, want empty", got)
	}

	ctx = WithRequestID(ctx, "req-42")
	if got := RequestID(ctx); got != "req-42" {
		t.Errorf("RequestID() = %q, want req-42", got)
	}

	// A foreign key type with the same string value must not collide.
	type otherKey string
	leaky := context.WithValue(context.Background(), otherKey("request_id"), "spoofed")
	if got := RequestID(leaky); got != "" {
		t.Errorf("RequestID() with foreign key type = %q, want empty", got)
	}
}

func TestAnalysisID(t *testing.T) {
	ctx := context.Background()

	if got := AnalysisID(ctx); got != "" {
		t.Errorf("AnalysisID() on empty context = %q, want empty", got)
	}

	ctx = WithAnalysisID(ctx, "a1b2c3")
	if got := AnalysisID(ctx); got != "a1b2c3" {
		t.Errorf("AnalysisID() = %q, want a1b2c3", got)
	}
}

func TestIDsCoexist(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithAnalysisID(ctx, "an-1")

	if got := RequestID(ctx); got != "req-1" {
		t.Errorf("RequestID() = %q, want req-1", got)
	}
	if got := AnalysisID(ctx); got != "an-1" {
		t.Errorf("AnalysisID() = %q, want an-1", got)
	}
}
