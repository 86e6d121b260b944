package requestid

import (
	"context"
	"testing"
)

func TestWithRequestID_RoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	if got := FromContext(ctx); got != "req-1" {
		t.Fatalf("FromContext = %q, want %q", got, "req-1")
	}
}

func TestWithRequestID_EmptyLeavesContextUntouched(t *testing.T) {
	ctx := context.Background()
	if WithRequestID(ctx, "") != ctx {
		t.Fatalf("empty id must not wrap the context")
	}
	if FromContext(ctx) != "" {
		t.Fatalf("expected no request id")
	}
}

func TestNew_IsUnique(t *testing.T) {
	a, b := New(), New()
	if a == "" || a == b {
		t.Fatalf("New returned %q and %q", a, b)
	}
}
