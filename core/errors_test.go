package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_KindOfAndUnwrap(t *testing.T) {
	base := errors.New("connection refused")
	err := WrapError(KindToolInvocation, base, "tool %q failed", "charge-token")

	if KindOf(err) != KindToolInvocation {
		t.Fatalf("expected tool_invocation_failed, got %s", KindOf(err))
	}
	if !errors.Is(err, base) {
		t.Error("wrapped cause should be reachable via errors.Is")
	}
	if !IsKind(err, KindToolInvocation) {
		t.Error("IsKind should match the carried kind")
	}
	if IsKind(err, KindCapacity) {
		t.Error("IsKind should reject a different kind")
	}
}

func TestError_KindSurvivesWrapping(t *testing.T) {
	inner := Errorf(KindHandoffViolation, "no edge from %s to %s", "planner", "charger")
	outer := fmt.Errorf("turn aborted: %w", inner)

	if KindOf(outer) != KindHandoffViolation {
		t.Fatalf("kind lost through fmt.Errorf wrapping: %s", KindOf(outer))
	}
}

func TestError_ForeignErrorsReportInternal(t *testing.T) {
	if KindOf(errors.New("plain")) != KindInternal {
		t.Error("non-taxonomy errors should classify as internal_error")
	}
	if KindOf(nil) != "" {
		t.Error("nil error should have no kind")
	}
}

func TestError_Message(t *testing.T) {
	err := Errorf(KindCapacity, "registry full (%d sessions)", 100)
	want := "capacity_exceeded: registry full (100 sessions)"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}

func TestError_MessageOfDropsKindPrefix(t *testing.T) {
	if got := MessageOf(Errorf(KindCapacity, "registry full")); got != "registry full" {
		t.Fatalf("got %q", got)
	}

	wrapped := WrapError(KindToolInvocation, errors.New("connection refused"), "tool failed")
	if got := MessageOf(wrapped); got != "tool failed: connection refused" {
		t.Fatalf("got %q", got)
	}

	if got := MessageOf(errors.New("plain")); got != "plain" {
		t.Fatalf("got %q", got)
	}
	if got := MessageOf(nil); got != "" {
		t.Fatalf("got %q", got)
	}
}
