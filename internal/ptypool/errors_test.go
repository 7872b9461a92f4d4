package ptypool

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	err := newErr(KindCapacity, "session-7", nil)

	if !errors.Is(err, ErrCapacity) {
		t.Error("errors.Is(err, ErrCapacity) = false, want true")
	}
	if errors.Is(err, ErrDuplicate) {
		t.Error("errors.Is(err, ErrDuplicate) = true, want false")
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := fmt.Errorf("boom")
	err := newErr(KindIO, "write failed", inner)

	if !errors.Is(err, inner) {
		t.Error("errors.Is(err, inner) = false, want true")
	}
}

func TestKindOf(t *testing.T) {
	err := newErr(KindTimeout, "roundtrip", nil)

	kind, ok := KindOf(err)
	if !ok {
		t.Fatal("KindOf returned ok=false for a *Error")
	}
	if kind != KindTimeout {
		t.Errorf("kind = %q, want %q", kind, KindTimeout)
	}

	if _, ok := KindOf(fmt.Errorf("plain error")); ok {
		t.Error("KindOf returned ok=true for a non-*Error")
	}
}

func TestErrorMessageIncludesKindAndDetail(t *testing.T) {
	err := newErr(KindUnknownSession, "7", nil)
	msg := err.Error()

	if msg == "" {
		t.Fatal("Error() returned empty string")
	}
	if !strings.Contains(msg, string(KindUnknownSession)) || !strings.Contains(msg, "7") {
		t.Errorf("Error() = %q, want it to include %q and %q", msg, KindUnknownSession, "7")
	}
}
