package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesByKind(t *testing.T) {
	err := Newf(KindConflict, "overlaps %s", "appt-1")
	if !errors.Is(err, ErrConflict) {
		t.Fatal("expected conflict error to match ErrConflict")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("conflict must not match not_found")
	}

	wrapped := fmt.Errorf("create availability: %w", err)
	if KindOf(wrapped) != KindConflict {
		t.Fatalf("expected conflict kind, got %s", KindOf(wrapped))
	}
	if ReasonOf(wrapped) != "overlaps appt-1" {
		t.Fatalf("unexpected reason %q", ReasonOf(wrapped))
	}
}

func TestForeignErrorsAreInternal(t *testing.T) {
	err := errors.New("connection reset")
	if KindOf(err) != KindInternal {
		t.Fatalf("expected internal kind, got %s", KindOf(err))
	}
	if ReasonOf(err) != "internal error" {
		t.Fatalf("reason leaked: %q", ReasonOf(err))
	}

	in := Internal(err)
	if !errors.Is(in, err) {
		t.Fatal("Internal must keep the cause")
	}
	if in.Reason != "internal error" {
		t.Fatalf("reason leaked: %q", in.Reason)
	}
}
