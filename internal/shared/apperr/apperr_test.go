package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindsSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("start analysis: %w", Validation("session %s has no files", "s1"))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation kind")
	}
	if errors.Is(err, ErrConflict) {
		t.Fatalf("unexpected conflict kind")
	}
	if Message(err) != "session s1 has no files" {
		t.Fatalf("unexpected message %q", Message(err))
	}
}

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(ErrInference, context.DeadlineExceeded)
	if !errors.Is(err, ErrInference) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected both kind and cause in chain: %v", err)
	}
	if Wrap(ErrInference, nil) != nil {
		t.Fatalf("wrapping nil should return nil")
	}
}
