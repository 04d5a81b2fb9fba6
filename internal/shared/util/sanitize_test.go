package util

import (
	"strings"
	"testing"
)

func TestSanitizeFileName(t *testing.T) {
	if _, err := SanitizeFileName("../etc/passwd"); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
	got, err := SanitizeFileName(" reports/soc2\x00.pdf ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "reports_soc2.pdf" {
		t.Fatalf("unexpected name %q", got)
	}

	long := strings.Repeat("a", 400) + ".pdf"
	got, err = SanitizeFileName(long)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 255 || !strings.HasSuffix(got, ".pdf") {
		t.Fatalf("expected truncated name with extension, got len=%d", len(got))
	}
}

func TestSanitizeText(t *testing.T) {
	got := SanitizeText("hello\x07 world\n\tok")
	if got != "hello world\n\tok" {
		t.Fatalf("unexpected text %q", got)
	}
}
