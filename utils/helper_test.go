package utils

import (
	"strings"
	"testing"
)

func TestIsValidEmail(t *testing.T) {
	valid := []string{"ada@example.com", "o.brien+billing@mail.co.uk"}
	for _, e := range valid {
		if !IsValidEmail(e) {
			t.Errorf("IsValidEmail(%q) = false", e)
		}
	}
	invalid := []string{"", "not-an-email", "a@b", "a b@example.com"}
	for _, e := range invalid {
		if IsValidEmail(e) {
			t.Errorf("IsValidEmail(%q) = true", e)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("  hello  ", 100); got != "hello" {
		t.Errorf("Truncate trims whitespace: got %q", got)
	}
	if got := Truncate(strings.Repeat("x", 120), 100); len(got) != 100 {
		t.Errorf("Truncate length = %d, want 100", len(got))
	}
	if got := Truncate("short", 0); got != "short" {
		t.Errorf("max<=0 must pass through, got %q", got)
	}
}
