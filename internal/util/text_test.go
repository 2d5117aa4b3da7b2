package util

import "testing"

func TestNormalizeWhitespace(t *testing.T) {
	got := NormalizeWhitespace("  a\n\tb   c ")
	if got != "a b c" {
		t.Fatalf("got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("abcdefgh", 4); got != "abcd…" {
		t.Fatalf("got %q", got)
	}
	// rune-aware, not byte-aware
	if got := Truncate("星街すいせい", 2); got != "星街…" {
		t.Fatalf("got %q", got)
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("line one\nline two", 100); got != "line one line two" {
		t.Fatalf("got %q", got)
	}
}
