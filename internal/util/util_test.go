package util

import "testing"

func TestRandomLetters(t *testing.T) {
	s := RandomLetters(8)
	if len(s) != 8 {
		t.Fatalf("expected 8 letters, got %q", s)
	}
	for _, r := range s {
		if r < 'a' || r > 'z' {
			t.Fatalf("expected lowercase letters, got %q", s)
		}
	}
}
