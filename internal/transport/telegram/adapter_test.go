package telegram

import (
	"strings"
	"testing"
)

func TestSplitTextShortPassesThrough(t *testing.T) {
	t.Parallel()
	got := splitText("hello", 100)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("splitText = %v, want single unmodified chunk", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("a", 60) + "\n" + strings.Repeat("b", 60)
	got := splitText(text, 100)
	if len(got) != 2 {
		t.Fatalf("chunks = %d, want 2: %v", len(got), got)
	}
	if !strings.HasSuffix(got[0], "\n") {
		t.Fatalf("first chunk should end at the newline, got %q", got[0])
	}
	if got[1] != strings.Repeat("b", 60) {
		t.Fatalf("second chunk = %q", got[1])
	}
}

func TestSplitTextNoBoundaryFallsBackToHardCut(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("x", 250)
	got := splitText(text, 100)
	if len(got) != 3 {
		t.Fatalf("chunks = %d, want 3", len(got))
	}
	if joined := strings.Join(got, ""); joined != text {
		t.Fatal("chunks must reassemble to the original text")
	}
}
