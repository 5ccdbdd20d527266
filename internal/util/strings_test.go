package util

import "testing"

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"shorter than limit", "hello", 10, "hello"},
		{"exactly at limit", "hello", 5, "hello"},
		{"over the limit", "hello world", 8, "hello..."},
		{"tiny limit", "hello", 3, "..."},
		{"multibyte runes", "héllo wörld", 8, "héllo..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateString(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("TruncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestSubject(t *testing.T) {
	got := Subject("  fix the limiter\nand other stuff\n", 72)
	if got != "fix the limiter" {
		t.Errorf("Subject() = %q", got)
	}

	long := "fix the limiter by rewriting the token bucket and the sliding window and the cleanup loop"
	if got := Subject(long, 30); len([]rune(got)) != 30 {
		t.Errorf("Subject() length = %d, want 30", len([]rune(got)))
	}
}
