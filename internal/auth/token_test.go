package auth

import (
	"testing"
)

func TestDigest(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name:     "whitespace only",
			input:    "   ",
			expected: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Digest(tt.input); got != tt.expected {
				t.Errorf("Digest(%q) = %s, want %s", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDigest_TrimsAndIsStable(t *testing.T) {
	a := Digest("operator-token")
	b := Digest("  operator-token\n")
	if a != b {
		t.Errorf("expected surrounding whitespace to be ignored: %s != %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
	if Digest("other-token") == a {
		t.Error("expected different tokens to have different digests")
	}
}

func TestMatches(t *testing.T) {
	digest := Digest("operator-token")

	tests := []struct {
		name      string
		presented string
		want      bool
	}{
		{"exact", "operator-token", true},
		{"padded", " operator-token ", true},
		{"wrong", "operator-tokem", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(digest, tt.presented); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.presented, got, tt.want)
			}
		})
	}
}
