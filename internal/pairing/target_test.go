package pairing

import (
	"errors"
	"testing"
)

func TestNormalizeTarget(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"plain", "491701234567", "491701234567", false},
		{"plus_prefix", "+491701234567", "491701234567", false},
		{"spaces", "+49 170 1234567", "491701234567", false},
		{"dashes", "49-170-123-4567", "491701234567", false},
		{"parens_and_dots", "(49) 170.123.4567", "491701234567", false},
		{"surrounding_whitespace", "  +491701234567  ", "491701234567", false},
		{"min_length", "1234567", "1234567", false},
		{"max_length", "123456789012345", "123456789012345", false},
		{"too_short", "123456", "", true},
		{"too_long", "1234567890123456", "", true},
		{"letters", "call-me-maybe", "", true},
		{"interior_plus", "49+1701234567", "", true},
		{"empty", "", "", true},
		{"only_punctuation", "+-()", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeTarget(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTarget) {
					t.Fatalf("NormalizeTarget(%q) error = %v, want ErrInvalidTarget", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeTarget(%q) error = %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeTarget(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestRefPathComponent(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		want string
	}{
		{"https_url", "https://files.example.com/store/abc123", "abc123"},
		{"s3_url", "s3://bucket/sessions/xyz789", "xyz789"},
		{"trailing_slash", "https://files.example.com/store/abc123/", "abc123"},
		{"bare_key", "abc123", "abc123"},
		{"nested_path", "https://h/a/b/c", "c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := refPathComponent(tt.ref); got != tt.want {
				t.Errorf("refPathComponent(%q) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}
}
