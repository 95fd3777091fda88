package validation

import "testing"

func TestIsValidSIN(t *testing.T) {
	tests := []struct {
		name  string
		sin   string
		valid bool
	}{
		{
			name:  "valid example 1",
			sin:   "046454286",
			valid: true,
		},
		{
			name:  "valid example 2",
			sin:   "130692544",
			valid: true,
		},
		{
			name:  "invalid checksum",
			sin:   "046454287",
			valid: false,
		},
		{
			name:  "too short",
			sin:   "12345678",
			valid: false,
		},
		{
			name:  "too long",
			sin:   "1234567890",
			valid: false,
		},
		{
			name:  "contains letters",
			sin:   "04645428a",
			valid: false,
		},
		{
			name:  "empty string",
			sin:   "",
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidSIN(tt.sin)
			if got != tt.valid {
				t.Fatalf("IsValidSIN(%q) = %v, want %v", tt.sin, got, tt.valid)
			}
		})
	}
}
