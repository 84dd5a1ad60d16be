package messaging

import "testing"

func TestNormalizeE164(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+55 11 99999-9999", "+5511999999999"},
		{"5511999999999", "+5511999999999"},
		{"  +1 (555) 000-1111 ", "+15550001111"},
		{"", ""},
		{"abc", ""},
	}
	for _, tt := range tests {
		if got := NormalizeE164(tt.in); got != tt.want {
			t.Errorf("NormalizeE164(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
