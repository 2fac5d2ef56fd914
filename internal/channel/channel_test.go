package channel

import "testing"

func TestNormalizeReply(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"yes", "yes"},
		{"YES", "yes"},
		{"  Yes \n", "yes"},
		{"no", "no"},
		{"No thanks", ""},
		{"maybe", ""},
		{"", ""},
		{"y", ""},
	}

	for _, tt := range tests {
		if got := normalizeReply(tt.in); got != tt.want {
			t.Errorf("normalizeReply(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseChatID(t *testing.T) {
	if id, err := parseChatID("-100123"); err != nil || id != -100123 {
		t.Errorf("parseChatID(-100123) = %d, %v", id, err)
	}
	if _, err := parseChatID("abc"); err == nil {
		t.Error("parseChatID(abc) should fail")
	}
}
