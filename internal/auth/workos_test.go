package auth

import "testing"

func TestOrgSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"user@example.com", "user-example-com"},
		{"org_01HXAMPLE", "org-01hxample"},
		{"Acme Corp", "acme-corp"},
		{"--weird--", "weird"},
		{"", "org"},
		{"!!!", "org"},
	}
	for _, tt := range tests {
		if got := orgSlug(tt.in); got != tt.want {
			t.Errorf("orgSlug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
