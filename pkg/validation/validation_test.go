package validation

import (
	"strings"
	"testing"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{"valid", "alice", false},
		{"with digits and dot", "bob.2", false},
		{"unicode letters", "zoé", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"spaces inside", "al ice", true},
		{"too long", strings.Repeat("a", MaxUsernameBytes+1), true},
		{"control char", "ali\x00ce", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUsername() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateHost(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		wantErr bool
	}{
		{"localhost", "localhost", false},
		{"ipv4", "192.168.1.10", false},
		{"ipv6", "::1", false},
		{"fqdn", "relay.nexo.example", false},
		{"empty", "", true},
		{"underscore", "bad_host", true},
		{"trailing dash", "host-", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHost(tt.host)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateHost() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePort(t *testing.T) {
	for _, p := range []int{1, 5000, 65535} {
		if err := ValidatePort(p, "port"); err != nil {
			t.Errorf("ValidatePort(%d) unexpected error: %v", p, err)
		}
	}
	for _, p := range []int{0, -1, 65536} {
		if err := ValidatePort(p, "port"); err == nil {
			t.Errorf("ValidatePort(%d) expected error", p)
		}
	}
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{":5000", false},
		{"127.0.0.1:6000", false},
		{"relay.local:8080", false},
		{"5000", true},
		{"bad_host:5000", true},
		{"localhost:", true},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			err := ValidateAddress(tt.addr, "addr")
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAddress(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
		})
	}
}

func TestValidateRange(t *testing.T) {
	if err := ValidateRange(40, 1, 100, "quality"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateRange(0, 1, 100, "quality"); err == nil {
		t.Error("expected error for value below range")
	}
}
