package validation

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"unicode/utf8"
)

// UsernameRegex validates the characters allowed in a call username
var UsernameRegex = regexp.MustCompile(`^[\p{L}\p{N}_.\-]+$`)

// HostnameRegex validates RFC 1123 style hostnames
var HostnameRegex = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?)(\.[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?)*$`)

// MaxUsernameBytes bounds the username carried in the video relay handshake.
const MaxUsernameBytes = 256

// ValidateUsername validates username
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if !utf8.ValidString(username) {
		return fmt.Errorf("username must be valid UTF-8")
	}
	if len(username) > MaxUsernameBytes {
		return fmt.Errorf("username is too long (max %d bytes)", MaxUsernameBytes)
	}
	if !UsernameRegex.MatchString(username) {
		return fmt.Errorf("username contains invalid characters (only letters, numbers, _, -, . allowed)")
	}
	return nil
}

// ValidateHost validates a relay host name or IP address
func ValidateHost(host string) error {
	host = strings.TrimSpace(host)
	if host == "" {
		return fmt.Errorf("host is required")
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	if len(host) > 253 || !HostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid host: %s", host)
	}
	return nil
}

// ValidatePort validates a TCP port number
func ValidatePort(port int, fieldName string) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535", fieldName)
	}
	return nil
}

// ValidateAddress validates a host:port listen or dial address. Empty host
// is allowed (listen on all interfaces).
func ValidateAddress(addr, fieldName string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%s: %w", fieldName, err)
	}
	if host != "" {
		if err := ValidateHost(host); err != nil {
			return fmt.Errorf("%s: %w", fieldName, err)
		}
	}
	if port == "" {
		return fmt.Errorf("%s: port is required", fieldName)
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty
func ValidateNonEmptyString(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateRange validates that an integer lies within [min, max]
func ValidateRange(v, min, max int, fieldName string) error {
	if v < min || v > max {
		return fmt.Errorf("%s must be between %d and %d", fieldName, min, max)
	}
	return nil
}
