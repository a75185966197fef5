package ssh

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ConnectError wraps an SSH connection error with a user-friendly hint.
type ConnectError struct {
	Host string
	Err  error
	Hint string
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s: %v\n  hint: %s", e.Host, e.Err, e.Hint)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// WrapConnectError wraps an SSH connection error with a friendly hint.
// If the error doesn't match any known patterns, it's returned as-is.
func WrapConnectError(host string, err error) error {
	if err == nil {
		return nil
	}

	hint := func(h string) error {
		return &ConnectError{Host: host, Err: err, Hint: h}
	}

	msg := err.Error()

	// Permission denied on SSH key file.
	if strings.Contains(msg, "permission denied") && strings.Contains(msg, "key") {
		return hint("check SSH key permissions (chmod 600)")
	}

	// SSH authentication failure.
	if strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "no supported methods remain") ||
		strings.Contains(msg, "handshake failed") {
		return hint(fmt.Sprintf("verify the fleet key or agent. Try: ssh -v %s", host))
	}

	// Connection refused.
	if strings.Contains(msg, "connection refused") {
		return hint("verify the SSH daemon is running on the balancer")
	}

	// DNS resolution failure.
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) ||
		strings.Contains(msg, "no such host") || strings.Contains(msg, "lookup") {
		return hint("verify the address in drover.yaml is correct")
	}

	// Known hosts: missing entry.
	if strings.Contains(msg, "no known_hosts") || strings.Contains(msg, "knownhosts") {
		return hint(fmt.Sprintf("use --insecure or connect once with: ssh %s", host))
	}

	// Known hosts: key mismatch (rebuilt balancer with a new host key).
	var keyErr *knownhosts.KeyError
	if errors.As(err, &keyErr) {
		return hint(fmt.Sprintf("remove old key with: ssh-keygen -R %s", host))
	}

	// Auth-related SSH handshake errors that slip past the string checks.
	var authErr *ssh.ServerAuthError
	if errors.As(err, &authErr) {
		return hint(fmt.Sprintf("verify the fleet key or agent. Try: ssh -v %s", host))
	}

	return err
}
