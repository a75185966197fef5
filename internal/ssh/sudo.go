package ssh

import (
	"bytes"
	"context"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// RunCommandWithSudo executes a command under sudo, feeding the
// password over stdin (`sudo -S`). A PTY is requested so sudo accepts
// the piped password on hosts that ship with `Defaults requiretty`;
// the PTY merges stderr into stdout, so stderr is returned empty when
// the command itself succeeds at the transport level. The sudo
// password prompt is stripped from the captured output.
func (c *Client) RunCommandWithSudo(ctx context.Context, command, sudoPassword string) (stdout, stderr []byte, exitCode int, err error) {
	session, err := c.sshClient.NewSession()
	if err != nil {
		return nil, nil, -1, fmt.Errorf("new session: %w", err)
	}
	defer session.Close()

	modes := ssh.TerminalModes{
		ssh.ECHO:          0, // no echo, keeps the password out of the output
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("xterm", 80, 40, modes); err != nil {
		return nil, nil, -1, fmt.Errorf("request pty: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		return nil, nil, -1, fmt.Errorf("stdin pipe: %w", err)
	}

	var outBuf, errBuf safeBuffer
	session.Stdout = &outBuf
	session.Stderr = &errBuf

	done := make(chan error, 1)
	go func() {
		done <- session.Run("sudo -S " + command)
	}()

	// sudo -S reads the password from stdin before running anything.
	go func() {
		fmt.Fprintf(stdin, "%s\n", sudoPassword)
		stdin.Close()
	}()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		session.Close()
		return nil, nil, -1, ctx.Err()
	case err := <-done:
		stdout = stripSudoPrompt(outBuf.Bytes())
		stderr = stripSudoPrompt(errBuf.Bytes())
		if err != nil {
			if exitErr, ok := err.(*ssh.ExitError); ok {
				return stdout, stderr, exitErr.ExitStatus(), nil
			}
			return stdout, stderr, -1, err
		}
		return stdout, stderr, 0, nil
	}
}

// stripSudoPrompt removes leading sudo password prompt lines
// ("[sudo] password for user:" or "Password:") that the PTY echoes
// into the output stream.
func stripSudoPrompt(output []byte) []byte {
	lines := bytes.SplitAfter(output, []byte("\n"))
	i := 0
	for i < len(lines) && isSudoPrompt(bytes.TrimSpace(lines[i])) {
		i++
	}
	if i == 0 {
		return output
	}
	return bytes.Join(lines[i:], nil)
}

// isSudoPrompt reports whether a trimmed line is a sudo password prompt.
func isSudoPrompt(line []byte) bool {
	if bytes.Equal(line, []byte("Password:")) {
		return true
	}
	return bytes.HasPrefix(line, []byte("[sudo] password for ")) && bytes.HasSuffix(line, []byte(":"))
}
