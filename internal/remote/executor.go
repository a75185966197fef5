// Package remote provides the uniform execution capability drover
// uses against every balancer: run a privileged command, copy a file
// into a privileged location, or mirror a whole directory tree.
//
// Unprivileged SFTP cannot write under /etc, so mutations happen in
// two phases: material is first mirrored into a user-writable staging
// directory on the host, then a privileged remote command (install,
// rsync) materializes it at the final path.
package remote

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/sftp"

	dssh "github.com/agent462/drover/internal/ssh"
)

// SyncOptions controls SyncTree behavior.
type SyncOptions struct {
	// Delete removes remote files absent from the local tree, making
	// the remote directory an exact mirror rather than a superset.
	Delete bool
}

// Executor is the capability interface the orchestration layers
// depend on. Implementations must never panic on remote failure;
// every failure is reported through the returned Outcome.
type Executor interface {
	RunPrivileged(ctx context.Context, host, command string) *Outcome
	CopyFile(ctx context.Context, host, localPath, remotePath string, mode os.FileMode) *Outcome
	SyncTree(ctx context.Context, host, localDir, remoteDir string, opts SyncOptions) *Outcome
}

// SSH is the production Executor, running operations over pooled SSH
// connections with SFTP for transfers. Operations against the same
// host are serialized; different hosts proceed independently.
type SSH struct {
	pool         *dssh.Pool
	logger       log.Logger
	stagingDir   string
	timeout      time.Duration
	sudoPassword string
	progress     ProgressFunc

	mu     sync.Mutex
	hostMu map[string]*sync.Mutex
}

// Option configures an SSH executor.
type Option func(*SSH)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l log.Logger) Option {
	return func(s *SSH) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTimeout bounds each remote operation. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *SSH) { s.timeout = d }
}

// WithStagingDir sets the user-writable staging directory on the
// remote hosts. A relative path resolves against the operations
// user's home directory.
func WithStagingDir(dir string) Option {
	return func(s *SSH) {
		if dir != "" {
			s.stagingDir = dir
		}
	}
}

// WithSudoPassword switches privilege elevation from passwordless
// `sudo -n` to interactive `sudo -S` with the given password.
func WithSudoPassword(pw string) Option {
	return func(s *SSH) { s.sudoPassword = pw }
}

// WithProgress sets a callback invoked as transfer bytes move.
func WithProgress(fn ProgressFunc) Option {
	return func(s *SSH) { s.progress = fn }
}

// NewSSH creates an SSH executor on top of a connection pool.
func NewSSH(pool *dssh.Pool, opts ...Option) *SSH {
	s := &SSH{
		pool:       pool,
		logger:     log.NewNopLogger(),
		stagingDir: ".drover-staging",
		timeout:    30 * time.Second,
		hostMu:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lockHost serializes operations against one host for their full
// span. Writes are two-phase through a shared staging area, so two
// interleaved operations on a host could materialize each other's
// half-staged content.
func (s *SSH) lockHost(host string) func() {
	s.mu.Lock()
	mu := s.hostMu[host]
	if mu == nil {
		mu = new(sync.Mutex)
		s.hostMu[host] = mu
	}
	s.mu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// RunPrivileged executes a command with elevated privilege on the
// host. The command is wrapped with `sudo -n` (or `sudo -S` when a
// password is configured); callers pass the bare command.
func (s *SSH) RunPrivileged(ctx context.Context, host, command string) *Outcome {
	unlock := s.lockHost(host)
	defer unlock()
	return s.runPrivileged(ctx, host, command)
}

// runPrivileged is RunPrivileged without the host lock, for the
// privileged step of an operation that already holds it.
func (s *SSH) runPrivileged(ctx context.Context, host, command string) *Outcome {
	outcome := &Outcome{Host: host, Op: "run", ExitCode: -1}
	start := time.Now()
	defer func() { outcome.Duration = time.Since(start) }()

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	var stdout, stderr []byte
	var exitCode int
	var err error
	if s.sudoPassword != "" {
		stdout, stderr, exitCode, err = s.pool.RunSudo(opCtx, host, command, s.sudoPassword)
	} else {
		stdout, stderr, exitCode, err = s.pool.Run(opCtx, host, "sudo -n "+command)
	}

	outcome.Stdout = stdout
	outcome.Stderr = stderr
	if err != nil {
		outcome.Err = dssh.WrapConnectError(host, err)
		level.Debug(s.logger).Log("op", "run", "host", host, "err", err)
		return outcome
	}
	outcome.ExitCode = exitCode
	level.Debug(s.logger).Log("op", "run", "host", host, "exit", exitCode, "duration", time.Since(start))
	return outcome
}

// CopyFile uploads a local file into the staging area with checksum
// verification, then installs it at remotePath with the given mode
// via a privileged `install`. Parent directories are created.
func (s *SSH) CopyFile(ctx context.Context, host, localPath, remotePath string, mode os.FileMode) *Outcome {
	outcome := &Outcome{Host: host, Op: "copy", ExitCode: -1}
	start := time.Now()
	defer func() { outcome.Duration = time.Since(start) }()

	unlock := s.lockHost(host)
	defer unlock()

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	sftpClient, err := s.sftpFor(opCtx, host)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	defer sftpClient.Close()

	stagePath, err := stageFile(opCtx, sftpClient, localPath, remotePath, s.stagingDir, host, s.progress)
	if err != nil {
		outcome.Err = fmt.Errorf("stage %s: %w", remotePath, err)
		return outcome
	}

	installCmd := fmt.Sprintf("install -m %04o -D %s %s",
		mode.Perm(), shellQuote(stagePath), shellQuote(remotePath))
	run := s.runPrivileged(opCtx, host, installCmd)

	outcome.Stdout = run.Stdout
	outcome.Stderr = run.Stderr
	outcome.ExitCode = run.ExitCode
	outcome.Err = run.Err
	if fi, statErr := os.Stat(localPath); statErr == nil {
		outcome.Bytes = fi.Size()
	}
	level.Debug(s.logger).Log("op", "copy", "host", host, "path", remotePath,
		"bytes", outcome.Bytes, "exit", outcome.ExitCode)
	return outcome
}

// SyncTree mirrors localDir into the staging area over SFTP, then
// applies it to remoteDir with a privileged rsync. With opts.Delete
// the remote directory becomes an exact mirror of the local tree.
func (s *SSH) SyncTree(ctx context.Context, host, localDir, remoteDir string, opts SyncOptions) *Outcome {
	outcome := &Outcome{Host: host, Op: "sync", ExitCode: -1}
	start := time.Now()
	defer func() { outcome.Duration = time.Since(start) }()

	unlock := s.lockHost(host)
	defer unlock()

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	sftpClient, err := s.sftpFor(opCtx, host)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	defer sftpClient.Close()

	stage := stagePathForTree(s.stagingDir, remoteDir)
	bytes, err := mirrorToStaging(opCtx, sftpClient, localDir, stage, host, s.progress)
	outcome.Bytes = bytes
	if err != nil {
		outcome.Err = fmt.Errorf("stage %s: %w", localDir, err)
		return outcome
	}

	rsyncCmd := "rsync -a"
	if opts.Delete {
		rsyncCmd += " --delete"
	}
	rsyncCmd += fmt.Sprintf(" %s/ %s/", shellQuote(stage), shellQuote(remoteDir))
	run := s.runPrivileged(opCtx, host, rsyncCmd)

	outcome.Stdout = run.Stdout
	outcome.Stderr = run.Stderr
	outcome.ExitCode = run.ExitCode
	outcome.Err = run.Err
	level.Debug(s.logger).Log("op", "sync", "host", host, "local", localDir,
		"remote", remoteDir, "bytes", bytes, "delete", opts.Delete, "exit", outcome.ExitCode)
	return outcome
}

// sftpFor attaches an SFTP session to the host's pooled connection.
func (s *SSH) sftpFor(ctx context.Context, host string) (*sftp.Client, error) {
	client, err := s.pool.GetClient(ctx, host)
	if err != nil {
		return nil, dssh.WrapConnectError(host, fmt.Errorf("connect: %w", err))
	}
	sftpClient, err := sftp.NewClient(client.SSHClient())
	if err != nil {
		// A dead cached connection surfaces here; retry once fresh.
		s.pool.Evict(host)
		client, err = s.pool.GetClient(ctx, host)
		if err != nil {
			return nil, dssh.WrapConnectError(host, fmt.Errorf("connect: %w", err))
		}
		sftpClient, err = sftp.NewClient(client.SSHClient())
		if err != nil {
			return nil, fmt.Errorf("sftp session on %s: %w", host, err)
		}
	}
	return sftpClient, nil
}

// opContext derives the per-operation deadline context.
func (s *SSH) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// shellQuote wraps a path in single quotes for safe interpolation
// into a remote shell command.
func shellQuote(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\\', '\'', '\'')
			continue
		}
		out = append(out, s[i])
	}
	out = append(out, '\'')
	return string(out)
}
