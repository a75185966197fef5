package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
)

// dialResult holds the outcome of a Dial attempt, shared between goroutines
// waiting for the same host connection.
type dialResult struct {
	client *Client
	err    error
}

// Pool manages persistent SSH connections to the balancer fleet.
// Connections are cached across commands and transfers, and replaced
// automatically when they go stale. Every host is dialed with the same
// base config; an address of the form "host:port" overrides the port.
type Pool struct {
	mu       sync.Mutex
	clients  map[string]*Client
	inflight map[string]chan dialResult // per-host dial coordination
	baseConf ClientConfig
}

// NewPool creates a connection pool with the given base config.
func NewPool(baseConf ClientConfig) *Pool {
	return &Pool{
		clients:  make(map[string]*Client),
		inflight: make(map[string]chan dialResult),
		baseConf: baseConf,
	}
}

// Run executes a command on a host, reusing a cached connection if one
// exists. If the command fails with what looks like a dead connection,
// the cached client is evicted and the command retried once on a fresh
// dial.
func (p *Pool) Run(ctx context.Context, host, command string) (stdout, stderr []byte, exitCode int, err error) {
	stdout, stderr, exitCode, err = p.exec(ctx, host, command)
	if err != nil && isReconnectable(err) {
		p.Evict(host)
		stdout, stderr, exitCode, err = p.exec(ctx, host, command)
	}
	return stdout, stderr, exitCode, err
}

// RunSudo is Run for commands that need root, delivering the sudo
// password over stdin. Same stale-connection retry as Run.
func (p *Pool) RunSudo(ctx context.Context, host, command, sudoPassword string) (stdout, stderr []byte, exitCode int, err error) {
	stdout, stderr, exitCode, err = p.execSudo(ctx, host, command, sudoPassword)
	if err != nil && isReconnectable(err) {
		p.Evict(host)
		stdout, stderr, exitCode, err = p.execSudo(ctx, host, command, sudoPassword)
	}
	return stdout, stderr, exitCode, err
}

func (p *Pool) exec(ctx context.Context, host, command string) ([]byte, []byte, int, error) {
	client, err := p.GetClient(ctx, host)
	if err != nil {
		return nil, nil, -1, fmt.Errorf("connect: %w", err)
	}
	return client.RunCommand(ctx, command)
}

func (p *Pool) execSudo(ctx context.Context, host, command, sudoPassword string) ([]byte, []byte, int, error) {
	client, err := p.GetClient(ctx, host)
	if err != nil {
		return nil, nil, -1, fmt.Errorf("connect: %w", err)
	}
	return client.RunCommandWithSudo(ctx, command, sudoPassword)
}

// GetClient returns the cached connection for a host, dialing one if
// needed. Concurrent callers for the same host share a single dial.
// The returned client belongs to the pool; callers must not Close it.
func (p *Pool) GetClient(ctx context.Context, host string) (*Client, error) {
	p.mu.Lock()

	// Fast path: already connected.
	if client, ok := p.clients[host]; ok {
		p.mu.Unlock()
		return client, nil
	}

	// Check if another goroutine is already dialing this host.
	if ch, ok := p.inflight[host]; ok {
		p.mu.Unlock()
		select {
		case res := <-ch:
			// Put the result back so other waiters can also read it.
			ch <- res
			return res.client, res.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// We are the first to dial this host. Create a coordination channel.
	ch := make(chan dialResult, 1)
	p.inflight[host] = ch
	p.mu.Unlock()

	conf, dialHost := splitHostPort(p.baseConf, host)
	client, err := Dial(ctx, dialHost, conf)

	p.mu.Lock()
	delete(p.inflight, host)
	if err == nil {
		p.clients[host] = client
	}
	p.mu.Unlock()

	// Broadcast result to any waiters.
	ch <- dialResult{client: client, err: err}

	return client, err
}

// Evict drops and closes the cached connection for a host, forcing the
// next operation to dial fresh.
func (p *Pool) Evict(host string) {
	p.mu.Lock()
	client, ok := p.clients[host]
	if ok {
		delete(p.clients, host)
	}
	p.mu.Unlock()

	if ok {
		client.Close()
	}
}

// IsConnected reports whether a cached connection exists for the given host.
func (p *Pool) IsConnected(host string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.clients[host]
	return ok
}

// Close closes all cached connections and resets the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	clients := p.clients
	p.clients = make(map[string]*Client)
	p.mu.Unlock()

	var firstErr error
	for _, client := range clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// splitHostPort peels an explicit ":port" suffix off a fleet address,
// returning the bare host and a config with the port applied.
func splitHostPort(base ClientConfig, address string) (ClientConfig, string) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return base, address
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return base, address
	}
	conf := base
	conf.Port = port
	return conf, host
}

// isReconnectable returns true if the error suggests a stale/broken connection
// that might succeed on retry with a fresh dial. It returns false for errors
// that are permanent (auth failures, context cancellation) to avoid unnecessary
// retry attempts.
func isReconnectable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	// Detect closed/reset connections.
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	if strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") {
		return true
	}
	return false
}
