// Package push applies the local configuration repository to the
// fleet. A push only proceeds from a clean working tree, walks hosts
// in registry order, and stops at the first host that fails. Hosts
// flagged active are skipped unless explicitly included: the balancer
// holding production traffic is never reconfigured by accident.
package push

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/agent462/drover/internal/config"
	"github.com/agent462/drover/internal/fleet"
	"github.com/agent462/drover/internal/keepalived"
	"github.com/agent462/drover/internal/remote"
)

// ErrDirtySource means the configuration repository has uncommitted
// changes. Nothing is pushed until the tree is clean.
var ErrDirtySource = errors.New("configuration repository has uncommitted changes")

// Guard reports whether the configuration repository is clean.
// *gitrepo.Guard satisfies it.
type Guard interface {
	IsDirty(ctx context.Context) (bool, error)
}

// HostError identifies the host and step a push failed on.
type HostError struct {
	Host fleet.Host
	Step string
	Err  error
}

func (e *HostError) Error() string {
	return fmt.Sprintf("push to %s failed at %s: %v", e.Host.Address, e.Step, e.Err)
}

func (e *HostError) Unwrap() error { return e.Err }

// HostResult records one host's outcome within a push.
type HostResult struct {
	Host    fleet.Host
	Skipped bool
	Err     error
}

// Report summarizes a push. On failure it still lists the hosts
// already updated; remote changes are not rolled back.
type Report struct {
	Results []HostResult
}

// Pushed returns the number of hosts fully updated.
func (r *Report) Pushed() int {
	n := 0
	for _, res := range r.Results {
		if !res.Skipped && res.Err == nil {
			n++
		}
	}
	return n
}

// Skipped returns the number of hosts skipped for being active.
func (r *Report) Skipped() int {
	n := 0
	for _, res := range r.Results {
		if res.Skipped {
			n++
		}
	}
	return n
}

// Pusher drives configuration out to the fleet.
type Pusher struct {
	exec          remote.Executor
	guard         Guard
	renderer      keepalived.Renderer
	cfg           *config.Config
	logger        log.Logger
	includeActive bool
}

// Option configures a Pusher.
type Option func(*Pusher)

// WithLogger sets the logger for push progress.
func WithLogger(logger log.Logger) Option {
	return func(p *Pusher) {
		p.logger = logger
	}
}

// WithIncludeActive also pushes to hosts flagged active.
func WithIncludeActive(include bool) Option {
	return func(p *Pusher) {
		p.includeActive = include
	}
}

// NewPusher creates a Pusher. The renderer produces each host's
// failover daemon configuration.
func NewPusher(exec remote.Executor, guard Guard, renderer keepalived.Renderer, cfg *config.Config, opts ...Option) *Pusher {
	p := &Pusher{
		exec:     exec,
		guard:    guard,
		renderer: renderer,
		cfg:      cfg,
		logger:   log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Push applies the configuration to every host in registry order. The
// repository guard is consulted before any remote operation; a dirty
// tree returns ErrDirtySource with zero remote calls. An empty
// registry is a successful no-op. The first failing host aborts the
// run; its error and the progress made so far are both returned.
func (p *Pusher) Push(ctx context.Context, reg *fleet.Registry) (*Report, error) {
	dirty, err := p.guard.IsDirty(ctx)
	if err != nil {
		return nil, fmt.Errorf("check repository state: %w", err)
	}
	if dirty {
		return nil, ErrDirtySource
	}

	report := &Report{}
	hosts := reg.Hosts()
	for _, host := range hosts {
		if host.Active && !p.includeActive {
			level.Info(p.logger).Log("op", "push", "host", host.Address, "msg", "skipping active host")
			report.Results = append(report.Results, HostResult{Host: host, Skipped: true})
			continue
		}
		if err := p.pushHost(ctx, host, hosts); err != nil {
			report.Results = append(report.Results, HostResult{Host: host, Err: err})
			return report, err
		}
		report.Results = append(report.Results, HostResult{Host: host})
		level.Info(p.logger).Log("op", "push", "host", host.Address, "msg", "updated")
	}
	return report, nil
}

func (p *Pusher) pushHost(ctx context.Context, host fleet.Host, all []fleet.Host) error {
	level.Debug(p.logger).Log("op", "push", "host", host.Address, "step", "frontend")
	out := p.exec.SyncTree(ctx, host.Address, p.cfg.LocalFrontendDir(), p.cfg.Paths.RemoteFrontend,
		remote.SyncOptions{Delete: true})
	if !out.Succeeded() {
		return &HostError{Host: host, Step: "sync frontend config", Err: out.Failure()}
	}

	level.Debug(p.logger).Log("op", "push", "host", host.Address, "step", "tls")
	out = p.exec.SyncTree(ctx, host.Address, p.cfg.LocalTLSDir(), p.cfg.Paths.RemoteTLS,
		remote.SyncOptions{Delete: true})
	if !out.Succeeded() {
		return &HostError{Host: host, Step: "sync tls material", Err: out.Failure()}
	}

	level.Debug(p.logger).Log("op", "push", "host", host.Address, "step", "keepalived")
	conf, err := p.renderer.Render(p.params(host, all))
	if err != nil {
		return &HostError{Host: host, Step: "render keepalived config", Err: err}
	}
	tmp, err := writeTemp(conf)
	if err != nil {
		return &HostError{Host: host, Step: "render keepalived config", Err: err}
	}
	defer os.Remove(tmp)

	out = p.exec.CopyFile(ctx, host.Address, tmp, p.cfg.Paths.KeepalivedConf, 0o600)
	if !out.Succeeded() {
		return &HostError{Host: host, Step: "deliver keepalived config", Err: out.Failure()}
	}

	if cmd := p.cfg.Services.VerifyCommand; cmd != "" {
		level.Debug(p.logger).Log("op", "push", "host", host.Address, "step", "verify")
		out = p.exec.RunPrivileged(ctx, host.Address, cmd)
		if !out.Succeeded() {
			return &HostError{Host: host, Step: "verify config", Err: out.Failure()}
		}
	}
	return nil
}

// params assembles the render inputs for one host. Peers always come
// from the full registry so every host's config names all the others.
func (p *Pusher) params(host fleet.Host, all []fleet.Host) keepalived.Params {
	peers := make([]string, 0, len(all)-1)
	for _, other := range all {
		if other.Index != host.Index {
			peers = append(peers, other.Address)
		}
	}
	return keepalived.Params{
		Index:     host.Index,
		Address:   host.Address,
		Peers:     peers,
		VRID:      p.cfg.Keepalived.VRID,
		VIP:       p.cfg.Keepalived.VIP,
		Interface: p.cfg.Keepalived.Interface,
		Frontend:  p.cfg.Services.Frontend,
	}
}

func writeTemp(conf []byte) (string, error) {
	f, err := os.CreateTemp("", "drover-keepalived-*.conf")
	if err != nil {
		return "", fmt.Errorf("create temp config: %w", err)
	}
	if _, err := f.Write(conf); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write temp config: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close temp config: %w", err)
	}
	return f.Name(), nil
}
