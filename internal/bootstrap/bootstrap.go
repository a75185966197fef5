// Package bootstrap prepares bare hosts for fleet membership by
// syncing a local bootstrap tree onto them. The tree is laid out as
// an image of the remote filesystem root (etc/sudoers.d/..., etc.)
// and is applied without delete-mirroring, so existing host state is
// never removed.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/agent462/drover/internal/remote"
)

// ErrNoHosts means the caller supplied no addresses to initialize.
var ErrNoHosts = errors.New("no hosts specified")

// Result is the outcome of bootstrapping one address.
type Result struct {
	Address string
	Err     error
}

// Initializer pushes the bootstrap tree to new hosts.
type Initializer struct {
	exec     remote.Executor
	localDir string
	logger   log.Logger
}

// Option configures an Initializer.
type Option func(*Initializer)

// WithLogger sets the logger for bootstrap progress.
func WithLogger(logger log.Logger) Option {
	return func(i *Initializer) {
		i.logger = logger
	}
}

// NewInitializer creates an Initializer syncing localDir, the
// bootstrap tree, through exec.
func NewInitializer(exec remote.Executor, localDir string, opts ...Option) *Initializer {
	ini := &Initializer{
		exec:     exec,
		localDir: localDir,
		logger:   log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(ini)
	}
	return ini
}

// Init bootstraps every address, one sync per host. A failing host
// does not stop the others; every address is attempted and its
// outcome recorded. The returned error is ErrNoHosts for an empty
// address list, otherwise the joined per-host failures (nil when all
// succeeded).
func (ini *Initializer) Init(ctx context.Context, addresses []string) ([]Result, error) {
	if len(addresses) == 0 {
		return nil, ErrNoHosts
	}

	results := make([]Result, 0, len(addresses))
	var errs []error
	for _, addr := range addresses {
		out := ini.exec.SyncTree(ctx, addr, ini.localDir, "/", remote.SyncOptions{})
		if err := out.Failure(); err != nil {
			level.Warn(ini.logger).Log("op", "init", "host", addr, "err", err)
			results = append(results, Result{Address: addr, Err: err})
			errs = append(errs, fmt.Errorf("%s: %w", addr, err))
			continue
		}
		level.Info(ini.logger).Log("op", "init", "host", addr, "msg", "bootstrapped")
		results = append(results, Result{Address: addr})
	}
	return results, errors.Join(errs...)
}
