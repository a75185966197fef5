// Package remotetest provides a scriptable in-memory Executor for
// testing orchestration logic without SSH.
package remotetest

import (
	"context"
	"os"
	"sync"

	"github.com/agent462/drover/internal/remote"
)

// Call records one Executor invocation.
type Call struct {
	Op      string // "run", "copy", or "sync"
	Host    string
	Command string

	LocalPath  string
	RemotePath string
	Mode       os.FileMode

	LocalDir  string
	RemoteDir string
	Delete    bool
}

// Fake implements remote.Executor, recording every call. By default
// every operation succeeds with exit 0; set Handler to script
// failures or output.
type Fake struct {
	mu    sync.Mutex
	calls []Call

	// Handler, when set, produces the outcome for each call. The
	// returned outcome's Host and Op are filled in if left empty.
	Handler func(c Call) *remote.Outcome
}

// New returns a Fake whose operations all succeed.
func New() *Fake {
	return &Fake{}
}

func (f *Fake) RunPrivileged(ctx context.Context, host, command string) *remote.Outcome {
	return f.record(Call{Op: "run", Host: host, Command: command})
}

func (f *Fake) CopyFile(ctx context.Context, host, localPath, remotePath string, mode os.FileMode) *remote.Outcome {
	return f.record(Call{Op: "copy", Host: host, LocalPath: localPath, RemotePath: remotePath, Mode: mode})
}

func (f *Fake) SyncTree(ctx context.Context, host, localDir, remoteDir string, opts remote.SyncOptions) *remote.Outcome {
	return f.record(Call{Op: "sync", Host: host, LocalDir: localDir, RemoteDir: remoteDir, Delete: opts.Delete})
}

func (f *Fake) record(c Call) *remote.Outcome {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	handler := f.Handler
	f.mu.Unlock()

	if handler != nil {
		out := handler(c)
		if out.Host == "" {
			out.Host = c.Host
		}
		if out.Op == "" {
			out.Op = c.Op
		}
		return out
	}
	return &remote.Outcome{Host: c.Host, Op: c.Op, ExitCode: 0}
}

// Calls returns a copy of all recorded calls in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount returns the number of recorded calls.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// CallsFor returns recorded calls targeting the given host.
func (f *Fake) CallsFor(host string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if c.Host == host {
			out = append(out, c)
		}
	}
	return out
}
