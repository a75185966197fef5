// Package fleet holds the ordered registry of managed balancers.
// A host's index is its position in the drover.yaml fleet list; the
// index is stable for the run and drives failover priorities, report
// ordering, and operator-facing numbering.
package fleet

import (
	"errors"
	"fmt"
	"path"

	"github.com/agent462/drover/internal/config"
)

// ErrIndexOutOfRange is returned by HostAt for indices outside the registry.
var ErrIndexOutOfRange = errors.New("host index out of range")

// Host is one managed balancer.
type Host struct {
	Index   int
	Address string
	Active  bool
}

// String returns the operator-facing label "index address".
func (h Host) String() string {
	return fmt.Sprintf("%d %s", h.Index, h.Address)
}

// Registry is the ordered, immutable set of hosts for this run.
type Registry struct {
	hosts []Host
}

// New builds a registry from config entries, assigning indices in
// declaration order.
func New(entries []config.HostEntry) *Registry {
	hosts := make([]Host, len(entries))
	for i, e := range entries {
		hosts[i] = Host{Index: i, Address: e.Address, Active: e.Active}
	}
	return &Registry{hosts: hosts}
}

// Len returns the number of hosts.
func (r *Registry) Len() int {
	return len(r.hosts)
}

// Hosts returns the hosts in registry order. The returned slice is a
// copy; mutating it does not affect the registry.
func (r *Registry) Hosts() []Host {
	out := make([]Host, len(r.hosts))
	copy(out, r.hosts)
	return out
}

// HostAt returns the host at the given index.
func (r *Registry) HostAt(index int) (Host, error) {
	if index < 0 || index >= len(r.hosts) {
		return Host{}, fmt.Errorf("%w: %d (fleet has %d hosts)", ErrIndexOutOfRange, index, len(r.hosts))
	}
	return r.hosts[index], nil
}

// Active returns the host flagged active, if any.
func (r *Registry) Active() (Host, bool) {
	for _, h := range r.hosts {
		if h.Active {
			return h, true
		}
	}
	return Host{}, false
}

// Select filters hosts by glob patterns matched against addresses,
// preserving registry order and original indices. An empty pattern
// list selects every host. A pattern that matches nothing is an error.
func (r *Registry) Select(patterns []string) ([]Host, error) {
	if len(patterns) == 0 {
		return r.Hosts(), nil
	}

	matched := make(map[string]bool, len(patterns))
	var out []Host
	for _, h := range r.hosts {
		for _, p := range patterns {
			ok, err := path.Match(p, h.Address)
			if err != nil {
				return nil, fmt.Errorf("bad pattern %q: %w", p, err)
			}
			if ok {
				matched[p] = true
				out = append(out, h)
				break
			}
		}
	}

	for _, p := range patterns {
		if !matched[p] {
			return nil, fmt.Errorf("pattern %q matches no host in the fleet", p)
		}
	}
	return out, nil
}
