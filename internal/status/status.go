// Package status collects service health across the fleet. Each host
// is probed for its frontend and failover services; probe failures
// downgrade the service to Failed but never drop the host from the
// report.
package status

import (
	"context"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/errgroup"

	"github.com/agent462/drover/internal/config"
	"github.com/agent462/drover/internal/fleet"
	"github.com/agent462/drover/internal/remote"
)

// ServiceStatus is the probe verdict for one service on one host. A
// service is Active only when the remote query ran and exited zero;
// everything else, including connection failures, is Failed.
type ServiceStatus string

const (
	Active ServiceStatus = "Active"
	Failed ServiceStatus = "Failed"
)

// Row is one host's entry in the status report. Index and Address
// mirror the fleet registry.
type Row struct {
	Index    int
	Address  string
	Frontend ServiceStatus
	Failover ServiceStatus
}

// Collector probes fleet hosts with bounded concurrency.
type Collector struct {
	exec     remote.Executor
	services config.Services
	limit    int
	logger   log.Logger
}

// Option configures a Collector.
type Option func(*Collector)

// WithConcurrency bounds the number of hosts probed in parallel.
func WithConcurrency(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithLogger sets the logger for probe diagnostics.
func WithLogger(logger log.Logger) Option {
	return func(c *Collector) {
		c.logger = logger
	}
}

// NewCollector creates a Collector probing the two configured
// services through exec.
func NewCollector(exec remote.Executor, services config.Services, opts ...Option) *Collector {
	c := &Collector{
		exec:     exec,
		services: services,
		limit:    8,
		logger:   log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect probes every host and returns one Row per host, in the same
// order as the input. Hosts are probed concurrently; each row lands in
// the slot of its host, so output order never depends on completion
// order.
func (c *Collector) Collect(ctx context.Context, hosts []fleet.Host) []Row {
	rows := make([]Row, len(hosts))
	if len(hosts) == 0 {
		return rows
	}

	var g errgroup.Group
	g.SetLimit(c.limit)
	for i, host := range hosts {
		g.Go(func() error {
			rows[i] = Row{
				Index:    host.Index,
				Address:  host.Address,
				Frontend: c.probe(ctx, host.Address, c.services.Frontend),
				Failover: c.probe(ctx, host.Address, c.services.Failover),
			}
			return nil
		})
	}
	// Probes never return errors; failures are folded into the rows.
	_ = g.Wait()
	return rows
}

func (c *Collector) probe(ctx context.Context, host, service string) ServiceStatus {
	out := c.exec.RunPrivileged(ctx, host, fmt.Sprintf("systemctl is-active %s", service))
	if !out.Succeeded() {
		level.Debug(c.logger).Log("op", "status", "host", host, "service", service,
			"exit", out.ExitCode, "err", out.Err)
		return Failed
	}
	return Active
}
