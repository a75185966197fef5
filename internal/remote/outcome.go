package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"
)

// Outcome is the result of a single remote operation. Every Executor
// call produces one; callers branch on Succeeded rather than on a
// returned error, so per-host failures stay values that can be
// collected, reported, and counted without aborting sibling hosts.
type Outcome struct {
	Host     string
	Op       string // "run", "copy", or "sync"
	Stdout   []byte
	Stderr   []byte
	ExitCode int   // remote exit status; -1 when the command never ran
	Bytes    int64 // bytes transferred, for copy and sync
	Duration time.Duration
	Err      error // connection, transfer, or timeout errors
}

// Succeeded reports whether the operation completed with a zero exit
// status and no transport error.
func (o *Outcome) Succeeded() bool {
	return o.Err == nil && o.ExitCode == 0
}

// TimedOut reports whether the operation failed by exceeding its
// per-call deadline.
func (o *Outcome) TimedOut() bool {
	return errors.Is(o.Err, context.DeadlineExceeded)
}

// Output returns combined stdout and stderr, trimmed, for operator
// reports.
func (o *Outcome) Output() string {
	combined := append(append([]byte{}, o.Stdout...), o.Stderr...)
	return string(bytes.TrimSpace(combined))
}

// Failure returns nil when the operation succeeded, the transport
// error when one occurred, and an exit-status error carrying the
// remote output otherwise.
func (o *Outcome) Failure() error {
	if o.Succeeded() {
		return nil
	}
	if o.Err != nil {
		return o.Err
	}
	if msg := o.Output(); msg != "" {
		return fmt.Errorf("remote exit %d: %s", o.ExitCode, msg)
	}
	return fmt.Errorf("remote exit %d", o.ExitCode)
}
