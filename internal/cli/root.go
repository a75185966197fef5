// Package cli wires the drover commands. Each command builds its
// collaborators from the loaded config: an SSH-backed executor, the
// fleet registry, and the repository guard anchored at the config
// repo.
package cli

import (
	"errors"
	"os"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/agent462/drover/internal/config"
	"github.com/agent462/drover/internal/remote"
	dssh "github.com/agent462/drover/internal/ssh"
)

// app holds the state shared by all commands: flags, the logger, and
// the loaded configuration.
type app struct {
	configPath  string
	insecure    bool
	verbose     bool
	noColor     bool
	timeout     time.Duration
	concurrency int

	logger log.Logger
	cfg    *config.Config
}

// Execute runs the drover CLI and returns the command error, if any.
func Execute(version string) error {
	return NewRootCmd(version).Execute()
}

// NewRootCmd builds the root command and all subcommands.
func NewRootCmd(version string) *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "drover",
		Short: "Drive a fleet of load balancers from a version-controlled config repo",
		Long: `Drover manages a small fleet of load balancers. The fleet, the
configuration trees, and the failover parameters live in a git
repository; drover pushes that repository's state to the hosts,
reports service health, and bootstraps new balancers.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.setup()
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", config.DefaultConfigPath(), "path to drover.yaml")
	root.PersistentFlags().BoolVar(&a.insecure, "insecure", false, "skip host key verification")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable colored output")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 0, "per-operation timeout (overrides remote.timeout)")
	root.PersistentFlags().IntVar(&a.concurrency, "concurrency", 0, "parallel status probes (overrides remote.concurrency)")

	root.AddCommand(
		newStatusCmd(a),
		newPushCmd(a),
		newInitHostCmd(a),
		newWatchCmd(a),
		newDiscoverCmd(a),
		newConfigCmd(a),
		newVersionCmd(version),
	)

	return root
}

func (a *app) setup() error {
	a.logger = newLogger(a.verbose)

	cfg, err := config.Load(a.configPath)
	if err != nil {
		if !errors.Is(err, config.ErrNotFound) {
			return err
		}
		// Missing config degrades to an empty fleet so commands like
		// "config init" and "discover" still work.
		level.Warn(a.logger).Log("msg", "config file not found, running with an empty fleet", "path", a.configPath)
	}

	if a.timeout > 0 {
		cfg.Remote.Timeout.Duration = a.timeout
	}
	if a.concurrency > 0 {
		cfg.Remote.Concurrency = a.concurrency
	}
	a.cfg = cfg
	return nil
}

func newLogger(verbose bool) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	allow := level.AllowInfo()
	if verbose {
		allow = level.AllowDebug()
	}
	logger = level.NewFilter(logger, allow)
	return log.With(logger, "ts", log.DefaultTimestampUTC)
}

// buildExecutor creates the SSH-backed executor for remote
// operations. user overrides the configured operations account, which
// init-host needs to reach hosts that have no such account yet. The
// returned cleanup closes pooled connections.
func (a *app) buildExecutor(user string, extra ...remote.Option) (*remote.SSH, func()) {
	if user == "" {
		user = a.cfg.Remote.User
	}

	pool := dssh.NewPool(dssh.ClientConfig{
		User:               user,
		ProxyJump:          a.cfg.Remote.ProxyJump,
		AcceptUnknownHosts: a.insecure,
	})

	opts := []remote.Option{
		remote.WithLogger(a.logger),
		remote.WithTimeout(a.cfg.Remote.Timeout.Duration),
		remote.WithStagingDir(a.cfg.Remote.StagingDir),
		remote.WithProgress(transferProgress(a.logger)),
	}
	opts = append(opts, extra...)

	cleanup := func() {
		pool.Close()
		dssh.CloseAgent()
	}
	return remote.NewSSH(pool, opts...), cleanup
}

// transferProgress logs completed file transfers at debug level. The
// callback fires once per chunk as bytes move; only the finished file
// gets a line.
func transferProgress(logger log.Logger) remote.ProgressFunc {
	return func(host string, transferred, total int64) {
		if total <= 0 || transferred < total {
			return
		}
		level.Debug(logger).Log("op", "transfer", "host", host, "bytes", total)
	}
}

// colorEnabled reports whether output should use ANSI colors.
func (a *app) colorEnabled() bool {
	return !a.noColor && term.IsTerminal(int(os.Stdout.Fd()))
}
