package cli

import (
	"errors"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"

	"github.com/agent462/drover/internal/fleet"
	"github.com/agent462/drover/internal/status"
	"github.com/agent462/drover/internal/ui/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live terminal view of fleet status",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := fleet.New(a.cfg.Fleet)
			if reg.Len() == 0 {
				return errors.New("no hosts in fleet; nothing to watch")
			}

			exec, cleanup := a.buildExecutor("")
			defer cleanup()

			collector := status.NewCollector(exec, a.cfg.Services,
				status.WithLogger(a.logger),
				status.WithConcurrency(a.cfg.Remote.Concurrency))

			model := watch.New(watch.Config{
				Collector: collector,
				Registry:  reg,
				Interval:  interval,
			})
			_, err := tea.NewProgram(model).Run()
			return err
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "poll interval")

	return cmd
}
