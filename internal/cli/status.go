package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agent462/drover/internal/fleet"
	"github.com/agent462/drover/internal/status"
	"github.com/agent462/drover/internal/ui/report"
)

func newStatusCmd(a *app) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status [pattern...]",
		Short: "Show service health for every fleet host",
		Long: `Status probes the frontend and failover services on each host and
prints one line per host: index, address, and the two service
verdicts, TAB-separated, in fleet order. Glob patterns restrict the
probed hosts by address.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := fleet.New(a.cfg.Fleet)
			hosts, err := reg.Select(args)
			if err != nil {
				return err
			}

			exec, cleanup := a.buildExecutor("")
			defer cleanup()

			collector := status.NewCollector(exec, a.cfg.Services,
				status.WithLogger(a.logger),
				status.WithConcurrency(a.cfg.Remote.Concurrency))
			rows := collector.Collect(cmd.Context(), hosts)

			if jsonOut {
				data, err := report.NewFormatter(false).FormatStatusJSON(rows)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			f := report.NewFormatter(a.colorEnabled())
			fmt.Fprint(cmd.OutOrStdout(), f.FormatStatus(rows))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "print rows as JSON")

	return cmd
}
