package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agent462/drover/internal/bootstrap"
	"github.com/agent462/drover/internal/ui/report"
)

func newInitHostCmd(a *app) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "init-host <address>...",
		Short: "Bootstrap new hosts with the base configuration tree",
		Long: `Init-host syncs the bootstrap tree onto each named host. The tree is
an image of the remote filesystem root, so it can seed the operations
account, sudoers entries, and package scaffolding. Existing host state
is never deleted. Every address is attempted even if one fails.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exec, cleanup := a.buildExecutor(user)
			defer cleanup()

			ini := bootstrap.NewInitializer(exec, a.cfg.LocalBootstrapDir(),
				bootstrap.WithLogger(a.logger))
			results, err := ini.Init(cmd.Context(), args)
			if len(results) > 0 {
				f := report.NewFormatter(a.colorEnabled())
				fmt.Fprint(cmd.OutOrStdout(), f.FormatInit(results))
			}
			return err
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "SSH user for bootstrap (defaults to remote.user; new hosts often need root)")

	return cmd
}
