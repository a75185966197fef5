package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agent462/drover/internal/discover"
	"github.com/agent462/drover/internal/ui/report"
)

func newDiscoverCmd(a *app) *cobra.Command {
	var (
		port        int
		timeout     time.Duration
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "discover <cidr>",
		Short: "Scan an address range for SSH-reachable balancer candidates",
		Long: `Discover probes every usable address in the CIDR range and lists the
hosts that answered with an SSH banner. Addresses already present in
the fleet are marked as registered.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			known := make([]string, 0, len(a.cfg.Fleet))
			for _, entry := range a.cfg.Fleet {
				known = append(known, entry.Address)
			}

			scanner := discover.NewScanner(
				discover.WithPort(port),
				discover.WithTimeout(timeout),
				discover.WithConcurrency(concurrency),
				discover.WithKnownAddresses(known),
			)
			candidates, err := scanner.Scan(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			f := report.NewFormatter(a.colorEnabled())
			fmt.Fprint(cmd.OutOrStdout(), f.FormatDiscover(candidates))
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 22, "TCP port to probe")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "per-probe timeout")
	cmd.Flags().IntVar(&concurrency, "concurrency", 32, "parallel probes")

	return cmd
}
