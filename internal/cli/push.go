package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/agent462/drover/internal/fleet"
	"github.com/agent462/drover/internal/gitrepo"
	"github.com/agent462/drover/internal/keepalived"
	"github.com/agent462/drover/internal/push"
	"github.com/agent462/drover/internal/remote"
	"github.com/agent462/drover/internal/ui/report"
)

func newPushCmd(a *app) *cobra.Command {
	var (
		includeActive bool
		askSudoPass   bool
	)

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Apply the config repository to the fleet",
		Long: `Push syncs the frontend and TLS trees to every host in fleet order,
delete-mirroring so the hosts converge on the repository state, then
renders and installs each host's failover daemon configuration.

The repository must be clean: pushes always correspond to a commit.
Hosts flagged active are skipped unless --include-active is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := fleet.New(a.cfg.Fleet)
			guard := gitrepo.New(a.cfg.Dir())

			renderer, err := newRenderer(a)
			if err != nil {
				return err
			}

			var opts []remote.Option
			if askSudoPass {
				pass, err := promptSudoPassword()
				if err != nil {
					return err
				}
				opts = append(opts, remote.WithSudoPassword(pass))
			}

			exec, cleanup := a.buildExecutor("", opts...)
			defer cleanup()

			pusher := push.NewPusher(exec, guard, renderer, a.cfg,
				push.WithLogger(a.logger),
				push.WithIncludeActive(includeActive))

			rep, pushErr := pusher.Push(cmd.Context(), reg)
			if rep != nil && len(rep.Results) > 0 {
				f := report.NewFormatter(a.colorEnabled())
				fmt.Fprint(cmd.OutOrStdout(), f.FormatPush(rep))
			}
			if pushErr != nil {
				if errors.Is(pushErr, push.ErrDirtySource) {
					return fmt.Errorf("%w; commit or stash before pushing", pushErr)
				}
				return pushErr
			}

			if head, err := guard.Head(cmd.Context()); err == nil {
				level.Info(a.logger).Log("op", "push", "msg", "fleet converged", "rev", head)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&includeActive, "include-active", false, "also push to the host flagged active")
	cmd.Flags().BoolVar(&askSudoPass, "ask-sudo-pass", false, "prompt for a sudo password instead of relying on passwordless sudo")

	return cmd
}

func newRenderer(a *app) (keepalived.Renderer, error) {
	if path := a.cfg.KeepalivedTemplatePath(); path != "" {
		return keepalived.NewRendererFromFile(path)
	}
	return keepalived.NewRenderer(), nil
}

func promptSudoPassword() (string, error) {
	fmt.Fprint(os.Stderr, "sudo password: ")
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read sudo password: %w", err)
	}
	return string(pass), nil
}
