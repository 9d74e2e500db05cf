package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUnlockCommand(opts *options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Break stale apt/dpkg locks",
		Long: `Kill processes holding the apt/dpkg lock files, remove the locks and run
dpkg --configure -a to finish any interrupted configuration.

This can interrupt a package manager that is still working. By default
nothing is done while a lock is held; pass --force to break it anyway.`,
		Example: `  # Remove leftover locks after a crashed install
  devbox unlock

  # Kill a hung apt-get and recover
  devbox unlock --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.close()

			log := s.log("cli")
			guard := s.guard()

			held, err := guard.Held(cmd.Context())
			if err != nil {
				return err
			}
			if held && !force {
				log.Warn().Msg("Package manager locks are held by a running process")
				return fmt.Errorf("locks are in use; rerun with --force to kill the holders")
			}

			if err := guard.Break(cmd.Context()); err != nil {
				log.Error().Err(err).Msg("Failed to break package manager locks")
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Package manager locks cleared")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "kill processes currently holding the locks")

	return cmd
}
