package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/guardbroker/internal/infrastructure/di"
)

// NewRoot builds the root command. The container is constructed once in
// PersistentPreRunE so every subcommand shares one store and one set of
// services.
func NewRoot() *cobra.Command {
	var baseDir string
	var container *di.Container

	cmd := &cobra.Command{
		Use:           "guardbroker",
		Short:         "Policy-enforcement and recoverability broker for agent-driven file operations",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if baseDir == "" {
				baseDir = os.Getenv("GUARDBROKER_HOME")
			}
			if baseDir == "" {
				baseDir = ".guardbroker"
			}
			c, err := di.NewContainer(di.Config{
				BaseDir:      baseDir,
				OutputWriter: cmd.OutOrStdout(),
			})
			if err != nil {
				return err
			}
			container = c
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if container != nil {
				return container.Close()
			}
			return nil
		},
		RunE: func(c *cobra.Command, _ []string) error { return c.Help() },
	}

	cmd.PersistentFlags().StringVar(&baseDir, "home", "", "broker home directory (default .guardbroker)")

	getContainer := func() *di.Container { return container }
	cmd.AddCommand(newRouteCmd(getContainer))
	cmd.AddCommand(newStatusCmd(getContainer))
	cmd.AddCommand(newSnapshotCmd(getContainer))
	cmd.AddCommand(newOutboxCmd(getContainer))
	cmd.AddCommand(newPostponeCmd(getContainer))
	cmd.AddCommand(newVersionCmd())
	return cmd
}
