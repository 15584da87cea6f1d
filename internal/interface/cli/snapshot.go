package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/guardbroker/internal/infrastructure/di"
)

func newSnapshotCmd(getContainer func() *di.Container) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage recovery snapshots",
	}
	cmd.AddCommand(newSnapshotListCmd(getContainer))
	cmd.AddCommand(newSnapshotPruneCmd(getContainer))
	return cmd
}

func newSnapshotListCmd(getContainer func() *di.Container) *cobra.Command {
	var repoPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recovery snapshots, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getContainer()
			snapshots, err := c.Snapshotter().List(cmd.Context(), repoPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(snapshots) == 0 {
				fmt.Fprintln(out, "no snapshots")
				return nil
			}
			for _, s := range snapshots {
				if !s.Parseable {
					fmt.Fprintf(out, "%s  (unparseable name)\n", s.Name)
					continue
				}
				fmt.Fprintf(out, "%s  kind=%s created=%s\n",
					s.Name, s.Kind, s.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&repoPath, "repo", ".", "repository path")
	return cmd
}

func newSnapshotPruneCmd(getContainer func() *di.Container) *cobra.Command {
	var repoPath string
	var retentionDays int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete snapshots older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getContainer()
			retention := time.Duration(retentionDays) * 24 * time.Hour
			if retentionDays == 0 {
				retention = c.Config().RetentionPeriod()
			}
			deleted, err := c.Snapshotter().Prune(cmd.Context(), repoPath, retention)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d snapshot(s)\n", len(deleted))
			for _, name := range deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&repoPath, "repo", ".", "repository path")
	cmd.Flags().IntVar(&retentionDays, "retention-days", 0, "override the configured retention period")
	return cmd
}
