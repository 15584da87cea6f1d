package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/guardbroker/internal/domain/model/operation"
	"github.com/YoshitsuguKoike/guardbroker/internal/infrastructure/di"
)

func newStatusCmd(getContainer func() *di.Container) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status [tracking-id]",
		Short: "Show recent operations or one operation's audit record",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getContainer()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				record, err := c.AuditRepository().Find(ctx, args[0])
				if err != nil {
					return err
				}
				printRecord(out, record)
				return nil
			}

			records, err := c.AuditRepository().List(ctx, limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "no operations recorded")
				return nil
			}
			for _, record := range records {
				fmt.Fprintf(out, "%s  %-12s %s/%s tier=%d %s\n",
					record.CreatedAt().Format(time.RFC3339),
					record.Status(),
					record.Capability(), record.Action(),
					int(record.Tier()),
					record.TrackingID(),
				)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum operations to list")
	return cmd
}

func printRecord(out io.Writer, record *operation.Record) {
	fmt.Fprintf(out, "tracking id: %s\n", record.TrackingID())
	fmt.Fprintf(out, "created:     %s\n", record.CreatedAt().Format(time.RFC3339))
	fmt.Fprintf(out, "operation:   %s/%s\n", record.Capability(), record.Action())
	fmt.Fprintf(out, "actor:       %s\n", record.Actor())
	fmt.Fprintf(out, "tier:        %d (%s)\n", int(record.Tier()), record.Tier())
	fmt.Fprintf(out, "status:      %s\n", record.Status())
	if len(record.Paths()) > 0 {
		fmt.Fprintf(out, "paths:       %v\n", record.Paths())
	}
	if record.SnapshotRef() != "" {
		fmt.Fprintf(out, "snapshot:    %s\n", record.SnapshotRef())
	}
	if record.Duration() > 0 {
		fmt.Fprintf(out, "duration:    %s\n", record.Duration())
	}
	if err := record.Err(); err != nil {
		fmt.Fprintf(out, "error:       %s (%s, retryable=%v)\n", err.Message, err.Code, err.Retryable)
	}
}
