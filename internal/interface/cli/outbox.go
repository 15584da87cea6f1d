package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/guardbroker/internal/infrastructure/di"
)

func newOutboxCmd(getContainer func() *di.Container) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect the notification outbox",
	}
	cmd.AddCommand(newOutboxListCmd(getContainer))
	cmd.AddCommand(newOutboxFlushCmd(getContainer))
	return cmd
}

func newOutboxListCmd(getContainer func() *di.Container) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued, sent and failed notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getContainer()
			records, err := c.OutboxRepository().List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "outbox is empty")
				return nil
			}
			for _, r := range records {
				fmt.Fprintf(out, "#%d %s  %-7s op=%s actor=%s retries=%d\n",
					r.ID(),
					r.CreatedAt().Format(time.RFC3339),
					r.Status(),
					r.OperationID(), r.Actor(), r.RetryCount(),
				)
				if r.LastError() != "" {
					fmt.Fprintf(out, "    last error: %s\n", r.LastError())
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to list")
	return cmd
}

func newOutboxFlushCmd(getContainer func() *di.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Deliver every currently due pending notification once",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getContainer()
			c.OutboxService().ProcessDue(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "flushed")
			return nil
		},
	}
}
