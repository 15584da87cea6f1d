package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/guardbroker/internal/application/usecase/route"
	"github.com/YoshitsuguKoike/guardbroker/internal/infrastructure/di"
)

func newRouteCmd(getContainer func() *di.Container) *cobra.Command {
	var (
		capability string
		action     string
		actor      string
		params     []string
		paths      []string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "route",
		Short: "Route one operation through the broker pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getContainer()

			// Background services must be live so the outcome
			// notification actually leaves the outbox
			ctx := cmd.Context()
			if err := c.Start(ctx); err != nil {
				return err
			}

			req := route.Request{
				Capability: capability,
				Action:     action,
				Actor:      actor,
				Params:     map[string]interface{}{},
			}
			for _, kv := range params {
				key, value, found := strings.Cut(kv, "=")
				if !found {
					return fmt.Errorf("invalid --param %q, expected key=value", kv)
				}
				req.Params[key] = value
			}
			if len(paths) > 0 {
				req.Params["paths"] = paths
			}

			result, err := c.RouteUseCase().Route(ctx, req)
			if err != nil {
				return err
			}

			// Flush any pending notification before the process exits
			c.OutboxService().ProcessDue(ctx)

			if jsonOutput {
				data, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			out := cmd.OutOrStdout()
			if result.Err != nil && !result.Allowed {
				fmt.Fprintf(out, "denied: %s (%s)\n", result.Err.Message, result.Err.Code)
				return nil
			}
			fmt.Fprintf(out, "tracking id: %s\n", result.TrackingID)
			fmt.Fprintf(out, "tier:        %d (%s)\n", int(result.Tier), result.Tier)
			if result.SnapshotRef != "" {
				fmt.Fprintf(out, "snapshot:    %s\n", result.SnapshotRef)
			}
			if result.Err != nil {
				fmt.Fprintf(out, "failed:      %s (%s)\n", result.Err.Message, result.Err.Code)
			} else {
				fmt.Fprintln(out, "completed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&capability, "capability", "", "capability name (required)")
	cmd.Flags().StringVar(&action, "action", "", "action name (required)")
	cmd.Flags().StringVar(&actor, "actor", "operator", "actor the operation runs for")
	cmd.Flags().StringArrayVar(&params, "param", nil, "operation parameter as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&paths, "path", nil, "affected path (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "emit the result as JSON")
	_ = cmd.MarkFlagRequired("capability")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}
