package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/guardbroker/internal/application/usecase/route"
	"github.com/YoshitsuguKoike/guardbroker/internal/infrastructure/di"
)

func newPostponeCmd(getContainer func() *di.Container) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "postpone",
		Short: "Manage requests parked for clarification",
	}
	cmd.AddCommand(newPostponeCreateCmd(getContainer))
	cmd.AddCommand(newPostponeListCmd(getContainer))
	cmd.AddCommand(newPostponeResolveCmd(getContainer))
	cmd.AddCommand(newPostponeCancelCmd(getContainer))
	return cmd
}

func newPostponeCreateCmd(getContainer func() *di.Container) *cobra.Command {
	var (
		capability string
		action     string
		actor      string
		params     []string
		paths      []string
		options    []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Park an ambiguous request until the actor clarifies it",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getContainer()
			ctx := cmd.Context()

			// The stored payload is the request exactly as it would have
			// been routed; resolve re-routes it with the chosen option
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
			payload, err := json.Marshal(req)
			if err != nil {
				return err
			}

			record, err := c.PostponeService().Postpone(ctx,
				capability, action, actor, string(payload), options)
			if err != nil {
				return err
			}

			// Deliver the clarification request before the process exits
			c.OutboxService().ProcessDue(ctx)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "postponed as %s\n", record.ID())
			fmt.Fprintf(out, "reminder at:  %s\n", record.RetryNotifyAt().Format(time.RFC3339))
			fmt.Fprintf(out, "cancelled at: %s without a reply\n", record.ExpiresAt().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&capability, "capability", "", "capability name (required)")
	cmd.Flags().StringVar(&action, "action", "", "action name (required)")
	cmd.Flags().StringVar(&actor, "actor", "operator", "actor the operation runs for")
	cmd.Flags().StringArrayVar(&params, "param", nil, "operation parameter as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&paths, "path", nil, "affected path (repeatable)")
	cmd.Flags().StringArrayVar(&options, "option", nil, "clarification option offered to the actor (repeatable)")
	_ = cmd.MarkFlagRequired("capability")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

func newPostponeListCmd(getContainer func() *di.Container) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List postponed requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getContainer()
			records, err := c.PostponeRepository().List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "no postponed requests")
				return nil
			}
			for _, r := range records {
				fmt.Fprintf(out, "%s  %-22s actor=%s expires=%s\n",
					r.ID(), r.Phase(), r.Actor(), r.ExpiresAt().Format(time.RFC3339))
				if len(r.Options()) > 0 {
					fmt.Fprintf(out, "    options: %v\n", r.Options())
				}
				if r.ResolvedWith() != "" {
					fmt.Fprintf(out, "    resolved with: %s\n", r.ResolvedWith())
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to list")
	return cmd
}

func newPostponeResolveCmd(getContainer func() *di.Container) *cobra.Command {
	var choice string

	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Apply a clarifying reply and re-route the disambiguated request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getContainer()
			ctx := cmd.Context()

			if err := c.Start(ctx); err != nil {
				return err
			}

			record, err := c.PostponeService().Resolve(ctx, args[0], choice)
			if err != nil {
				return err
			}

			// The stored payload is the original request; the resumed
			// run gets a fresh tracking ID
			var req route.Request
			if err := json.Unmarshal([]byte(record.Payload()), &req); err != nil {
				return fmt.Errorf("decode postponed request %s: %w", record.ID(), err)
			}
			if req.Params == nil {
				req.Params = map[string]interface{}{}
			}
			if choice != "" {
				req.Params["clarification"] = choice
			}

			result, err := c.RouteUseCase().Route(ctx, req)
			if err != nil {
				return err
			}
			c.OutboxService().ProcessDue(ctx)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "resumed as %s\n", result.TrackingID)
			if result.Err != nil {
				fmt.Fprintf(out, "failed: %s (%s)\n", result.Err.Message, result.Err.Code)
			} else {
				fmt.Fprintln(out, "completed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&choice, "choice", "", "selected clarification option")
	return cmd
}

func newPostponeCancelCmd(getContainer func() *di.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Abandon a postponed request; it will never run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getContainer()
			ctx := cmd.Context()
			if err := c.PostponeService().Cancel(ctx, args[0]); err != nil {
				return err
			}
			c.OutboxService().ProcessDue(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\n", args[0])
			return nil
		},
	}
}
