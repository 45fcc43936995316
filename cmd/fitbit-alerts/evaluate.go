package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	evaluateUser   int64
	evaluateAt     string
	evaluateDryRun bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate one user",
	Long: `Evaluate every rule for a user at a reference time and print the alerts.

EXAMPLES:

  fitbit-alerts evaluate --user 12
  fitbit-alerts evaluate --user 12 --at 2024-03-01T21:00:00Z
  fitbit-alerts evaluate --user 12 --at 2024-03-01 --dry-run`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if evaluateUser <= 0 {
			return fmt.Errorf("--user is required")
		}
		ctx := cmd.Context()

		svc, err := newAlertService(ctx)
		if err != nil {
			return err
		}
		defer svc.Stop()

		if _, err := requireUser(ctx, svc.Store, evaluateUser); err != nil {
			return err
		}

		ts, err := parseTime(evaluateAt, cfg.Alert.Location, time.Now())
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		if evaluateDryRun {
			drafts, err := svc.Engine.Drafts(ctx, evaluateUser, ts)
			if err != nil {
				return err
			}
			return enc.Encode(drafts)
		}

		alerts, err := svc.Engine.Run(ctx, evaluateUser, ts)
		if err != nil {
			return err
		}
		if len(alerts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No alerts")
			return nil
		}
		return enc.Encode(alerts)
	},
}

func init() {
	evaluateCmd.Flags().Int64Var(&evaluateUser, "user", 0, "user id")
	evaluateCmd.Flags().StringVar(&evaluateAt, "at", "", "reference time (RFC3339 or YYYY-MM-DD, default now)")
	evaluateCmd.Flags().BoolVar(&evaluateDryRun, "dry-run", false, "print drafts without persisting")
	rootCmd.AddCommand(evaluateCmd)
}
