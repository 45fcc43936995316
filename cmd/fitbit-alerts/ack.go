package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var ackOperator int64

var ackCmd = &cobra.Command{
	Use:   "ack <alert_id>",
	Short: "Acknowledge an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid alert id %q", args[0])
		}
		ctx := cmd.Context()

		svc, err := newAlertService(ctx)
		if err != nil {
			return err
		}
		defer svc.Stop()

		alert, err := svc.Alerts.AcknowledgeAlert(ctx, id, ackOperator)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Alert %d (%s, user %d) acknowledged by %d\n",
			alert.ID, alert.Type, alert.UserID, ackOperator)
		return nil
	},
}

func init() {
	ackCmd.Flags().Int64Var(&ackOperator, "operator", 0, "operator id")
	_ = ackCmd.MarkFlagRequired("operator")
	rootCmd.AddCommand(ackCmd)
}
