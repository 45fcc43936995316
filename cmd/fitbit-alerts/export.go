package main

import (
	"fmt"
	"os"
	"time"

	"github.com/morenopablo16/fitbit-project-sub000/internal/repository"
	"github.com/spf13/cobra"
)

var (
	exportUser   int64
	exportFrom   string
	exportTo     string
	exportOutput string
	exportLimit  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export alerts to XLSX",
	Long: `Export alerts, newest first, as an XLSX workbook.

EXAMPLES:

  fitbit-alerts export -o alerts.xlsx
  fitbit-alerts export --user 12 --from 2024-03-01 --to 2024-03-31 -o march.xlsx`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportOutput == "" {
			return fmt.Errorf("--output is required")
		}
		if exportLimit <= 0 {
			return fmt.Errorf("--limit must be positive")
		}
		ctx := cmd.Context()
		loc := cfg.Alert.Location

		filters := repository.AlertFilters{Limit: exportLimit}
		if exportUser > 0 {
			filters.UserID = &exportUser
		}
		if exportFrom != "" {
			from, err := parseTime(exportFrom, loc, time.Time{})
			if err != nil {
				return err
			}
			filters.From = &from
		}
		if exportTo != "" {
			to, err := parseTime(exportTo, loc, time.Time{})
			if err != nil {
				return err
			}
			filters.To = &to
		}

		svc, err := newAlertService(ctx)
		if err != nil {
			return err
		}
		defer svc.Stop()

		if exportUser > 0 {
			if _, err := requireUser(ctx, svc.Store, exportUser); err != nil {
				return err
			}
		}

		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", exportOutput, err)
		}
		defer f.Close()

		n, err := svc.Exporter.Export(ctx, filters, f)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d alerts to %s\n", n, exportOutput)
		return nil
	},
}

func init() {
	exportCmd.Flags().Int64Var(&exportUser, "user", 0, "only this user")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "earliest alert time (RFC3339 or YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "latest alert time (RFC3339 or YYYY-MM-DD)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output .xlsx file")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 1000, "maximum number of alerts")
	rootCmd.AddCommand(exportCmd)
}
