package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"entitlement-service/internal/entitlement"
	"entitlement-service/internal/models"

	"github.com/spf13/cobra"
)

func newUsageCommand(ctx *commandContext) *cobra.Command {
	var (
		userID string
		month  string
	)

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Print a user's usage ledger for a month",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			if month == "" {
				month = entitlement.MonthKey(ctx.now())
			}
			if _, err := time.Parse("2006-01", month); err != nil {
				return fmt.Errorf("invalid --month %q, want YYYY-MM", month)
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			db, err := ctx.openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			return printUsage(cmd, entitlement.NewLedgerStore(db, ctx.log), userID, month)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id")
	cmd.Flags().StringVar(&month, "month", "", "Month as YYYY-MM (defaults to the current month)")
	return cmd
}

func printUsage(cmd *cobra.Command, ledgers ledgerReader, userID, month string) error {
	ledger, err := ledgers.Find(cmd.Context(), userID, month)
	if errors.Is(err, entitlement.ErrLedgerNotFound) {
		fmt.Fprintf(cmd.OutOrStdout(), "No usage recorded for %s in %s\n", userID, month)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Ledger %s  user %s  month %s\n", ledger.ID, ledger.UserID, ledger.Month)
	fmt.Fprintln(cmd.OutOrStdout(), renderLedger(ledger))
	return nil
}

func renderLedger(l *models.UsageLedger) string {
	rows := make([][]string, 0, len(models.Resources)+2)
	for _, r := range models.Resources {
		current, limit, _ := l.Usage(r)
		rows = append(rows, []string{
			string(r),
			strconv.FormatInt(current, 10),
			strconv.FormatInt(limit, 10),
			strconv.FormatInt(limit-current, 10),
		})
	}
	rows = append(rows,
		[]string{"recording seconds", strconv.FormatFloat(l.Recordings.TotalDuration, 'f', 1, 64), "", ""},
		[]string{"bandwidth (MB)", strconv.FormatFloat(l.Bandwidth.Used, 'f', 2, 64), "", ""},
	)
	return renderTable(
		[]string{"Resource", "Used", "Limit", "Remaining"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
	)
}
