package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/posepipe/internal/utils"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	historyLimit    int
	historyFailures string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs from the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireDB(); err != nil {
			return err
		}
		if historyFailures != "" {
			return runFailures(cmd, historyFailures)
		}
		return runHistory(cmd)
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "Number of runs to show (0 = all)")
	historyCmd.Flags().StringVar(&historyFailures, "failures", "", "Show the failed frames of the given run ID")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command) error {
	runs, err := DB.ListRuns(cmd.Context(), historyLimit)
	if err != nil {
		utils.ShowError("Failed to list runs", err, nil)
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No runs found in database.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tINPUT\tTRANSFORM\tWORKERS\tFRAMES\tFAILED\tMISSING\tSTATUS")
	fmt.Fprintln(w, "---\t-------\t-----\t---------\t-------\t------\t------\t-------\t------")

	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04"), r.Input, r.Transform,
			r.Workers, r.Total, r.Failed, r.Pending, statusColor(r.Status))
	}
	return w.Flush()
}

func runFailures(cmd *cobra.Command, runID string) error {
	failures, err := DB.GetRunFailures(cmd.Context(), runID)
	if err != nil {
		utils.ShowError("Failed to load run failures", err, nil)
		return err
	}
	if len(failures) == 0 {
		fmt.Printf("No failed frames recorded for run %s.\n", runID)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FRAME\tREASON")
	fmt.Fprintln(w, "-----\t------")
	for _, f := range failures {
		fmt.Fprintf(w, "%d\t%s\n", f.Index, f.Reason)
	}
	return w.Flush()
}

// Status is the last column, so color escapes don't skew tabwriter alignment.
func statusColor(status string) string {
	switch status {
	case "complete":
		return color.GreenString(status)
	case "incomplete":
		return color.YellowString(status)
	default:
		return color.RedString(status)
	}
}
