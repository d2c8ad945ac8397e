package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/harshul/devharness/internal/tracker"
	"github.com/harshul/devharness/internal/ui"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize readiness waits recorded by every test worker",
	Long: `Each harness session writes its readiness waits to a handoff file in the
tracker directory. Report merges them: number of waits per URL, how long the
servers took to answer and how many waits gave up.`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().Bool("clear", false, "Delete the handoff files after printing")
	reportCmd.Flags().BoolP("yes", "y", false, "Do not ask before deleting")
}

func runReport(cmd *cobra.Command, args []string) error {
	clearFiles, _ := cmd.Flags().GetBool("clear")
	yes, _ := cmd.Flags().GetBool("yes")

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	dir := cfg.TrackerPath()

	sum, err := tracker.Aggregate(dir)
	if err != nil {
		return err
	}

	ui.PrintHeader("Readiness report")
	if sum.Sessions == 0 {
		ui.Info("No readiness sessions recorded in " + dir)
		return nil
	}

	ui.PrintHighlight("Sessions", fmt.Sprintf("%d (%s)", sum.Sessions, strings.Join(sum.Workers, ", ")))
	ui.PrintHighlight("Waits", fmt.Sprintf("%d, %d gave up", sum.Waits, sum.Failures))
	ui.PrintHighlight("Total wait", sum.Total.Round(time.Millisecond).String())
	ui.PrintHighlight("Longest wait", sum.Max.Round(time.Millisecond).String())
	if sum.Skipped > 0 {
		ui.Warn(fmt.Sprintf("%d handoff files could not be read", sum.Skipped))
	}

	ui.PrintDivider()
	for _, st := range sum.ByURL {
		avg := time.Duration(0)
		if st.Waits > 0 {
			avg = st.Total / time.Duration(st.Waits)
		}
		ui.PrintHighlight(st.URL, fmt.Sprintf("%d waits, %d attempts, avg %s, max %s, %d failed",
			st.Waits, st.Attempts, avg.Round(time.Millisecond), st.Max.Round(time.Millisecond), st.Failures))
	}

	if !clearFiles {
		return nil
	}
	if !yes {
		ok, err := ui.Confirm("Delete recorded sessions?", dir, false)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	if err := tracker.Clear(dir); err != nil {
		return err
	}
	ui.Success("Readiness sessions cleared")
	return nil
}
