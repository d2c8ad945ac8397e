package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/harshul/devharness/internal/orchestrator"
	"github.com/harshul/devharness/internal/supervisor"
	"github.com/harshul/devharness/internal/ui"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the harness servers",
	Long: `Status probes every server of the current framework mode and prints its
port, health URL, PID record and state:

  ready     the health URL answers
  starting  a recorded process is alive but not answering yet
  stale     a PID record points at a dead process
  absent    nothing recorded, nothing answering`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolP("watch", "w", false, "Keep refreshing until q is pressed")
	statusCmd.Flags().Bool("json", false, "Print machine-readable JSON")
	statusCmd.Flags().Duration("interval", time.Second, "Refresh interval for --watch")
}

type serverJSON struct {
	Name      string `json:"name"`
	Role      string `json:"role"`
	Port      int    `json:"port"`
	HealthURL string `json:"healthUrl"`
	State     string `json:"state"`
	PID       int    `json:"pid,omitempty"`
	PIDAlive  bool   `json:"pidAlive"`
}

type statusJSON struct {
	Mode     string       `json:"mode"`
	Frontend string       `json:"frontend"`
	Backend  string       `json:"backend"`
	Servers  []serverJSON `json:"servers"`
}

func snapshot(details []supervisor.ServerState, mode string) ui.Snapshot {
	snap := ui.Snapshot{Mode: mode}
	for _, d := range details {
		snap.Rows = append(snap.Rows, ui.Row{
			Name:  d.Spec.Name,
			Port:  d.Spec.Port,
			URL:   d.Spec.HealthURL,
			State: string(d.State),
			PID:   d.PID,
		})
	}
	return snap
}

func runStatus(cmd *cobra.Command, args []string) error {
	watch, _ := cmd.Flags().GetBool("watch")
	asJSON, _ := cmd.Flags().GetBool("json")
	interval, _ := cmd.Flags().GetDuration("interval")

	if watch && asJSON {
		return fmt.Errorf("--watch and --json cannot be combined")
	}

	return withOrchestrator(func(o *orchestrator.Orchestrator) error {
		if watch {
			return ui.WatchStatus(cmd.Context(), func() ui.Snapshot {
				snap := snapshot(o.Details(), o.Mode().String())
				res := ui.GetResourceStats()
				snap.Resources = &res
				return snap
			}, interval)
		}

		status := o.Status()
		details := o.Details()

		if asJSON {
			out := statusJSON{
				Mode:     status.Mode.String(),
				Frontend: string(status.Frontend),
				Backend:  string(status.Backend),
			}
			for _, d := range details {
				out.Servers = append(out.Servers, serverJSON{
					Name:      d.Spec.Name,
					Role:      string(d.Spec.Role),
					Port:      d.Spec.Port,
					HealthURL: d.Spec.HealthURL,
					State:     string(d.State),
					PID:       d.PID,
					PIDAlive:  d.PIDAlive,
				})
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		fmt.Print(ui.RenderStatus(snapshot(details, status.Mode.String())))
		ui.PrintHighlight("Frontend", string(status.Frontend))
		ui.PrintHighlight("Backend", string(status.Backend))
		return nil
	})
}
