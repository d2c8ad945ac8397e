package main

import (
	"github.com/harshul/devharness/internal/orchestrator"
	"github.com/harshul/devharness/internal/ui"
	"github.com/spf13/cobra"
)

// startCmd starts the servers of the current mode
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the servers of the current framework mode",
	Long: `Start brings up every server of the current framework mode and waits
until each answers its health URL. Servers already answering are left alone.
If a server does not come up, its log tail, port owner and host load are
printed and the command exits with status 1.`,
	Args: cobra.NoArgs,
	RunE: runStart,
}

// stopCmd stops every harness server
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop every harness server and reclaim their ports",
	Args:  cobra.NoArgs,
	RunE:  runStop,
}

func runStart(cmd *cobra.Command, args []string) error {
	return withOrchestrator(func(o *orchestrator.Orchestrator) error {
		spinner := ui.NewSpinner("Starting " + o.Mode().String() + " servers...")
		spinner.Start()
		err := o.EnsureServersRunning(cmd.Context())
		spinner.Stop()
		if err != nil {
			return err
		}

		eps := o.Endpoints()
		ui.Success("Servers ready in " + eps.Mode.String() + " mode")
		ui.PrintHighlight("Frontend", eps.FrontendURL)
		if !eps.SingleOrigin() {
			ui.PrintHighlight("Backend", eps.BackendURL)
		}
		return nil
	})
}

func runStop(cmd *cobra.Command, args []string) error {
	return withOrchestrator(func(o *orchestrator.Orchestrator) error {
		spinner := ui.NewSpinner("Stopping servers...")
		spinner.Start()
		err := o.EnsureServersStopped(cmd.Context())
		spinner.Stop()
		if err != nil {
			return err
		}
		ui.Success("All harness servers stopped")
		return nil
	})
}
