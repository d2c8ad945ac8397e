package main

import (
	"fmt"

	"github.com/harshul/devharness/internal/framework"
	"github.com/harshul/devharness/internal/orchestrator"
	"github.com/harshul/devharness/internal/switcher"
	"github.com/harshul/devharness/internal/ui"
	"github.com/harshul/devharness/internal/versions"
	"github.com/spf13/cobra"
)

var switchCmd = &cobra.Command{
	Use:   "switch <library> <version>",
	Short: "Install a React or Next.js version and restart the servers",
	Long: `Switch makes <version> the installed version of <library> (react or next)
in the project of the current framework mode. The servers are stopped, their
ports verified free, the dependency manifest updated and the package manager
run, then the servers are started again and checked.

If the version is already installed and the servers answer, nothing happens.
With --no-restart only the manifest and install steps run.`,
	Args: cobra.ExactArgs(2),
	RunE: runSwitch,
}

func init() {
	switchCmd.Flags().Bool("no-restart", false, "Only switch the installed version; leave servers alone")
}

func describeStatus(lib switcher.Library, version string) string {
	if lib == switcher.Next {
		return string(versions.NextJSStatus(version))
	}
	return string(versions.ReactStatus(version))
}

func runSwitch(cmd *cobra.Command, args []string) error {
	lib, err := switcher.ParseLibrary(args[0])
	if err != nil {
		return err
	}
	version := args[1]
	noRestart, _ := cmd.Flags().GetBool("no-restart")

	if noRestart {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		mode := framework.NewDetector(cfg.ModePath()).Mode()
		out, err := switcher.New(cfg, switcher.ExecRunner{}, log).Switch(cmd.Context(), mode, lib, version)
		if err != nil {
			return err
		}
		printOutcome(out)
		return nil
	}

	return withOrchestrator(func(o *orchestrator.Orchestrator) error {
		spinner := ui.NewSpinner(fmt.Sprintf("Switching %s to %s...", lib, version))
		spinner.Start()
		r, err := o.SwitchToVersionAndRestart(cmd.Context(), lib, version)
		spinner.Stop()

		if r.SwitchErr != nil {
			ui.Fail(fmt.Sprintf("Switch to %s %s failed: %v", lib, version, r.SwitchErr))
		}
		if err != nil {
			return err
		}
		if r.SwitchErr != nil {
			ui.Warn("Servers were restarted on the previous version")
			return r.SwitchErr
		}

		if r.AlreadyActive {
			ui.Info(fmt.Sprintf("%s %s already active (%s)", lib, version, describeStatus(lib, version)))
		} else {
			printOutcome(r.Outcome)
		}
		ui.Success("Servers ready in " + r.Mode.String() + " mode")
		return nil
	})
}

func printOutcome(out switcher.Outcome) {
	if out.NoOp {
		ui.Info(fmt.Sprintf("%s %s already installed", out.Library, out.Requested))
		return
	}
	before := out.Before
	if before == "" {
		before = "none"
	}
	ui.Success(fmt.Sprintf("%s %s -> %s (%s)", out.Library, before, out.After, describeStatus(out.Library, out.After)))
	ui.PrintHighlight("Project", out.Dir)
	if out.InstallRan {
		ui.PrintHighlight("Install", "ran")
	}
}
