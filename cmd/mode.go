package main

import (
	"fmt"

	"github.com/harshul/devharness/internal/framework"
	"github.com/harshul/devharness/internal/orchestrator"
	"github.com/harshul/devharness/internal/ui"
	"github.com/spf13/cobra"
)

var modeCmd = &cobra.Command{
	Use:   "mode",
	Short: "Print the active framework mode",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Println(framework.NewDetector(cfg.ModePath()).Mode())
		return nil
	},
}

var modeSetCmd = &cobra.Command{
	Use:       "set <vite|nextjs>",
	Short:     "Change the framework mode, restarting servers that were running",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{framework.Vite.String(), framework.NextJS.String()},
	RunE:      runModeSet,
}

func init() {
	modeCmd.AddCommand(modeSetCmd)
}

func runModeSet(cmd *cobra.Command, args []string) error {
	mode, ok := framework.ParseMode(args[0])
	if !ok {
		return fmt.Errorf("unknown framework mode %q (want vite or nextjs)", args[0])
	}

	return withOrchestrator(func(o *orchestrator.Orchestrator) error {
		if o.Mode() == mode {
			ui.Info("Already in " + mode.String() + " mode")
			return nil
		}
		if err := o.SwitchMode(cmd.Context(), mode); err != nil {
			return err
		}
		ui.Success("Framework mode set to " + mode.String())
		return nil
	})
}
