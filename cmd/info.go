package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/harshul/devharness/internal/doctor"
	"github.com/harshul/devharness/internal/endpoints"
	"github.com/harshul/devharness/internal/framework"
	"github.com/harshul/devharness/internal/orchestrator"
	"github.com/harshul/devharness/internal/supervisor"
	"github.com/harshul/devharness/internal/switcher"
	"github.com/harshul/devharness/internal/ui"
	"github.com/harshul/devharness/internal/versions"
	"github.com/spf13/cobra"
)

var endpointsCmd = &cobra.Command{
	Use:   "endpoints",
	Short: "Print the URLs of the current framework mode",
	Args:  cobra.NoArgs,
	RunE:  runEndpoints,
}

var versionInfoCmd = &cobra.Command{
	Use:   "version-info",
	Short: "Query the running app for its React / Next.js versions",
	Args:  cobra.NoArgs,
	RunE:  runVersionInfo,
}

var versionsCmd = &cobra.Command{
	Use:   "versions [react|next]",
	Short: "List the catalogued React / Next.js versions and their status",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runVersions,
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check Node.js and project dependencies for the current mode",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

func runEndpoints(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	eps := endpoints.Resolve(framework.NewDetector(cfg.ModePath()).Mode())

	ui.PrintHeader("Endpoints (" + eps.Mode.String() + " mode)")
	ui.PrintHighlight("Frontend", eps.FrontendURL)
	ui.PrintHighlight("Backend", eps.BackendURL)
	ui.PrintHighlight("API health", eps.APIHealthURL)
	ui.PrintHighlight("Version info", eps.VersionInfoURL)

	ui.PrintHighlight("Ports", joinPorts(eps.Ports()))
	ui.PrintHighlight("Checked on stop", joinPorts(endpoints.AllPorts()))
	return nil
}

func joinPorts(ports []int) string {
	strs := make([]string, len(ports))
	for i, p := range ports {
		strs[i] = strconv.Itoa(p)
	}
	return strings.Join(strs, ", ")
}

func runVersionInfo(cmd *cobra.Command, args []string) error {
	return withOrchestrator(func(o *orchestrator.Orchestrator) error {
		info, err := o.VersionInfo(cmd.Context())
		if err != nil {
			return err
		}

		ui.PrintHeader("Version info (" + o.Mode().String() + " mode)")
		if info.React != "" {
			ui.PrintHighlight("React", info.React)
		}
		if info.ReactDOM != "" {
			ui.PrintHighlight("React DOM", info.ReactDOM)
		}
		if info.NextJS != "" {
			ui.PrintHighlight("Next.js", info.NextJS)
		}
		if info.Node != "" {
			ui.PrintHighlight("Node", info.Node)
		}
		ui.PrintHighlight("Status", string(info.Status))
		ui.PrintHighlight("Vulnerable", strconv.FormatBool(info.Vulnerable))

		if !info.Consistent() {
			ui.Warn(fmt.Sprintf("Reported status disagrees with the catalogue (expected %s)", info.Expected()))
		}
		return nil
	})
}

func runVersions(cmd *cobra.Command, args []string) error {
	libs := []switcher.Library{switcher.React, switcher.Next}
	if len(args) == 1 {
		lib, err := switcher.ParseLibrary(args[0])
		if err != nil {
			return err
		}
		libs = []switcher.Library{lib}
	}

	for _, lib := range libs {
		list := versions.React()
		if lib == switcher.Next {
			list = versions.NextJS()
		}
		ui.PrintHeader(lib.String())
		for _, v := range list {
			ui.PrintHighlight(v, describeStatus(lib, v))
		}
	}
	return nil
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	eps := endpoints.Resolve(framework.NewDetector(cfg.ModePath()).Mode())

	healthy := true
	seen := make(map[string]bool)
	for _, spec := range supervisor.SpecsFor(cfg, eps) {
		if seen[spec.Dir] {
			continue
		}
		seen[spec.Dir] = true

		d := doctor.Diagnose(spec.Dir)
		ui.PrintHeader(spec.Name + " (" + spec.Dir + ")")
		if d.Runtime.Installed {
			ui.PrintHighlight("Node", d.Runtime.Version)
		}
		if d.Dependencies.Manager != "" {
			ui.PrintHighlight("Package manager", d.Dependencies.Manager)
		}
		if d.Healthy {
			ui.Success("No issues found")
			continue
		}
		healthy = false
		for _, issue := range d.Issues {
			ui.Fail(issue)
		}
		if d.Dependencies.FixCommand != "" {
			ui.Info("Fix: " + d.Dependencies.FixCommand)
		}
	}

	if !healthy {
		return fmt.Errorf("doctor found problems in %s mode", eps.Mode)
	}
	return nil
}
