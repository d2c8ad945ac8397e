// Package doctor checks that a framework directory can actually run its dev server.
package doctor

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/harshul/devharness/internal/provisioner"
)

// RuntimeStatus represents the status of a runtime check
type RuntimeStatus struct {
	Name      string
	Installed bool
	Version   string
	Path      string
}

// DependencyStatus represents the status of project dependencies
type DependencyStatus struct {
	Manager          string // npm, pnpm, yarn or bun
	ConfigFile       string // package.json when present
	Installed        bool   // Are dependencies installed?
	InstallCommand   string // Command to install dependencies
	ManagerInstalled bool   // Is the package manager itself installed?
	ManagerHint      string // Hint for installing the package manager
	FixCommand       string // One-liner command to fix the issue
	IsMonorepo       bool   // Is this a monorepo/workspace project?
}

// Diagnosis contains the full health check results
type Diagnosis struct {
	ProjectPath  string
	Runtime      RuntimeStatus
	Dependencies DependencyStatus
	Healthy      bool
	Issues       []string
}

// Diagnose checks the health of the Node project at the given path
func Diagnose(projectPath string) Diagnosis {
	diagnosis := Diagnosis{
		ProjectPath: projectPath,
		Healthy:     true,
		Issues:      []string{},
	}

	if info, err := os.Stat(projectPath); err != nil || !info.IsDir() {
		diagnosis.Healthy = false
		diagnosis.Issues = append(diagnosis.Issues, "Project directory "+projectPath+" does not exist")
		return diagnosis
	}

	diagnosis.Runtime = checkNodeRuntime()
	diagnosis.Dependencies = checkNodeDependencies(projectPath)

	if !diagnosis.Runtime.Installed {
		diagnosis.Healthy = false
		diagnosis.Issues = append(diagnosis.Issues, diagnosis.Runtime.Name+" runtime is not installed")
	}

	// Check if the required package manager is installed
	if !diagnosis.Dependencies.ManagerInstalled && diagnosis.Dependencies.ManagerHint != "" {
		diagnosis.Healthy = false
		diagnosis.Issues = append(diagnosis.Issues, diagnosis.Dependencies.ManagerHint)
	}

	if !diagnosis.Dependencies.Installed && diagnosis.Dependencies.ConfigFile != "" {
		diagnosis.Healthy = false
		diagnosis.Issues = append(diagnosis.Issues,
			"Dependencies are not installed (run '"+diagnosis.Dependencies.InstallCommand+"')")
	}

	return diagnosis
}

// checkNodeRuntime checks if Node.js is installed
func checkNodeRuntime() RuntimeStatus {
	status := RuntimeStatus{Name: "Node.js", Installed: false}

	path, err := exec.LookPath("node")
	if err != nil {
		return status
	}
	status.Path = path

	output, err := exec.Command(path, "--version").Output()
	if err == nil {
		status.Installed = true
		status.Version = strings.TrimSpace(string(output))
	}

	return status
}

// checkNodeDependencies checks if Node.js dependencies are installed
func checkNodeDependencies(projectPath string) DependencyStatus {
	status := DependencyStatus{Manager: "npm", ManagerInstalled: true}

	packageJsonPath := filepath.Join(projectPath, "package.json")
	if _, err := os.Stat(packageJsonPath); err != nil {
		return status // No package.json found
	}
	status.ConfigFile = "package.json"

	// Check if node_modules exists
	nodeModulesPath := filepath.Join(projectPath, "node_modules")
	if _, err := os.Stat(nodeModulesPath); err == nil {
		status.Installed = true
	}

	// Use provisioner to detect the correct package manager and check Corepack availability
	pmResult := provisioner.EnsurePackageManager(projectPath)
	status.Manager = string(pmResult.Manager)
	status.ManagerInstalled = pmResult.Available
	status.IsMonorepo = provisioner.DetectPackageManager(projectPath).IsMonorepo

	if !pmResult.Available {
		status.FixCommand = provisioner.GetFixCommand(pmResult.Manager)
		status.ManagerHint = "❌ " + provisioner.GetManagerName(pmResult.Manager) +
			" is required but not installed. Fix: " + status.FixCommand
	}

	installCmd := provisioner.GetInstallCommand(projectPath)
	status.InstallCommand = strings.Join(installCmd, " ")

	return status
}
