package provisioner

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
)

// PackageManager represents a detected package manager
type PackageManager string

const (
	NPM  PackageManager = "npm"
	PNPM PackageManager = "pnpm"
	Yarn PackageManager = "yarn"
	Bun  PackageManager = "bun"
)

// PackageManagerInfo contains details about the detected package manager
type PackageManagerInfo struct {
	Manager        PackageManager
	LockFile       string
	InstallCommand []string
	IsMonorepo     bool
	Installed      bool
	Version        string
}

// lockFiles maps lock files to their package manager, in detection order.
var lockFiles = []struct {
	name    string
	manager PackageManager
}{
	{"pnpm-lock.yaml", PNPM},
	{"pnpm-workspace.yaml", PNPM},
	{"bun.lockb", Bun},
	{"bun.lock", Bun},
	{"yarn.lock", Yarn},
}

// DetectPackageManager checks for lock files in the project root and returns
// the appropriate package manager. Priority: pnpm > bun > yarn > npm.
// A package.json using the workspace: protocol means pnpm even without a lock file.
func DetectPackageManager(projectPath string) PackageManagerInfo {
	manifest, _ := os.ReadFile(filepath.Join(projectPath, "package.json"))

	info := PackageManagerInfo{Manager: NPM, LockFile: "package-lock.json"}
	for _, lf := range lockFiles {
		if _, err := os.Stat(filepath.Join(projectPath, lf.name)); err == nil {
			info.Manager = lf.manager
			info.LockFile = lf.name
			break
		}
	}
	if info.Manager == NPM && usesWorkspaceProtocol(manifest) {
		info.Manager = PNPM
		info.LockFile = "pnpm-lock.yaml"
	}

	switch info.Manager {
	case PNPM:
		if info.LockFile == "pnpm-workspace.yaml" {
			info.LockFile = "pnpm-lock.yaml"
		}
		_, err := os.Stat(filepath.Join(projectPath, "pnpm-workspace.yaml"))
		info.IsMonorepo = err == nil || usesWorkspaceProtocol(manifest)
	case Yarn, Bun:
		info.IsMonorepo = gjson.GetBytes(manifest, "workspaces").Exists()
	}

	info.InstallCommand = []string{string(info.Manager), "install"}
	if info.Manager == PNPM && info.IsMonorepo {
		// Recursive install for workspaces
		info.InstallCommand = append(info.InstallCommand, "-r")
	}
	info.Installed, info.Version = checkManagerInstalled(string(info.Manager))
	return info
}

// usesWorkspaceProtocol reports whether any dependency uses pnpm's workspace: protocol.
func usesWorkspaceProtocol(manifest []byte) bool {
	found := false
	for _, section := range []string{"dependencies", "devDependencies", "peerDependencies"} {
		gjson.GetBytes(manifest, section).ForEach(func(_, v gjson.Result) bool {
			found = strings.HasPrefix(v.String(), "workspace:")
			return !found
		})
		if found {
			return true
		}
	}
	return false
}

// checkManagerInstalled checks if a package manager is installed and returns its version
func checkManagerInstalled(manager string) (bool, string) {
	if !IsCommandAvailable(manager) {
		return false, ""
	}
	cmd := exec.Command(manager, "--version")
	output, err := cmd.Output()
	if err != nil {
		return false, ""
	}
	return true, strings.TrimSpace(string(output))
}

// CheckResult represents the result of checking package manager availability
type CheckResult struct {
	Manager     PackageManager
	IsAvailable bool
	Version     string
	InstallHint string
	IsRequired  bool
	IsMonorepo  bool
}

// Check verifies if the required package manager is available
func Check(projectPath string) CheckResult {
	info := DetectPackageManager(projectPath)

	result := CheckResult{
		Manager:     info.Manager,
		IsAvailable: info.Installed,
		Version:     info.Version,
		IsMonorepo:  info.IsMonorepo,
		IsRequired:  info.Manager != NPM, // npm is typically pre-installed with node
	}

	// Provide installation hints for missing package managers
	if !info.Installed {
		result.InstallHint = fmt.Sprintf("This project requires %s. %s", GetManagerName(info.Manager), getInstallHint(info.Manager))
	}

	return result
}

// getInstallHint returns the installation hint for a package manager
func getInstallHint(manager PackageManager) string {
	switch manager {
	case PNPM:
		return "Please run 'corepack enable pnpm' to continue."
	case Yarn:
		return "Please run 'corepack enable yarn' to continue."
	case Bun:
		return "Please install bun from https://bun.sh or run 'curl -fsSL https://bun.sh/install | bash'"
	case NPM:
		return "Please install Node.js from https://nodejs.org"
	default:
		return ""
	}
}

// GetInstallCommand returns the install command for the detected package manager
func GetInstallCommand(projectPath string) []string {
	info := DetectPackageManager(projectPath)
	return info.InstallCommand
}

// AddCommand returns the command that pins packages (name@version) as exact
// dependencies with the package manager detected in projectPath.
func AddCommand(projectPath string, packages ...string) []string {
	var cmd []string
	switch DetectPackageManager(projectPath).Manager {
	case PNPM:
		cmd = []string{"pnpm", "add", "--save-exact"}
	case Yarn:
		cmd = []string{"yarn", "add", "--exact"}
	case Bun:
		cmd = []string{"bun", "add", "--exact"}
	default:
		cmd = []string{"npm", "install", "--save-exact"}
	}
	return append(cmd, packages...)
}

// IsCommandAvailable reports whether name resolves on PATH.
func IsCommandAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// EnsureResult is the outcome of EnsurePackageManager.
type EnsureResult struct {
	Manager     PackageManager
	Available   bool
	Version     string
	UserMessage string
}

// EnsurePackageManager reports whether the package manager required by
// projectPath can be run, with a message for the user when it cannot.
func EnsurePackageManager(projectPath string) EnsureResult {
	check := Check(projectPath)
	return EnsureResult{
		Manager:     check.Manager,
		Available:   check.IsAvailable,
		Version:     check.Version,
		UserMessage: check.InstallHint,
	}
}

// GetFixCommand returns a one-liner that makes manager available.
func GetFixCommand(manager PackageManager) string {
	switch manager {
	case PNPM:
		if IsCommandAvailable("corepack") {
			return "corepack enable pnpm"
		}
		return "npm install -g pnpm"
	case Yarn:
		if IsCommandAvailable("corepack") {
			return "corepack enable yarn"
		}
		return "npm install -g yarn"
	case Bun:
		return "curl -fsSL https://bun.sh/install | bash"
	default:
		return "Install Node.js from https://nodejs.org"
	}
}

// GetManagerName returns a user-friendly name for the package manager
func GetManagerName(manager PackageManager) string {
	switch manager {
	case PNPM:
		return "pnpm"
	case Yarn:
		return "Yarn"
	case Bun:
		return "Bun"
	case NPM:
		return "npm"
	default:
		return string(manager)
	}
}
