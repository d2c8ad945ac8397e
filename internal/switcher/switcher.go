// Package switcher changes the declared and installed version of a
// framework library, doing nothing when the request is already satisfied.
package switcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/harshul/devharness/internal/config"
	"github.com/harshul/devharness/internal/framework"
	"github.com/harshul/devharness/internal/logger"
	"github.com/harshul/devharness/internal/provisioner"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

var (
	// ErrInstallTimeout is wrapped by an InstallError when the install outlives timeouts.install.
	ErrInstallTimeout = errors.New("install timed out")
	// ErrNotInstalled means the install finished but the requested version is not on disk.
	ErrNotInstalled = errors.New("requested version not installed after switch")
)

// InstallError carries the captured output of a failed install.
type InstallError struct {
	Command  string
	Output   string
	ExitCode int
	Err      error
}

func (e *InstallError) Error() string {
	if errors.Is(e.Err, ErrInstallTimeout) {
		return fmt.Sprintf("%q: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%q exited with code %d: %v", e.Command, e.ExitCode, e.Err)
}

func (e *InstallError) Unwrap() error { return e.Err }

// Outcome describes what a Switch call did.
type Outcome struct {
	Library         Library
	Requested       string
	Dir             string
	Before          string
	After           string
	NoOp            bool
	ManifestUpdated bool
	InstallRan      bool
}

// Switcher edits package.json and runs the install step.
type Switcher struct {
	cfg    *config.Config
	runner Runner
	log    *logger.Logger

	writeFile func(name string, data []byte, perm os.FileMode) error
}

// New creates a Switcher. A nil runner uses ExecRunner.
func New(cfg *config.Config, runner Runner, log *logger.Logger) *Switcher {
	if runner == nil {
		runner = ExecRunner{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Switcher{
		cfg:       cfg,
		runner:    runner,
		log:       log.WithComponent("switcher"),
		writeFile: os.WriteFile,
	}
}

// ProjectDir is the framework directory whose manifest holds lib in mode.
// Next.js always lives in the Next.js app; React follows the active mode.
func (s *Switcher) ProjectDir(mode framework.Mode, lib Library) string {
	if lib == Next || mode == framework.NextJS {
		return s.cfg.Path(s.cfg.NextJS.Dir)
	}
	return s.cfg.Path(s.cfg.Vite.Dir)
}

// Active reports whether version is both installed and declared for lib.
func (s *Switcher) Active(mode framework.Mode, lib Library, version string) bool {
	dir := s.ProjectDir(mode, lib)
	return installedMatches(dir, lib, version) && declaredMatches(dir, lib, version)
}

func installedMatches(dir string, lib Library, version string) bool {
	for _, pkg := range lib.Packages() {
		v, err := InstalledVersion(dir, pkg)
		if err != nil || !SameVersion(v, version) {
			return false
		}
	}
	return true
}

func declaredMatches(dir string, lib Library, version string) bool {
	for _, pkg := range lib.Packages() {
		v, err := DeclaredVersion(dir, pkg)
		if err != nil || !SameVersion(v, version) {
			return false
		}
	}
	return true
}

// Switch makes version the declared and installed version of lib.
//
// Installed package metadata is the source of truth. When it and the
// manifest already agree with version nothing is written or run. Otherwise
// the manifest is updated in place and the install step runs unless the
// installed version already satisfies the request. Install failures are
// returned as *InstallError; the caller decides whether that is fatal.
func (s *Switcher) Switch(ctx context.Context, mode framework.Mode, lib Library, version string) (Outcome, error) {
	dir := s.ProjectDir(mode, lib)
	primary := lib.Packages()[0]
	out := Outcome{Library: lib, Requested: version, Dir: dir}
	out.Before, _ = InstalledVersion(dir, primary)

	log := s.log.WithFields(zap.String("library", lib.String()), zap.String("version", version))

	if installedMatches(dir, lib, version) && declaredMatches(dir, lib, version) {
		log.Info("version already active, skipping switch")
		out.NoOp = true
		out.After = out.Before
		return out, nil
	}

	updated, err := s.updateManifest(dir, lib, version)
	if err != nil {
		return out, err
	}
	out.ManifestUpdated = updated

	if installedMatches(dir, lib, version) {
		log.Info("installed version already satisfies request, skipping install")
		out.After, _ = InstalledVersion(dir, primary)
		return out, nil
	}

	out.InstallRan = true
	if err := s.install(ctx, dir, lib, version); err != nil {
		log.Error("install failed", zap.Error(err))
		out.After, _ = InstalledVersion(dir, primary)
		return out, err
	}

	out.After, _ = InstalledVersion(dir, primary)
	if !installedMatches(dir, lib, version) {
		return out, fmt.Errorf("%w: want %s, have %q", ErrNotInstalled, version, out.After)
	}
	log.Info("switched version", zap.String("from", out.Before), zap.String("to", out.After))
	return out, nil
}

// updateManifest sets dependencies.<pkg> for every package of lib that
// differs, leaving the rest of package.json byte for byte.
func (s *Switcher) updateManifest(dir string, lib Library, version string) (bool, error) {
	path := filepath.Join(dir, "package.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read manifest: %w", err)
	}

	changed := false
	for _, pkg := range lib.Packages() {
		if declared, err := DeclaredVersion(dir, pkg); err == nil && SameVersion(declared, version) {
			continue
		}
		data, err = sjson.SetBytes(data, "dependencies."+gjsonEscape(pkg), version)
		if err != nil {
			return false, fmt.Errorf("failed to update %s in manifest: %w", pkg, err)
		}
		changed = true
	}
	if !changed {
		return false, nil
	}

	perm := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	if err := s.writeFile(path, data, perm); err != nil {
		return false, fmt.Errorf("failed to write manifest: %w", err)
	}
	s.log.Info("manifest updated", zap.String("path", path), zap.String("version", version))
	return true, nil
}

// install runs commands.switch when configured, otherwise the package
// manager's install command in dir. When the plain install leaves the old
// version in place (a lockfile pinning it), the packages are added again
// at the exact version.
func (s *Switcher) install(ctx context.Context, dir string, lib Library, version string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.Install)
	defer cancel()

	if tmpl := s.cfg.Commands.Switch; tmpl != "" {
		command := strings.NewReplacer("{library}", lib.String(), "{version}", version).Replace(tmpl)
		if runtime.GOOS == "windows" {
			return s.run(ctx, s.cfg.Root, "cmd", "/C", command)
		}
		return s.run(ctx, s.cfg.Root, "sh", "-c", command)
	}

	check := provisioner.Check(dir)
	if !check.IsAvailable {
		return &InstallError{Command: string(check.Manager), ExitCode: -1, Err: errors.New(check.InstallHint)}
	}
	cmd := provisioner.GetInstallCommand(dir)
	if err := s.run(ctx, dir, cmd[0], cmd[1:]...); err != nil {
		return err
	}
	if installedMatches(dir, lib, version) {
		return nil
	}

	pinned := make([]string, 0, len(lib.Packages()))
	for _, pkg := range lib.Packages() {
		pinned = append(pinned, pkg+"@"+version)
	}
	s.log.Warn("install kept the previous version, pinning explicitly", zap.Strings("packages", pinned))
	cmd = provisioner.AddCommand(dir, pinned...)
	return s.run(ctx, dir, cmd[0], cmd[1:]...)
}

// run executes one install step under ctx, which carries the install deadline.
func (s *Switcher) run(ctx context.Context, workDir, name string, args ...string) error {
	display := strings.Join(append([]string{name}, args...), " ")
	s.log.Info("installing", zap.String("command", display), zap.String("dir", workDir))

	output, err := s.runner.Run(ctx, workDir, name, args...)
	if err == nil {
		return nil
	}

	installErr := &InstallError{Command: display, Output: string(output), ExitCode: -1, Err: err}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		installErr.Err = fmt.Errorf("%w after %s", ErrInstallTimeout, s.cfg.Timeouts.Install)
		return installErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		installErr.ExitCode = exitErr.ExitCode()
	}
	return installErr
}
