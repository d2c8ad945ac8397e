package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/harshul/devharness/internal/logger"
	"github.com/harshul/devharness/internal/ports"
	"go.uber.org/zap"
)

// ProcessControl starts and stops server processes.
type ProcessControl interface {
	// Spawn starts spec in the background with combined output appended to logPath.
	Spawn(spec ServerSpec, logPath string) (pid int, err error)
	// Terminate stops pid and its process group, forcing after grace.
	Terminate(pid int, grace time.Duration) error
	// Alive is a non-destructive liveness check.
	Alive(pid int) bool
	// Owns reports whether pid is still the server described by spec and not
	// an unrelated process that inherited a recycled PID.
	Owns(pid int, spec ServerSpec) bool
}

// OSProcessControl runs servers through the platform shell.
type OSProcessControl struct {
	log *logger.Logger
}

// NewOSProcessControl creates the default ProcessControl.
func NewOSProcessControl(log *logger.Logger) *OSProcessControl {
	if log == nil {
		log = logger.Nop()
	}
	return &OSProcessControl{log: log.WithComponent("process")}
}

// Spawn starts the server in its own process group so that Terminate can
// reach the package-manager wrapper and the node process beneath it. The
// child is deliberately not tied to our lifetime: `start` returns while the
// servers keep running.
func (c *OSProcessControl) Spawn(spec ServerSpec, logPath string) (int, error) {
	if spec.Command == "" {
		return 0, fmt.Errorf("no command configured for %s", spec.Name)
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return 0, fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	fmt.Fprintf(logFile, "\n=== %s: %s (port %d) at %s ===\n",
		spec.Name, spec.Command, spec.Port, time.Now().Format(time.RFC3339))

	shell, args := shellCommand(spec.Command)
	cmd := exec.Command(shell, args...)
	cmd.Dir = spec.Dir
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = append(os.Environ(), "PORT="+strconv.Itoa(spec.Port), "BROWSER=none")
	cmd.SysProcAttr = sysProcAttr()

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return 0, fmt.Errorf("failed to start %s: %w", spec.Name, err)
	}

	pid := cmd.Process.Pid
	c.log.Info("server process started",
		zap.String("server", spec.Name),
		zap.Int("pid", pid),
		zap.String("dir", spec.Dir),
		zap.String("log", logPath))

	// Reap while we are alive; once the CLI exits the child is re-parented.
	go func() {
		_ = cmd.Wait()
		logFile.Close()
	}()
	return pid, nil
}

// Terminate sends SIGTERM to the process group and escalates to SIGKILL.
func (c *OSProcessControl) Terminate(pid int, grace time.Duration) error {
	if !c.Alive(pid) {
		return nil
	}
	if err := signalGroup(pid, false); err != nil {
		c.log.Debug("SIGTERM failed, forcing", zap.Int("pid", pid), zap.Error(err))
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !c.Alive(pid) {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	c.log.Warn("process ignored SIGTERM, sending SIGKILL", zap.Int("pid", pid))
	if err := signalGroup(pid, true); err != nil && c.Alive(pid) {
		return fmt.Errorf("failed to kill pid %d: %w", pid, err)
	}
	return nil
}

// Alive reports whether pid is a live, non-zombie process.
func (c *OSProcessControl) Alive(pid int) bool {
	return ports.ProcessAlive(pid)
}

// Owns accepts pid when it or a descendant listens on the server port, or
// when its command line still carries the server command. The second case
// covers a server that has not bound its port yet.
func (c *OSProcessControl) Owns(pid int, spec ServerSpec) bool {
	return ports.OwnsPort(pid, spec.Port) || ports.RunsCommand(pid, spec.Command)
}
