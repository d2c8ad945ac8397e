package switcher

import (
	"context"
	"os/exec"
	"time"
)

// Runner runs an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run kills the command when ctx is done.
func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	// Grandchildren may hold the output pipe open after the kill.
	cmd.WaitDelay = 5 * time.Second
	return cmd.CombinedOutput()
}
