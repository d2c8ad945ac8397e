//go:build windows

package supervisor

import (
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
)

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// signalGroup has no group semantics on Windows; both variants terminate pid.
func signalGroup(pid int, force bool) error {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return err
	}
	if force {
		return proc.Kill()
	}
	return proc.Terminate()
}

func shellCommand(command string) (string, []string) {
	return "cmd", []string{"/C", command}
}
