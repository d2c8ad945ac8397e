package ports

import (
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// maxAncestry bounds the parent walk in OwnsPort.
const maxAncestry = 16

// ProcessAlive is a non-destructive liveness check. Zombies count as dead:
// they hold a PID but no longer serve anything.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid))
	if err != nil || !exists {
		return false
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	statuses, err := proc.Status()
	if err != nil {
		return true
	}
	for _, s := range statuses {
		if s == process.Zombie {
			return false
		}
	}
	return true
}

// ProcessInfo describes a process for diagnostics.
type ProcessInfo struct {
	PID     int
	Name    string
	Cmdline string
}

// DescribeProcess looks up name and command line, leaving fields empty on failure.
func DescribeProcess(pid int) ProcessInfo {
	info := ProcessInfo{PID: pid}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return info
	}
	if name, err := proc.Name(); err == nil {
		info.Name = name
	}
	if cmdline, err := proc.Cmdline(); err == nil {
		info.Cmdline = cmdline
	}
	return info
}

// terminate asks pid to exit; force sends the uncatchable kill signal.
func terminate(pid int, force bool) error {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return err
	}
	if force {
		return proc.Kill()
	}
	return proc.Terminate()
}

// OwnsPort reports whether pid, or a descendant of it, listens on port.
// Servers run beneath a shell or package-manager wrapper, so the listener is
// rarely the recorded process itself. Enumeration failures report false.
func OwnsPort(pid, port int) bool {
	if pid <= 0 {
		return false
	}
	listeners, err := ListPIDs(port)
	if err != nil {
		return false
	}
	for _, l := range listeners {
		if descendsFrom(l, pid) {
			return true
		}
	}
	return false
}

func descendsFrom(pid, ancestor int) bool {
	for i := 0; i < maxAncestry; i++ {
		if pid == ancestor {
			return true
		}
		if pid <= 1 {
			return false
		}
		proc, err := process.NewProcess(int32(pid))
		if err != nil {
			return false
		}
		ppid, err := proc.Ppid()
		if err != nil || int(ppid) == pid {
			return false
		}
		pid = int(ppid)
	}
	return false
}

// RunsCommand reports whether the command line of pid contains command.
func RunsCommand(pid int, command string) bool {
	command = strings.TrimSpace(command)
	if pid <= 0 || command == "" {
		return false
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	args, err := proc.CmdlineSlice()
	if err != nil || len(args) == 0 {
		return false
	}
	return strings.Contains(strings.Join(args, " "), command)
}
