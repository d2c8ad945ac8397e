package ports

import (
	"errors"
	"fmt"
	"net"
	"os/exec"
	"runtime"
	"sort"
	"strconv"
	"strings"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// ErrNoEnumerator means neither lsof nor the process table could be used to
// find the owner of a port.
var ErrNoEnumerator = errors.New("no facility available to enumerate port owners")

// IsPortAvailable checks if a port is available for binding
func IsPortAvailable(port int) bool {
	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	listener.Close()
	return true
}

// ListPIDs returns the IDs of processes listening on the given TCP port,
// sorted and deduplicated. lsof is preferred; when it is not installed the
// process table is scanned through gopsutil instead.
func ListPIDs(port int) ([]int, error) {
	pids, err := lsofPIDs(port)
	if err == nil {
		return pids, nil
	}
	if !errors.Is(err, exec.ErrNotFound) {
		return nil, err
	}

	pids, err = connectionPIDs(port)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoEnumerator, err)
	}
	return pids, nil
}

func lsofPIDs(port int) ([]int, error) {
	if runtime.GOOS == "windows" {
		return nil, exec.ErrNotFound
	}
	if _, err := exec.LookPath("lsof"); err != nil {
		return nil, exec.ErrNotFound
	}

	cmd := exec.Command("lsof", "-nP", fmt.Sprintf("-iTCP:%d", port), "-sTCP:LISTEN", "-t")
	output, err := cmd.Output()
	if err != nil {
		// lsof exits 1 with no output when nothing matches.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(strings.TrimSpace(string(output))) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("lsof: %w", err)
	}
	return parsePIDList(string(output)), nil
}

func connectionPIDs(port int) ([]int, error) {
	conns, err := psnet.Connections("tcp")
	if err != nil {
		return nil, err
	}
	seen := make(map[int]bool)
	for _, c := range conns {
		if c.Status != "LISTEN" || c.Laddr.Port != uint32(port) || c.Pid <= 0 {
			continue
		}
		seen[int(c.Pid)] = true
	}
	return sortedKeys(seen), nil
}

// parsePIDList parses whitespace separated PIDs, skipping anything else.
func parsePIDList(out string) []int {
	seen := make(map[int]bool)
	for _, field := range strings.Fields(out) {
		pid, err := strconv.Atoi(field)
		if err != nil || pid <= 0 {
			continue
		}
		seen[pid] = true
	}
	return sortedKeys(seen)
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// IsPortListening reports whether anything accepts TCP connections on localhost:port.
func IsPortListening(port int) bool {
	return !IsPortAvailable(port)
}

// GetPortStatus returns a human-readable status of a port, naming the owner when known.
func GetPortStatus(port int) string {
	if IsPortAvailable(port) {
		return fmt.Sprintf("Port %d is available", port)
	}
	pids, err := ListPIDs(port)
	if err != nil || len(pids) == 0 {
		return fmt.Sprintf("Port %d is in use", port)
	}
	strs := make([]string, len(pids))
	for i, pid := range pids {
		strs[i] = strconv.Itoa(pid)
	}
	return fmt.Sprintf("Port %d is in use by PID %s", port, strings.Join(strs, ", "))
}
