package supervisor

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/harshul/devharness/internal/doctor"
	"github.com/harshul/devharness/internal/ports"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const (
	logTailLines = 40
	// logTailBytes caps how much of a large log is scanned for the tail.
	logTailBytes = 64 * 1024
)

// Diagnostics explains why a server did not become ready.
type Diagnostics struct {
	Server     string
	Port       int
	HealthURL  string
	Probe      string
	PID        int
	PIDAlive   bool
	PortStatus string
	Owners     []ports.ProcessInfo
	LogPath    string
	LogTail    []string
	MemUsed    float64
	CPUUsed    float64
	Issues     []string
}

// Diagnose collects what is known about spec: recorded process, port owner,
// last probe outcome, host load, environment problems and the log tail.
func (s *Supervisor) Diagnose(spec ServerSpec) Diagnostics {
	d := Diagnostics{
		Server:    spec.Name,
		Port:      spec.Port,
		HealthURL: spec.HealthURL,
		LogPath:   s.records.LogPath(spec.Name),
	}

	if rec, ok := s.records.Load(spec.Name); ok {
		d.PID = rec.PID
		d.PIDAlive = s.control.Alive(rec.PID)
	}

	d.Probe = s.prober.Check(spec.HealthURL, s.cfg.Timeouts.Probe).String()
	d.PortStatus = ports.GetPortStatus(spec.Port)
	if pids, err := ports.ListPIDs(spec.Port); err == nil {
		for _, pid := range pids {
			d.Owners = append(d.Owners, ports.DescribeProcess(pid))
		}
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		d.MemUsed = vm.UsedPercent
	}
	if pct, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(pct) > 0 {
		d.CPUUsed = pct[0]
	}

	d.Issues = doctor.Diagnose(spec.Dir).Issues
	d.LogTail = tailLines(d.LogPath, logTailLines)
	return d
}

func (d Diagnostics) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", d.Server, d.HealthURL)
	fmt.Fprintf(&b, "  probe: %s\n", d.Probe)
	fmt.Fprintf(&b, "  port:  %s\n", d.PortStatus)
	for _, o := range d.Owners {
		fmt.Fprintf(&b, "         pid %d %s %s\n", o.PID, o.Name, o.Cmdline)
	}
	if d.PID > 0 {
		state := "exited"
		if d.PIDAlive {
			state = "alive"
		}
		fmt.Fprintf(&b, "  pid:   %d (%s)\n", d.PID, state)
	} else {
		b.WriteString("  pid:   no record\n")
	}
	fmt.Fprintf(&b, "  host:  mem %.0f%% cpu %.0f%%\n", d.MemUsed, d.CPUUsed)
	for _, issue := range d.Issues {
		fmt.Fprintf(&b, "  issue: %s\n", issue)
	}
	if len(d.LogTail) == 0 {
		fmt.Fprintf(&b, "  log:   %s (empty or missing)", d.LogPath)
		return b.String()
	}
	fmt.Fprintf(&b, "  log:   last %d lines of %s\n", len(d.LogTail), d.LogPath)
	for _, line := range d.LogTail {
		b.WriteString("    | ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// tailLines returns up to n trailing lines of path.
func tailLines(path string, n int) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	partial := false
	if info, err := f.Stat(); err == nil && info.Size() > logTailBytes {
		if _, err := f.Seek(-logTailBytes, io.SeekEnd); err == nil {
			partial = true
		}
	}

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), logTailBytes)
	first := true
	for scanner.Scan() {
		if first && partial {
			// The first line after a seek is usually cut in half.
			first = false
			continue
		}
		first = false
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines
}
