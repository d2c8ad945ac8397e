package ports

import (
	"os"
	"time"

	"github.com/harshul/devharness/internal/logger"
	"go.uber.org/zap"
)

const (
	DefaultGrace = time.Second
	defaultPoll  = 100 * time.Millisecond
)

// ReclaimResult reports what FreePort did. Err is informational: a failed
// enumeration never aborts the caller.
type ReclaimResult struct {
	Port       int
	Found      []int
	Terminated []int
	Killed     []int
	Err        error
}

// Reclaimer frees TCP ports by terminating whatever holds them. It is the
// only component allowed to signal processes it did not start.
type Reclaimer struct {
	grace time.Duration
	poll  time.Duration
	log   *logger.Logger
	self  int

	list   func(port int) ([]int, error)
	signal func(pid int, force bool) error
	alive  func(pid int) bool
}

// NewReclaimer creates a Reclaimer that waits grace between SIGTERM and SIGKILL.
func NewReclaimer(log *logger.Logger, grace time.Duration) *Reclaimer {
	if log == nil {
		log = logger.Nop()
	}
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Reclaimer{
		grace:  grace,
		poll:   defaultPoll,
		log:    log.WithComponent("reclaimer"),
		self:   os.Getpid(),
		list:   ListPIDs,
		signal: terminate,
		alive:  ProcessAlive,
	}
}

// FreePort terminates every process listening on port, escalating to a
// forced kill for anything still alive after the grace period. Best effort.
func (r *Reclaimer) FreePort(port int) ReclaimResult {
	res := ReclaimResult{Port: port}

	pids, err := r.list(port)
	if err != nil {
		r.log.Warn("cannot enumerate port owners, skipping reclaim",
			zap.Int("port", port), zap.Error(err))
		res.Err = err
		return res
	}

	for _, pid := range pids {
		if pid != r.self {
			res.Found = append(res.Found, pid)
		}
	}
	if len(res.Found) == 0 {
		r.log.Debug("port has no owner", zap.Int("port", port))
		return res
	}

	for _, pid := range res.Found {
		if err := r.signal(pid, false); err != nil {
			r.log.Debug("SIGTERM failed", zap.Int("pid", pid), zap.Error(err))
			continue
		}
		res.Terminated = append(res.Terminated, pid)
		r.log.Info("sent SIGTERM to port owner", zap.Int("port", port), zap.Int("pid", pid))
	}

	survivors := r.waitForExit(res.Found)
	for _, pid := range survivors {
		if err := r.signal(pid, true); err != nil {
			r.log.Warn("SIGKILL failed", zap.Int("pid", pid), zap.Error(err))
			continue
		}
		res.Killed = append(res.Killed, pid)
		r.log.Warn("port owner ignored SIGTERM, killed", zap.Int("port", port), zap.Int("pid", pid))
	}
	return res
}

// FreePorts reclaims each port in turn.
func (r *Reclaimer) FreePorts(ports ...int) []ReclaimResult {
	out := make([]ReclaimResult, 0, len(ports))
	for _, p := range ports {
		out = append(out, r.FreePort(p))
	}
	return out
}

// waitForExit polls until every pid is gone or the grace period ends, and
// returns the ones still alive.
func (r *Reclaimer) waitForExit(pids []int) []int {
	deadline := time.Now().Add(r.grace)
	for {
		var alive []int
		for _, pid := range pids {
			if r.alive(pid) {
				alive = append(alive, pid)
			}
		}
		if len(alive) == 0 || !time.Now().Before(deadline) {
			return alive
		}
		time.Sleep(min(r.poll, time.Until(deadline)))
	}
}
