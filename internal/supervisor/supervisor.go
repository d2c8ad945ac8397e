// Package supervisor starts, inspects and stops the development servers for
// the active framework mode.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/harshul/devharness/internal/config"
	"github.com/harshul/devharness/internal/endpoints"
	"github.com/harshul/devharness/internal/framework"
	"github.com/harshul/devharness/internal/logger"
	"github.com/harshul/devharness/internal/ports"
	"github.com/harshul/devharness/internal/probe"
	"go.uber.org/zap"
)

// ErrStillRunning is returned by Stop when a harness port is still bound after cleanup.
var ErrStillRunning = errors.New("servers still running after stop")

// Reclaimer frees a TCP port by terminating whatever listens on it.
type Reclaimer interface {
	FreePort(port int) ports.ReclaimResult
}

// State is the lifecycle state of one logical server.
type State string

const (
	StateAbsent   State = "absent"
	StateStarting State = "starting"
	StateReady    State = "ready"
	// StateStale means a record exists but its process is gone.
	StateStale State = "stale"
)

// ServerState is a point-in-time view of one server.
type ServerState struct {
	Spec     ServerSpec
	State    State
	PID      int
	PIDAlive bool
	Probe    probe.Result
}

// RunState is the coarse status reported to callers.
type RunState string

const (
	Running RunState = "running"
	Stopped RunState = "stopped"
)

// Status is the frontend/backend view of the active mode.
type Status struct {
	Mode     framework.Mode
	Frontend RunState
	Backend  RunState
}

// StartOptions tunes a Start call.
type StartOptions struct {
	// ReadyTimeout bounds the wait for each spawned server. Zero uses timeouts.start.
	ReadyTimeout time.Duration
}

// StartError lists the servers that did not become ready, with diagnostics.
type StartError struct {
	Mode        framework.Mode
	Failed      []string
	Diagnostics []Diagnostics
}

func (e *StartError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "servers failed to become ready in %s mode: %s", e.Mode, strings.Join(e.Failed, ", "))
	for _, d := range e.Diagnostics {
		b.WriteString("\n\n")
		b.WriteString(d.String())
	}
	return b.String()
}

// Deps are the collaborators of a Supervisor. Nil fields get the OS defaults.
type Deps struct {
	Prober    *probe.Prober
	Reclaimer Reclaimer
	Control   ProcessControl
	Observer  probe.Observer
	Logger    *logger.Logger
}

// Supervisor manages the servers of whichever mode is active at call time.
type Supervisor struct {
	cfg       *config.Config
	detector  *framework.Detector
	prober    *probe.Prober
	reclaimer Reclaimer
	control   ProcessControl
	records   *RecordStore
	observer  probe.Observer
	log       *logger.Logger

	resolve   func(framework.Mode) endpoints.EndpointSet
	listening func(port int) bool
	diagnose  func(spec ServerSpec) Diagnostics
}

// New creates a Supervisor for the project described by cfg.
func New(cfg *config.Config, deps Deps) *Supervisor {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	s := &Supervisor{
		cfg:       cfg,
		detector:  framework.NewDetector(cfg.ModePath()),
		prober:    deps.Prober,
		reclaimer: deps.Reclaimer,
		control:   deps.Control,
		records:   NewRecordStore(cfg.PIDPath(), cfg.LogPath()),
		observer:  deps.Observer,
		log:       log.WithComponent("supervisor"),
		resolve:   endpoints.Resolve,
		listening: ports.IsPortListening,
	}
	if s.prober == nil {
		s.prober = probe.New(probe.WithConnectTimeout(cfg.Timeouts.Connect), probe.WithLogger(log))
	}
	if s.reclaimer == nil {
		s.reclaimer = ports.NewReclaimer(log, cfg.Timeouts.KillGrace)
	}
	if s.control == nil {
		s.control = NewOSProcessControl(log)
	}
	s.diagnose = s.Diagnose
	return s
}

// Records exposes the PID record store.
func (s *Supervisor) Records() *RecordStore { return s.records }

// Endpoints resolves the endpoints for the mode currently on disk.
func (s *Supervisor) Endpoints() endpoints.EndpointSet {
	return s.resolve(s.detector.Mode())
}

// Specs lists the servers of the mode currently on disk.
func (s *Supervisor) Specs() []ServerSpec {
	return SpecsFor(s.cfg, s.Endpoints())
}

// Inspect reports the state of spec. Liveness of the recorded PID and the
// endpoint are both checked; the endpoint wins when they disagree, so a
// server that answers is ready even when its record points at a dead PID.
func (s *Supervisor) Inspect(spec ServerSpec) ServerState {
	st := ServerState{Spec: spec}
	rec, hasRecord := s.records.Load(spec.Name)
	if hasRecord {
		st.PID = rec.PID
		st.PIDAlive = s.control.Alive(rec.PID)
	}
	st.Probe = s.prober.Check(spec.HealthURL, s.cfg.Timeouts.Probe)

	switch {
	case st.Probe.Ready():
		st.State = StateReady
	case hasRecord && !st.PIDAlive:
		st.State = StateStale
	case hasRecord:
		st.State = StateStarting
	default:
		st.State = StateAbsent
	}
	return st
}

// Details inspects every server of the active mode.
func (s *Supervisor) Details() []ServerState {
	specs := s.Specs()
	out := make([]ServerState, 0, len(specs))
	for _, spec := range specs {
		out = append(out, s.Inspect(spec))
	}
	return out
}

// Status probes the frontend and API health endpoints of the active mode.
func (s *Supervisor) Status() Status {
	eps := s.Endpoints()
	st := Status{Mode: eps.Mode, Frontend: Stopped, Backend: Stopped}
	if s.prober.IsReady(eps.FrontendURL, s.cfg.Timeouts.Probe) {
		st.Frontend = Running
	}
	if s.prober.IsReady(eps.APIHealthURL, s.cfg.Timeouts.Probe) {
		st.Backend = Running
	}
	return st
}

// IsReady reports whether every server of the active mode answers.
func (s *Supervisor) IsReady() bool {
	return s.allReady(s.Specs())
}

func (s *Supervisor) allReady(specs []ServerSpec) bool {
	for _, spec := range specs {
		if !s.prober.IsReady(spec.HealthURL, s.cfg.Timeouts.Probe) {
			return false
		}
	}
	return true
}

// Start makes the servers of the active mode ready. Servers whose endpoint
// already answers are left alone, so repeated calls never spawn duplicates.
// Ports are reclaimed before a spawn, never after one.
func (s *Supervisor) Start(ctx context.Context, opts StartOptions) error {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = s.cfg.Timeouts.Start
	}

	eps := s.Endpoints()
	specs := SpecsFor(s.cfg, eps)
	if s.allReady(specs) {
		s.log.Info("servers already running", zap.String("mode", eps.Mode.String()))
		return nil
	}

	if err := s.records.EnsureDir(); err != nil {
		s.log.Warn("failed to create state directories", zap.Error(err))
	}

	var failed []ServerSpec
	var pending []ServerSpec
	spawned := make(map[string]int)

	for _, spec := range specs {
		st := s.Inspect(spec)
		switch st.State {
		case StateReady:
			switch {
			case st.PID == 0:
				s.log.Info("endpoint already served by an unrecorded process",
					zap.String("server", spec.Name), zap.Int("port", spec.Port))
			case !st.PIDAlive:
				// Served by someone else now; the listener is left alone.
				s.log.Info("endpoint answers but recorded pid is gone, removing record",
					zap.String("server", spec.Name), zap.Int("pid", st.PID))
				s.dropRecord(spec.Name)
			}
			continue
		case StateStale:
			s.log.Info("removing stale pid record",
				zap.String("server", spec.Name), zap.Int("pid", st.PID))
			s.dropRecord(spec.Name)
		case StateStarting:
			// Alive but not answering: a previous start that never came up.
			s.stopRecorded(Record{Name: spec.Name, PID: st.PID}, spec,
				"recorded server is not answering, restarting")
		}

		s.reclaimer.FreePort(spec.Port)

		logPath := s.records.LogPath(spec.Name)
		pid, err := s.control.Spawn(spec, logPath)
		if err != nil {
			s.log.Error("failed to spawn server", zap.String("server", spec.Name), zap.Error(err))
			failed = append(failed, spec)
			continue
		}
		spawned[spec.Name] = pid
		if err := s.records.Save(Record{Name: spec.Name, PID: pid, LogPath: logPath}); err != nil {
			s.log.Warn("failed to record pid", zap.String("server", spec.Name), zap.Error(err))
		}
		pending = append(pending, spec)
	}

	for _, spec := range pending {
		ok := s.prober.WaitUntilReady(ctx, spec.HealthURL, probe.WaitOptions{
			MaxAttempts:  max(probe.DefaultWaitOptions().MaxAttempts, int(opts.ReadyTimeout/time.Second)),
			MaxWait:      opts.ReadyTimeout,
			CheckTimeout: s.cfg.Timeouts.Probe,
			Observer:     s.observer,
		})
		if !ok {
			failed = append(failed, spec)
		}
	}

	if len(failed) == 0 {
		s.log.Info("servers ready", zap.String("mode", eps.Mode.String()))
		return nil
	}

	startErr := &StartError{Mode: eps.Mode}
	for _, spec := range failed {
		startErr.Failed = append(startErr.Failed, spec.Name)
		startErr.Diagnostics = append(startErr.Diagnostics, s.diagnose(spec))

		// A server that never became ready is torn down rather than left half-started.
		if pid, ok := spawned[spec.Name]; ok {
			if err := s.control.Terminate(pid, s.cfg.Timeouts.KillGrace); err != nil {
				s.log.Warn("failed to terminate server", zap.Int("pid", pid), zap.Error(err))
			}
			s.dropRecord(spec.Name)
		}
	}
	s.log.Error("servers failed to start",
		zap.String("mode", eps.Mode.String()),
		zap.Strings("failed", startErr.Failed))
	return startErr
}

// Stop stops the servers of every mode. It runs the configured stop command,
// terminates recorded processes, then reclaims any harness port still bound.
func (s *Supervisor) Stop(ctx context.Context) error {
	if s.cfg.Commands.Stop != "" {
		s.runStopCommand(ctx)
	}

	records, err := s.records.List()
	if err != nil {
		s.log.Warn("failed to list pid records", zap.Error(err))
	}
	known := s.allSpecs()
	for _, rec := range records {
		spec, ok := known[rec.Name]
		if !ok {
			s.log.Warn("pid record for unknown server, dropping",
				zap.String("server", rec.Name), zap.Int("pid", rec.PID))
			s.dropRecord(rec.Name)
			continue
		}
		s.stopRecorded(rec, spec, "stopping server")
	}

	allPorts := s.allPorts()
	for _, port := range allPorts {
		if s.listening(port) {
			res := s.reclaimer.FreePort(port)
			if res.Err != nil {
				s.log.Warn("could not reclaim port", zap.Int("port", port), zap.Error(res.Err))
			}
		}
	}

	if busy := s.waitPortsFree(ctx, allPorts, s.cfg.Timeouts.KillGrace); len(busy) > 0 {
		return fmt.Errorf("%w: ports %v", ErrStillRunning, busy)
	}
	s.log.Info("servers stopped")
	return nil
}

// stopRecorded terminates the process behind rec, then removes the record.
// A live PID that no longer belongs to spec is never signalled; whatever is
// still bound to the port is left to the reclaimer.
func (s *Supervisor) stopRecorded(rec Record, spec ServerSpec, msg string) {
	switch {
	case !s.control.Alive(rec.PID):
	case !s.control.Owns(rec.PID, spec):
		s.log.Warn("recorded pid no longer belongs to server, not signalling it",
			zap.String("server", rec.Name), zap.Int("pid", rec.PID), zap.Int("port", spec.Port))
	default:
		s.log.Info(msg, zap.String("server", rec.Name), zap.Int("pid", rec.PID))
		if err := s.control.Terminate(rec.PID, s.cfg.Timeouts.KillGrace); err != nil {
			s.log.Warn("failed to terminate server", zap.Int("pid", rec.PID), zap.Error(err))
		}
	}
	s.dropRecord(rec.Name)
}

// dropRecord deletes the record for name. Failures are logged: a leftover
// record is re-checked on the next run.
func (s *Supervisor) dropRecord(name string) {
	if err := s.records.Delete(name); err != nil {
		s.log.Warn("failed to remove pid record", zap.String("server", name), zap.Error(err))
	}
}

// allSpecs maps every server name of every mode to its spec.
func (s *Supervisor) allSpecs() map[string]ServerSpec {
	out := make(map[string]ServerSpec)
	for _, m := range framework.Modes {
		for _, spec := range SpecsFor(s.cfg, s.resolve(m)) {
			out[spec.Name] = spec
		}
	}
	return out
}

// allPorts lists the ports of every mode through the configured resolver.
func (s *Supervisor) allPorts() []int {
	seen := make(map[int]bool)
	var out []int
	for _, m := range framework.Modes {
		for _, p := range s.resolve(m).Ports() {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

// waitPortsFree polls until no port in candidates is bound or wait elapses,
// returning the ports still bound.
func (s *Supervisor) waitPortsFree(ctx context.Context, candidates []int, wait time.Duration) []int {
	deadline := time.Now().Add(wait)
	for {
		var busy []int
		for _, p := range candidates {
			if s.listening(p) {
				busy = append(busy, p)
			}
		}
		if len(busy) == 0 || !time.Now().Before(deadline) {
			return busy
		}
		select {
		case <-ctx.Done():
			return busy
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// PortsInUse returns every harness port that is currently bound.
func (s *Supervisor) PortsInUse() []int {
	var busy []int
	for _, p := range s.allPorts() {
		if s.listening(p) {
			busy = append(busy, p)
		}
	}
	return busy
}

// ReclaimAll force-frees every harness port that is still bound.
func (s *Supervisor) ReclaimAll() {
	for _, p := range s.PortsInUse() {
		s.reclaimer.FreePort(p)
	}
}

func (s *Supervisor) runStopCommand(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.Command)
	defer cancel()

	shell, args := shellCommand(s.cfg.Commands.Stop)
	cmd := exec.CommandContext(ctx, shell, args...)
	cmd.Dir = s.cfg.Root
	output, err := cmd.CombinedOutput()
	if err != nil {
		s.log.Warn("stop command failed",
			zap.String("command", s.cfg.Commands.Stop),
			zap.String("output", strings.TrimSpace(string(output))),
			zap.Error(err))
		return
	}
	s.log.Debug("stop command finished", zap.String("command", s.cfg.Commands.Stop))
}
