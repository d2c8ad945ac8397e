// Package orchestrator composes mode detection, the supervisor and the
// version switcher into the operations test fixtures call.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harshul/devharness/internal/config"
	"github.com/harshul/devharness/internal/endpoints"
	"github.com/harshul/devharness/internal/framework"
	"github.com/harshul/devharness/internal/logger"
	"github.com/harshul/devharness/internal/supervisor"
	"github.com/harshul/devharness/internal/switcher"
	"github.com/harshul/devharness/internal/tracker"
	"github.com/harshul/devharness/internal/versions"
	"go.uber.org/zap"
)

// ErrNotReady is returned when the final readiness check after a restart fails.
var ErrNotReady = errors.New("servers not responding after restart")

// Servers is the part of the supervisor the orchestrator drives.
type Servers interface {
	Start(ctx context.Context, opts supervisor.StartOptions) error
	Stop(ctx context.Context) error
	Status() supervisor.Status
	Details() []supervisor.ServerState
	IsReady() bool
	Endpoints() endpoints.EndpointSet
	PortsInUse() []int
	ReclaimAll()
}

// Switcher is the part of the version switcher the orchestrator drives.
type Switcher interface {
	Active(mode framework.Mode, lib switcher.Library, version string) bool
	Switch(ctx context.Context, mode framework.Mode, lib switcher.Library, version string) (switcher.Outcome, error)
}

// Restart reports what SwitchToVersionAndRestart did.
type Restart struct {
	Library switcher.Library
	Version string
	Mode    framework.Mode
	// AlreadyActive is set when the version was in place and no switch ran.
	AlreadyActive bool
	Outcome       switcher.Outcome
	// SwitchErr is the switch failure, if any. The servers were still
	// restarted, so the caller may skip rather than abort.
	SwitchErr error
}

// Options controls the orchestrator.
type Options struct {
	// Worker names the readiness handoff file. Empty uses the process ID.
	Worker string
}

type Orchestrator struct {
	cfg      *config.Config
	detector *framework.Detector
	servers  Servers
	switcher Switcher
	session  *tracker.Session
	log      *logger.Logger

	sleep func(time.Duration)
}

// New wires the real supervisor and switcher for cfg.
func New(cfg *config.Config, log *logger.Logger, opts Options) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	session := tracker.NewSession(opts.Worker)
	sup := supervisor.New(cfg, supervisor.Deps{Observer: session, Logger: log})
	sw := switcher.New(cfg, switcher.ExecRunner{}, log)
	return newOrchestrator(cfg, sup, sw, session, log)
}

func newOrchestrator(cfg *config.Config, servers Servers, sw Switcher, session *tracker.Session, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		detector: framework.NewDetector(cfg.ModePath()),
		servers:  servers,
		switcher: sw,
		session:  session,
		log:      log.WithComponent("orchestrator"),
		sleep:    time.Sleep,
	}
}

// Mode is the framework mode currently on disk.
func (o *Orchestrator) Mode() framework.Mode { return o.detector.Mode() }

// Endpoints resolves the endpoints of the current mode.
func (o *Orchestrator) Endpoints() endpoints.EndpointSet { return o.servers.Endpoints() }

// Session is the readiness tracker for this orchestrator.
func (o *Orchestrator) Session() *tracker.Session { return o.session }

// EnsureServersRunning starts whatever is not already serving.
func (o *Orchestrator) EnsureServersRunning(ctx context.Context) error {
	return o.servers.Start(ctx, supervisor.StartOptions{})
}

// EnsureServersStopped stops the servers of every mode.
func (o *Orchestrator) EnsureServersStopped(ctx context.Context) error {
	return o.servers.Stop(ctx)
}

// Status reports the running state of the current mode.
func (o *Orchestrator) Status() supervisor.Status {
	return o.servers.Status()
}

// Details reports per-server state for the current mode.
func (o *Orchestrator) Details() []supervisor.ServerState {
	return o.servers.Details()
}

// VersionInfo queries the running app's version endpoint.
func (o *Orchestrator) VersionInfo(ctx context.Context) (versions.Info, error) {
	return versions.Fetch(ctx, o.servers.Endpoints().VersionInfoURL, o.cfg.Timeouts.Probe)
}

// SwitchToVersionAndRestart makes version the active version of lib and
// brings the servers back up. When the version is already in place and the
// servers answer, nothing happens. Otherwise the servers are stopped, their
// ports reclaimed and verified free, the switch runs, and the servers are
// restarted with the longer switch deadline whether or not the switch
// succeeded. A failed switch is reported in Restart.SwitchErr; only a
// failed restart is returned as an error.
func (o *Orchestrator) SwitchToVersionAndRestart(ctx context.Context, lib switcher.Library, version string) (Restart, error) {
	mode := o.detector.Mode()
	r := Restart{Library: lib, Version: version, Mode: mode}
	log := o.log.WithFields(zap.String("library", lib.String()), zap.String("version", version))

	if o.switcher.Active(mode, lib, version) {
		r.AlreadyActive = true
		if o.servers.IsReady() {
			log.Info("version already active and servers ready")
			return r, nil
		}
		log.Info("version already active, starting servers")
		return r, o.servers.Start(ctx, supervisor.StartOptions{})
	}

	log.Info("switching version", zap.String("mode", mode.String()))
	if err := o.servers.Stop(ctx); err != nil {
		log.Warn("stop left servers running, reclaiming ports", zap.Error(err))
	}
	o.servers.ReclaimAll()
	o.sleep(o.cfg.Timeouts.Settle)

	if busy := o.servers.PortsInUse(); len(busy) > 0 {
		log.Warn("ports still in use after stop, reclaiming again", zap.Ints("ports", busy))
		o.servers.ReclaimAll()
		o.sleep(o.cfg.Timeouts.Settle)
	}

	r.Outcome, r.SwitchErr = o.switcher.Switch(ctx, mode, lib, version)
	if r.SwitchErr != nil {
		log.WithError(r.SwitchErr).Error("version switch failed, restarting servers anyway")
	}

	if err := o.servers.Start(ctx, supervisor.StartOptions{ReadyTimeout: o.cfg.Timeouts.SwitchStart}); err != nil {
		return r, fmt.Errorf("failed to restart servers for %s %s: %w", lib, version, err)
	}
	// The wait already saw the servers up; check once more in case one died since.
	if !o.servers.IsReady() {
		return r, fmt.Errorf("%w (%s %s)", ErrNotReady, lib, version)
	}

	log.Info("servers ready on requested version")
	return r, nil
}

// SwitchMode stops every server, records mode and, if the servers were
// running before, starts the servers of the new mode.
func (o *Orchestrator) SwitchMode(ctx context.Context, mode framework.Mode) error {
	previous := o.servers.Status()
	wasRunning := previous.Frontend == supervisor.Running || previous.Backend == supervisor.Running

	if err := o.servers.Stop(ctx); err != nil {
		o.log.Warn("stop before mode switch was incomplete", zap.Error(err))
		o.servers.ReclaimAll()
	}
	if err := o.detector.Write(mode); err != nil {
		return err
	}
	o.log.Info("framework mode changed", zap.String("from", previous.Mode.String()), zap.String("to", mode.String()))

	if !wasRunning {
		return nil
	}
	return o.servers.Start(ctx, supervisor.StartOptions{})
}

// Close flushes the readiness session to the tracker directory.
func (o *Orchestrator) Close() error {
	if o.session == nil {
		return nil
	}
	path, err := o.session.Flush(o.cfg.TrackerPath())
	if err != nil {
		return err
	}
	o.log.Debug("readiness session flushed", zap.String("path", path))
	return nil
}
