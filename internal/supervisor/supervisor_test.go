package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harshul/devharness/internal/config"
	"github.com/harshul/devharness/internal/endpoints"
	"github.com/harshul/devharness/internal/framework"
	"github.com/harshul/devharness/internal/logger"
	"github.com/harshul/devharness/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPorts struct {
	viteFrontend int
	viteBackend  int
	nextjs       int
}

func reservePorts(t *testing.T) testPorts {
	t.Helper()
	var got []int
	var lns []net.Listener
	for i := 0; i < 3; i++ {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		lns = append(lns, ln)
		got = append(got, ln.Addr().(*net.TCPAddr).Port)
	}
	for _, ln := range lns {
		ln.Close()
	}
	return testPorts{viteFrontend: got[0], viteBackend: got[1], nextjs: got[2]}
}

func (p testPorts) resolve(m framework.Mode) endpoints.EndpointSet {
	origin := func(port int) string { return fmt.Sprintf("http://127.0.0.1:%d", port) }
	frontend, backend := p.viteFrontend, p.viteBackend
	if m == framework.NextJS {
		frontend, backend = p.nextjs, p.nextjs
	} else {
		m = framework.Vite
	}
	return endpoints.EndpointSet{
		Mode:           m,
		FrontendPort:   frontend,
		BackendPort:    backend,
		FrontendURL:    origin(frontend),
		BackendURL:     origin(backend),
		APIHealthURL:   origin(backend) + endpoints.HealthPath,
		VersionInfoURL: origin(backend) + endpoints.VersionPath,
	}
}

func dialListening(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 200*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// serveOn answers 200 on every path at 127.0.0.1:port.
func serveOn(t *testing.T, port int) *httptest.Server {
	t.Helper()
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	srv.Listener.Close()
	srv.Listener = ln
	srv.Start()
	t.Cleanup(srv.Close)
	return srv
}

type fakeControl struct {
	t *testing.T

	mu         sync.Mutex
	nextPID    int
	spawns     []string
	terminated []int
	alive      map[int]bool
	owned      map[int]string
	servers    map[int]*httptest.Server
	broken     map[string]bool
	spawnErr   map[string]error
}

func newFakeControl(t *testing.T) *fakeControl {
	return &fakeControl{
		t:        t,
		nextPID:  50000,
		alive:    make(map[int]bool),
		owned:    make(map[int]string),
		servers:  make(map[int]*httptest.Server),
		broken:   make(map[string]bool),
		spawnErr: make(map[string]error),
	}
}

func (f *fakeControl) Spawn(spec ServerSpec, logPath string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawns = append(f.spawns, spec.Name)
	if err := f.spawnErr[spec.Name]; err != nil {
		return 0, err
	}
	f.nextPID++
	pid := f.nextPID
	f.alive[pid] = true
	f.owned[pid] = spec.Name
	if !f.broken[spec.Name] {
		f.servers[pid] = serveOn(f.t, spec.Port)
	}
	_ = os.MkdirAll(filepath.Dir(logPath), 0755)
	_ = os.WriteFile(logPath, []byte("booting "+spec.Name+"\n"), 0644)
	return pid, nil
}

func (f *fakeControl) Terminate(pid int, grace time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = append(f.terminated, pid)
	f.alive[pid] = false
	if srv, ok := f.servers[pid]; ok {
		srv.Close()
		delete(f.servers, pid)
	}
	return nil
}

func (f *fakeControl) Alive(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[pid]
}

func (f *fakeControl) Owns(pid int, spec ServerSpec) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[pid] && f.owned[pid] == spec.Name
}

func (f *fakeControl) spawnCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.spawns)
}

type fakeReclaimer struct {
	mu     sync.Mutex
	ports  []int
	onFree map[int]func()
}

func (r *fakeReclaimer) FreePort(port int) ports.ReclaimResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ports = append(r.ports, port)
	if fn, ok := r.onFree[port]; ok {
		fn()
	}
	return ports.ReclaimResult{Port: port}
}

func (r *fakeReclaimer) freed() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.ports...)
}

type harness struct {
	sup       *Supervisor
	cfg       *config.Config
	control   *fakeControl
	reclaimer *fakeReclaimer
	ports     testPorts
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.Default(t.TempDir())
	cfg.Timeouts.Probe = time.Second
	cfg.Timeouts.Start = 3 * time.Second
	cfg.Timeouts.KillGrace = 200 * time.Millisecond

	h := &harness{
		cfg:       cfg,
		control:   newFakeControl(t),
		reclaimer: &fakeReclaimer{onFree: make(map[int]func())},
		ports:     reservePorts(t),
	}
	h.sup = New(cfg, Deps{Control: h.control, Reclaimer: h.reclaimer})
	h.sup.resolve = h.ports.resolve
	h.sup.listening = dialListening
	h.sup.diagnose = func(spec ServerSpec) Diagnostics { return Diagnostics{Server: spec.Name} }
	return h
}

func (h *harness) setMode(t *testing.T, mode framework.Mode) {
	t.Helper()
	require.NoError(t, framework.NewDetector(h.cfg.ModePath()).Write(mode))
}

func TestStartSpawnsViteServers(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.sup.Start(context.Background(), StartOptions{}))

	assert.Equal(t, []string{ServerVite, ServerAPI}, h.control.spawns)
	assert.Equal(t, []int{h.ports.viteFrontend, h.ports.viteBackend}, h.reclaimer.freed())

	records, err := h.sup.Records().List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, ServerAPI, records[0].Name)
	assert.Equal(t, ServerVite, records[1].Name)

	assert.Equal(t, Status{Mode: framework.Vite, Frontend: Running, Backend: Running}, h.sup.Status())
	assert.True(t, h.sup.IsReady())
}

func TestStartIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.sup.Start(ctx, StartOptions{}))
	before, err := h.sup.Records().List()
	require.NoError(t, err)

	require.NoError(t, h.sup.Start(ctx, StartOptions{}))
	after, err := h.sup.Records().List()
	require.NoError(t, err)

	assert.Equal(t, 2, h.control.spawnCount())
	assert.Equal(t, before, after)
}

func TestStartLeavesExistingServersAlone(t *testing.T) {
	h := newHarness(t)
	serveOn(t, h.ports.viteFrontend)
	serveOn(t, h.ports.viteBackend)

	require.NoError(t, h.sup.Start(context.Background(), StartOptions{}))

	assert.Zero(t, h.control.spawnCount())
	assert.Empty(t, h.reclaimer.freed())
}

func TestStartNextJSMode(t *testing.T) {
	h := newHarness(t)
	h.setMode(t, framework.NextJS)

	require.NoError(t, h.sup.Start(context.Background(), StartOptions{}))

	assert.Equal(t, []string{ServerNextJS}, h.control.spawns)
	assert.Equal(t, []int{h.ports.nextjs}, h.reclaimer.freed())
	assert.Equal(t, Status{Mode: framework.NextJS, Frontend: Running, Backend: Running}, h.sup.Status())
}

func TestStartReportsPartialFailure(t *testing.T) {
	h := newHarness(t)
	h.control.broken[ServerAPI] = true

	err := h.sup.Start(context.Background(), StartOptions{ReadyTimeout: 700 * time.Millisecond})

	var startErr *StartError
	require.ErrorAs(t, err, &startErr)
	assert.Equal(t, framework.Vite, startErr.Mode)
	assert.Equal(t, []string{ServerAPI}, startErr.Failed)
	require.Len(t, startErr.Diagnostics, 1)
	assert.Equal(t, ServerAPI, startErr.Diagnostics[0].Server)

	_, viteRecorded := h.sup.Records().Load(ServerVite)
	_, apiRecorded := h.sup.Records().Load(ServerAPI)
	assert.True(t, viteRecorded)
	assert.False(t, apiRecorded)
	assert.Len(t, h.control.terminated, 1)

	assert.Equal(t, Status{Mode: framework.Vite, Frontend: Running, Backend: Stopped}, h.sup.Status())
}

func TestStartSpawnFailure(t *testing.T) {
	h := newHarness(t)
	h.control.spawnErr[ServerVite] = errors.New("exec: npm: not found")

	err := h.sup.Start(context.Background(), StartOptions{})

	var startErr *StartError
	require.ErrorAs(t, err, &startErr)
	assert.Equal(t, []string{ServerVite}, startErr.Failed)
	assert.Contains(t, err.Error(), "vite mode")
}

func TestStartReplacesStaleRecord(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sup.Records().Save(Record{Name: ServerVite, PID: 424242}))

	require.NoError(t, h.sup.Start(context.Background(), StartOptions{}))

	rec, ok := h.sup.Records().Load(ServerVite)
	require.True(t, ok)
	assert.NotEqual(t, 424242, rec.PID)
	assert.True(t, h.control.Alive(rec.PID))
}

func TestInspectStates(t *testing.T) {
	h := newHarness(t)
	spec := h.sup.Specs()[0]

	assert.Equal(t, StateAbsent, h.sup.Inspect(spec).State)

	h.control.alive[7001] = true
	require.NoError(t, h.sup.Records().Save(Record{Name: spec.Name, PID: 7001}))
	st := h.sup.Inspect(spec)
	assert.Equal(t, StateStarting, st.State)
	assert.Equal(t, 7001, st.PID)

	srv := serveOn(t, spec.Port)
	assert.Equal(t, StateReady, h.sup.Inspect(spec).State)

	// The endpoint wins over a dead record.
	h.control.alive[7001] = false
	st = h.sup.Inspect(spec)
	assert.Equal(t, StateReady, st.State)
	assert.False(t, st.PIDAlive)

	srv.Close()
	assert.Equal(t, StateStale, h.sup.Inspect(spec).State)
}

func TestStartKeepsLiveEndpointWithDeadRecord(t *testing.T) {
	h := newHarness(t)
	serveOn(t, h.ports.viteFrontend)
	require.NoError(t, h.sup.Records().Save(Record{Name: ServerVite, PID: 424242}))

	require.NoError(t, h.sup.Start(context.Background(), StartOptions{}))

	assert.Equal(t, []string{ServerAPI}, h.control.spawns)
	assert.Equal(t, []int{h.ports.viteBackend}, h.reclaimer.freed())
	_, ok := h.sup.Records().Load(ServerVite)
	assert.False(t, ok)
	assert.Empty(t, h.control.terminated)
}

func TestStartDoesNotSignalRecycledPID(t *testing.T) {
	h := newHarness(t)
	h.control.alive[7002] = true
	require.NoError(t, h.sup.Records().Save(Record{Name: ServerVite, PID: 7002}))

	require.NoError(t, h.sup.Start(context.Background(), StartOptions{}))

	assert.Empty(t, h.control.terminated)
	assert.True(t, h.control.Alive(7002))
	assert.Equal(t, []string{ServerVite, ServerAPI}, h.control.spawns)
	rec, ok := h.sup.Records().Load(ServerVite)
	require.True(t, ok)
	assert.NotEqual(t, 7002, rec.PID)
}

func TestStartRestartsOwnedServerThatNeverAnswered(t *testing.T) {
	h := newHarness(t)
	h.control.alive[7003] = true
	h.control.owned[7003] = ServerVite
	require.NoError(t, h.sup.Records().Save(Record{Name: ServerVite, PID: 7003}))

	require.NoError(t, h.sup.Start(context.Background(), StartOptions{}))

	assert.Equal(t, []int{7003}, h.control.terminated)
	assert.Equal(t, []string{ServerVite, ServerAPI}, h.control.spawns)
}

func TestDetailsFollowsMode(t *testing.T) {
	h := newHarness(t)
	assert.Len(t, h.sup.Details(), 2)

	h.setMode(t, framework.NextJS)
	details := h.sup.Details()
	require.Len(t, details, 1)
	assert.Equal(t, ServerNextJS, details[0].Spec.Name)
}

func TestStopTerminatesRecordedServers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.sup.Start(ctx, StartOptions{}))

	require.NoError(t, h.sup.Stop(ctx))

	assert.Len(t, h.control.terminated, 2)
	records, err := h.sup.Records().List()
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, Status{Mode: framework.Vite, Frontend: Stopped, Backend: Stopped}, h.sup.Status())
	assert.Empty(t, h.sup.PortsInUse())
}

func TestStopLeavesUnrelatedProcessBehindRecord(t *testing.T) {
	h := newHarness(t)
	h.control.alive[7004] = true
	require.NoError(t, h.sup.Records().Save(Record{Name: ServerAPI, PID: 7004}))
	require.NoError(t, h.sup.Records().Save(Record{Name: "legacy", PID: 7005}))
	h.control.alive[7005] = true

	require.NoError(t, h.sup.Stop(context.Background()))

	assert.Empty(t, h.control.terminated)
	assert.True(t, h.control.Alive(7004))
	records, err := h.sup.Records().List()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStopDoesNotKillProcessWithRecycledPID(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sleep")
	}
	h := newHarness(t)
	h.sup.control = NewOSProcessControl(nil)

	bystander := exec.Command("sleep", "30")
	require.NoError(t, bystander.Start())
	t.Cleanup(func() {
		_ = bystander.Process.Kill()
		_ = bystander.Wait()
	})
	pid := bystander.Process.Pid
	require.NoError(t, h.sup.Records().Save(Record{Name: ServerVite, PID: pid}))

	require.NoError(t, h.sup.Stop(context.Background()))

	assert.True(t, ports.ProcessAlive(pid))
	_, ok := h.sup.Records().Load(ServerVite)
	assert.False(t, ok)
}

func TestDropRecordLogsFailure(t *testing.T) {
	h := newHarness(t)
	logPath := filepath.Join(t.TempDir(), "harness.log")
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "debug", Format: "json", OutputPath: logPath})
	require.NoError(t, err)
	h.sup.log = log

	// A non-empty directory in place of the record cannot be removed.
	stuck := filepath.Join(h.cfg.PIDPath(), ServerVite+".pid")
	require.NoError(t, os.MkdirAll(filepath.Join(stuck, "keep"), 0755))

	h.sup.dropRecord(ServerVite)
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "failed to remove pid record")
	assert.Contains(t, string(data), `"server":"vite"`)
}

func TestStopReclaimsUnrecordedListener(t *testing.T) {
	h := newHarness(t)
	srv := serveOn(t, h.ports.nextjs)
	h.reclaimer.onFree[h.ports.nextjs] = srv.Close

	require.NoError(t, h.sup.Stop(context.Background()))
	assert.Equal(t, []int{h.ports.nextjs}, h.reclaimer.freed())
}

func TestStopReportsPortStillBound(t *testing.T) {
	h := newHarness(t)
	serveOn(t, h.ports.viteBackend)

	err := h.sup.Stop(context.Background())

	assert.ErrorIs(t, err, ErrStillRunning)
	assert.Contains(t, err.Error(), fmt.Sprint(h.ports.viteBackend))
}

func TestStopRunsStopCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	h := newHarness(t)
	marker := filepath.Join(h.cfg.Root, "stopped")
	h.cfg.Commands.Stop = "touch " + marker

	require.NoError(t, h.sup.Stop(context.Background()))
	assert.FileExists(t, marker)
}

func TestSpecsFor(t *testing.T) {
	cfg := config.Default("/work")

	vite := SpecsFor(cfg, endpoints.Resolve(framework.Vite))
	require.Len(t, vite, 2)
	assert.Equal(t, RoleFrontend, vite[0].Role)
	assert.Equal(t, 5173, vite[0].Port)
	assert.Equal(t, filepath.Join("/work", "frameworks/vite-react"), vite[0].Dir)
	assert.Equal(t, "http://localhost:3000/api/hello", vite[1].HealthURL)
	assert.True(t, vite[1].Serves(RoleBackend))
	assert.False(t, vite[1].Serves(RoleFrontend))

	next := SpecsFor(cfg, endpoints.Resolve(framework.NextJS))
	require.Len(t, next, 1)
	assert.Equal(t, ServerNextJS, next[0].Name)
	assert.Equal(t, "http://localhost:3000", next[0].HealthURL)
	assert.True(t, next[0].Serves(RoleFrontend))
	assert.True(t, next[0].Serves(RoleBackend))
}

func TestRecordStore(t *testing.T) {
	dir := t.TempDir()
	store := NewRecordStore(filepath.Join(dir, ".pids"), filepath.Join(dir, ".logs"))

	_, ok := store.Load(ServerVite)
	assert.False(t, ok)

	require.NoError(t, store.Save(Record{Name: ServerVite, PID: 123}))
	rec, ok := store.Load(ServerVite)
	require.True(t, ok)
	assert.Equal(t, 123, rec.PID)
	assert.Equal(t, filepath.Join(dir, ".logs", "vite.log"), rec.LogPath)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".pids", "server.pid"), []byte("not-a-pid"), 0644))
	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.NoFileExists(t, filepath.Join(dir, ".pids", "server.pid"))

	require.NoError(t, store.Delete(ServerVite))
	require.NoError(t, store.Delete(ServerVite))
	records, err = store.List()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRecordStoreSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewRecordStore(filepath.Join(dir, ".pids"), filepath.Join(dir, ".logs"))

	require.NoError(t, store.Save(Record{Name: ServerAPI, PID: 41}))
	require.NoError(t, store.Save(Record{Name: ServerAPI, PID: 42}))

	entries, err := os.ReadDir(filepath.Join(dir, ".pids"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "server.pid", entries[0].Name())

	rec, ok := store.Load(ServerAPI)
	require.True(t, ok)
	assert.Equal(t, 42, rec.PID)
}

func TestTailLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	var b strings.Builder
	for i := 1; i <= 100; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))

	lines := tailLines(path, 40)
	require.Len(t, lines, 40)
	assert.Equal(t, "line 61", lines[0])
	assert.Equal(t, "line 100", lines[39])

	assert.Nil(t, tailLines(filepath.Join(t.TempDir(), "missing.log"), 40))
}

func TestDiagnosticsString(t *testing.T) {
	d := Diagnostics{
		Server:     ServerAPI,
		HealthURL:  "http://localhost:3000/api/hello",
		Probe:      "refused",
		PortStatus: "Port 3000 is available",
		PID:        99,
		LogPath:    "/tmp/server.log",
		LogTail:    []string{"Error: Cannot find module 'express'"},
		Issues:     []string{"Dependencies are not installed (run 'npm install')"},
	}

	out := d.String()
	assert.Contains(t, out, "[server] http://localhost:3000/api/hello")
	assert.Contains(t, out, "pid:   99 (exited)")
	assert.Contains(t, out, "| Error: Cannot find module 'express'")
	assert.Contains(t, out, "issue: Dependencies are not installed")
}

func TestOSProcessControlSpawnAndTerminate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	dir := t.TempDir()
	logPath := filepath.Join(dir, ".logs", "child.log")
	control := NewOSProcessControl(nil)

	pid, err := control.Spawn(ServerSpec{
		Name:    "child",
		Dir:     dir,
		Command: "echo hello-from-child; sleep 30",
	}, logPath)
	require.NoError(t, err)
	require.Greater(t, pid, 0)
	assert.True(t, control.Alive(pid))

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(logPath)
		return err == nil && strings.Contains(string(data), "hello-from-child")
	}, 5*time.Second, 50*time.Millisecond)

	assert.True(t, control.Owns(pid, ServerSpec{Name: "child", Command: "echo hello-from-child; sleep 30"}))
	assert.False(t, control.Owns(pid, ServerSpec{Name: "child", Command: "pnpm run dev"}))

	require.NoError(t, control.Terminate(pid, 2*time.Second))
	assert.Eventually(t, func() bool { return !control.Alive(pid) }, 3*time.Second, 50*time.Millisecond)
}

func TestOSProcessControlRejectsMissingCommand(t *testing.T) {
	_, err := NewOSProcessControl(nil).Spawn(ServerSpec{Name: "empty"}, filepath.Join(t.TempDir(), "x.log"))
	assert.Error(t, err)
}
