package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	root := t.TempDir()

	cfg, err := Load(root, "")
	require.NoError(t, err)

	assert.Equal(t, root, cfg.Root)
	assert.Equal(t, ".framework-mode", cfg.ModeFile)
	assert.Equal(t, filepath.Join(root, ".pids"), cfg.PIDPath())
	assert.Equal(t, filepath.Join(root, ".logs"), cfg.LogPath())
	assert.Equal(t, "frameworks/vite-react", cfg.Vite.Dir)
	assert.Equal(t, "frameworks/nextjs", cfg.NextJS.Dir)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Probe)
	assert.Equal(t, 500*time.Millisecond, cfg.Timeouts.Connect)
	assert.Equal(t, 60*time.Second, cfg.Timeouts.Start)
	assert.Equal(t, 120*time.Second, cfg.Timeouts.SwitchStart)
	assert.Equal(t, 5*time.Minute, cfg.Timeouts.Install)
	assert.Empty(t, cfg.Commands.Switch)
}

func TestLoadFile(t *testing.T) {
	root := t.TempDir()
	content := `
vite:
  dir: app
commands:
  switch: "make react-{version}"
timeouts:
  start: 15s
`
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(content), 0644))

	cfg, err := Load(root, "")
	require.NoError(t, err)

	assert.Equal(t, "app", cfg.Vite.Dir)
	assert.Equal(t, "make react-{version}", cfg.Commands.Switch)
	assert.Equal(t, 15*time.Second, cfg.Timeouts.Start)
	// untouched keys keep their defaults
	assert.Equal(t, "frameworks/nextjs", cfg.NextJS.Dir)
}

func TestLoadEnvOverride(t *testing.T) {
	root := t.TempDir()
	t.Setenv("DEVHARNESS_TIMEOUTS_INSTALL", "90s")
	t.Setenv("DEVHARNESS_NEXTJS_DIR", "next-app")

	cfg, err := Load(root, "")
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Timeouts.Install)
	assert.Equal(t, "next-app", cfg.NextJS.Dir)
}

func TestLoadRejectsMissingRoot(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"), "")
	assert.Error(t, err)
}

func TestLoadExplicitFileMustExist(t *testing.T) {
	_, err := Load(t.TempDir(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestPathKeepsAbsolute(t *testing.T) {
	cfg := Default("/srv/app")
	assert.Equal(t, "/abs/.pids", cfg.Path("/abs/.pids"))
	assert.Equal(t, "/srv/app/frameworks/nextjs", cfg.Path(cfg.NextJS.Dir))
	assert.Equal(t, "/srv/app/.framework-mode", cfg.ModePath())
}
