package provisioner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestDetectPackageManager(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]string
		manager  PackageManager
		monorepo bool
	}{
		{name: "npm fallback", files: map[string]string{"package.json": `{}`}, manager: NPM},
		{name: "pnpm lock", files: map[string]string{"pnpm-lock.yaml": ""}, manager: PNPM},
		{name: "pnpm workspace", files: map[string]string{"pnpm-workspace.yaml": ""}, manager: PNPM, monorepo: true},
		{name: "yarn", files: map[string]string{"yarn.lock": ""}, manager: Yarn},
		{name: "bun", files: map[string]string{"bun.lock": ""}, manager: Bun},
		{
			name:     "workspace protocol",
			files:    map[string]string{"package.json": `{"dependencies": {"ui": "workspace:*"}}`},
			manager:  PNPM,
			monorepo: true,
		},
		{
			name:     "yarn workspaces",
			files:    map[string]string{"yarn.lock": "", "package.json": `{"workspaces": ["a"]}`},
			manager:  Yarn,
			monorepo: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, dir, name, content)
			}
			info := DetectPackageManager(dir)
			assert.Equal(t, tt.manager, info.Manager)
			assert.Equal(t, tt.monorepo, info.IsMonorepo)
		})
	}
}

func TestInstallCommand(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, []string{"npm", "install"}, GetInstallCommand(dir))

	writeFile(t, dir, "pnpm-workspace.yaml", "packages: ['apps/*']")
	info := DetectPackageManager(dir)
	assert.Equal(t, []string{"pnpm", "install", "-r"}, info.InstallCommand)
	assert.Equal(t, "pnpm-lock.yaml", info.LockFile)
}

func TestAddCommand(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t,
		[]string{"npm", "install", "--save-exact", "react@19.1.1", "react-dom@19.1.1"},
		AddCommand(dir, "react@19.1.1", "react-dom@19.1.1"))

	writeFile(t, dir, "pnpm-lock.yaml", "")
	assert.Equal(t, []string{"pnpm", "add", "--save-exact", "next@15.0.4"}, AddCommand(dir, "next@15.0.4"))
}

func TestGetManagerName(t *testing.T) {
	assert.Equal(t, "pnpm", GetManagerName(PNPM))
	assert.Equal(t, "Yarn", GetManagerName(Yarn))
	assert.Equal(t, "custom", GetManagerName(PackageManager("custom")))
}

func TestIsCommandAvailable(t *testing.T) {
	assert.False(t, IsCommandAvailable("devharness-no-such-binary"))
}
