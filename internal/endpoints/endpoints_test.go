package endpoints

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/harshul/devharness/internal/framework"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveVite(t *testing.T) {
	e := Resolve(framework.Vite)

	assert.Equal(t, 5173, e.FrontendPort)
	assert.Equal(t, 3000, e.BackendPort)
	assert.Equal(t, "http://localhost:5173", e.FrontendURL)
	assert.Equal(t, "http://localhost:3000", e.BackendURL)
	assert.Equal(t, "http://localhost:3000/api/hello", e.APIHealthURL)
	assert.Equal(t, "http://localhost:3000/api/version", e.VersionInfoURL)
	assert.False(t, e.SingleOrigin())
	assert.Equal(t, []int{5173, 3000}, e.Ports())
}

func TestResolveNextJS(t *testing.T) {
	e := Resolve(framework.NextJS)

	assert.Equal(t, 3000, e.FrontendPort)
	assert.Equal(t, 3000, e.BackendPort)
	assert.Equal(t, e.FrontendURL, e.BackendURL)
	assert.Equal(t, "http://localhost:3000/api/hello", e.APIHealthURL)
	assert.True(t, e.SingleOrigin())
	assert.Equal(t, []int{3000}, e.Ports())
}

func TestResolveIsPure(t *testing.T) {
	for _, m := range framework.Modes {
		assert.Equal(t, Resolve(m), Resolve(m))
	}
	assert.Equal(t, Resolve(framework.Vite), Resolve(framework.Mode("bogus")))
}

func TestResolveFollowsModeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".framework-mode")
	d := framework.NewDetector(path)

	// scenario A: file absent
	e := Resolve(d.Mode())
	assert.Equal(t, framework.Vite, e.Mode)
	assert.Equal(t, 5173, e.FrontendPort)
	assert.Equal(t, 3000, e.BackendPort)

	// scenario B: file switched to nextjs with no restart
	require.NoError(t, os.WriteFile(path, []byte("nextjs"), 0644))
	e = Resolve(d.Mode())
	assert.Equal(t, framework.NextJS, e.Mode)
	assert.Equal(t, "http://localhost:3000", e.FrontendURL)
	assert.Equal(t, "http://localhost:3000", e.BackendURL)
}

func TestAllPorts(t *testing.T) {
	assert.ElementsMatch(t, []int{5173, 3000}, AllPorts())
}
