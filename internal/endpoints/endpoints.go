// Package endpoints maps a framework mode to the URLs the harness talks to.
//
// Resolve is a pure function and must be called at every use site. Holding
// an EndpointSet across a mode switch means probing the wrong port.
package endpoints

import (
	"fmt"

	"github.com/harshul/devharness/internal/framework"
)

const (
	Host = "localhost"

	ViteFrontendPort = 5173
	ViteBackendPort  = 3000
	NextJSPort       = 3000

	HealthPath  = "/api/hello"
	VersionPath = "/api/version"
)

// EndpointSet is derived from a mode and never persisted.
type EndpointSet struct {
	Mode           framework.Mode
	FrontendPort   int
	BackendPort    int
	FrontendURL    string
	BackendURL     string
	APIHealthURL   string
	VersionInfoURL string
}

// Resolve computes the endpoints for mode. Unknown modes resolve as Vite.
func Resolve(mode framework.Mode) EndpointSet {
	frontend, backend := ViteFrontendPort, ViteBackendPort
	if mode == framework.NextJS {
		frontend, backend = NextJSPort, NextJSPort
	} else {
		mode = framework.Vite
	}

	backendURL := originURL(backend)
	return EndpointSet{
		Mode:           mode,
		FrontendPort:   frontend,
		BackendPort:    backend,
		FrontendURL:    originURL(frontend),
		BackendURL:     backendURL,
		APIHealthURL:   backendURL + HealthPath,
		VersionInfoURL: backendURL + VersionPath,
	}
}

// SingleOrigin reports whether app and API share one server.
func (e EndpointSet) SingleOrigin() bool {
	return e.FrontendPort == e.BackendPort
}

// Ports returns the distinct ports used in this mode, frontend first.
func (e EndpointSet) Ports() []int {
	if e.SingleOrigin() {
		return []int{e.FrontendPort}
	}
	return []int{e.FrontendPort, e.BackendPort}
}

// AllPorts lists every port any mode may bind, for cleanup across a mode change.
func AllPorts() []int {
	seen := make(map[int]bool)
	var out []int
	for _, m := range framework.Modes {
		for _, p := range Resolve(m).Ports() {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

func originURL(port int) string {
	return fmt.Sprintf("http://%s:%d", Host, port)
}
