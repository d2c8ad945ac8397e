package supervisor

import (
	"github.com/harshul/devharness/internal/config"
	"github.com/harshul/devharness/internal/endpoints"
	"github.com/harshul/devharness/internal/framework"
)

// Role says which side of the app a server provides.
type Role string

const (
	RoleFrontend Role = "frontend"
	RoleBackend  Role = "backend"
	// RoleBoth is a single-origin server that serves app and API.
	RoleBoth Role = "both"
)

// Logical server names; each maps to one PID record and one log file.
const (
	ServerVite   = "vite"
	ServerAPI    = "server"
	ServerNextJS = "nextjs"
)

// AllServerNames covers both modes so a stop after a mode change still finds everything.
var AllServerNames = []string{ServerVite, ServerAPI, ServerNextJS}

// ServerSpec describes one logical server for the active mode.
type ServerSpec struct {
	Name      string
	Role      Role
	Port      int
	HealthURL string
	Dir       string
	Command   string
}

// Serves reports whether the spec provides role.
func (s ServerSpec) Serves(role Role) bool {
	return s.Role == role || s.Role == RoleBoth
}

// SpecsFor lists the servers needed for the mode of eps. Next.js gates
// readiness on its single origin; Vite needs both the dev server and the
// companion API server.
func SpecsFor(cfg *config.Config, eps endpoints.EndpointSet) []ServerSpec {
	if eps.Mode == framework.NextJS {
		return []ServerSpec{{
			Name:      ServerNextJS,
			Role:      RoleBoth,
			Port:      eps.FrontendPort,
			HealthURL: eps.FrontendURL,
			Dir:       cfg.Path(cfg.NextJS.Dir),
			Command:   cfg.NextJS.DevCommand,
		}}
	}
	return []ServerSpec{
		{
			Name:      ServerVite,
			Role:      RoleFrontend,
			Port:      eps.FrontendPort,
			HealthURL: eps.FrontendURL,
			Dir:       cfg.Path(cfg.Vite.Dir),
			Command:   cfg.Vite.DevCommand,
		},
		{
			Name:      ServerAPI,
			Role:      RoleBackend,
			Port:      eps.BackendPort,
			HealthURL: eps.APIHealthURL,
			Dir:       cfg.Path(cfg.Vite.APIDir),
			Command:   cfg.Vite.APICommand,
		},
	}
}
