// Package hostservice restarts host services named in a deployment's
// Services list (spec.md §4.5 step 6). The capability is registered the
// same way scm/ci/dashboard clients are, so an alternate restart tool
// (upstart, a container runtime) can be swapped in without touching the
// task pipeline.
package hostservice

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/deployhub/deployhub-core/registry"
)

// Restarter restarts one named host service, returning combined
// stdout+stderr on failure for diagnostics.
type Restarter interface {
	Restart(ctx context.Context, name string) error
}

// Constructor builds a Restarter from configuration.
type Constructor func(config map[string]any) (Restarter, error)

var restarters = registry.New[Constructor]()

// RegisterRestarter adds a restarter constructor by name.
func RegisterRestarter(name string, constructor Constructor) error {
	return restarters.Register(name, constructor)
}

// LookupRestarter returns a named restarter constructor if registered.
func LookupRestarter(name string) (Constructor, bool) {
	return restarters.Get(name)
}

// systemctlRestarter shells out to "systemctl restart <name>", the host's
// service-restart tool in the default deployment target.
type systemctlRestarter struct {
	bin string
}

// NewSystemctlRestarter constructs the default Restarter. config may set
// "bin" to override the systemctl executable path (used in tests).
func NewSystemctlRestarter(config map[string]any) (Restarter, error) {
	bin := "systemctl"
	if v, ok := config["bin"].(string); ok && v != "" {
		bin = v
	}
	return &systemctlRestarter{bin: bin}, nil
}

func (r *systemctlRestarter) Restart(ctx context.Context, name string) error {
	cmd := exec.CommandContext(ctx, r.bin, "restart", name)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("restarting %s: %w: %s", name, err, out.String())
	}
	return nil
}

func init() {
	_ = RegisterRestarter("systemctl", NewSystemctlRestarter)
}
