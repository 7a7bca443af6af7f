package agent

import (
	"context"
	"os/exec"

	"github.com/cockroachdb/errors"
)

// Reloader asks a running frpc to pick up configuration changes.
type Reloader interface {
	Reload(ctx context.Context) error
}

// ExecReloader runs "frpc reload", which contacts the admin webserver of the
// running process. The webserver must be enabled in the root configuration.
type ExecReloader struct {
	// BinaryPath is the frpc binary. Defaults to DefaultBinaryPath.
	BinaryPath string

	// ConfigPath is the root configuration file passed via -c.
	ConfigPath string
}

// Reload triggers a hot reload. The combined output is included in the error
// when the command fails.
func (r *ExecReloader) Reload(ctx context.Context) error {
	binary := r.BinaryPath
	if binary == "" {
		binary = DefaultBinaryPath
	}

	cmd := exec.CommandContext(ctx, binary, "reload", "-c", r.ConfigPath)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "frpc reload failed: %s", string(output))
	}

	return nil
}

// NoopReloader is a Reloader that does nothing, for tests and for setups
// where frpc is restarted externally.
type NoopReloader struct{}

// Reload is a no-op.
func (NoopReloader) Reload(_ context.Context) error { return nil }
