package agent

import (
	"context"
	"os/exec"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// DefaultBinaryPath is where the frpc binary is expected on agent hosts.
const DefaultBinaryPath = "/usr/local/bin/frpc"

// defaultRestartDelay spaces out restarts after abnormal exits.
const defaultRestartDelay = 5 * time.Second

// Supervisor keeps a local frpc process running. Abnormal exits are logged
// and the process is restarted after a fixed delay; the supervisor itself
// only stops when its context is cancelled.
type Supervisor struct {
	// BinaryPath is the frpc binary. Defaults to DefaultBinaryPath.
	BinaryPath string

	// ConfigPath is the root configuration file passed via -c.
	ConfigPath string

	// RestartDelay is the pause between restarts. Defaults to 5s.
	RestartDelay time.Duration

	// Logger receives process lifecycle events and frpc's own output.
	Logger zerolog.Logger
}

// Run spawns frpc and restarts it until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	binary := s.BinaryPath
	if binary == "" {
		binary = DefaultBinaryPath
	}

	delay := s.RestartDelay
	if delay <= 0 {
		delay = defaultRestartDelay
	}

	for {
		s.Logger.Info().Str("binary", binary).Str("config", s.ConfigPath).Msg("starting frpc")

		err := s.runOnce(ctx, binary)

		if ctx.Err() != nil {
			return nil
		}

		if err != nil {
			s.Logger.Error().Err(err).Msg("frpc exited")
		} else {
			s.Logger.Warn().Msg("frpc exited cleanly, restarting")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func (s *Supervisor) runOnce(ctx context.Context, binary string) error {
	cmd := exec.CommandContext(ctx, binary, "-c", s.ConfigPath)
	cmd.Stdout = s.Logger.With().Str("stream", "stdout").Logger()
	cmd.Stderr = s.Logger.With().Str("stream", "stderr").Logger()

	if err := cmd.Run(); err != nil {
		return errors.Wrap(err, "frpc process failed")
	}

	return nil
}
