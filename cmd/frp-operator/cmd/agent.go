package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/go-logr/logr"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/frp-operator/frp-operator/internal/agent"
	"github.com/frp-operator/frp-operator/internal/controller"
	"github.com/frp-operator/frp-operator/internal/frpcfg"
)

//nolint:gochecknoglobals // cobra command pattern
var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run next to a local frpc process",
	Long: `Runs the Ingress and Service controllers against the cluster, but
converges configuration onto the local filesystem and supervises a local
frpc process. The Client resource is not consulted; the endpoint comes from
flags. The frps auth token can be passed via the FRP_AUTH_TOKEN environment
variable instead of --auth-token.`,
	RunE: runAgent,
}

//nolint:gochecknoglobals // cobra command pattern
var agentWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reload frpc when configuration fragments change on disk",
	Long: `A sidecar that watches the configuration directory and hot-reloads the
running frpc through its admin webserver when fragments change. Use it when
something other than the agent writes fragments into the directory.`,
	RunE: runAgentWatch,
}

//nolint:gochecknoinits // cobra command pattern
func init() {
	agentCmd.Flags().String("server-addr", "", "frps server address (required)")
	agentCmd.Flags().Int32("server-port", 7000, "frps server port")
	agentCmd.Flags().String("auth-token", "", "frps auth token (or use FRP_AUTH_TOKEN env var)")
	agentCmd.Flags().String("webserver-addr", "127.0.0.1", "frpc admin webserver address")
	agentCmd.Flags().Int32("webserver-port", 7400, "frpc admin webserver port (reloads go through it)")
	agentCmd.Flags().String("transport-protocol", "", "Transport between frpc and frps (tcp, kcp, quic, websocket, wss)")
	agentCmd.Flags().String("cluster-domain", "cluster.local", "Kubernetes cluster domain for service DNS resolution")
	agentCmd.Flags().String("config-dir", frpcfg.BaseConfigDir, "frpc configuration directory")
	agentCmd.Flags().String("frpc-path", agent.DefaultBinaryPath, "Path to the frpc binary")
	agentCmd.Flags().String("metrics-addr", ":8080", "Address for metrics endpoint")
	agentCmd.Flags().String("health-addr", ":8081", "Address for health probe endpoint")

	agentWatchCmd.Flags().String("config-dir", frpcfg.BaseConfigDir, "frpc configuration directory to watch")
	agentWatchCmd.Flags().String("frpc-path", agent.DefaultBinaryPath, "Path to the frpc binary")

	_ = viper.BindPFlags(agentCmd.Flags())

	agentCmd.AddCommand(agentWatchCmd)
	rootCmd.AddCommand(agentCmd)
}

//nolint:noinlineerr // inline error handling is fine here
func runAgent(_ *cobra.Command, _ []string) error {
	logger := setupLogger()
	slog.SetDefault(logger)

	ctrl.SetLogger(logr.FromSlogHandler(logger.Handler()))

	logger.Info("starting frp-operator",
		"mode", "agent",
		"version", version,
		"gitsha", gitsha,
	)

	cfg := controller.AgentConfig{
		ServerAddr:        viper.GetString("server-addr"),
		ServerPort:        viper.GetInt32("server-port"),
		AuthToken:         viper.GetString("auth-token"),
		WebserverAddr:     viper.GetString("webserver-addr"),
		WebserverPort:     viper.GetInt32("webserver-port"),
		TransportProtocol: viper.GetString("transport-protocol"),
		ClusterDomain:     viper.GetString("cluster-domain"),
		ConfigDir:         viper.GetString("config-dir"),
		FrpcPath:          viper.GetString("frpc-path"),
		MetricsAddr:       viper.GetString("metrics-addr"),
		HealthAddr:        viper.GetString("health-addr"),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := controller.RunAgent(ctx, &cfg); err != nil {
		return errors.Wrap(err, "failed to run agent")
	}

	return nil
}

//nolint:noinlineerr // inline error handling is fine here
func runAgentWatch(cmd *cobra.Command, _ []string) error {
	configDir, err := cmd.Flags().GetString("config-dir")
	if err != nil {
		return errors.Wrap(err, "failed to read config-dir flag")
	}

	frpcPath, err := cmd.Flags().GetString("frpc-path")
	if err != nil {
		return errors.Wrap(err, "failed to read frpc-path flag")
	}

	consoleLogger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	watcher := &agent.Watcher{
		Dir: configDir,
		Reloader: &agent.ExecReloader{
			BinaryPath: frpcPath,
			ConfigPath: filepath.Join(configDir, frpcfg.RootConfigName),
		},
		Logger: consoleLogger,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	consoleLogger.Info().Str("dir", configDir).Msg("watching for configuration changes")

	if err := watcher.Run(ctx); err != nil {
		return errors.Wrap(err, "watcher failed")
	}

	return nil
}
