package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/frp-operator/frp-operator/internal/controller"
)

//nolint:gochecknoglobals // cobra command pattern
var operatorCmd = &cobra.Command{
	Use:   "operator",
	Short: "Run the in-cluster controller manager",
	Long: `Runs the Client, Ingress and Service controllers against the cluster.
Translation output is staged into ConfigMaps and wired into the shared frpc
Deployment owned by the Client resource.`,
	RunE: runOperator,
}

//nolint:gochecknoinits // cobra command pattern
func init() {
	operatorCmd.Flags().String("cluster-domain", "cluster.local", "Kubernetes cluster domain for service DNS resolution")
	operatorCmd.Flags().String("metrics-addr", ":8080", "Address for metrics endpoint")
	operatorCmd.Flags().String("health-addr", ":8081", "Address for health probe endpoint")

	operatorCmd.Flags().Bool("leader-elect", false, "Enable leader election for high availability")
	operatorCmd.Flags().String("leader-election-namespace", "", "Namespace for leader election lease (defaults to operator namespace)")
	operatorCmd.Flags().String("leader-election-name", "frp-operator-leader", "Name of the leader election lease")

	_ = viper.BindPFlags(operatorCmd.Flags())

	rootCmd.AddCommand(operatorCmd)
}

//nolint:noinlineerr // inline error handling is fine here
func runOperator(_ *cobra.Command, _ []string) error {
	logger := setupLogger()
	slog.SetDefault(logger)

	ctrl.SetLogger(logr.FromSlogHandler(logger.Handler()))

	logger.Info("starting frp-operator",
		"mode", "operator",
		"version", version,
		"gitsha", gitsha,
	)

	cfg := controller.OperatorConfig{
		ClusterDomain: viper.GetString("cluster-domain"),
		MetricsAddr:   viper.GetString("metrics-addr"),
		HealthAddr:    viper.GetString("health-addr"),

		LeaderElect:     viper.GetBool("leader-elect"),
		LeaderElectNS:   viper.GetString("leader-election-namespace"),
		LeaderElectName: viper.GetString("leader-election-name"),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := controller.RunOperator(ctx, &cfg); err != nil {
		return errors.Wrap(err, "failed to run operator")
	}

	return nil
}
