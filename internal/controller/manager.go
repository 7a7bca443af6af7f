package controller

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
	"sigs.k8s.io/controller-runtime/pkg/metrics/server"

	frpv1 "github.com/frp-operator/frp-operator/api/v1"
	"github.com/frp-operator/frp-operator/internal/agent"
	"github.com/frp-operator/frp-operator/internal/converge"
	"github.com/frp-operator/frp-operator/internal/frpcfg"
	"github.com/frp-operator/frp-operator/internal/metrics"
	"github.com/frp-operator/frp-operator/internal/staging"
	"github.com/frp-operator/frp-operator/internal/translate"
)

// OperatorConfig holds the options for full in-cluster operation. Values
// are populated from CLI flags or environment variables.
type OperatorConfig struct {
	// ClusterDomain is the cluster DNS suffix for backend addresses.
	// Defaults to "cluster.local".
	ClusterDomain string

	// MetricsAddr is the address for the Prometheus metrics endpoint.
	MetricsAddr string

	// HealthAddr is the address for health and readiness probe endpoints.
	HealthAddr string

	// LeaderElect enables leader election for high availability.
	LeaderElect bool

	// LeaderElectNS is the namespace for the leader election lease.
	LeaderElectNS string

	// LeaderElectName is the name of the leader election lease.
	LeaderElectName string
}

// AgentConfig holds the options for agent mode: controllers run against the
// cluster, but convergence targets the local filesystem and a supervised
// frpc process. The endpoint comes from these options, not the Client CRD.
type AgentConfig struct {
	// ServerAddr is the frps server address (required).
	ServerAddr string

	// ServerPort is the frps server port (required).
	ServerPort int32

	// AuthToken is the frps token. When set, the rendered configuration
	// references it via the FRP_AUTH_TOKEN environment variable.
	AuthToken string

	// WebserverAddr is the frpc admin webserver bind address.
	WebserverAddr string

	// WebserverPort is the frpc admin webserver port (required; reloads
	// go through it).
	WebserverPort int32

	// TransportProtocol selects the frpc<->frps transport.
	TransportProtocol string

	// ClusterDomain is the cluster DNS suffix for backend addresses.
	ClusterDomain string

	// ConfigDir is the configuration directory. Defaults to /etc/frp.
	ConfigDir string

	// FrpcPath is the frpc binary. Defaults to /usr/local/bin/frpc.
	FrpcPath string

	// MetricsAddr is the address for the Prometheus metrics endpoint.
	MetricsAddr string

	// HealthAddr is the address for health and readiness probe endpoints.
	HealthAddr string
}

// RunOperator starts the in-cluster controller manager: Client, Ingress and
// Service reconcilers converging onto ConfigMaps and the shared frpc
// Deployment. Blocks until the context is cancelled.
//
//nolint:funlen,noinlineerr // manager setup requires multiple steps
func RunOperator(ctx context.Context, cfg *OperatorConfig) error {
	logger := log.FromContext(ctx).WithName("manager")
	logger.Info("initializing operator manager")

	mgrOptions := ctrl.Options{
		Metrics: server.Options{
			BindAddress: cfg.MetricsAddr,
		},
		HealthProbeBindAddress: cfg.HealthAddr,
	}

	if cfg.LeaderElect {
		mgrOptions.LeaderElection = true
		mgrOptions.LeaderElectionID = cfg.LeaderElectName
		mgrOptions.LeaderElectionNamespace = cfg.LeaderElectNS

		logger.Info("leader election enabled",
			"id", cfg.LeaderElectName,
			"namespace", cfg.LeaderElectNS,
		)
	}

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), mgrOptions)
	if err != nil {
		return errors.Wrap(err, "failed to create manager")
	}

	if err := frpv1.AddToScheme(mgr.GetScheme()); err != nil {
		return errors.Wrap(err, "failed to add frp-operator.io scheme")
	}

	collector := metrics.NewCollector(ctrlmetrics.Registry)

	stager := &staging.ClusterStager{
		Client:  mgr.GetClient(),
		Scheme:  mgr.GetScheme(),
		Metrics: collector,
	}

	applier := &converge.ClusterApplier{
		Client:  mgr.GetClient(),
		Scheme:  mgr.GetScheme(),
		Stager:  stager,
		Metrics: collector,
	}

	clientReconciler := &ClientReconciler{
		Client:  mgr.GetClient(),
		Scheme:  mgr.GetScheme(),
		Metrics: collector,
	}

	if err := clientReconciler.SetupWithManager(mgr); err != nil {
		return errors.Wrap(err, "failed to setup client controller")
	}

	ingressReconciler := &IngressReconciler{
		Client:       mgr.GetClient(),
		Scheme:       mgr.GetScheme(),
		Translator:   translate.NewIngressTranslator(mgr.GetClient(), cfg.ClusterDomain, collector),
		Applier:      applier,
		Metrics:      collector,
		WatchClients: true,
	}

	if err := ingressReconciler.SetupWithManager(mgr); err != nil {
		return errors.Wrap(err, "failed to setup ingress controller")
	}

	serviceReconciler := &ServiceReconciler{
		Client: mgr.GetClient(),
		Scheme: mgr.GetScheme(),
		Translator: &translate.PodEndpointTranslator{
			Reader:  mgr.GetClient(),
			Metrics: collector,
		},
		Applier:      applier,
		Metrics:      collector,
		WatchClients: true,
	}

	if err := serviceReconciler.SetupWithManager(mgr); err != nil {
		return errors.Wrap(err, "failed to setup service controller")
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		return errors.Wrap(err, "failed to set up health check")
	}

	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		return errors.Wrap(err, "failed to set up ready check")
	}

	logger.Info("starting manager")

	if err := mgr.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start manager")
	}

	return nil
}

// RunAgent starts agent mode: the Ingress and Service reconcilers converge
// onto the local filesystem while a supervised frpc process serves the
// tunnel. Blocks until the context is cancelled or either side fails.
//
//nolint:funlen,noinlineerr // manager setup requires multiple steps
func RunAgent(ctx context.Context, cfg *AgentConfig) error {
	logger := log.FromContext(ctx).WithName("agent")

	endpoint, err := agentEndpoint(cfg)
	if err != nil {
		return err
	}

	store := &agent.ConfigStore{Root: cfg.ConfigDir}

	logger.Info("writing root configuration", "path", store.RootConfigPath())

	if err := store.WriteRoot(endpoint); err != nil {
		return errors.Wrap(err, "failed to write root config")
	}

	if cfg.AuthToken != "" {
		// The supervised frpc resolves the token template from its
		// inherited environment.
		if err := os.Setenv(frpv1.AuthTokenEnvVar, cfg.AuthToken); err != nil {
			return errors.Wrap(err, "failed to export auth token")
		}
	}

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Metrics: server.Options{
			BindAddress: cfg.MetricsAddr,
		},
		HealthProbeBindAddress: cfg.HealthAddr,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create manager")
	}

	collector := metrics.NewCollector(ctrlmetrics.Registry)

	applier := &converge.AgentApplier{
		Store: store,
		Stager: &staging.FileStager{
			CertsDir: store.CertsDir(),
			Metrics:  collector,
		},
		Reloader: &agent.ExecReloader{
			BinaryPath: cfg.FrpcPath,
			ConfigPath: store.RootConfigPath(),
		},
		Endpoint: endpoint,
		Metrics:  collector,
	}

	ingressTranslator := translate.NewIngressTranslator(mgr.GetClient(), cfg.ClusterDomain, collector)
	// Cert paths in rendered plugins must match where the file stager
	// writes under the agent's config dir.
	ingressTranslator.CertsDir = store.CertsDir()

	ingressReconciler := &IngressReconciler{
		Client:     mgr.GetClient(),
		Scheme:     mgr.GetScheme(),
		Translator: ingressTranslator,
		Applier:    applier,
		Metrics:    collector,
	}

	if err := ingressReconciler.SetupWithManager(mgr); err != nil {
		return errors.Wrap(err, "failed to setup ingress controller")
	}

	serviceReconciler := &ServiceReconciler{
		Client: mgr.GetClient(),
		Scheme: mgr.GetScheme(),
		Translator: &translate.ClusterIPTranslator{
			ClusterDomain: cfg.ClusterDomain,
			Metrics:       collector,
		},
		Applier: applier,
		Metrics: collector,
	}

	if err := serviceReconciler.SetupWithManager(mgr); err != nil {
		return errors.Wrap(err, "failed to setup service controller")
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		return errors.Wrap(err, "failed to set up health check")
	}

	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		return errors.Wrap(err, "failed to set up ready check")
	}

	supervisor := &agent.Supervisor{
		BinaryPath: cfg.FrpcPath,
		ConfigPath: store.RootConfigPath(),
		Logger:     zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger(),
	}

	logger.Info("starting frpc supervisor and manager")

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return supervisor.Run(groupCtx)
	})

	group.Go(func() error {
		return errors.Wrap(mgr.Start(groupCtx), "failed to start manager")
	})

	return errors.Wrap(group.Wait(), "agent run group failed")
}

// agentEndpoint validates the agent options and renders the endpoint
// configuration. The admin webserver is mandatory: reloads go through it.
func agentEndpoint(cfg *AgentConfig) (*frpcfg.ClientConfig, error) {
	if cfg.ServerAddr == "" {
		return nil, errors.New("server-addr is required in agent mode")
	}

	if cfg.ServerPort == 0 {
		return nil, errors.New("server-port is required in agent mode")
	}

	if cfg.WebserverPort == 0 {
		return nil, errors.New("webserver-port is required in agent mode: hot reloads go through the admin webserver")
	}

	// The includes glob must point where the store writes fragments, also
	// when the config dir was relocated.
	configDir := cfg.ConfigDir
	if configDir == "" {
		configDir = frpcfg.BaseConfigDir
	}

	endpoint := &frpcfg.ClientConfig{
		ServerAddr: cfg.ServerAddr,
		ServerPort: cfg.ServerPort,
		Includes:   []string{frpcfg.IncludesGlobIn(configDir)},
		Webserver: &frpcfg.WebserverConfig{
			Addr: cfg.WebserverAddr,
			Port: cfg.WebserverPort,
		},
	}

	if endpoint.Webserver.Addr == "" {
		endpoint.Webserver.Addr = "127.0.0.1"
	}

	if cfg.AuthToken != "" {
		endpoint.Auth = &frpcfg.AuthConfig{
			Method: "token",
			Token:  "{{ .Envs." + frpv1.AuthTokenEnvVar + " }}",
		}
	}

	if cfg.TransportProtocol != "" {
		endpoint.Transport = &frpcfg.ClientTransport{Protocol: cfg.TransportProtocol}
	}

	return endpoint, nil
}
