package converge

import (
	"context"

	corev1 "k8s.io/api/core/v1"

	"github.com/frp-operator/frp-operator/internal/frpcfg"
)

// Well-known names of the shared frpc workload in the runtime namespace.
const (
	// DeploymentName is the single frpc Deployment the operator manages.
	DeploymentName = "frpc"

	// ContainerName is the frpc container inside that Deployment.
	ContainerName = "frpc"

	// RootConfigMapName holds the rendered root configuration.
	RootConfigMapName = "frpc-config"
)

// Labels and annotations on operator-managed artifacts.
const (
	// LabelFragment marks ConfigMaps that carry one proxy fragment.
	LabelFragment = "frp-operator.io/fragment"

	// LabelPartOf groups every artifact the operator renders.
	LabelPartOf = "app.kubernetes.io/part-of"

	// PartOfValue is the value of LabelPartOf.
	PartOfValue = "frp-operator"

	// AnnotationTLSSecrets lists the TLS Secret names a fragment references,
	// comma-joined and sorted. Cleanup uses it to find certificates no
	// remaining fragment needs.
	AnnotationTLSSecrets = "frp-operator.io/tls-secrets"
)

// Applier converges one proxy fragment onto the running tunnel client.
type Applier interface {
	// Apply stages the fragment and its TLS Secrets. Applying an unchanged
	// fragment is a no-op.
	Apply(ctx context.Context, frag *frpcfg.ProxyConfig, secrets []*corev1.Secret) error

	// Cleanup removes everything Apply staged for the identity. Cleaning an
	// already-absent fragment is a no-op.
	Cleanup(ctx context.Context, identity string) error

	// ServerAddr returns the frps address the tunnel client connects to,
	// reported in workload object status.
	ServerAddr(ctx context.Context) (string, error)
}
