package converge

import (
	"context"
	"path/filepath"
	"time"

	corev1 "k8s.io/api/core/v1"

	"github.com/frp-operator/frp-operator/internal/agent"
	"github.com/frp-operator/frp-operator/internal/frpcfg"
	"github.com/frp-operator/frp-operator/internal/metrics"
	"github.com/frp-operator/frp-operator/internal/staging"
)

// AgentApplier converges fragments onto the local filesystem next to a
// supervised frpc process and hot-reloads it afterwards.
type AgentApplier struct {
	Store    *agent.ConfigStore
	Stager   *staging.FileStager
	Reloader agent.Reloader

	// Endpoint is the frps endpoint the agent was started with, reported in
	// workload object status.
	Endpoint *frpcfg.ClientConfig

	Metrics metrics.Collector
}

// Apply stages certificates, writes the fragment file and reloads frpc.
func (a *AgentApplier) Apply(ctx context.Context, frag *frpcfg.ProxyConfig, secrets []*corev1.Secret) error {
	start := time.Now()

	err := a.apply(ctx, frag, secrets)

	if a.Metrics != nil {
		a.Metrics.RecordApply(ctx, "agent", outcome(err), time.Since(start))
	}

	return err
}

func (a *AgentApplier) apply(ctx context.Context, frag *frpcfg.ProxyConfig, secrets []*corev1.Secret) error {
	if err := a.Stager.Stage(ctx, nil, secrets); err != nil {
		return err
	}

	if err := a.Store.WriteFragment(frag); err != nil {
		return err
	}

	if err := a.pruneCerts(ctx); err != nil {
		return err
	}

	return a.Reloader.Reload(ctx)
}

// Cleanup removes the fragment file, prunes orphaned certificates and
// reloads frpc.
func (a *AgentApplier) Cleanup(ctx context.Context, identity string) error {
	start := time.Now()

	err := a.cleanup(ctx, identity)

	if a.Metrics != nil {
		a.Metrics.RecordApply(ctx, "agent", outcome(err), time.Since(start))
	}

	return err
}

func (a *AgentApplier) cleanup(ctx context.Context, identity string) error {
	if err := a.Store.RemoveFragment(identity); err != nil {
		return err
	}

	if err := a.pruneCerts(ctx); err != nil {
		return err
	}

	return a.Reloader.Reload(ctx)
}

// ServerAddr returns the configured frps address.
func (a *AgentApplier) ServerAddr(_ context.Context) (string, error) {
	return a.Endpoint.ServerAddr, nil
}

// pruneCerts removes staged certificate directories no fragment on disk
// references anymore. References are recovered from the plugins' crtPath,
// which always points into the per-secret directory tree.
func (a *AgentApplier) pruneCerts(ctx context.Context) error {
	fragments, err := a.Store.ListFragments()
	if err != nil {
		return err
	}

	referenced := make(map[string]bool)

	for _, frag := range fragments {
		for _, proxy := range frag.Proxies {
			if proxy.Plugin == nil || proxy.Plugin.CrtPath == "" {
				continue
			}

			referenced[filepath.Base(filepath.Dir(proxy.Plugin.CrtPath))] = true
		}
	}

	staged, err := a.Stager.Staged()
	if err != nil {
		return err
	}

	var orphaned []string

	for _, name := range staged {
		if !referenced[name] {
			orphaned = append(orphaned, name)
		}
	}

	return a.Stager.Unstage(ctx, nil, orphaned)
}
