package translate

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/frp-operator/frp-operator/internal/frpcfg"
	"github.com/frp-operator/frp-operator/internal/logging"
	"github.com/frp-operator/frp-operator/internal/metrics"
)

// DefaultClusterDomain is the cluster DNS suffix used when none is configured.
const DefaultClusterDomain = "cluster.local"

// IngressTranslator converts an Ingress into one frpc proxy fragment with an
// http or https proxy per (rule, path) pair.
type IngressTranslator struct {
	// Reader resolves backend Services and TLS Secrets.
	Reader client.Reader

	// ClusterDomain is the cluster DNS suffix for backend addresses.
	ClusterDomain string

	// CertsDir is where frpc reads staged TLS material from. Defaults to
	// the standard in-container location; agent mode points it at the
	// certs directory under its config dir.
	CertsDir string

	// Metrics records translation results.
	Metrics metrics.Collector
}

// NewIngressTranslator creates an IngressTranslator.
func NewIngressTranslator(reader client.Reader, clusterDomain string, m metrics.Collector) *IngressTranslator {
	if clusterDomain == "" {
		clusterDomain = DefaultClusterDomain
	}

	return &IngressTranslator{
		Reader:        reader,
		ClusterDomain: clusterDomain,
		Metrics:       m,
	}
}

// Translate builds the proxy fragment for an Ingress. It also returns the TLS
// Secrets any https proxy references, each exactly once, so the caller can
// stage their key material.
//
// A TLS entry whose Secret is missing or not of TLS type leaves the affected
// proxies as plain http; the upgrade happens on a later reconcile once the
// Secret appears. A backend Service or named port that cannot be resolved is
// an error and fails the whole translation.
func (t *IngressTranslator) Translate(
	ctx context.Context,
	ing *networkingv1.Ingress,
) (*frpcfg.ProxyConfig, []*corev1.Secret, error) {
	identity := IngressIdentity(ing.Namespace, ing.Name)

	frag := &frpcfg.ProxyConfig{Name: identity}

	for ruleIdx, rule := range ing.Spec.Rules {
		if rule.HTTP == nil {
			continue
		}

		for pathIdx, path := range rule.HTTP.Paths {
			proxy, err := t.buildRuleProxy(ctx, ing, identity, ruleIdx, pathIdx, rule, path)
			if err != nil {
				return nil, nil, err
			}

			frag.Proxies = append(frag.Proxies, *proxy)
		}
	}

	secrets, err := t.upgradeTLS(ctx, ing, frag)
	if err != nil {
		return nil, nil, err
	}

	if t.Metrics != nil {
		t.Metrics.RecordTranslation(ctx, "ingress", len(frag.Proxies))
	}

	return frag, secrets, nil
}

func (t *IngressTranslator) buildRuleProxy(
	ctx context.Context,
	ing *networkingv1.Ingress,
	identity string,
	ruleIdx, pathIdx int,
	rule networkingv1.IngressRule,
	path networkingv1.HTTPIngressPath,
) (*frpcfg.Proxy, error) {
	backend := path.Backend.Service
	if backend == nil {
		return nil, errors.Newf("ingress %s/%s rule %d path %d has no service backend",
			ing.Namespace, ing.Name, ruleIdx, pathIdx)
	}

	var svc corev1.Service

	err := t.Reader.Get(ctx, types.NamespacedName{Namespace: ing.Namespace, Name: backend.Name}, &svc)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get backend service %s/%s", ing.Namespace, backend.Name)
	}

	port, err := resolveServicePort(&svc, backend.Port)
	if err != nil {
		return nil, errors.Wrapf(err, "ingress %s/%s", ing.Namespace, ing.Name)
	}

	proxy := &frpcfg.Proxy{
		Name:      fmt.Sprintf("%s-r%d-p%d", identity, ruleIdx, pathIdx),
		Type:      frpcfg.ProxyTypeHTTP,
		LocalIP:   ServiceDNSName(svc.Name, svc.Namespace, t.ClusterDomain),
		LocalPort: port,
	}

	if rule.Host != "" {
		proxy.CustomDomains = []string{rule.Host}
	}

	if path.Path != "" {
		proxy.Locations = []string{path.Path}
	}

	return proxy, nil
}

// upgradeTLS flips proxies whose domain has a resolvable TLS Secret to https.
// The backend address moves into the https2http plugin and the direct routing
// fields are cleared; frpc rejects a proxy carrying both.
func (t *IngressTranslator) upgradeTLS(
	ctx context.Context,
	ing *networkingv1.Ingress,
	frag *frpcfg.ProxyConfig,
) ([]*corev1.Secret, error) {
	hostSecrets := make(map[string]string)

	for _, tls := range ing.Spec.TLS {
		for _, host := range tls.Hosts {
			hostSecrets[host] = tls.SecretName
		}
	}

	if len(hostSecrets) == 0 {
		return nil, nil
	}

	logger := logging.FromContext(ctx)

	resolved := make(map[string]*corev1.Secret)

	var staged []*corev1.Secret

	for i := range frag.Proxies {
		proxy := &frag.Proxies[i]

		for _, domain := range proxy.CustomDomains {
			secretName, ok := hostSecrets[domain]
			if !ok {
				continue
			}

			secret, ok := resolved[secretName]
			if !ok {
				fetched, err := t.fetchTLSSecret(ctx, ing.Namespace, secretName)
				if err != nil {
					return nil, err
				}

				if fetched == nil {
					logger.Warn("tls secret not ready, keeping http proxy",
						"ingress", ing.Namespace+"/"+ing.Name,
						"secret", secretName,
						"host", domain)

					continue
				}

				resolved[secretName] = fetched
				staged = append(staged, fetched)
				secret = fetched
			}

			proxy.Type = frpcfg.ProxyTypeHTTPS
			proxy.Plugin = &frpcfg.Plugin{
				Type:              frpcfg.PluginHTTPS2HTTP,
				LocalAddr:         fmt.Sprintf("%s:%d", proxy.LocalIP, proxy.LocalPort),
				CrtPath:           frpcfg.CertCrtPathIn(t.certsDir(), secret.Name),
				KeyPath:           frpcfg.CertKeyPathIn(t.certsDir(), secret.Name),
				HostHeaderRewrite: domain,
				SecretName:        secret.Name,
			}
			proxy.LocalIP = ""
			proxy.LocalPort = 0
			proxy.Locations = nil

			break
		}
	}

	return staged, nil
}

func (t *IngressTranslator) certsDir() string {
	if t.CertsDir == "" {
		return frpcfg.CertsBaseDir
	}

	return t.CertsDir
}

// fetchTLSSecret returns the Secret, or nil when it does not exist or is not
// a TLS Secret. Only genuine read failures are errors.
func (t *IngressTranslator) fetchTLSSecret(ctx context.Context, namespace, name string) (*corev1.Secret, error) {
	var secret corev1.Secret

	err := t.Reader.Get(ctx, types.NamespacedName{Namespace: namespace, Name: name}, &secret)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil
		}

		return nil, errors.Wrapf(err, "failed to get tls secret %s/%s", namespace, name)
	}

	if secret.Type != corev1.SecretTypeTLS {
		return nil, nil
	}

	return &secret, nil
}

// ServiceDNSName returns the cluster DNS name of a Service.
func ServiceDNSName(name, namespace, clusterDomain string) string {
	return fmt.Sprintf("%s.%s.svc.%s", name, namespace, clusterDomain)
}

// resolveServicePort resolves an Ingress backend port against a Service.
// Numeric ports pass through unchanged; named ports are looked up in the
// Service's port list.
func resolveServicePort(svc *corev1.Service, port networkingv1.ServiceBackendPort) (int32, error) {
	if port.Name != "" {
		for _, svcPort := range svc.Spec.Ports {
			if svcPort.Name == port.Name {
				return svcPort.Port, nil
			}
		}

		return 0, errors.Newf("service %s/%s has no port named %q", svc.Namespace, svc.Name, port.Name)
	}

	if port.Number != 0 {
		return port.Number, nil
	}

	return 0, errors.Newf("backend reference to service %s/%s names no port", svc.Namespace, svc.Name)
}
