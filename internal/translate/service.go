package translate

import (
	"context"
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/frp-operator/frp-operator/internal/frpcfg"
	"github.com/frp-operator/frp-operator/internal/logging"
	"github.com/frp-operator/frp-operator/internal/metrics"
)

// ServiceTranslator converts a LoadBalancer Service into one frpc proxy
// fragment. Each deployment mode wires exactly one implementation.
type ServiceTranslator interface {
	Translate(ctx context.Context, svc *corev1.Service) (*frpcfg.ProxyConfig, error)
}

// PodEndpointTranslator emits one tcp proxy per (port, pod) pair so frps
// load-balances connections across replicas. Used in operator mode, where
// frpc runs inside the pod network and can reach pod IPs directly.
type PodEndpointTranslator struct {
	// Reader lists the pods behind the Service's selector.
	Reader client.Reader

	// Metrics records translation results.
	Metrics metrics.Collector
}

// Translate builds the per-replica fragment for a Service. Non-TCP ports and
// pods that cannot satisfy a named target port are skipped with a warning,
// never an error: the fragment converges as the workload does.
func (t *PodEndpointTranslator) Translate(ctx context.Context, svc *corev1.Service) (*frpcfg.ProxyConfig, error) {
	logger := logging.FromContext(ctx)
	identity := ServiceIdentity(svc.Namespace, svc.Name)

	frag := &frpcfg.ProxyConfig{Name: identity}

	pods, err := t.selectedPods(ctx, svc)
	if err != nil {
		return nil, err
	}

	for _, svcPort := range svc.Spec.Ports {
		if !isTCPPort(svcPort) {
			logger.Warn("only tcp is supported, skipping port",
				"service", svc.Namespace+"/"+svc.Name,
				"port", svcPort.Port,
				"protocol", string(svcPort.Protocol))

			continue
		}

		group := portGroup(svc.Name, svcPort)

		idx := 0

		for i := range pods {
			pod := &pods[i]

			localPort, ok := resolveTargetPort(pod, svcPort)
			if !ok {
				logger.Warn("pod has no matching container port, skipping",
					"service", svc.Namespace+"/"+svc.Name,
					"pod", pod.Name,
					"targetPort", svcPort.TargetPort.String())

				continue
			}

			frag.Proxies = append(frag.Proxies, frpcfg.Proxy{
				Name:       fmt.Sprintf("%s-%s-%d", identity, group, idx),
				Type:       frpcfg.ProxyTypeTCP,
				LocalIP:    pod.Status.PodIP,
				LocalPort:  localPort,
				RemotePort: svcPort.Port,
				LoadBalancer: &frpcfg.LoadBalancer{
					Group:    group,
					GroupKey: group,
				},
			})

			idx++
		}
	}

	if t.Metrics != nil {
		t.Metrics.RecordTranslation(ctx, "service", len(frag.Proxies))
	}

	return frag, nil
}

// selectedPods returns the running pods behind the Service's selector,
// sorted by name so the fragment is deterministic.
func (t *PodEndpointTranslator) selectedPods(ctx context.Context, svc *corev1.Service) ([]corev1.Pod, error) {
	if len(svc.Spec.Selector) == 0 {
		return nil, nil
	}

	var podList corev1.PodList

	err := t.Reader.List(ctx, &podList,
		client.InNamespace(svc.Namespace),
		client.MatchingLabels(svc.Spec.Selector))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list pods for service %s/%s", svc.Namespace, svc.Name)
	}

	pods := make([]corev1.Pod, 0, len(podList.Items))

	for i := range podList.Items {
		if podList.Items[i].Status.PodIP == "" {
			continue
		}

		pods = append(pods, podList.Items[i])
	}

	sort.Slice(pods, func(i, j int) bool {
		return pods[i].Name < pods[j].Name
	})

	return pods, nil
}

// ClusterIPTranslator emits one tcp proxy per port addressed at the
// Service's cluster DNS name. Used in agent mode, where frpc may run outside
// the pod network and pod IPs are unreachable.
type ClusterIPTranslator struct {
	// ClusterDomain is the cluster DNS suffix for backend addresses.
	ClusterDomain string

	// Metrics records translation results.
	Metrics metrics.Collector
}

// Translate builds the single-endpoint fragment for a Service.
func (t *ClusterIPTranslator) Translate(ctx context.Context, svc *corev1.Service) (*frpcfg.ProxyConfig, error) {
	logger := logging.FromContext(ctx)
	identity := ServiceIdentity(svc.Namespace, svc.Name)

	clusterDomain := t.ClusterDomain
	if clusterDomain == "" {
		clusterDomain = DefaultClusterDomain
	}

	frag := &frpcfg.ProxyConfig{Name: identity}

	for _, svcPort := range svc.Spec.Ports {
		if !isTCPPort(svcPort) {
			logger.Warn("only tcp is supported, skipping port",
				"service", svc.Namespace+"/"+svc.Name,
				"port", svcPort.Port,
				"protocol", string(svcPort.Protocol))

			continue
		}

		group := portGroup(svc.Name, svcPort)

		frag.Proxies = append(frag.Proxies, frpcfg.Proxy{
			Name:       fmt.Sprintf("%s-%s", identity, group),
			Type:       frpcfg.ProxyTypeTCP,
			LocalIP:    ServiceDNSName(svc.Name, svc.Namespace, clusterDomain),
			LocalPort:  svcPort.Port,
			RemotePort: svcPort.Port,
			LoadBalancer: &frpcfg.LoadBalancer{
				Group:    group,
				GroupKey: group,
			},
		})
	}

	if t.Metrics != nil {
		t.Metrics.RecordTranslation(ctx, "service", len(frag.Proxies))
	}

	return frag, nil
}

// isTCPPort reports whether a Service port speaks TCP. An empty protocol
// defaults to TCP per the Service API.
func isTCPPort(port corev1.ServicePort) bool {
	return port.Protocol == "" || port.Protocol == corev1.ProtocolTCP
}

// portGroup derives the load balancer group for a Service port.
func portGroup(svcName string, port corev1.ServicePort) string {
	if port.Name != "" {
		return fmt.Sprintf("%s-%s", svcName, port.Name)
	}

	return fmt.Sprintf("%s-%d", svcName, port.Port)
}

// resolveTargetPort resolves a Service port's target against one pod's
// container ports. Numeric targets pass through; named targets are looked up
// in the pod's containers; an unset target falls back to the Service port.
func resolveTargetPort(pod *corev1.Pod, svcPort corev1.ServicePort) (int32, bool) {
	switch svcPort.TargetPort.Type {
	case intstr.Int:
		if svcPort.TargetPort.IntVal != 0 {
			return svcPort.TargetPort.IntVal, true
		}

		return svcPort.Port, true
	case intstr.String:
		for _, container := range pod.Spec.Containers {
			for _, containerPort := range container.Ports {
				if containerPort.Name == svcPort.TargetPort.StrVal {
					return containerPort.ContainerPort, true
				}
			}
		}

		return 0, false
	}

	return svcPort.Port, true
}
