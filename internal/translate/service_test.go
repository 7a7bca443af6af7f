package translate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/frp-operator/frp-operator/internal/frpcfg"
	"github.com/frp-operator/frp-operator/internal/metrics"
	"github.com/frp-operator/frp-operator/internal/translate"
)

func lbService(name, namespace string, selector map[string]string, ports ...corev1.ServicePort) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
		},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeLoadBalancer,
			Selector: selector,
			Ports:    ports,
		},
	}
}

func backendPod(name, namespace, ip string, labels map[string]string, ports ...corev1.ContainerPort) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    labels,
		},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{
				{Name: "app", Ports: ports},
			},
		},
		Status: corev1.PodStatus{PodIP: ip},
	}
}

func TestPodEndpointTranslator_Translate(t *testing.T) {
	t.Parallel()

	labels := map[string]string{"app": "db"}
	svc := lbService("db", "default", labels,
		corev1.ServicePort{Name: "pg", Port: 5432, Protocol: corev1.ProtocolTCP})

	// Listed out of name order on purpose; the translator sorts by pod name.
	podB := backendPod("db-b", "default", "10.0.0.2", labels)
	podA := backendPod("db-a", "default", "10.0.0.1", labels)

	translator := &translate.PodEndpointTranslator{
		Reader:  newFakeReader(t, svc, podB, podA),
		Metrics: metrics.NewNoopCollector(),
	}

	frag, err := translator.Translate(context.Background(), svc)

	require.NoError(t, err)
	assert.Equal(t, "config-proxy-service-default-db", frag.Name)
	require.Len(t, frag.Proxies, 2)

	assert.Equal(t, "config-proxy-service-default-db-db-pg-0", frag.Proxies[0].Name)
	assert.Equal(t, "10.0.0.1", frag.Proxies[0].LocalIP)
	assert.Equal(t, "10.0.0.2", frag.Proxies[1].LocalIP)

	for _, proxy := range frag.Proxies {
		assert.Equal(t, frpcfg.ProxyTypeTCP, proxy.Type)
		assert.Equal(t, int32(5432), proxy.LocalPort)
		assert.Equal(t, int32(5432), proxy.RemotePort)
		require.NotNil(t, proxy.LoadBalancer)
		assert.Equal(t, "db-pg", proxy.LoadBalancer.Group)
		assert.Equal(t, "db-pg", proxy.LoadBalancer.GroupKey)
	}

	assert.NoError(t, frag.Validate())
}

func TestPodEndpointTranslator_Translate_NamedTargetPort(t *testing.T) {
	t.Parallel()

	labels := map[string]string{"app": "db"}
	svc := lbService("db", "default", labels, corev1.ServicePort{
		Name:       "pg",
		Port:       5432,
		Protocol:   corev1.ProtocolTCP,
		TargetPort: intstr.FromString("postgres"),
	})

	withPort := backendPod("db-a", "default", "10.0.0.1", labels,
		corev1.ContainerPort{Name: "postgres", ContainerPort: 15432})
	// No container port named "postgres": warned and skipped.
	withoutPort := backendPod("db-b", "default", "10.0.0.2", labels)

	translator := &translate.PodEndpointTranslator{
		Reader:  newFakeReader(t, svc, withPort, withoutPort),
		Metrics: metrics.NewNoopCollector(),
	}

	frag, err := translator.Translate(context.Background(), svc)

	require.NoError(t, err)
	require.Len(t, frag.Proxies, 1)
	assert.Equal(t, "10.0.0.1", frag.Proxies[0].LocalIP)
	assert.Equal(t, int32(15432), frag.Proxies[0].LocalPort)
}

func TestPodEndpointTranslator_Translate_SkipsNonTCP(t *testing.T) {
	t.Parallel()

	labels := map[string]string{"app": "dns"}
	svc := lbService("dns", "default", labels,
		corev1.ServicePort{Name: "dns", Port: 53, Protocol: corev1.ProtocolUDP},
		corev1.ServicePort{Name: "dns-tcp", Port: 5353, Protocol: corev1.ProtocolTCP},
	)
	pod := backendPod("dns-a", "default", "10.0.0.1", labels)

	translator := &translate.PodEndpointTranslator{
		Reader:  newFakeReader(t, svc, pod),
		Metrics: metrics.NewNoopCollector(),
	}

	frag, err := translator.Translate(context.Background(), svc)

	require.NoError(t, err)
	require.Len(t, frag.Proxies, 1)
	assert.Equal(t, "dns-tcp", frag.Proxies[0].LoadBalancer.Group[len("dns-"):])
}

func TestPodEndpointTranslator_Translate_SkipsPodsWithoutIP(t *testing.T) {
	t.Parallel()

	labels := map[string]string{"app": "db"}
	svc := lbService("db", "default", labels,
		corev1.ServicePort{Name: "pg", Port: 5432})

	ready := backendPod("db-a", "default", "10.0.0.1", labels)
	pending := backendPod("db-b", "default", "", labels)

	translator := &translate.PodEndpointTranslator{
		Reader:  newFakeReader(t, svc, ready, pending),
		Metrics: metrics.NewNoopCollector(),
	}

	frag, err := translator.Translate(context.Background(), svc)

	require.NoError(t, err)
	require.Len(t, frag.Proxies, 1)
	assert.Equal(t, "10.0.0.1", frag.Proxies[0].LocalIP)
}

func TestClusterIPTranslator_Translate(t *testing.T) {
	t.Parallel()

	svc := lbService("db", "prod", nil,
		corev1.ServicePort{Name: "pg", Port: 5432, Protocol: corev1.ProtocolTCP},
		corev1.ServicePort{Port: 6432},
	)

	translator := &translate.ClusterIPTranslator{Metrics: metrics.NewNoopCollector()}

	frag, err := translator.Translate(context.Background(), svc)

	require.NoError(t, err)
	require.Len(t, frag.Proxies, 2)

	assert.Equal(t, "config-proxy-service-prod-db-db-pg", frag.Proxies[0].Name)
	assert.Equal(t, "db.prod.svc.cluster.local", frag.Proxies[0].LocalIP)
	assert.Equal(t, int32(5432), frag.Proxies[0].LocalPort)
	assert.Equal(t, int32(5432), frag.Proxies[0].RemotePort)

	// Unnamed port falls back to the numeric group.
	assert.Equal(t, "db-6432", frag.Proxies[1].LoadBalancer.Group)

	assert.NoError(t, frag.Validate())
}
