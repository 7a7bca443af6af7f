package controller

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	frpv1 "github.com/frp-operator/frp-operator/api/v1"
)

// Event mappers turning watched side objects into reconcile requests for
// the objects depending on them. Listing failures return no requests; the
// steady re-sync covers whatever event was missed.

// secretToIngresses maps a Secret to every eligible Ingress naming it in
// spec.tls, so the https upgrade runs when TLS material appears or rotates.
func (r *IngressReconciler) secretToIngresses(
	ctx context.Context,
	obj client.Object,
) []reconcile.Request {
	secret, ok := obj.(*corev1.Secret)
	if !ok {
		return nil
	}

	var ingressList networkingv1.IngressList

	err := r.List(ctx, &ingressList, client.InNamespace(secret.Namespace))
	if err != nil {
		return nil
	}

	var requests []reconcile.Request

	for i := range ingressList.Items {
		ing := &ingressList.Items[i]

		if !isFRPIngress(ing) {
			continue
		}

		if ingressReferencesSecret(ing, secret.Name) {
			requests = append(requests, reconcile.Request{
				NamespacedName: types.NamespacedName{Name: ing.Name, Namespace: ing.Namespace},
			})
		}
	}

	return requests
}

// clientToIngresses maps a Client change to every eligible Ingress. A new
// endpoint must absorb all existing fragments.
func (r *IngressReconciler) clientToIngresses(
	ctx context.Context,
	obj client.Object,
) []reconcile.Request {
	if _, ok := obj.(*frpv1.Client); !ok {
		return nil
	}

	var ingressList networkingv1.IngressList

	err := r.List(ctx, &ingressList)
	if err != nil {
		return nil
	}

	var requests []reconcile.Request

	for i := range ingressList.Items {
		ing := &ingressList.Items[i]

		if isFRPIngress(ing) {
			requests = append(requests, reconcile.Request{
				NamespacedName: types.NamespacedName{Name: ing.Name, Namespace: ing.Namespace},
			})
		}
	}

	return requests
}

// podToServices maps a Pod to the eligible Services selecting it, so
// replica churn regroups the per-pod proxies.
func (r *ServiceReconciler) podToServices(
	ctx context.Context,
	obj client.Object,
) []reconcile.Request {
	pod, ok := obj.(*corev1.Pod)
	if !ok {
		return nil
	}

	var serviceList corev1.ServiceList

	err := r.List(ctx, &serviceList, client.InNamespace(pod.Namespace))
	if err != nil {
		return nil
	}

	var requests []reconcile.Request

	for i := range serviceList.Items {
		svc := &serviceList.Items[i]

		if !isFRPService(svc) || len(svc.Spec.Selector) == 0 {
			continue
		}

		if labels.SelectorFromSet(svc.Spec.Selector).Matches(labels.Set(pod.Labels)) {
			requests = append(requests, reconcile.Request{
				NamespacedName: types.NamespacedName{Name: svc.Name, Namespace: svc.Namespace},
			})
		}
	}

	return requests
}

// clientToServices maps a Client change to every eligible Service.
func (r *ServiceReconciler) clientToServices(
	ctx context.Context,
	obj client.Object,
) []reconcile.Request {
	if _, ok := obj.(*frpv1.Client); !ok {
		return nil
	}

	var serviceList corev1.ServiceList

	err := r.List(ctx, &serviceList)
	if err != nil {
		return nil
	}

	var requests []reconcile.Request

	for i := range serviceList.Items {
		svc := &serviceList.Items[i]

		if isFRPService(svc) {
			requests = append(requests, reconcile.Request{
				NamespacedName: types.NamespacedName{Name: svc.Name, Namespace: svc.Namespace},
			})
		}
	}

	return requests
}

// secretToClients maps a Secret to the Clients using it for authentication.
func (r *ClientReconciler) secretToClients(
	ctx context.Context,
	obj client.Object,
) []reconcile.Request {
	secret, ok := obj.(*corev1.Secret)
	if !ok {
		return nil
	}

	var clientList frpv1.ClientList

	err := r.List(ctx, &clientList, client.InNamespace(secret.Namespace))
	if err != nil {
		return nil
	}

	var requests []reconcile.Request

	for i := range clientList.Items {
		frpClient := &clientList.Items[i]

		if frpClient.Spec.GetAuthSecretName() == secret.Name {
			requests = append(requests, reconcile.Request{
				NamespacedName: types.NamespacedName{Name: frpClient.Name, Namespace: frpClient.Namespace},
			})
		}
	}

	return requests
}

func ingressReferencesSecret(ing *networkingv1.Ingress, secretName string) bool {
	for _, tls := range ing.Spec.TLS {
		if tls.SecretName == secretName {
			return true
		}
	}

	return false
}
