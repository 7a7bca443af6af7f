package controller

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apiequality "k8s.io/apimachinery/pkg/api/equality"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/util/retry"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/predicate"

	frpv1 "github.com/frp-operator/frp-operator/api/v1"
	"github.com/frp-operator/frp-operator/internal/converge"
	"github.com/frp-operator/frp-operator/internal/frpcfg"
	"github.com/frp-operator/frp-operator/internal/metrics"
	"github.com/frp-operator/frp-operator/internal/translate"
)

const (
	// FRPClassName is the ingress class and load balancer class this
	// operator handles.
	FRPClassName = "frp"

	// ingressFinalizer guards fragment cleanup when an Ingress goes away.
	ingressFinalizer = "frp-operator.io/ingress-finalizer"

	// ingressClassAnnotation is the legacy class annotation, honored
	// alongside spec.ingressClassName.
	ingressClassAnnotation = "kubernetes.io/ingress.class"
)

// IngressReconciler translates Ingresses of class "frp" into http/https
// proxy fragments and converges them onto the tunnel client.
//
// Lifecycle is finalizer-gated: the fragment and any staged TLS Secrets are
// cleaned up when the Ingress is deleted or its class moves away.
type IngressReconciler struct {
	client.Client

	Scheme     *runtime.Scheme
	Translator *translate.IngressTranslator
	Applier    converge.Applier
	Metrics    metrics.Collector

	// WatchClients adds a watch on Client objects so a newly created
	// endpoint picks up existing Ingresses. Disabled in agent mode, where
	// the CRD may not be installed.
	WatchClients bool
}

func (r *IngressReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	start := time.Now()

	class, err := r.reconcile(ctx, req)

	if r.Metrics != nil {
		r.Metrics.RecordReconcile(ctx, ingressController, reconcileOutcome(err), time.Since(start))
	}

	return scheduleResult(ctx, r.Metrics, ingressController, class, err)
}

//nolint:noinlineerr // controller reconcile logic
func (r *IngressReconciler) reconcile(ctx context.Context, req ctrl.Request) (requeue, error) {
	logger := log.FromContext(ctx)

	var ing networkingv1.Ingress

	if err := r.Get(ctx, req.NamespacedName, &ing); err != nil {
		if apierrors.IsNotFound(err) {
			return requeueNone, nil
		}

		return requeueNone, errors.Wrap(err, "failed to get ingress")
	}

	identity := translate.IngressIdentity(ing.Namespace, ing.Name)

	if !isFRPIngress(&ing) {
		return r.releaseIneligible(ctx, &ing, ingressFinalizer, identity)
	}

	if !ing.DeletionTimestamp.IsZero() {
		return r.handleDeletion(ctx, &ing, identity)
	}

	if !controllerutil.ContainsFinalizer(&ing, ingressFinalizer) {
		controllerutil.AddFinalizer(&ing, ingressFinalizer)

		if err := r.Update(ctx, &ing); err != nil {
			return requeueNone, errors.Wrap(err, "failed to add finalizer")
		}
	}

	logger.Info("reconciling ingress", "name", ing.Name, "namespace", ing.Namespace)

	frag, secrets, err := r.Translator.Translate(ctx, &ing)
	if err != nil {
		return requeueNone, errors.Wrap(err, "failed to translate ingress")
	}

	if err := r.Applier.Apply(ctx, frag, secrets); err != nil {
		return requeueNone, errors.Wrap(err, "failed to apply ingress fragment")
	}

	if err := r.updateStatus(ctx, &ing, hasHTTPSProxy(frag)); err != nil {
		return requeueNone, err
	}

	return requeueSteady, nil
}

// releaseIneligible cleans up after an Ingress whose class moved away from
// ours. Objects that never carried the finalizer get a pure no-op.
//
//nolint:funcorder // lifecycle helper
func (r *IngressReconciler) releaseIneligible(
	ctx context.Context,
	ing *networkingv1.Ingress,
	finalizer, identity string,
) (requeue, error) {
	if !controllerutil.ContainsFinalizer(ing, finalizer) {
		return requeueIdle, nil
	}

	log.FromContext(ctx).Info("ingress class changed away, releasing",
		"name", ing.Name, "namespace", ing.Namespace)

	cleanupErr := r.Applier.Cleanup(ctx, identity)
	if cleanupErr != nil {
		return requeueNone, errors.Wrap(cleanupErr, "failed to clean up released ingress")
	}

	controllerutil.RemoveFinalizer(ing, finalizer)

	updateErr := r.Update(ctx, ing)
	if updateErr != nil {
		return requeueNone, errors.Wrap(updateErr, "failed to remove finalizer")
	}

	return requeueIdle, nil
}

//nolint:funcorder // deletion handler
func (r *IngressReconciler) handleDeletion(
	ctx context.Context,
	ing *networkingv1.Ingress,
	identity string,
) (requeue, error) {
	if !controllerutil.ContainsFinalizer(ing, ingressFinalizer) {
		return requeueNone, nil
	}

	log.FromContext(ctx).Info("cleaning up deleted ingress",
		"name", ing.Name, "namespace", ing.Namespace)

	cleanupErr := r.Applier.Cleanup(ctx, identity)
	if cleanupErr != nil {
		return requeueNone, errors.Wrap(cleanupErr, "failed to clean up ingress fragment")
	}

	controllerutil.RemoveFinalizer(ing, ingressFinalizer)

	updateErr := r.Update(ctx, ing)
	if updateErr != nil {
		return requeueNone, errors.Wrap(updateErr, "failed to remove finalizer")
	}

	return requeueNone, nil
}

// updateStatus publishes the tunnel server address as the load balancer
// ingress point, with port 443 listed only when some proxy terminates TLS.
//
//nolint:funcorder,noinlineerr // status update logic
func (r *IngressReconciler) updateStatus(ctx context.Context, ing *networkingv1.Ingress, https bool) error {
	serverAddr, err := r.Applier.ServerAddr(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to resolve server address for status")
	}

	ports := []networkingv1.IngressPortStatus{
		{Port: 80, Protocol: corev1.ProtocolTCP},
	}
	if https {
		ports = append(ports, networkingv1.IngressPortStatus{Port: 443, Protocol: corev1.ProtocolTCP})
	}

	desired := []networkingv1.IngressLoadBalancerIngress{
		{IP: serverAddr, Ports: ports},
	}

	key := types.NamespacedName{Name: ing.Name, Namespace: ing.Namespace}

	retryErr := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		var fresh networkingv1.Ingress
		if err := r.Get(ctx, key, &fresh); err != nil {
			return errors.Wrap(err, "failed to get fresh ingress")
		}

		if apiequality.Semantic.DeepEqual(fresh.Status.LoadBalancer.Ingress, desired) {
			return nil
		}

		fresh.Status.LoadBalancer.Ingress = desired

		if err := r.Status().Update(ctx, &fresh); err != nil {
			return errors.Wrap(err, "failed to update ingress status")
		}

		return nil
	})

	return errors.Wrap(retryErr, "failed to update ingress status after retries")
}

func (r *IngressReconciler) SetupWithManager(mgr ctrl.Manager) error {
	// Annotation changes matter here: the legacy class annotation toggles
	// eligibility without bumping the generation.
	ingressPredicate := predicate.Or(
		predicate.GenerationChangedPredicate{},
		predicate.AnnotationChangedPredicate{},
	)

	controllerBuilder := ctrl.NewControllerManagedBy(mgr).
		For(&networkingv1.Ingress{}, builder.WithPredicates(ingressPredicate)).
		// Watch Secrets so TLS material appearing or rotating re-runs the
		// https upgrade for referencing Ingresses.
		Watches(
			&corev1.Secret{},
			handler.EnqueueRequestsFromMapFunc(r.secretToIngresses),
		)

	if r.WatchClients {
		controllerBuilder = controllerBuilder.Watches(
			&frpv1.Client{},
			handler.EnqueueRequestsFromMapFunc(r.clientToIngresses),
		)
	}

	//nolint:wrapcheck // controller-runtime builder pattern
	return controllerBuilder.Complete(r)
}

// isFRPIngress reports eligibility: the modern ingressClassName field or the
// legacy class annotation naming "frp".
func isFRPIngress(ing *networkingv1.Ingress) bool {
	if ing.Spec.IngressClassName != nil && *ing.Spec.IngressClassName == FRPClassName {
		return true
	}

	return ing.Annotations[ingressClassAnnotation] == FRPClassName
}

func hasHTTPSProxy(frag *frpcfg.ProxyConfig) bool {
	for i := range frag.Proxies {
		if frag.Proxies[i].Type == frpcfg.ProxyTypeHTTPS {
			return true
		}
	}

	return false
}
