package controller

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	corev1 "k8s.io/api/core/v1"
	apiequality "k8s.io/apimachinery/pkg/api/equality"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/util/retry"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/event"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/predicate"

	frpv1 "github.com/frp-operator/frp-operator/api/v1"
	"github.com/frp-operator/frp-operator/internal/converge"
	"github.com/frp-operator/frp-operator/internal/metrics"
	"github.com/frp-operator/frp-operator/internal/translate"
)

// serviceFinalizer guards fragment cleanup when a Service goes away.
const serviceFinalizer = "frp-operator.io/service-finalizer"

// ServiceReconciler translates LoadBalancer Services with loadBalancerClass
// "frp" into tcp proxy-group fragments and converges them onto the tunnel
// client. Same finalizer-gated lifecycle as the Ingress controller.
type ServiceReconciler struct {
	client.Client

	Scheme     *runtime.Scheme
	Translator translate.ServiceTranslator
	Applier    converge.Applier
	Metrics    metrics.Collector

	// WatchClients adds a watch on Client objects. Disabled in agent mode.
	WatchClients bool
}

func (r *ServiceReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	start := time.Now()

	class, err := r.reconcile(ctx, req)

	if r.Metrics != nil {
		r.Metrics.RecordReconcile(ctx, serviceController, reconcileOutcome(err), time.Since(start))
	}

	return scheduleResult(ctx, r.Metrics, serviceController, class, err)
}

//nolint:noinlineerr // controller reconcile logic
func (r *ServiceReconciler) reconcile(ctx context.Context, req ctrl.Request) (requeue, error) {
	logger := log.FromContext(ctx)

	var svc corev1.Service

	if err := r.Get(ctx, req.NamespacedName, &svc); err != nil {
		if apierrors.IsNotFound(err) {
			return requeueNone, nil
		}

		return requeueNone, errors.Wrap(err, "failed to get service")
	}

	identity := translate.ServiceIdentity(svc.Namespace, svc.Name)

	if !isFRPService(&svc) {
		return r.releaseIneligible(ctx, &svc, identity)
	}

	if !svc.DeletionTimestamp.IsZero() {
		return r.handleDeletion(ctx, &svc, identity)
	}

	if !controllerutil.ContainsFinalizer(&svc, serviceFinalizer) {
		controllerutil.AddFinalizer(&svc, serviceFinalizer)

		if err := r.Update(ctx, &svc); err != nil {
			return requeueNone, errors.Wrap(err, "failed to add finalizer")
		}
	}

	logger.Info("reconciling service", "name", svc.Name, "namespace", svc.Namespace)

	frag, err := r.Translator.Translate(ctx, &svc)
	if err != nil {
		return requeueNone, errors.Wrap(err, "failed to translate service")
	}

	if err := r.Applier.Apply(ctx, frag, nil); err != nil {
		return requeueNone, errors.Wrap(err, "failed to apply service fragment")
	}

	if err := r.updateStatus(ctx, &svc); err != nil {
		return requeueNone, err
	}

	return requeueSteady, nil
}

//nolint:funcorder // lifecycle helper
func (r *ServiceReconciler) releaseIneligible(
	ctx context.Context,
	svc *corev1.Service,
	identity string,
) (requeue, error) {
	if !controllerutil.ContainsFinalizer(svc, serviceFinalizer) {
		return requeueIdle, nil
	}

	log.FromContext(ctx).Info("service no longer ours, releasing",
		"name", svc.Name, "namespace", svc.Namespace)

	cleanupErr := r.Applier.Cleanup(ctx, identity)
	if cleanupErr != nil {
		return requeueNone, errors.Wrap(cleanupErr, "failed to clean up released service")
	}

	controllerutil.RemoveFinalizer(svc, serviceFinalizer)

	updateErr := r.Update(ctx, svc)
	if updateErr != nil {
		return requeueNone, errors.Wrap(updateErr, "failed to remove finalizer")
	}

	return requeueIdle, nil
}

//nolint:funcorder // deletion handler
func (r *ServiceReconciler) handleDeletion(
	ctx context.Context,
	svc *corev1.Service,
	identity string,
) (requeue, error) {
	if !controllerutil.ContainsFinalizer(svc, serviceFinalizer) {
		return requeueNone, nil
	}

	log.FromContext(ctx).Info("cleaning up deleted service",
		"name", svc.Name, "namespace", svc.Namespace)

	cleanupErr := r.Applier.Cleanup(ctx, identity)
	if cleanupErr != nil {
		return requeueNone, errors.Wrap(cleanupErr, "failed to clean up service fragment")
	}

	controllerutil.RemoveFinalizer(svc, serviceFinalizer)

	updateErr := r.Update(ctx, svc)
	if updateErr != nil {
		return requeueNone, errors.Wrap(updateErr, "failed to remove finalizer")
	}

	return requeueNone, nil
}

//nolint:funcorder,noinlineerr // status update logic
func (r *ServiceReconciler) updateStatus(ctx context.Context, svc *corev1.Service) error {
	serverAddr, err := r.Applier.ServerAddr(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to resolve server address for status")
	}

	desired := []corev1.LoadBalancerIngress{{IP: serverAddr}}

	key := types.NamespacedName{Name: svc.Name, Namespace: svc.Namespace}

	retryErr := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		var fresh corev1.Service
		if err := r.Get(ctx, key, &fresh); err != nil {
			return errors.Wrap(err, "failed to get fresh service")
		}

		if apiequality.Semantic.DeepEqual(fresh.Status.LoadBalancer.Ingress, desired) {
			return nil
		}

		fresh.Status.LoadBalancer.Ingress = desired

		if err := r.Status().Update(ctx, &fresh); err != nil {
			return errors.Wrap(err, "failed to update service status")
		}

		return nil
	})

	return errors.Wrap(retryErr, "failed to update service status after retries")
}

func (r *ServiceReconciler) SetupWithManager(mgr ctrl.Manager) error {
	controllerBuilder := ctrl.NewControllerManagedBy(mgr).
		For(&corev1.Service{}, builder.WithPredicates(serviceSpecChanged())).
		// Watch Pods so replica churn behind a selected workload regroups
		// the per-pod proxies.
		Watches(
			&corev1.Pod{},
			handler.EnqueueRequestsFromMapFunc(r.podToServices),
		)

	if r.WatchClients {
		controllerBuilder = controllerBuilder.Watches(
			&frpv1.Client{},
			handler.EnqueueRequestsFromMapFunc(r.clientToServices),
		)
	}

	//nolint:wrapcheck // controller-runtime builder pattern
	return controllerBuilder.Complete(r)
}

// serviceSpecChanged passes updates that change the spec or start deletion.
// Core Services never increment metadata.generation, so the generation
// predicate would drop every Service update, including type and
// loadBalancerClass flips.
func serviceSpecChanged() predicate.Funcs {
	return predicate.Funcs{
		UpdateFunc: func(e event.UpdateEvent) bool {
			oldSvc, okOld := e.ObjectOld.(*corev1.Service)
			newSvc, okNew := e.ObjectNew.(*corev1.Service)

			if !okOld || !okNew {
				return false
			}

			if oldSvc.DeletionTimestamp.IsZero() != newSvc.DeletionTimestamp.IsZero() {
				return true
			}

			return !apiequality.Semantic.DeepEqual(oldSvc.Spec, newSvc.Spec)
		},
	}
}

// isFRPService reports eligibility: a LoadBalancer Service that names this
// operator via loadBalancerClass.
func isFRPService(svc *corev1.Service) bool {
	if svc.Spec.Type != corev1.ServiceTypeLoadBalancer {
		return false
	}

	return svc.Spec.LoadBalancerClass != nil && *svc.Spec.LoadBalancerClass == FRPClassName
}
