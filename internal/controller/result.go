package controller

import (
	"context"
	"time"

	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/frp-operator/frp-operator/internal/metrics"
)

// Controller names used in logs and metric labels.
const (
	clientController  = "client"
	ingressController = "ingress"
	serviceController = "service"
)

const (
	// steadyResyncDelay re-checks eligible objects even without events.
	// Convergence is level-based, so a periodic full recompute is cheap
	// and catches drift in the shared Deployment.
	steadyResyncDelay = 60 * time.Second

	// idleResyncDelay parks ineligible objects until their class changes.
	idleResyncDelay = 3600 * time.Second

	// errorRetryDelay is the uniform retry after any failure.
	errorRetryDelay = 15 * time.Second

	// maxConditionMessageLength is the maximum length for condition messages.
	maxConditionMessageLength = 256
)

// requeue names the scheduling class of a finished reconcile.
type requeue int

const (
	// requeueNone stops until the next event (object is gone).
	requeueNone requeue = iota

	// requeueSteady is the level-based re-sync for eligible objects.
	requeueSteady

	// requeueIdle is the long re-check for ineligible objects.
	requeueIdle
)

// scheduleResult is the single requeue policy shared by all reconcilers.
// Errors are logged, classified for metrics and then absorbed: retries run
// on a fixed delay instead of controller-runtime's exponential backoff.
func scheduleResult(
	ctx context.Context,
	collector metrics.Collector,
	controller string,
	class requeue,
	err error,
) (ctrl.Result, error) {
	if err != nil {
		if collector != nil {
			collector.RecordReconcileError(ctx, controller, metrics.ClassifyError(err))
		}

		log.FromContext(ctx).Error(err, "reconcile failed, retrying",
			"controller", controller,
			"retryAfter", errorRetryDelay,
		)

		return ctrl.Result{RequeueAfter: errorRetryDelay}, nil
	}

	switch class {
	case requeueSteady:
		return ctrl.Result{RequeueAfter: steadyResyncDelay}, nil
	case requeueIdle:
		return ctrl.Result{RequeueAfter: idleResyncDelay}, nil
	default:
		return ctrl.Result{}, nil
	}
}

func reconcileOutcome(err error) string {
	if err != nil {
		return "error"
	}

	return "success"
}

func truncateMessage(msg string) string {
	if len(msg) > maxConditionMessageLength {
		return msg[:maxConditionMessageLength-3] + "..."
	}

	return msg
}
