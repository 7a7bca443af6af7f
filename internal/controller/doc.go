// Package controller implements the reconcilers that converge watched
// Kubernetes objects into frpc configuration.
//
// Three reconcilers share one finalizer-gated lifecycle and one requeue
// policy (scheduleResult):
//
//   - ClientReconciler renders the root frpc configuration for a Client
//     resource and converges the shared frpc Deployment in its namespace.
//   - IngressReconciler translates Ingresses of class "frp" into http/https
//     proxy fragments.
//   - ServiceReconciler translates LoadBalancer Services with
//     loadBalancerClass "frp" into tcp proxy-group fragments.
//
// Convergence is level-based: every reconcile recomputes the whole desired
// fragment from the live object and hands it to a converge.Applier. The
// applier implementation decides where artifacts land; RunOperator wires the
// in-cluster one, RunAgent the local-filesystem one next to a supervised
// frpc process.
package controller
