// Package converge applies translated proxy fragments to the running tunnel
// client. An Applier takes a fragment and its TLS Secrets and makes the frpc
// side match: the fragment becomes a config artifact (ConfigMap or file) and
// the certificates are wired in so frpc can load them.
//
// Convergence is level-based and identity-keyed. The ClusterApplier mutates
// the shared frpc Deployment's volume and mount lists by entry name, never by
// position: concurrent reconciles for different workload objects race on the
// same Deployment, so every mutation re-reads the object and retries on
// conflict, and entries the operator does not own are never touched. Cleanup
// of one object restores the lists to exactly what they were before its
// Apply, regardless of what other objects did in between.
//
// The AgentApplier converges a local config directory instead and asks the
// supervised frpc process to hot-reload.
package converge
