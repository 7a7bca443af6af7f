// Package translate converts watched Kubernetes objects into frpc proxy
// fragments.
//
// # Overview
//
// Each eligible workload object maps to exactly one fragment:
//
//	Ingress  -> one http/https proxy per (rule, path) pair
//	Service  -> one tcp proxy per (port, endpoint) pair, grouped for
//	            server-side load balancing
//
// Translation is pure with respect to the cluster: translators read
// Services, Pods and Secrets through an injected client.Reader and never
// write. The same live object always yields a byte-identical fragment, so
// appliers can compare rendered output to decide whether anything changed.
//
// # Naming
//
// Fragment identities embed kind, namespace and name:
//
//	config-proxy-<kind>-<namespace>-<name>
//
// which keeps artifacts from distinct objects from colliding. Proxy names
// are prefixed with the identity for the same reason: frps rejects duplicate
// proxy names across all connected clients. Derived names that must fit a
// DNS-1123 label are truncated and suffixed with a short content hash.
//
// # Service strategies
//
// Two ServiceTranslator implementations exist and each deployment mode uses
// exactly one. The operator translates per pod endpoint so frps spreads TCP
// connections across replicas; the agent translates to the Service's cluster
// DNS name because an external host cannot reach pod IPs.
package translate
