// Package frpcfg holds the typed frpc configuration model and its TOML codec.
//
// # Layout
//
// frpc reads one root configuration file plus any number of included
// fragments:
//
//	/etc/frp/frpc.toml          root: server endpoint, auth, includes glob
//	/etc/frp/proxy-*.toml       fragments: one proxies array per workload
//
// ClientConfig models the root file, ProxyConfig models one fragment. The
// operator renders both from cluster state and never edits them in place;
// every write replaces the whole document.
//
// # Serialization
//
// Keys are camelCase, matching the TOML dialect frpc accepts since 0.52.0.
// Optional scalars and empty collections are omitted so that rendered
// output stays minimal and deterministic. ProxyConfig.Name and
// Plugin.SecretName are bookkeeping fields and never serialized.
//
// # TLS termination
//
// An https proxy delegates TLS to the https2http plugin. The plugin carries
// the backend address and certificate paths, so the proxy itself must not
// set localIp, localPort, or locations. Validate enforces this exclusivity.
package frpcfg
