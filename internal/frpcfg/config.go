package frpcfg

// ProxyType is the frpc proxy protocol type.
type ProxyType string

// Proxy types understood by frpc. HTTP and HTTPS proxies route by domain,
// TCP and UDP proxies bind a remote port on the server.
const (
	ProxyTypeHTTP  ProxyType = "http"
	ProxyTypeHTTPS ProxyType = "https"
	ProxyTypeTCP   ProxyType = "tcp"
	ProxyTypeUDP   ProxyType = "udp"
)

// PluginHTTPS2HTTP is the frpc plugin that terminates TLS and forwards
// plain HTTP to the backend.
const PluginHTTPS2HTTP = "https2http"

// AuthConfig configures authentication against the frps server.
type AuthConfig struct {
	Method string `toml:"method"`
	Token  string `toml:"token"`
}

// WebserverConfig configures the frpc admin webserver used for hot reloads.
type WebserverConfig struct {
	Addr string `toml:"addr"`
	Port int32  `toml:"port"`
}

// ClientTransport selects the transport protocol between frpc and frps.
type ClientTransport struct {
	Protocol string `toml:"protocol"`
}

// LoadBalancer groups proxies so frps spreads connections across members.
type LoadBalancer struct {
	Group    string `toml:"group"`
	GroupKey string `toml:"groupKey"`
}

// ProxyTransport carries per-proxy transport options.
type ProxyTransport struct {
	ProxyProtocolVersion string `toml:"proxyProtocolVersion,omitempty"`
}

// Plugin configures TLS termination for an https proxy. LocalAddr is the
// backend the decrypted traffic is forwarded to. SecretName records which
// Kubernetes Secret provided the certificate; it is bookkeeping for volume
// wiring and never serialized.
type Plugin struct {
	Type              string `toml:"type"`
	LocalAddr         string `toml:"localAddr"`
	CrtPath           string `toml:"crtPath"`
	KeyPath           string `toml:"keyPath"`
	HostHeaderRewrite string `toml:"hostHeaderRewrite,omitempty"`

	SecretName string `toml:"-"`
}

// Proxy is one frpc proxy entry. A proxy either addresses its backend
// directly via LocalIP/LocalPort or delegates to a Plugin, never both.
type Proxy struct {
	Name          string          `toml:"name"`
	Type          ProxyType       `toml:"type"`
	LocalIP       string          `toml:"localIp,omitempty"`
	LocalPort     int32           `toml:"localPort,omitempty"`
	RemotePort    int32           `toml:"remotePort,omitempty"`
	CustomDomains []string        `toml:"customDomains,omitempty"`
	Locations     []string        `toml:"locations,omitempty"`
	Plugin        *Plugin         `toml:"plugin,omitempty"`
	LoadBalancer  *LoadBalancer   `toml:"loadBalancer,omitempty"`
	Transport     *ProxyTransport `toml:"transport,omitempty"`
}

// ClientConfig is the root frpc configuration. Scalar keys precede table
// fields so the document stays valid TOML in struct order.
type ClientConfig struct {
	ServerAddr string           `toml:"serverAddr"`
	ServerPort int32            `toml:"serverPort"`
	Includes   []string         `toml:"includes,omitempty"`
	Auth       *AuthConfig      `toml:"auth,omitempty"`
	Webserver  *WebserverConfig `toml:"webServer,omitempty"`
	Transport  *ClientTransport `toml:"transport,omitempty"`
	Proxies    []Proxy          `toml:"proxies,omitempty"`
}

// ProxyConfig is one include fragment: the proxies derived from a single
// workload object. Name identifies the fragment for file and ConfigMap
// naming and is not serialized.
type ProxyConfig struct {
	Name    string  `toml:"-"`
	Proxies []Proxy `toml:"proxies"`
}
