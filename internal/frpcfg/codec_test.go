package frpcfg_test

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/frp-operator/frp-operator/internal/frpcfg"
)

func TestClientConfigEncode_Roundtrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  frpcfg.ClientConfig
	}{
		{
			name: "minimal",
			cfg: frpcfg.ClientConfig{
				ServerAddr: "frps.example.com",
				ServerPort: 7000,
			},
		},
		{
			name: "full",
			cfg: frpcfg.ClientConfig{
				ServerAddr: "frps.example.com",
				ServerPort: 7000,
				Includes:   []string{"/etc/frp/proxy-*.toml"},
				Auth: &frpcfg.AuthConfig{
					Method: "token",
					Token:  "{{ .Envs.FRP_AUTH_TOKEN }}",
				},
				Webserver: &frpcfg.WebserverConfig{
					Addr: "127.0.0.1",
					Port: 7400,
				},
				Transport: &frpcfg.ClientTransport{
					Protocol: "quic",
				},
			},
		},
		{
			name: "inline proxies",
			cfg: frpcfg.ClientConfig{
				ServerAddr: "frps.example.com",
				ServerPort: 7000,
				Proxies: []frpcfg.Proxy{
					{
						Name:          "web",
						Type:          frpcfg.ProxyTypeHTTP,
						LocalIP:       "10.0.0.1",
						LocalPort:     8080,
						CustomDomains: []string{"app.example.com"},
						Locations:     []string{"/"},
					},
				},
			},
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			data, err := testCase.cfg.Encode()
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			decoded, err := frpcfg.DecodeClientConfig(data)
			if err != nil {
				t.Fatalf("DecodeClientConfig() error = %v", err)
			}

			if !reflect.DeepEqual(*decoded, testCase.cfg) {
				t.Errorf("roundtrip mismatch:\n got %+v\nwant %+v", *decoded, testCase.cfg)
			}
		})
	}
}

func TestClientConfigEncode_Deterministic(t *testing.T) {
	t.Parallel()

	cfg := frpcfg.ClientConfig{
		ServerAddr: "frps.example.com",
		ServerPort: 7000,
		Includes:   []string{"/etc/frp/proxy-*.toml"},
		Auth: &frpcfg.AuthConfig{
			Method: "token",
			Token:  "{{ .Envs.FRP_AUTH_TOKEN }}",
		},
	}

	first, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	second, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Errorf("Encode() is not deterministic:\nfirst:  %s\nsecond: %s", first, second)
	}
}

func TestClientConfigEncode_OmitsEmpty(t *testing.T) {
	t.Parallel()

	cfg := frpcfg.ClientConfig{
		ServerAddr: "frps.example.com",
		ServerPort: 7000,
	}

	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	doc := string(data)

	for _, key := range []string{"auth", "webServer", "proxies", "includes", "transport"} {
		if strings.Contains(doc, key) {
			t.Errorf("Encode() output contains %q for unset field:\n%s", key, doc)
		}
	}
}

func TestClientConfigEncode_CamelCaseKeys(t *testing.T) {
	t.Parallel()

	cfg := frpcfg.ClientConfig{
		ServerAddr: "frps.example.com",
		ServerPort: 7000,
		Webserver: &frpcfg.WebserverConfig{
			Addr: "127.0.0.1",
			Port: 7400,
		},
	}

	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	doc := string(data)

	for _, key := range []string{"serverAddr", "serverPort", "[webServer]"} {
		if !strings.Contains(doc, key) {
			t.Errorf("Encode() output missing %q:\n%s", key, doc)
		}
	}
}

func TestProxyConfigEncode_Roundtrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  frpcfg.ProxyConfig
	}{
		{
			name: "http proxy",
			cfg: frpcfg.ProxyConfig{
				Proxies: []frpcfg.Proxy{
					{
						Name:          "app-r0-p0",
						Type:          frpcfg.ProxyTypeHTTP,
						LocalIP:       "web.default.svc.cluster.local",
						LocalPort:     8080,
						CustomDomains: []string{"app.example.com"},
						Locations:     []string{"/"},
					},
				},
			},
		},
		{
			name: "https proxy with plugin",
			cfg: frpcfg.ProxyConfig{
				Proxies: []frpcfg.Proxy{
					{
						Name:          "app-r0-p0",
						Type:          frpcfg.ProxyTypeHTTPS,
						CustomDomains: []string{"app.example.com"},
						Plugin: &frpcfg.Plugin{
							Type:              frpcfg.PluginHTTPS2HTTP,
							LocalAddr:         "web.default.svc.cluster.local:8080",
							CrtPath:           "/etc/frp/certs/tls-a/tls.crt",
							KeyPath:           "/etc/frp/certs/tls-a/tls.key",
							HostHeaderRewrite: "app.example.com",
						},
					},
				},
			},
		},
		{
			name: "tcp proxy with load balancer",
			cfg: frpcfg.ProxyConfig{
				Proxies: []frpcfg.Proxy{
					{
						Name:       "db-5432-0",
						Type:       frpcfg.ProxyTypeTCP,
						LocalIP:    "10.1.2.3",
						LocalPort:  5432,
						RemotePort: 5432,
						LoadBalancer: &frpcfg.LoadBalancer{
							Group:    "db-5432",
							GroupKey: "db-5432",
						},
						Transport: &frpcfg.ProxyTransport{
							ProxyProtocolVersion: "v2",
						},
					},
				},
			},
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			data, err := testCase.cfg.Encode()
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			decoded, err := frpcfg.DecodeProxyConfig(testCase.cfg.Name, data)
			if err != nil {
				t.Fatalf("DecodeProxyConfig() error = %v", err)
			}

			if !reflect.DeepEqual(*decoded, testCase.cfg) {
				t.Errorf("roundtrip mismatch:\n got %+v\nwant %+v", *decoded, testCase.cfg)
			}
		})
	}
}

func TestProxyConfigEncode_NameNotSerialized(t *testing.T) {
	t.Parallel()

	cfg := frpcfg.ProxyConfig{
		Name: "config-proxy-ingress-default-app",
		Proxies: []frpcfg.Proxy{
			{
				Name:          "app-r0-p0",
				Type:          frpcfg.ProxyTypeHTTP,
				LocalIP:       "web.default.svc.cluster.local",
				LocalPort:     8080,
				CustomDomains: []string{"app.example.com"},
			},
		},
	}

	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	if strings.Contains(string(data), cfg.Name) {
		t.Errorf("Encode() leaked fragment name into output:\n%s", data)
	}
}

func TestProxyConfigEncode_SecretNameNotSerialized(t *testing.T) {
	t.Parallel()

	cfg := frpcfg.ProxyConfig{
		Proxies: []frpcfg.Proxy{
			{
				Name:          "app-r0-p0",
				Type:          frpcfg.ProxyTypeHTTPS,
				CustomDomains: []string{"app.example.com"},
				Plugin: &frpcfg.Plugin{
					Type:       frpcfg.PluginHTTPS2HTTP,
					LocalAddr:  "web.default.svc.cluster.local:8080",
					CrtPath:    "/etc/frp/certs/tls-a/tls.crt",
					KeyPath:    "/etc/frp/certs/tls-a/tls.key",
					SecretName: "tls-a-secret-name-marker",
				},
			},
		},
	}

	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	if strings.Contains(string(data), "tls-a-secret-name-marker") {
		t.Errorf("Encode() leaked plugin secret name into output:\n%s", data)
	}
}

func TestProxyEncode_PluginOmitsBackendFields(t *testing.T) {
	t.Parallel()

	cfg := frpcfg.ProxyConfig{
		Proxies: []frpcfg.Proxy{
			{
				Name:          "app-r0-p0",
				Type:          frpcfg.ProxyTypeHTTPS,
				CustomDomains: []string{"app.example.com"},
				Plugin: &frpcfg.Plugin{
					Type:      frpcfg.PluginHTTPS2HTTP,
					LocalAddr: "web.default.svc.cluster.local:8080",
					CrtPath:   "/etc/frp/certs/tls-a/tls.crt",
					KeyPath:   "/etc/frp/certs/tls-a/tls.key",
				},
			},
		},
	}

	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	doc := string(data)

	for _, key := range []string{"localIp", "localPort", "locations"} {
		if strings.Contains(doc, key) {
			t.Errorf("Encode() output contains %q for plugin proxy:\n%s", key, doc)
		}
	}
}

func TestDecodeClientConfig_Invalid(t *testing.T) {
	t.Parallel()

	if _, err := frpcfg.DecodeClientConfig([]byte("serverAddr = [broken")); err == nil {
		t.Error("DecodeClientConfig() expected error for invalid document")
	}
}

func TestDecodeProxyConfig_SetsName(t *testing.T) {
	t.Parallel()

	decoded, err := frpcfg.DecodeProxyConfig("config-proxy-service-default-db", []byte(""))
	if err != nil {
		t.Fatalf("DecodeProxyConfig() error = %v", err)
	}

	if decoded.Name != "config-proxy-service-default-db" {
		t.Errorf("DecodeProxyConfig() Name = %q, want %q", decoded.Name, "config-proxy-service-default-db")
	}
}
