package v1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// AuthTokenEnvVar is the environment variable the frpc container reads the
// auth token from. The rendered configuration references it via frpc's
// template syntax so the token never appears in the ConfigMap.
const AuthTokenEnvVar = "FRP_AUTH_TOKEN"

// Condition types reported in ClientStatus.
const (
	// ConditionReady indicates the frpc Deployment and root configuration
	// are in place.
	ConditionReady = "Ready"

	// ConditionConfigRendered indicates the root configuration was rendered
	// and validated successfully.
	ConditionConfigRendered = "ConfigRendered"
)

// ClientAuth configures token authentication against the frps server.
type ClientAuth struct {
	// Secret is the name of a Secret in the Client's namespace containing
	// an "FRP_AUTH_TOKEN" key. It is injected into the frpc container via
	// envFrom, and the rendered configuration references it by template.
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:MinLength=1
	Secret string `json:"secret"`
}

// ClientWebserver configures the frpc admin webserver. Enabling it allows
// hot reloads of the proxy configuration without restarting frpc.
type ClientWebserver struct {
	// Addr is the address the admin webserver binds to.
	// +optional
	// +kubebuilder:default="127.0.0.1"
	Addr string `json:"addr,omitempty"`

	// Port is the admin webserver port.
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:validation:Maximum=65535
	Port int32 `json:"port"`
}

// ClientSpec defines the desired state of Client.
type ClientSpec struct {
	// ServerAddr is the address of the frps server to connect to.
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:MinLength=1
	ServerAddr string `json:"serverAddr"`

	// ServerPort is the port of the frps server.
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:validation:Maximum=65535
	ServerPort int32 `json:"serverPort"`

	// Auth configures token authentication. When unset, frpc connects
	// unauthenticated.
	// +optional
	Auth *ClientAuth `json:"auth,omitempty"`

	// Webserver configures the frpc admin webserver.
	// +optional
	Webserver *ClientWebserver `json:"webserver,omitempty"`

	// Image is the frpc container image. The tag must be a semantic version
	// of at least 0.52.0, the first release with native TOML configuration.
	// +optional
	// +kubebuilder:default="docker.io/snowdreamtech/frpc:0.61.1"
	Image string `json:"image,omitempty"`

	// Replicas is the number of frpc pods to run. Proxies carry load
	// balancer groups, so multiple replicas share traffic on the server side.
	// +optional
	// +kubebuilder:default=1
	// +kubebuilder:validation:Minimum=1
	Replicas *int32 `json:"replicas,omitempty"`

	// TransportProtocol selects the transport between frpc and frps.
	// +optional
	// +kubebuilder:validation:Enum=tcp;kcp;quic;websocket;wss;""
	TransportProtocol string `json:"transportProtocol,omitempty"`
}

// ClientStatus defines the observed state of Client.
type ClientStatus struct {
	// Conditions describe the current state of the Client.
	// +optional
	// +listType=map
	// +listMapKey=type
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:printcolumn:name="Server",type=string,JSONPath=`.spec.serverAddr`
// +kubebuilder:printcolumn:name="Port",type=integer,JSONPath=`.spec.serverPort`
// +kubebuilder:printcolumn:name="Ready",type=string,JSONPath=`.status.conditions[?(@.type=="Ready")].status`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// Client is the Schema for the clients API. It describes one frpc endpoint:
// the frps server to connect to, authentication, and the shared frpc
// Deployment the operator renders for it.
type Client struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ClientSpec   `json:"spec,omitempty"`
	Status ClientStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// ClientList contains a list of Client.
type ClientList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Client `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Client{}, &ClientList{})
}

// GetImage returns the frpc container image, defaulting to the pinned
// snowdreamtech build.
func (c *ClientSpec) GetImage() string {
	if c.Image == "" {
		return "docker.io/snowdreamtech/frpc:0.61.1"
	}
	return c.Image
}

// GetReplicas returns the replica count, defaulting to 1.
func (c *ClientSpec) GetReplicas() int32 {
	if c.Replicas == nil {
		return 1
	}
	return *c.Replicas
}

// GetAuthSecretName returns the auth Secret name, or empty when
// authentication is not configured.
func (c *ClientSpec) GetAuthSecretName() string {
	if c.Auth == nil {
		return ""
	}
	return c.Auth.Secret
}

// GetAddr returns the admin webserver bind address, defaulting to loopback.
func (w *ClientWebserver) GetAddr() string {
	if w.Addr == "" {
		return "127.0.0.1"
	}
	return w.Addr
}
