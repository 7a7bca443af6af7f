package v1

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const testModifiedValue = "modified"

func TestGetImage_Default(t *testing.T) {
	t.Parallel()

	spec := &ClientSpec{
		Image: "",
	}

	assert.Equal(t, "docker.io/snowdreamtech/frpc:0.61.1", spec.GetImage())
}

func TestGetImage_Custom(t *testing.T) {
	t.Parallel()

	spec := &ClientSpec{
		Image: "registry.example.com/frpc:0.58.0",
	}

	assert.Equal(t, "registry.example.com/frpc:0.58.0", spec.GetImage())
}

func TestGetReplicas_Default(t *testing.T) {
	t.Parallel()

	spec := &ClientSpec{
		Replicas: nil,
	}

	assert.Equal(t, int32(1), spec.GetReplicas())
}

func TestGetReplicas_Custom(t *testing.T) {
	t.Parallel()

	replicas := int32(3)
	spec := &ClientSpec{
		Replicas: &replicas,
	}

	assert.Equal(t, int32(3), spec.GetReplicas())
}

func TestGetAuthSecretName_Unset(t *testing.T) {
	t.Parallel()

	spec := &ClientSpec{
		Auth: nil,
	}

	assert.Empty(t, spec.GetAuthSecretName())
}

func TestGetAuthSecretName_Set(t *testing.T) {
	t.Parallel()

	spec := &ClientSpec{
		Auth: &ClientAuth{
			Secret: "frps-token",
		},
	}

	assert.Equal(t, "frps-token", spec.GetAuthSecretName())
}

func TestWebserverGetAddr_Default(t *testing.T) {
	t.Parallel()

	ws := &ClientWebserver{
		Addr: "",
		Port: 7400,
	}

	assert.Equal(t, "127.0.0.1", ws.GetAddr())
}

func TestWebserverGetAddr_Custom(t *testing.T) {
	t.Parallel()

	ws := &ClientWebserver{
		Addr: "0.0.0.0",
		Port: 7400,
	}

	assert.Equal(t, "0.0.0.0", ws.GetAddr())
}

func TestClientSpec_FieldsPresent(t *testing.T) {
	t.Parallel()

	replicas := int32(2)
	spec := ClientSpec{
		ServerAddr: "frps.example.com",
		ServerPort: 7000,
		Auth: &ClientAuth{
			Secret: "frps-token",
		},
		Webserver: &ClientWebserver{
			Addr: "127.0.0.1",
			Port: 7400,
		},
		Image:             "docker.io/snowdreamtech/frpc:0.61.1",
		Replicas:          &replicas,
		TransportProtocol: "quic",
	}

	assert.Equal(t, "frps.example.com", spec.ServerAddr)
	assert.Equal(t, int32(7000), spec.ServerPort)
	assert.NotNil(t, spec.Auth)
	assert.Equal(t, "frps-token", spec.Auth.Secret)
	assert.NotNil(t, spec.Webserver)
	assert.Equal(t, int32(7400), spec.Webserver.Port)
	assert.Equal(t, "quic", spec.TransportProtocol)
}

func TestClient_TypeMeta(t *testing.T) {
	t.Parallel()

	client := Client{}
	client.Kind = "Client"
	client.APIVersion = "frp-operator.io/v1"

	assert.Equal(t, "Client", client.Kind)
	assert.Equal(t, "frp-operator.io/v1", client.APIVersion)
}

func TestClientList_Items(t *testing.T) {
	t.Parallel()

	list := ClientList{
		Items: []Client{
			{Spec: ClientSpec{ServerAddr: "frps-1.example.com"}},
			{Spec: ClientSpec{ServerAddr: "frps-2.example.com"}},
		},
	}

	assert.Len(t, list.Items, 2)
	assert.Equal(t, "frps-1.example.com", list.Items[0].Spec.ServerAddr)
	assert.Equal(t, "frps-2.example.com", list.Items[1].Spec.ServerAddr)
}

func TestClientStatus_Conditions(t *testing.T) {
	t.Parallel()

	status := ClientStatus{}
	assert.Empty(t, status.Conditions)
}

func TestClientSpec_DeepCopy(t *testing.T) {
	t.Parallel()

	replicas := int32(2)
	tests := []struct {
		name string
		in   *ClientSpec
	}{
		{
			name: "nil input",
			in:   nil,
		},
		{
			name: "empty struct",
			in:   &ClientSpec{},
		},
		{
			name: "full struct",
			in: &ClientSpec{
				ServerAddr: "frps.example.com",
				ServerPort: 7000,
				Auth: &ClientAuth{
					Secret: "frps-token",
				},
				Webserver: &ClientWebserver{
					Port: 7400,
				},
				Replicas: &replicas,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out := tt.in.DeepCopy()

			if tt.in == nil {
				assert.Nil(t, out)
				return
			}

			require.NotNil(t, out)
			assert.Equal(t, tt.in.ServerAddr, out.ServerAddr)
			assert.Equal(t, tt.in.ServerPort, out.ServerPort)

			if tt.in.Auth != nil {
				require.NotNil(t, out.Auth)
				assert.Equal(t, tt.in.Auth.Secret, out.Auth.Secret)

				out.Auth.Secret = testModifiedValue
				assert.NotEqual(t, tt.in.Auth.Secret, out.Auth.Secret)
			}

			if tt.in.Replicas != nil {
				require.NotNil(t, out.Replicas)
				assert.Equal(t, *tt.in.Replicas, *out.Replicas)

				newVal := int32(9)
				out.Replicas = &newVal
				assert.NotEqual(t, *tt.in.Replicas, *out.Replicas)
			}
		})
	}
}

func TestClientStatus_DeepCopy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   *ClientStatus
	}{
		{
			name: "nil input",
			in:   nil,
		},
		{
			name: "empty struct",
			in:   &ClientStatus{},
		},
		{
			name: "with conditions",
			in: &ClientStatus{
				Conditions: []metav1.Condition{
					{
						Type:    ConditionReady,
						Status:  metav1.ConditionTrue,
						Reason:  "Converged",
						Message: "Deployment and root config in place",
					},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out := tt.in.DeepCopy()

			if tt.in == nil {
				assert.Nil(t, out)
				return
			}

			require.NotNil(t, out)
			assert.Len(t, out.Conditions, len(tt.in.Conditions))

			if len(tt.in.Conditions) > 0 {
				assert.Equal(t, tt.in.Conditions[0].Type, out.Conditions[0].Type)

				out.Conditions[0].Type = testModifiedValue
				assert.NotEqual(t, tt.in.Conditions[0].Type, out.Conditions[0].Type)
			}
		})
	}
}

func TestClient_DeepCopyObject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   *Client
	}{
		{
			name: "nil input",
			in:   nil,
		},
		{
			name: "valid struct",
			in: &Client{
				ObjectMeta: metav1.ObjectMeta{
					Name:      "edge",
					Namespace: "frp-system",
				},
				Spec: ClientSpec{
					ServerAddr: "frps.example.com",
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if tt.in == nil {
				var nilClient *Client
				obj := nilClient.DeepCopyObject()
				assert.Nil(t, obj)
				return
			}

			obj := tt.in.DeepCopyObject()
			require.NotNil(t, obj)

			cl, ok := obj.(*Client)
			require.True(t, ok)
			assert.Equal(t, tt.in.Name, cl.Name)
			assert.Equal(t, tt.in.Spec.ServerAddr, cl.Spec.ServerAddr)
		})
	}
}

func TestClientList_DeepCopyObject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   *ClientList
	}{
		{
			name: "nil input",
			in:   nil,
		},
		{
			name: "valid list",
			in: &ClientList{
				Items: []Client{
					{ObjectMeta: metav1.ObjectMeta{Name: "edge"}},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if tt.in == nil {
				var nilList *ClientList
				obj := nilList.DeepCopyObject()
				assert.Nil(t, obj)
				return
			}

			obj := tt.in.DeepCopyObject()
			require.NotNil(t, obj)

			list, ok := obj.(*ClientList)
			require.True(t, ok)
			assert.Len(t, list.Items, len(tt.in.Items))
		})
	}
}
