package staging_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	frpv1 "github.com/frp-operator/frp-operator/api/v1"
	"github.com/frp-operator/frp-operator/internal/metrics"
	"github.com/frp-operator/frp-operator/internal/staging"
)

// countingCollector records the last staged-secret count it saw.
type countingCollector struct {
	metrics.NoopCollector

	staged int
}

func (c *countingCollector) RecordStagedSecrets(_ context.Context, count int) {
	c.staged = count
}

func newStagingScheme(t *testing.T) *runtime.Scheme {
	t.Helper()

	scheme := runtime.NewScheme()
	require.NoError(t, corev1.AddToScheme(scheme))
	require.NoError(t, frpv1.AddToScheme(scheme))

	return scheme
}

func stagingOwner() *frpv1.Client {
	return &frpv1.Client{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "tunnel",
			Namespace: "frp-system",
			UID:       "owner-uid",
		},
	}
}

func sourceSecret(name, namespace string) *corev1.Secret {
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
		},
		Type: corev1.SecretTypeTLS,
		Data: map[string][]byte{
			"tls.crt": []byte("cert"),
			"tls.key": []byte("key"),
		},
	}
}

func TestClusterStager_Stage(t *testing.T) {
	t.Parallel()

	scheme := newStagingScheme(t)
	owner := stagingOwner()
	fakeClient := fake.NewClientBuilder().WithScheme(scheme).WithObjects(owner).Build()

	stager := &staging.ClusterStager{Client: fakeClient, Scheme: scheme}

	err := stager.Stage(context.Background(), owner, []*corev1.Secret{sourceSecret("tls-a", "default")})
	require.NoError(t, err)

	var staged corev1.Secret
	require.NoError(t, fakeClient.Get(context.Background(),
		types.NamespacedName{Namespace: "frp-system", Name: "tls-a"}, &staged))

	assert.Equal(t, corev1.SecretTypeTLS, staged.Type)
	assert.Equal(t, []byte("cert"), staged.Data["tls.crt"])
	assert.Equal(t, "true", staged.Labels[staging.LabelStaged])
	assert.Equal(t, "default/tls-a", staged.Annotations[staging.AnnotationSource])

	require.Len(t, staged.OwnerReferences, 1)
	assert.Equal(t, "tunnel", staged.OwnerReferences[0].Name)
}

func TestClusterStager_Stage_RecordsCount(t *testing.T) {
	t.Parallel()

	scheme := newStagingScheme(t)
	owner := stagingOwner()
	fakeClient := fake.NewClientBuilder().WithScheme(scheme).WithObjects(owner).Build()

	collector := &countingCollector{}
	stager := &staging.ClusterStager{Client: fakeClient, Scheme: scheme, Metrics: collector}

	err := stager.Stage(context.Background(), owner, []*corev1.Secret{
		sourceSecret("tls-a", "default"),
		sourceSecret("tls-b", "default"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, collector.staged)
}

func TestClusterStager_Stage_Idempotent(t *testing.T) {
	t.Parallel()

	scheme := newStagingScheme(t)
	owner := stagingOwner()
	fakeClient := fake.NewClientBuilder().WithScheme(scheme).WithObjects(owner).Build()

	stager := &staging.ClusterStager{Client: fakeClient, Scheme: scheme}
	source := sourceSecret("tls-a", "default")

	require.NoError(t, stager.Stage(context.Background(), owner, []*corev1.Secret{source}))
	require.NoError(t, stager.Stage(context.Background(), owner, []*corev1.Secret{source}))

	// Changed source data overwrites the copy.
	source.Data["tls.crt"] = []byte("rotated")
	require.NoError(t, stager.Stage(context.Background(), owner, []*corev1.Secret{source}))

	var staged corev1.Secret
	require.NoError(t, fakeClient.Get(context.Background(),
		types.NamespacedName{Namespace: "frp-system", Name: "tls-a"}, &staged))

	assert.Equal(t, []byte("rotated"), staged.Data["tls.crt"])
}

func TestClusterStager_Unstage(t *testing.T) {
	t.Parallel()

	scheme := newStagingScheme(t)
	owner := stagingOwner()
	fakeClient := fake.NewClientBuilder().WithScheme(scheme).WithObjects(owner).Build()

	stager := &staging.ClusterStager{Client: fakeClient, Scheme: scheme}

	require.NoError(t, stager.Stage(context.Background(), owner,
		[]*corev1.Secret{sourceSecret("tls-a", "default")}))

	require.NoError(t, stager.Unstage(context.Background(), owner, []string{"tls-a"}))

	var staged corev1.Secret
	err := fakeClient.Get(context.Background(),
		types.NamespacedName{Namespace: "frp-system", Name: "tls-a"}, &staged)
	assert.True(t, apierrors.IsNotFound(err))

	// Unstaging again is a no-op.
	require.NoError(t, stager.Unstage(context.Background(), owner, []string{"tls-a"}))
}

func TestClusterStager_Unstage_LeavesForeignSecrets(t *testing.T) {
	t.Parallel()

	scheme := newStagingScheme(t)
	owner := stagingOwner()

	foreign := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "user-secret",
			Namespace: "frp-system",
		},
		Data: map[string][]byte{"k": []byte("v")},
	}

	fakeClient := fake.NewClientBuilder().WithScheme(scheme).WithObjects(owner, foreign).Build()

	stager := &staging.ClusterStager{Client: fakeClient, Scheme: scheme}

	require.NoError(t, stager.Unstage(context.Background(), owner, []string{"user-secret"}))

	var kept corev1.Secret
	require.NoError(t, fakeClient.Get(context.Background(),
		client.ObjectKeyFromObject(foreign), &kept))
}
