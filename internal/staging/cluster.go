package staging

import (
	"context"

	"github.com/cockroachdb/errors"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	"github.com/frp-operator/frp-operator/internal/logging"
	"github.com/frp-operator/frp-operator/internal/metrics"
)

const (
	// LabelStaged marks Secrets this operator copied into the runtime
	// namespace. Unstage refuses to touch Secrets without it.
	LabelStaged = "frp-operator.io/staged-tls"

	// AnnotationSource names the namespace/name of the Secret a staged copy
	// was taken from.
	AnnotationSource = "frp-operator.io/source"
)

// Stager places TLS Secret material where frpc can load it and removes it
// again when no proxy references it anymore.
type Stager interface {
	// Stage makes the given Secrets' material available under the owner.
	Stage(ctx context.Context, owner client.Object, secrets []*corev1.Secret) error

	// Unstage removes staged material by source Secret name. Absent material
	// is not an error.
	Unstage(ctx context.Context, owner client.Object, names []string) error
}

// ClusterStager copies TLS Secrets into the owner's namespace so the frpc
// Deployment can mount them. Copies keep the source Secret's name and carry
// an owner reference for garbage collection.
type ClusterStager struct {
	Client  client.Client
	Scheme  *runtime.Scheme
	Metrics metrics.Collector
}

// Stage mirrors each Secret into the owner's namespace. Re-staging an
// unchanged Secret is a no-op; changed data is overwritten.
func (s *ClusterStager) Stage(ctx context.Context, owner client.Object, secrets []*corev1.Secret) error {
	for _, source := range secrets {
		staged := &corev1.Secret{
			ObjectMeta: metav1.ObjectMeta{
				Name:      source.Name,
				Namespace: owner.GetNamespace(),
			},
		}

		_, err := controllerutil.CreateOrUpdate(ctx, s.Client, staged, func() error {
			if staged.Labels == nil {
				staged.Labels = make(map[string]string)
			}

			staged.Labels[LabelStaged] = "true"

			if staged.Annotations == nil {
				staged.Annotations = make(map[string]string)
			}

			staged.Annotations[AnnotationSource] = source.Namespace + "/" + source.Name

			staged.Type = source.Type
			staged.Data = source.Data

			return errors.Wrap(
				controllerutil.SetControllerReference(owner, staged, s.Scheme),
				"failed to set owner reference",
			)
		})
		if err != nil {
			return errors.Wrapf(err, "failed to stage secret %s/%s", source.Namespace, source.Name)
		}
	}

	if s.Metrics != nil {
		s.Metrics.RecordStagedSecrets(ctx, len(secrets))
	}

	return nil
}

// Unstage deletes staged copies by name. Secrets that are gone already, or
// that do not carry the staged label, are left alone.
func (s *ClusterStager) Unstage(ctx context.Context, owner client.Object, names []string) error {
	logger := logging.FromContext(ctx)

	for _, name := range names {
		staged := &corev1.Secret{}

		err := s.Client.Get(ctx, client.ObjectKey{Namespace: owner.GetNamespace(), Name: name}, staged)
		if err != nil {
			if apierrors.IsNotFound(err) {
				continue
			}

			return errors.Wrapf(err, "failed to get staged secret %q", name)
		}

		if staged.Labels[LabelStaged] != "true" {
			logger.Warn("refusing to delete secret without staged label",
				"secret", owner.GetNamespace()+"/"+name)

			continue
		}

		err = s.Client.Delete(ctx, staged)
		if err != nil && !apierrors.IsNotFound(err) {
			return errors.Wrapf(err, "failed to delete staged secret %q", name)
		}
	}

	return nil
}
