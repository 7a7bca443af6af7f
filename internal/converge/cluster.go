package converge

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apiequality "k8s.io/apimachinery/pkg/api/equality"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/util/retry"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	frpv1 "github.com/frp-operator/frp-operator/api/v1"
	"github.com/frp-operator/frp-operator/internal/frpcfg"
	"github.com/frp-operator/frp-operator/internal/logging"
	"github.com/frp-operator/frp-operator/internal/metrics"
	"github.com/frp-operator/frp-operator/internal/staging"
	"github.com/frp-operator/frp-operator/internal/translate"
)

// ErrNoClient is returned when no Client object exists yet. Reconciles
// treat it as a not-ready condition and retry.
var ErrNoClient = errors.New("no frp client object found")

// ClusterApplier converges fragments into ConfigMaps and wires them into the
// shared frpc Deployment's pod template. One frpc per cluster is the
// supported topology; with several Client objects the first by namespace and
// name wins and the rest are ignored with a warning.
type ClusterApplier struct {
	Client  client.Client
	Scheme  *runtime.Scheme
	Stager  staging.Stager
	Metrics metrics.Collector
}

// Apply stages the fragment's Secrets, converges the fragment ConfigMap and
// updates the Deployment's volumes and mounts.
func (a *ClusterApplier) Apply(ctx context.Context, frag *frpcfg.ProxyConfig, secrets []*corev1.Secret) error {
	start := time.Now()

	err := a.apply(ctx, frag, secrets)

	if a.Metrics != nil {
		a.Metrics.RecordApply(ctx, "cluster", outcome(err), time.Since(start))
	}

	return err
}

func (a *ClusterApplier) apply(ctx context.Context, frag *frpcfg.ProxyConfig, secrets []*corev1.Secret) error {
	owner, err := a.resolveClient(ctx)
	if err != nil {
		return err
	}

	if err := a.Stager.Stage(ctx, owner, secrets); err != nil {
		return err
	}

	if err := a.applyFragmentConfigMap(ctx, owner, frag, secrets); err != nil {
		return err
	}

	referenced, err := a.referencedSecretNames(ctx, owner.Namespace)
	if err != nil {
		return err
	}

	return a.mutateDeployment(ctx, owner.Namespace, func(spec *corev1.PodSpec) error {
		return wireFragment(spec, frag.Name, referenced)
	})
}

// Cleanup deletes the fragment ConfigMap, prunes the Deployment's volume and
// mount lists and unstages Secrets no remaining fragment references.
func (a *ClusterApplier) Cleanup(ctx context.Context, identity string) error {
	start := time.Now()

	err := a.cleanup(ctx, identity)

	if a.Metrics != nil {
		a.Metrics.RecordApply(ctx, "cluster", outcome(err), time.Since(start))
	}

	return err
}

func (a *ClusterApplier) cleanup(ctx context.Context, identity string) error {
	owner, err := a.resolveClient(ctx)
	if err != nil {
		if errors.Is(err, ErrNoClient) {
			// Without a Client there is no Deployment to prune; the owner
			// reference chain already collected the artifacts.
			return nil
		}

		return err
	}

	ownSecrets, err := a.deleteFragmentConfigMap(ctx, owner.Namespace, identity)
	if err != nil {
		return err
	}

	referenced, err := a.referencedSecretNames(ctx, owner.Namespace)
	if err != nil {
		return err
	}

	err = a.mutateDeployment(ctx, owner.Namespace, func(spec *corev1.PodSpec) error {
		return unwireFragment(spec, identity, referenced)
	})
	if err != nil {
		return err
	}

	var orphaned []string

	for _, name := range ownSecrets {
		if !referenced[name] {
			orphaned = append(orphaned, name)
		}
	}

	return a.Stager.Unstage(ctx, owner, orphaned)
}

// ServerAddr returns the resolved Client's frps address.
func (a *ClusterApplier) ServerAddr(ctx context.Context) (string, error) {
	owner, err := a.resolveClient(ctx)
	if err != nil {
		return "", err
	}

	return owner.Spec.ServerAddr, nil
}

// resolveClient picks the Client object the shared frpc belongs to.
func (a *ClusterApplier) resolveClient(ctx context.Context) (*frpv1.Client, error) {
	var list frpv1.ClientList

	if err := a.Client.List(ctx, &list); err != nil {
		return nil, errors.Wrap(err, "failed to list frp clients")
	}

	if len(list.Items) == 0 {
		return nil, ErrNoClient
	}

	sort.Slice(list.Items, func(i, j int) bool {
		if list.Items[i].Namespace != list.Items[j].Namespace {
			return list.Items[i].Namespace < list.Items[j].Namespace
		}

		return list.Items[i].Name < list.Items[j].Name
	})

	if len(list.Items) > 1 {
		logging.FromContext(ctx).Warn("multiple frp clients found, using first",
			"client", list.Items[0].Namespace+"/"+list.Items[0].Name,
			"ignored", len(list.Items)-1)
	}

	return &list.Items[0], nil
}

func (a *ClusterApplier) applyFragmentConfigMap(
	ctx context.Context,
	owner *frpv1.Client,
	frag *frpcfg.ProxyConfig,
	secrets []*corev1.Secret,
) error {
	data, err := frag.Encode()
	if err != nil {
		return err
	}

	secretNames := make([]string, 0, len(secrets))
	for _, secret := range secrets {
		secretNames = append(secretNames, secret.Name)
	}

	sort.Strings(secretNames)

	configMap := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      translate.FragmentConfigMapName(frag.Name),
			Namespace: owner.Namespace,
		},
	}

	_, err = controllerutil.CreateOrUpdate(ctx, a.Client, configMap, func() error {
		if configMap.Labels == nil {
			configMap.Labels = make(map[string]string)
		}

		configMap.Labels[LabelFragment] = "true"
		configMap.Labels[LabelPartOf] = PartOfValue

		if len(secretNames) > 0 {
			if configMap.Annotations == nil {
				configMap.Annotations = make(map[string]string)
			}

			configMap.Annotations[AnnotationTLSSecrets] = strings.Join(secretNames, ",")
		} else {
			delete(configMap.Annotations, AnnotationTLSSecrets)
		}

		configMap.Data = map[string]string{
			translate.FragmentFileName(frag.Name): string(data),
		}

		return errors.Wrap(
			controllerutil.SetControllerReference(owner, configMap, a.Scheme),
			"failed to set owner reference",
		)
	})

	return errors.Wrapf(err, "failed to apply fragment configmap for %q", frag.Name)
}

// deleteFragmentConfigMap removes the fragment's ConfigMap and returns the
// TLS Secret names it referenced.
func (a *ClusterApplier) deleteFragmentConfigMap(ctx context.Context, namespace, identity string) ([]string, error) {
	var configMap corev1.ConfigMap

	key := client.ObjectKey{Namespace: namespace, Name: translate.FragmentConfigMapName(identity)}

	err := a.Client.Get(ctx, key, &configMap)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil
		}

		return nil, errors.Wrapf(err, "failed to get fragment configmap for %q", identity)
	}

	ownSecrets := splitSecretNames(configMap.Annotations[AnnotationTLSSecrets])

	err = a.Client.Delete(ctx, &configMap)
	if err != nil && !apierrors.IsNotFound(err) {
		return nil, errors.Wrapf(err, "failed to delete fragment configmap for %q", identity)
	}

	return ownSecrets, nil
}

// referencedSecretNames unions the TLS Secret annotations over every
// fragment ConfigMap in the namespace.
func (a *ClusterApplier) referencedSecretNames(ctx context.Context, namespace string) (map[string]bool, error) {
	var list corev1.ConfigMapList

	err := a.Client.List(ctx, &list,
		client.InNamespace(namespace),
		client.MatchingLabels{LabelFragment: "true"})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list fragment configmaps")
	}

	referenced := make(map[string]bool)

	for i := range list.Items {
		for _, name := range splitSecretNames(list.Items[i].Annotations[AnnotationTLSSecrets]) {
			referenced[name] = true
		}
	}

	return referenced, nil
}

// mutateDeployment updates the frpc Deployment's pod template under
// optimistic concurrency: each attempt re-reads the object, applies the
// mutation to the fresh copy and skips the write when nothing changed.
func (a *ClusterApplier) mutateDeployment(
	ctx context.Context,
	namespace string,
	mutate func(*corev1.PodSpec) error,
) error {
	key := client.ObjectKey{Namespace: namespace, Name: DeploymentName}

	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		var deployment appsv1.Deployment

		if err := a.Client.Get(ctx, key, &deployment); err != nil {
			return errors.Wrap(err, "failed to get frpc deployment")
		}

		before := deployment.Spec.Template.Spec.DeepCopy()

		if err := mutate(&deployment.Spec.Template.Spec); err != nil {
			return err
		}

		if apiequality.Semantic.DeepEqual(before, &deployment.Spec.Template.Spec) {
			return nil
		}

		return errors.Wrap(a.Client.Update(ctx, &deployment), "failed to update frpc deployment")
	})

	return errors.Wrap(err, "failed to mutate frpc deployment")
}

// wireFragment ensures the fragment's volume and mount plus one cert volume
// per referenced Secret, and drops cert entries nothing references anymore.
func wireFragment(spec *corev1.PodSpec, identity string, referenced map[string]bool) error {
	container := FindContainer(spec, ContainerName)
	if container == nil {
		return errors.Newf("deployment has no container %q", ContainerName)
	}

	volumeName := translate.FragmentVolumeName(identity)
	fileName := translate.FragmentFileName(identity)

	spec.Volumes = EnsureVolume(spec.Volumes, corev1.Volume{
		Name: volumeName,
		VolumeSource: corev1.VolumeSource{
			ConfigMap: &corev1.ConfigMapVolumeSource{
				LocalObjectReference: corev1.LocalObjectReference{
					Name: translate.FragmentConfigMapName(identity),
				},
			},
		},
	})

	container.VolumeMounts = EnsureVolumeMount(container.VolumeMounts, corev1.VolumeMount{
		Name:      volumeName,
		MountPath: frpcfg.BaseConfigDir + "/" + fileName,
		SubPath:   fileName,
		ReadOnly:  true,
	})

	convergeCertEntries(spec, container, referenced)

	return nil
}

// unwireFragment removes the fragment's volume and mount and prunes cert
// entries down to what the remaining fragments reference.
func unwireFragment(spec *corev1.PodSpec, identity string, referenced map[string]bool) error {
	container := FindContainer(spec, ContainerName)
	if container == nil {
		// Deployment shape changed under us; nothing to unwire.
		return nil
	}

	volumeName := translate.FragmentVolumeName(identity)

	spec.Volumes = RemoveVolume(spec.Volumes, volumeName)
	container.VolumeMounts = RemoveVolumeMount(container.VolumeMounts, volumeName)

	convergeCertEntries(spec, container, referenced)

	return nil
}

// convergeCertEntries makes the cert volumes and mounts match the referenced
// Secret set exactly. Foreign entries are untouched.
func convergeCertEntries(spec *corev1.PodSpec, container *corev1.Container, referenced map[string]bool) {
	desired := make(map[string]string, len(referenced))

	for name := range referenced {
		desired[translate.CertVolumeName(name)] = name
	}

	kept := spec.Volumes[:0]

	for _, vol := range spec.Volumes {
		if isCertVolume(vol) {
			if _, ok := desired[vol.Name]; !ok {
				continue
			}
		}

		kept = append(kept, vol)
	}

	spec.Volumes = kept

	keptMounts := container.VolumeMounts[:0]

	for _, mount := range container.VolumeMounts {
		if isCertMount(mount) {
			if _, ok := desired[mount.Name]; !ok {
				continue
			}
		}

		keptMounts = append(keptMounts, mount)
	}

	container.VolumeMounts = keptMounts

	names := make([]string, 0, len(referenced))
	for name := range referenced {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, secretName := range names {
		volumeName := translate.CertVolumeName(secretName)

		spec.Volumes = EnsureVolume(spec.Volumes, corev1.Volume{
			Name: volumeName,
			VolumeSource: corev1.VolumeSource{
				Secret: &corev1.SecretVolumeSource{
					SecretName: secretName,
				},
			},
		})

		container.VolumeMounts = EnsureVolumeMount(container.VolumeMounts, corev1.VolumeMount{
			Name:      volumeName,
			MountPath: frpcfg.CertDir(secretName),
			ReadOnly:  true,
		})
	}
}

func splitSecretNames(joined string) []string {
	if joined == "" {
		return nil
	}

	return strings.Split(joined, ",")
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}

	return "success"
}
