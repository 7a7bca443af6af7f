package controller

import (
	"context"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/cockroachdb/errors"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/utils/ptr"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/predicate"

	frpv1 "github.com/frp-operator/frp-operator/api/v1"
	"github.com/frp-operator/frp-operator/internal/converge"
	"github.com/frp-operator/frp-operator/internal/frpcfg"
	"github.com/frp-operator/frp-operator/internal/metrics"
)

// Condition reasons reported in ClientStatus.
const (
	// ReasonRendered means the root configuration was rendered and stored.
	ReasonRendered = "Rendered"

	// ReasonUnsupportedImage means the frpc image tag predates TOML support
	// or does not parse as a semantic version.
	ReasonUnsupportedImage = "UnsupportedImage"

	// ReasonConverged means the frpc Deployment matches the spec.
	ReasonConverged = "Converged"

	// ReasonBlocked means the Deployment was left untouched because the
	// configuration could not be rendered.
	ReasonBlocked = "Blocked"
)

// minimumFrpcVersion is the first frpc release that reads TOML natively.
var minimumFrpcVersion = semver.MustParse("0.52.0")

// ClientReconciler renders the root frpc configuration for a Client and
// converges the shared frpc Deployment in its namespace. Fragment volumes
// and mounts added by the convergence applier are preserved across
// reconciles; the mutate closure only touches entries it owns.
type ClientReconciler struct {
	client.Client

	Scheme  *runtime.Scheme
	Metrics metrics.Collector
}

func (r *ClientReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	start := time.Now()

	class, err := r.reconcile(ctx, req)

	if r.Metrics != nil {
		r.Metrics.RecordReconcile(ctx, clientController, reconcileOutcome(err), time.Since(start))
	}

	return scheduleResult(ctx, r.Metrics, clientController, class, err)
}

//nolint:noinlineerr // controller reconcile logic
func (r *ClientReconciler) reconcile(ctx context.Context, req ctrl.Request) (requeue, error) {
	logger := log.FromContext(ctx)

	var frpClient frpv1.Client

	if err := r.Get(ctx, req.NamespacedName, &frpClient); err != nil {
		if apierrors.IsNotFound(err) {
			return requeueNone, nil
		}

		return requeueNone, errors.Wrap(err, "failed to get client")
	}

	logger.Info("reconciling client", "name", frpClient.Name, "namespace", frpClient.Namespace)

	if gateErr := checkImageVersion(frpClient.Spec.GetImage()); gateErr != nil {
		logger.Info("rejecting unsupported frpc image",
			"image", frpClient.Spec.GetImage(),
			"reason", gateErr.Error(),
		)

		statusErr := r.updateStatus(ctx, &frpClient, false, gateErr.Error())
		if statusErr != nil {
			return requeueNone, statusErr
		}

		return requeueIdle, nil
	}

	if err := r.convergeRootConfigMap(ctx, &frpClient); err != nil {
		return requeueNone, err
	}

	if err := r.convergeDeployment(ctx, &frpClient); err != nil {
		return requeueNone, err
	}

	if err := r.updateStatus(ctx, &frpClient, true, ""); err != nil {
		return requeueNone, err
	}

	return requeueSteady, nil
}

//nolint:funcorder // private helper method
func (r *ClientReconciler) convergeRootConfigMap(ctx context.Context, frpClient *frpv1.Client) error {
	cfg := renderRootConfig(&frpClient.Spec)

	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "rendered root config is invalid")
	}

	data, err := cfg.Encode()
	if err != nil {
		return errors.Wrap(err, "failed to encode root config")
	}

	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      converge.RootConfigMapName,
			Namespace: frpClient.Namespace,
		},
	}

	_, err = controllerutil.CreateOrUpdate(ctx, r.Client, cm, func() error {
		if cm.Labels == nil {
			cm.Labels = map[string]string{}
		}

		cm.Labels[converge.LabelPartOf] = converge.PartOfValue
		cm.Data = map[string]string{frpcfg.RootConfigName: string(data)}

		return controllerutil.SetControllerReference(frpClient, cm, r.Scheme)
	})

	return errors.Wrap(err, "failed to converge root configmap")
}

//nolint:funcorder // private helper method
func (r *ClientReconciler) convergeDeployment(ctx context.Context, frpClient *frpv1.Client) error {
	deploy := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      converge.DeploymentName,
			Namespace: frpClient.Namespace,
		},
	}

	_, err := controllerutil.CreateOrUpdate(ctx, r.Client, deploy, func() error {
		mutateDeploymentSpec(deploy, &frpClient.Spec)

		return controllerutil.SetControllerReference(frpClient, deploy, r.Scheme)
	})

	return errors.Wrap(err, "failed to converge frpc deployment")
}

//nolint:funcorder // private helper method
func (r *ClientReconciler) updateStatus(
	ctx context.Context,
	frpClient *frpv1.Client,
	rendered bool,
	failure string,
) error {
	now := metav1.Now()

	configCondition := metav1.Condition{
		Type:               frpv1.ConditionConfigRendered,
		Status:             metav1.ConditionTrue,
		ObservedGeneration: frpClient.Generation,
		LastTransitionTime: now,
		Reason:             ReasonRendered,
		Message:            "Root configuration rendered",
	}

	readyCondition := metav1.Condition{
		Type:               frpv1.ConditionReady,
		Status:             metav1.ConditionTrue,
		ObservedGeneration: frpClient.Generation,
		LastTransitionTime: now,
		Reason:             ReasonConverged,
		Message:            "frpc deployment converged",
	}

	if !rendered {
		configCondition.Status = metav1.ConditionFalse
		configCondition.Reason = ReasonUnsupportedImage
		configCondition.Message = truncateMessage(failure)

		readyCondition.Status = metav1.ConditionFalse
		readyCondition.Reason = ReasonBlocked
		readyCondition.Message = "Deployment not updated: configuration was not rendered"
	}

	frpClient.Status.Conditions = []metav1.Condition{configCondition, readyCondition}

	statusErr := r.Status().Update(ctx, frpClient)
	if statusErr != nil {
		return errors.Wrap(statusErr, "failed to update client status")
	}

	return nil
}

func (r *ClientReconciler) SetupWithManager(mgr ctrl.Manager) error {
	//nolint:wrapcheck // controller-runtime builder pattern
	return ctrl.NewControllerManagedBy(mgr).
		For(&frpv1.Client{}, builder.WithPredicates(predicate.GenerationChangedPredicate{})).
		Owns(&appsv1.Deployment{}).
		Owns(&corev1.ConfigMap{}).
		// Watch Secrets so auth token rotation restarts the rollout checks.
		Watches(
			&corev1.Secret{},
			handler.EnqueueRequestsFromMapFunc(r.secretToClients),
		).
		Complete(r)
}

// renderRootConfig translates a ClientSpec into the root frpc configuration.
// The auth token never appears literally: the config references the
// FRP_AUTH_TOKEN environment variable via frpc's template syntax, and the
// Deployment injects the Secret through envFrom.
func renderRootConfig(spec *frpv1.ClientSpec) *frpcfg.ClientConfig {
	cfg := &frpcfg.ClientConfig{
		ServerAddr: spec.ServerAddr,
		ServerPort: spec.ServerPort,
		Includes:   []string{frpcfg.IncludesGlob},
	}

	if spec.Auth != nil {
		cfg.Auth = &frpcfg.AuthConfig{
			Method: "token",
			Token:  "{{ .Envs." + frpv1.AuthTokenEnvVar + " }}",
		}
	}

	if spec.Webserver != nil {
		cfg.Webserver = &frpcfg.WebserverConfig{
			Addr: spec.Webserver.GetAddr(),
			Port: spec.Webserver.Port,
		}
	}

	if spec.TransportProtocol != "" {
		cfg.Transport = &frpcfg.ClientTransport{Protocol: spec.TransportProtocol}
	}

	return cfg
}

// checkImageVersion rejects frpc images older than 0.52.0, the first release
// with the TOML configuration format this operator renders.
func checkImageVersion(image string) error {
	idx := strings.LastIndex(image, ":")
	if idx < 0 || strings.Contains(image[idx+1:], "/") {
		return errors.Newf("image %q has no tag to version-check", image)
	}

	tag := strings.TrimPrefix(image[idx+1:], "v")

	version, err := semver.NewVersion(tag)
	if err != nil {
		return errors.Newf("image tag %q is not a semantic version", tag)
	}

	if version.LessThan(minimumFrpcVersion) {
		return errors.Newf("frpc %s predates TOML configuration, need %s or newer",
			version, minimumFrpcVersion)
	}

	return nil
}

// mutateDeploymentSpec converges the parts of the Deployment this controller
// owns. Volumes, mounts and env entries it does not recognize are left in
// place so fragment wiring survives Client reconciles.
func mutateDeploymentSpec(deploy *appsv1.Deployment, spec *frpv1.ClientSpec) {
	selectorLabels := map[string]string{
		"app.kubernetes.io/name": converge.DeploymentName,
		converge.LabelPartOf:     converge.PartOfValue,
	}

	if deploy.Labels == nil {
		deploy.Labels = map[string]string{}
	}

	for k, v := range selectorLabels {
		deploy.Labels[k] = v
	}

	// Selector is immutable; only set it on create.
	if deploy.Spec.Selector == nil {
		deploy.Spec.Selector = &metav1.LabelSelector{MatchLabels: selectorLabels}
	}

	deploy.Spec.Replicas = ptr.To(spec.GetReplicas())

	template := &deploy.Spec.Template

	if template.Labels == nil {
		template.Labels = map[string]string{}
	}

	for k, v := range selectorLabels {
		template.Labels[k] = v
	}

	container := converge.FindContainer(&template.Spec, converge.ContainerName)
	if container == nil {
		template.Spec.Containers = append(template.Spec.Containers, corev1.Container{
			Name: converge.ContainerName,
		})
		container = &template.Spec.Containers[len(template.Spec.Containers)-1]
	}

	container.Image = spec.GetImage()
	container.Args = []string{"-c", frpcfg.RootConfigPath}

	template.Spec.Volumes = converge.EnsureVolume(template.Spec.Volumes, corev1.Volume{
		Name: converge.RootConfigMapName,
		VolumeSource: corev1.VolumeSource{
			ConfigMap: &corev1.ConfigMapVolumeSource{
				LocalObjectReference: corev1.LocalObjectReference{
					Name: converge.RootConfigMapName,
				},
			},
		},
	})

	container.VolumeMounts = converge.EnsureVolumeMount(container.VolumeMounts, corev1.VolumeMount{
		Name:      converge.RootConfigMapName,
		MountPath: frpcfg.RootConfigPath,
		SubPath:   frpcfg.RootConfigName,
		ReadOnly:  true,
	})

	if secretName := spec.GetAuthSecretName(); secretName != "" {
		ensureEnvFromSecret(container, secretName)
	}
}

// ensureEnvFromSecret adds a secretRef envFrom entry if absent. Existing
// entries, including ones added by other tooling, are preserved.
func ensureEnvFromSecret(container *corev1.Container, secretName string) {
	for _, src := range container.EnvFrom {
		if src.SecretRef != nil && src.SecretRef.Name == secretName {
			return
		}
	}

	container.EnvFrom = append(container.EnvFrom, corev1.EnvFromSource{
		SecretRef: &corev1.SecretEnvSource{
			LocalObjectReference: corev1.LocalObjectReference{Name: secretName},
		},
	})
}
