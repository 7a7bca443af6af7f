package converge

import (
	"strings"

	corev1 "k8s.io/api/core/v1"
)

// certVolumePrefix marks volumes and mounts the operator derives from staged
// TLS Secrets. Entries without the prefix are foreign and never touched.
const certVolumePrefix = "certs-"

// EnsureVolume returns the list with vol present exactly once, keyed by
// name. An existing entry with the same name is replaced in place; order of
// the other entries is preserved.
func EnsureVolume(volumes []corev1.Volume, vol corev1.Volume) []corev1.Volume {
	for i := range volumes {
		if volumes[i].Name == vol.Name {
			volumes[i] = vol

			return volumes
		}
	}

	return append(volumes, vol)
}

// RemoveVolume returns the list without any entry of the given name.
func RemoveVolume(volumes []corev1.Volume, name string) []corev1.Volume {
	result := volumes[:0]

	for _, vol := range volumes {
		if vol.Name != name {
			result = append(result, vol)
		}
	}

	return result
}

// EnsureVolumeMount returns the list with mount present exactly once, keyed
// by name.
func EnsureVolumeMount(mounts []corev1.VolumeMount, mount corev1.VolumeMount) []corev1.VolumeMount {
	for i := range mounts {
		if mounts[i].Name == mount.Name {
			mounts[i] = mount

			return mounts
		}
	}

	return append(mounts, mount)
}

// RemoveVolumeMount returns the list without any entry of the given name.
func RemoveVolumeMount(mounts []corev1.VolumeMount, name string) []corev1.VolumeMount {
	result := mounts[:0]

	for _, mount := range mounts {
		if mount.Name != name {
			result = append(result, mount)
		}
	}

	return result
}

// FindContainer returns a pointer into the pod spec's container list, or nil
// when no container has the given name.
func FindContainer(spec *corev1.PodSpec, name string) *corev1.Container {
	for i := range spec.Containers {
		if spec.Containers[i].Name == name {
			return &spec.Containers[i]
		}
	}

	return nil
}

// isCertVolume reports whether a volume is an operator-managed certificate
// volume: prefixed name and a Secret source.
func isCertVolume(vol corev1.Volume) bool {
	return strings.HasPrefix(vol.Name, certVolumePrefix) && vol.Secret != nil
}

// isCertMount reports whether a mount belongs to an operator-managed
// certificate volume.
func isCertMount(mount corev1.VolumeMount) bool {
	return strings.HasPrefix(mount.Name, certVolumePrefix)
}
