package converge_test

import (
	"testing"

	corev1 "k8s.io/api/core/v1"

	"github.com/frp-operator/frp-operator/internal/converge"
)

func namedVolume(name string) corev1.Volume {
	return corev1.Volume{
		Name: name,
		VolumeSource: corev1.VolumeSource{
			EmptyDir: &corev1.EmptyDirVolumeSource{},
		},
	}
}

func TestEnsureVolume(t *testing.T) {
	t.Parallel()

	volumes := []corev1.Volume{namedVolume("a"), namedVolume("b")}

	volumes = converge.EnsureVolume(volumes, namedVolume("c"))
	if len(volumes) != 3 {
		t.Fatalf("after append: len = %d, want 3", len(volumes))
	}

	// Ensuring an existing name replaces in place, never duplicates.
	replacement := corev1.Volume{
		Name: "b",
		VolumeSource: corev1.VolumeSource{
			ConfigMap: &corev1.ConfigMapVolumeSource{
				LocalObjectReference: corev1.LocalObjectReference{Name: "cm"},
			},
		},
	}

	volumes = converge.EnsureVolume(volumes, replacement)
	if len(volumes) != 3 {
		t.Fatalf("after replace: len = %d, want 3", len(volumes))
	}

	if volumes[1].ConfigMap == nil {
		t.Error("existing entry was not replaced")
	}

	if volumes[1].Name != "b" {
		t.Errorf("replacement changed position: volumes[1] = %q", volumes[1].Name)
	}
}

func TestRemoveVolume(t *testing.T) {
	t.Parallel()

	volumes := []corev1.Volume{namedVolume("a"), namedVolume("b"), namedVolume("c")}

	volumes = converge.RemoveVolume(volumes, "b")
	if len(volumes) != 2 {
		t.Fatalf("len = %d, want 2", len(volumes))
	}

	if volumes[0].Name != "a" || volumes[1].Name != "c" {
		t.Errorf("unexpected order: %q, %q", volumes[0].Name, volumes[1].Name)
	}

	// Removing an absent name is a no-op.
	volumes = converge.RemoveVolume(volumes, "missing")
	if len(volumes) != 2 {
		t.Errorf("remove of absent entry changed list: len = %d", len(volumes))
	}
}

func TestEnsureAndRemoveVolumeMount(t *testing.T) {
	t.Parallel()

	mounts := []corev1.VolumeMount{{Name: "a", MountPath: "/a"}}

	mounts = converge.EnsureVolumeMount(mounts, corev1.VolumeMount{Name: "b", MountPath: "/b"})
	mounts = converge.EnsureVolumeMount(mounts, corev1.VolumeMount{Name: "b", MountPath: "/b2"})

	if len(mounts) != 2 {
		t.Fatalf("len = %d, want 2", len(mounts))
	}

	if mounts[1].MountPath != "/b2" {
		t.Errorf("mount not replaced: path = %q", mounts[1].MountPath)
	}

	mounts = converge.RemoveVolumeMount(mounts, "a")
	if len(mounts) != 1 || mounts[0].Name != "b" {
		t.Errorf("unexpected mounts after removal: %+v", mounts)
	}
}

func TestFindContainer(t *testing.T) {
	t.Parallel()

	spec := &corev1.PodSpec{
		Containers: []corev1.Container{{Name: "sidecar"}, {Name: "frpc"}},
	}

	container := converge.FindContainer(spec, "frpc")
	if container == nil {
		t.Fatal("container not found")
	}

	// The pointer must reach into the spec so mutations stick.
	container.Image = "frpc:test"

	if spec.Containers[1].Image != "frpc:test" {
		t.Error("returned container is a copy, not a pointer into the spec")
	}

	if converge.FindContainer(spec, "missing") != nil {
		t.Error("expected nil for unknown container")
	}
}
