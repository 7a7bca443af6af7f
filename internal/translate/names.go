package translate

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// maxLabelLength is the DNS-1123 label limit Kubernetes applies to volume
// and port names.
const maxLabelLength = 63

// hashSuffixLength is the length of the content-hash suffix appended to
// truncated names, including the separating dash.
const hashSuffixLength = 9

// IngressIdentity returns the artifact identity for an Ingress.
func IngressIdentity(namespace, name string) string {
	return identity("ingress", namespace, name)
}

// ServiceIdentity returns the artifact identity for a Service.
func ServiceIdentity(namespace, name string) string {
	return identity("service", namespace, name)
}

func identity(kind, namespace, name string) string {
	return strings.ToLower(fmt.Sprintf("config-proxy-%s-%s-%s", kind, namespace, name))
}

// FragmentFileName returns the fragment file name for an identity. The name
// matches the includes glob in the root configuration.
func FragmentFileName(identity string) string {
	return "proxy-" + identity + ".toml"
}

// FragmentConfigMapName returns the ConfigMap name carrying a fragment.
func FragmentConfigMapName(identity string) string {
	return LabelSafe("frpc-" + identity)
}

// FragmentVolumeName returns the pod volume name for a fragment.
func FragmentVolumeName(identity string) string {
	return LabelSafe(identity)
}

// CertVolumeName returns the pod volume name for a staged TLS Secret.
func CertVolumeName(secretName string) string {
	return LabelSafe("certs-" + secretName)
}

// LabelSafe shortens a name to fit a DNS-1123 label. Names within the limit
// pass through unchanged; longer ones are truncated and suffixed with an
// FNV-1a hash of the full name so distinct inputs stay distinct.
func LabelSafe(name string) string {
	if len(name) <= maxLabelLength {
		return name
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(name))

	return fmt.Sprintf("%s-%08x", name[:maxLabelLength-hashSuffixLength], h.Sum32())
}
