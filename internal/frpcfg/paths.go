package frpcfg

import "path"

// Filesystem layout inside the frpc container and on agent hosts.
const (
	// BaseConfigDir is where frpc reads its configuration.
	BaseConfigDir = "/etc/frp"

	// RootConfigName is the root configuration file name.
	RootConfigName = "frpc.toml"

	// RootConfigPath is the absolute path of the root configuration.
	RootConfigPath = BaseConfigDir + "/" + RootConfigName

	// IncludesGlob matches every proxy fragment next to the root config.
	IncludesGlob = BaseConfigDir + "/proxy-*.toml"

	// CertsBaseDir holds one directory per staged TLS Secret.
	CertsBaseDir = BaseConfigDir + "/certs"
)

// IncludesGlobIn returns the fragment glob for a configuration directory.
// Agent hosts may relocate the whole layout; the glob has to follow.
func IncludesGlobIn(configDir string) string {
	return path.Join(configDir, "proxy-*.toml")
}

// CertsDirIn returns the certs base directory under a configuration
// directory.
func CertsDirIn(configDir string) string {
	return path.Join(configDir, "certs")
}

// CertDir returns the directory a TLS Secret's material is staged into.
func CertDir(secretName string) string {
	return path.Join(CertsBaseDir, secretName)
}

// CertCrtPath returns the staged certificate path for a TLS Secret.
func CertCrtPath(secretName string) string {
	return CertCrtPathIn(CertsBaseDir, secretName)
}

// CertKeyPath returns the staged private key path for a TLS Secret.
func CertKeyPath(secretName string) string {
	return CertKeyPathIn(CertsBaseDir, secretName)
}

// CertCrtPathIn returns the staged certificate path under a certs directory.
func CertCrtPathIn(certsDir, secretName string) string {
	return path.Join(certsDir, secretName, "tls.crt")
}

// CertKeyPathIn returns the staged private key path under a certs directory.
func CertKeyPathIn(certsDir, secretName string) string {
	return path.Join(certsDir, secretName, "tls.key")
}
