package agent

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/frp-operator/frp-operator/internal/frpcfg"
	"github.com/frp-operator/frp-operator/internal/translate"
)

const (
	configDirPerm  = 0o755
	configFilePerm = 0o644
)

// ConfigStore owns the on-disk frpc configuration layout: a root config plus
// one fragment file per workload object, discovered by frpc via the includes
// glob. All writes are atomic so frpc never reloads a half-written file.
type ConfigStore struct {
	// Root is the configuration directory. Defaults to /etc/frp.
	Root string
}

func (s *ConfigStore) root() string {
	if s.Root == "" {
		return frpcfg.BaseConfigDir
	}

	return s.Root
}

// RootConfigPath returns the path of the root configuration file.
func (s *ConfigStore) RootConfigPath() string {
	return filepath.Join(s.root(), frpcfg.RootConfigName)
}

// FragmentPath returns the path a fragment identity maps to.
func (s *ConfigStore) FragmentPath(identity string) string {
	return filepath.Join(s.root(), translate.FragmentFileName(identity))
}

// CertsDir returns the directory staged TLS material lives under.
func (s *ConfigStore) CertsDir() string {
	return filepath.Join(s.root(), "certs")
}

// WriteRoot renders and writes the root configuration.
func (s *ConfigStore) WriteRoot(cfg *frpcfg.ClientConfig) error {
	data, err := cfg.Encode()
	if err != nil {
		return err
	}

	return s.write(s.RootConfigPath(), data)
}

// WriteFragment renders and writes one proxy fragment.
func (s *ConfigStore) WriteFragment(frag *frpcfg.ProxyConfig) error {
	data, err := frag.Encode()
	if err != nil {
		return err
	}

	return s.write(s.FragmentPath(frag.Name), data)
}

// RemoveFragment deletes a fragment file. A fragment that is already gone is
// not an error.
func (s *ConfigStore) RemoveFragment(identity string) error {
	err := os.Remove(s.FragmentPath(identity))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove fragment %q", identity)
	}

	return nil
}

// ListFragments decodes every fragment currently on disk, keyed by identity.
func (s *ConfigStore) ListFragments() ([]*frpcfg.ProxyConfig, error) {
	paths, err := filepath.Glob(filepath.Join(s.root(), "proxy-*.toml"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to glob fragments")
	}

	fragments := make([]*frpcfg.ProxyConfig, 0, len(paths))

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read fragment %q", path)
		}

		base := filepath.Base(path)
		identity := base[len("proxy-") : len(base)-len(".toml")]

		frag, err := frpcfg.DecodeProxyConfig(identity, data)
		if err != nil {
			return nil, err
		}

		fragments = append(fragments, frag)
	}

	return fragments, nil
}

func (s *ConfigStore) write(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), configDirPerm); err != nil {
		return errors.Wrapf(err, "failed to create config dir for %q", path)
	}

	tmp := path + ".tmp-" + uuid.NewString()

	if err := os.WriteFile(tmp, data, configFilePerm); err != nil {
		return errors.Wrapf(err, "failed to write %q", path)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)

		return errors.Wrapf(err, "failed to move %q into place", path)
	}

	return nil
}
