package staging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/frp-operator/frp-operator/internal/frpcfg"
	"github.com/frp-operator/frp-operator/internal/metrics"
)

const (
	certDirPerm  = 0o700
	certFilePerm = 0o600
)

// FileStager writes TLS key material under a local certs directory, one
// directory per Secret. Used in agent mode where frpc reads certificates
// straight from disk.
type FileStager struct {
	// CertsDir is the base directory, one subdirectory per Secret.
	// Defaults to the standard frpc certs location.
	CertsDir string

	// Metrics records staged secret counts.
	Metrics metrics.Collector
}

func (s *FileStager) certsDir() string {
	if s.CertsDir == "" {
		return frpcfg.CertsBaseDir
	}

	return s.CertsDir
}

// Stage writes each Secret's data keys as files. Unchanged files are left
// untouched; changed ones are replaced atomically.
func (s *FileStager) Stage(ctx context.Context, _ client.Object, secrets []*corev1.Secret) error {
	for _, secret := range secrets {
		dir := filepath.Join(s.certsDir(), secret.Name)

		if err := os.MkdirAll(dir, certDirPerm); err != nil {
			return errors.Wrapf(err, "failed to create cert dir for secret %q", secret.Name)
		}

		for key, data := range secret.Data {
			path := filepath.Join(dir, key)

			existing, err := os.ReadFile(path)
			if err == nil && bytes.Equal(existing, data) {
				continue
			}

			if err := writeFileAtomic(path, data, certFilePerm); err != nil {
				return errors.Wrapf(err, "failed to write cert file for secret %q key %q", secret.Name, key)
			}
		}
	}

	if s.Metrics != nil {
		s.Metrics.RecordStagedSecrets(ctx, len(secrets))
	}

	return nil
}

// Unstage removes the per-Secret directories. A directory that is already
// gone is not an error.
func (s *FileStager) Unstage(_ context.Context, _ client.Object, names []string) error {
	for _, name := range names {
		dir := filepath.Join(s.certsDir(), name)

		if err := os.RemoveAll(dir); err != nil {
			return errors.Wrapf(err, "failed to remove cert dir for secret %q", name)
		}
	}

	return nil
}

// Staged returns the names of the Secrets currently staged on disk.
func (s *FileStager) Staged() ([]string, error) {
	entries, err := os.ReadDir(s.certsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, errors.Wrap(err, "failed to read certs dir")
	}

	var names []string

	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}

	return names, nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place, so readers never observe a partial file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp-" + uuid.NewString()

	if err := os.WriteFile(tmp, data, perm); err != nil {
		return errors.Wrap(err, "failed to write temp file")
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)

		return errors.Wrap(err, "failed to rename temp file into place")
	}

	return nil
}
