package build

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/isomorph/internal/errors"
)

// ManifestFile is written next to the document when Options.Manifest is set.
const ManifestFile = "manifest.yaml"

// Manifest lists the files of a build. It carries no timestamps so repeated
// builds of the same inputs are byte-identical.
type Manifest struct {
	Files []ManifestEntry `yaml:"files"`
}

// ManifestEntry describes one written file.
type ManifestEntry struct {
	Name   string `yaml:"name"`
	SHA256 string `yaml:"sha256"`
	Size   int    `yaml:"size"`
}

func writeManifest(dir string, entries []ManifestEntry) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(Manifest{Files: entries}); err != nil {
		return errors.NewInternalError(errors.ErrCodeInternalError, "cannot encode manifest", err)
	}
	if err := enc.Close(); err != nil {
		return errors.NewInternalError(errors.ErrCodeInternalError, "cannot encode manifest", err)
	}

	path := filepath.Join(dir, ManifestFile)
	return writeFile(path, buf.String())
}

// ReadManifest loads the manifest of a previous build in dir.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}
