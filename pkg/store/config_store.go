package store

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/borgmon/contact-manager/pkg/datastore"
	"github.com/borgmon/contact-manager/pkg/models"
)

// ConfigStore handles configuration persistence in a TOML file
type ConfigStore struct {
	path string
}

// NewConfigStore creates a new ConfigStore instance
func NewConfigStore(path string) *ConfigStore {
	return &ConfigStore{path: path}
}

// DefaultConfigPath returns contactmanager/config.toml under the user's
// config directory, or config.toml in the working directory when that
// cannot be determined.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(dir, "contactmanager", "config.toml")
}

func (cs *ConfigStore) Path() string {
	return cs.path
}

// Load reads the configuration. Keys absent from the file keep their
// defaults, and a missing file yields DefaultConfig.
func (cs *ConfigStore) Load() (models.Config, error) {
	config := models.DefaultConfig()

	data, err := os.ReadFile(cs.path)
	if errors.Is(err, fs.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return config, models.WrapError(models.ErrIO, err, "read config")
	}

	if _, err := toml.Decode(string(data), &config); err != nil {
		return models.DefaultConfig(), models.WrapError(models.ErrInvalidArgument, err, "parse config %s", cs.path)
	}
	if err := config.Validate(); err != nil {
		return models.DefaultConfig(), err
	}
	return config, nil
}

// Save writes the configuration, creating its directory if needed
func (cs *ConfigStore) Save(config models.Config) error {
	if err := config.Validate(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return models.WrapError(models.ErrInvalidArgument, err, "encode config")
	}
	if err := os.MkdirAll(filepath.Dir(cs.path), 0o755); err != nil {
		return models.WrapError(models.ErrIO, err, "create config directory")
	}
	return datastore.WriteFileAtomic(cs.path, buf.Bytes(), 0o644)
}
