package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Load reads config.toml at path, starting from DefaultConfig() and
// overlaying whatever the file specifies. A missing file is not an error:
// it returns the defaults unchanged, matching the teacher's "config is
// just code defaults, no file required" baseline while adding spec.md's
// config.toml on top.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// DefaultConfigPath returns ~/.amux/config.toml.
func DefaultConfigPath() string {
	return filepath.Join(defaultBaseDir(), "config.toml")
}
