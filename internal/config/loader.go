// Package config loads the daemon's runtime parameters from a file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by defaults.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	// TmpDir holds partial downloads; kept on the same filesystem as
	// ModelsDir so the final move is a rename.
	TmpDir string `json:"tmp_dir" yaml:"tmp_dir" toml:"tmp_dir"`
	// CatalogPath overrides the built-in model catalog when set.
	CatalogPath string `json:"catalog_path" yaml:"catalog_path" toml:"catalog_path"`
	LogLevel    string `json:"log_level" yaml:"log_level" toml:"log_level"`

	// Engine tunables applied to every constructed engine.
	ContextSize int `json:"context_size" yaml:"context_size" toml:"context_size"`
	Threads     int `json:"threads" yaml:"threads" toml:"threads"`
	BatchSize   int `json:"batch_size" yaml:"batch_size" toml:"batch_size"`
	GPULayers   int `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Addr:      ":8090",
		ModelsDir: "~/.edgellm/models",
		TmpDir:    "~/.edgellm/tmp",
		LogLevel:  "info",
	}
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg.withDefaults(), nil
}

// withDefaults fills unspecified fields from Default.
func (c Config) withDefaults() Config {
	def := Default()
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.ModelsDir == "" {
		c.ModelsDir = def.ModelsDir
	}
	if c.TmpDir == "" {
		c.TmpDir = def.TmpDir
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	return c
}
