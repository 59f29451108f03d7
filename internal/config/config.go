// Package config loads the daemon's TOML configuration.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents wview.toml.
type Config struct {
	ListenAddr    string `toml:"listen_addr"`
	DatabasePath  string `toml:"database_path"`
	LogPath       string `toml:"log_path"`
	AllowedOrigin string `toml:"allowed_origin"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		ListenAddr:   ":3000",
		DatabasePath: "wview.db",
		LogPath:      "wview.log",
	}
}

// Load reads config from the given path. A missing file yields defaults.
// The WVIEW_ADDR environment variable overrides the listen address.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if addr := os.Getenv("WVIEW_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
