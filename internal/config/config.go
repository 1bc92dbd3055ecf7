// Package config loads and persists CLI configuration from
// ~/.codej/config.yaml using Viper. The backend credential block is
// written by the connection manager and cleared on disconnect.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/codej/codej/internal/backend"
)

const (
	configFileName = "config"
	configFileType = "yaml"

	// Config keys.
	cfgKeyStorePath         = "storage.path"
	cfgKeyBackendType       = "backend.type"
	cfgKeyBackendURL        = "backend.url"
	cfgKeyBackendToken      = "backend.token"
	cfgKeyBackendGistID     = "backend.gist_id"
	cfgKeyPollInterval      = "sync.poll_interval"
	cfgKeyReconcileInterval = "sync.reconcile_interval"
)

// Config is the resolved CLI configuration.
type Config struct {
	Dir       string // config directory, default ~/.codej
	StorePath string // snippet store file

	Backend backend.Config

	PollInterval      time.Duration
	ReconcileInterval time.Duration

	v *viper.Viper
}

// DefaultDir returns the default configuration directory.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".codej"), nil
}

// Load reads the configuration from dir, creating the directory on
// first run. A missing config file is not an error.
func Load(dir string) (*Config, error) {
	if dir == "" {
		var err error
		dir, err = DefaultDir()
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config dir: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyStorePath, filepath.Join(dir, "programs.json"))
	v.SetDefault(cfgKeyPollInterval, "10s")
	v.SetDefault(cfgKeyReconcileInterval, "5m")
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Dir:       dir,
		StorePath: v.GetString(cfgKeyStorePath),
		Backend: backend.Config{
			Type:    backend.Type(v.GetString(cfgKeyBackendType)),
			BaseURL: v.GetString(cfgKeyBackendURL),
			Token:   v.GetString(cfgKeyBackendToken),
			GistID:  v.GetString(cfgKeyBackendGistID),
		},
		PollInterval:      v.GetDuration(cfgKeyPollInterval),
		ReconcileInterval: v.GetDuration(cfgKeyReconcileInterval),
		v:                 v,
	}
	return cfg, nil
}

// HasBackend reports whether a backend connection is configured.
func (c *Config) HasBackend() bool {
	return c.Backend.Type != ""
}

func (c *Config) write() error {
	path := filepath.Join(c.Dir, configFileName+"."+configFileType)
	if err := c.v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// SaveBackend persists backend credentials. Implements
// connection.CredentialStore.
func (c *Config) SaveBackend(bc backend.Config) error {
	c.v.Set(cfgKeyBackendType, string(bc.Type))
	c.v.Set(cfgKeyBackendURL, bc.BaseURL)
	c.v.Set(cfgKeyBackendToken, bc.Token)
	c.v.Set(cfgKeyBackendGistID, bc.GistID)
	if err := c.write(); err != nil {
		return err
	}
	c.Backend = bc
	return nil
}

// ClearBackend removes the persisted backend credentials. Implements
// connection.CredentialStore.
func (c *Config) ClearBackend() error {
	c.v.Set(cfgKeyBackendType, "")
	c.v.Set(cfgKeyBackendURL, "")
	c.v.Set(cfgKeyBackendToken, "")
	c.v.Set(cfgKeyBackendGistID, "")
	if err := c.write(); err != nil {
		return err
	}
	c.Backend = backend.Config{}
	return nil
}

// SaveGistID records the gist container ID assigned on first write, so
// later sessions reuse the same gist.
func (c *Config) SaveGistID(id string) error {
	c.v.Set(cfgKeyBackendGistID, id)
	if err := c.write(); err != nil {
		return err
	}
	c.Backend.GistID = id
	return nil
}
