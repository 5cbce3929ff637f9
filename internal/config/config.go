// Package config loads the server configuration from a YAML file and
// applies defaults for everything except the instance identity, which
// must always be set explicitly.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iudanet/authdir/internal/validation"
)

// Config represents the authdir server configuration
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Scanner  ScannerConfig  `yaml:"scanner"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Admin    AdminConfig    `yaml:"admin"`
	Peers    []PeerConfig   `yaml:"peers"`
	LogLevel string         `yaml:"log_level"`
}

// InstanceConfig identifies this node in provenance stamps.
type InstanceConfig struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
	BaseURL     string `yaml:"base_url"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig configures the local databases.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"` // sqlite-файл с документами и конфликтами
	SnapshotPath string `yaml:"snapshot_path"` // boltdb-файл со снапшотами связей
}

// ScannerConfig configures periodic conflict detection.
type ScannerConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// MonitorConfig configures peer polling.
type MonitorConfig struct {
	Interval         time.Duration `yaml:"interval"`
	PollTimeout      time.Duration `yaml:"poll_timeout"`
	FailureThreshold int           `yaml:"failure_threshold"`
	ErrorDelta       int64         `yaml:"error_delta"`
	ConflictBacklog  int64         `yaml:"conflict_backlog"`
}

// AdminConfig configures the admin API credentials.
type AdminConfig struct {
	Username     string        `yaml:"username"`
	PasswordHash string        `yaml:"password_hash"` // bcrypt hash
	JWTSecret    string        `yaml:"jwt_secret"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
}

// PeerConfig defines one remote replication peer
type PeerConfig struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
	BaseURL     string `yaml:"base_url"`
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "./authdir.db"
	}
	if c.Storage.SnapshotPath == "" {
		c.Storage.SnapshotPath = "./authdir-links.db"
	}
	if c.Scanner.Interval == 0 {
		c.Scanner.Interval = 30 * time.Second
	}
	if c.Monitor.Interval == 0 {
		c.Monitor.Interval = 10 * time.Second
	}
	if c.Monitor.PollTimeout == 0 {
		c.Monitor.PollTimeout = 5 * time.Second
	}
	if c.Monitor.FailureThreshold == 0 {
		c.Monitor.FailureThreshold = 3
	}
	if c.Monitor.ErrorDelta == 0 {
		c.Monitor.ErrorDelta = 1
	}
	if c.Monitor.ConflictBacklog == 0 {
		c.Monitor.ConflictBacklog = 50
	}
	if c.Admin.TokenTTL == 0 {
		c.Admin.TokenTTL = time.Hour
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the parts that have no sensible default.
func (c *Config) Validate() error {
	if err := validation.ValidateInstanceID(c.Instance.ID); err != nil {
		return fmt.Errorf("invalid instance.id: %w", err)
	}
	for _, peer := range c.Peers {
		if err := validation.ValidateInstanceID(peer.ID); err != nil {
			return fmt.Errorf("invalid peer id %q: %w", peer.ID, err)
		}
		if peer.ID == c.Instance.ID {
			return fmt.Errorf("peer %q duplicates the local instance id", peer.ID)
		}
		if peer.BaseURL == "" {
			return fmt.Errorf("peer %q has no base_url", peer.ID)
		}
	}
	if c.Admin.Username != "" && c.Admin.PasswordHash == "" {
		return fmt.Errorf("admin.username set without admin.password_hash")
	}
	if c.Admin.Username != "" && c.Admin.JWTSecret == "" {
		return fmt.Errorf("admin.username set without admin.jwt_secret")
	}
	return nil
}
