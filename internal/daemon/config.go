// Package daemon manages the configuration and lifecycle of one general's
// peer process.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/quorum-sim/generals/internal/domain"
)

// Config holds the simulator configuration shared by the launcher and
// every peer it spawns.
type Config struct {
	Cluster   ClusterConfig   `toml:"cluster"`
	Logging   LoggingConfig   `toml:"logging"`
	Journal   JournalConfig   `toml:"journal"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// ClusterConfig places the generals on the network.
type ClusterConfig struct {
	Host     string `toml:"host"`
	BasePort int    `toml:"base_port"` // general N listens on base_port+N

	CallTimeout    string `toml:"call_timeout"`    // one peer-to-peer call
	CommandTimeout string `toml:"command_timeout"` // one launcher command, a full round included
	StartTimeout   string `toml:"start_timeout"`   // readiness of a spawned peer
	WatchInterval  string `toml:"watch_interval"`  // launcher health probes
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// JournalConfig controls the launcher's command journal.
type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// TelemetryConfig controls the /metrics endpoint.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	homeDir := generalsHome()
	return Config{
		Cluster: ClusterConfig{
			Host:           "127.0.0.1",
			BasePort:       18800,
			CallTimeout:    "5s",
			CommandTimeout: "60s",
			StartTimeout:   "10s",
			WatchInterval:  "2s",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(homeDir, "generals.log"),
		},
		Journal: JournalConfig{
			Enabled: true,
			Dir:     homeDir,
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
	}
}

// LoadConfig reads config from ~/.generals/config.toml, falling back to
// defaults.
func LoadConfig() (Config, error) {
	return LoadConfigFile(filepath.Join(generalsHome(), "config.toml"))
}

// LoadConfigFile decodes path over the defaults. A missing file is not
// an error.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects values no cluster can run with.
func (c Config) Validate() error {
	if c.Cluster.Host == "" {
		return fmt.Errorf("cluster.host must not be empty")
	}
	if c.Cluster.BasePort <= 0 || c.Cluster.BasePort > 65000 {
		return fmt.Errorf("cluster.base_port %d out of range", c.Cluster.BasePort)
	}
	for name, s := range map[string]string{
		"call_timeout":    c.Cluster.CallTimeout,
		"command_timeout": c.Cluster.CommandTimeout,
		"start_timeout":   c.Cluster.StartTimeout,
		"watch_interval":  c.Cluster.WatchInterval,
	} {
		if s == "" {
			continue
		}
		if _, err := time.ParseDuration(s); err != nil {
			return fmt.Errorf("cluster.%s: %w", name, err)
		}
	}
	return nil
}

// SaveConfig writes the config to ~/.generals/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(generalsHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// Book returns the address book of the cluster.
func (c Config) Book() domain.AddressBook {
	return domain.AddressBook{Host: c.Cluster.Host, BasePort: c.Cluster.BasePort}
}

// CallTimeout bounds one peer-to-peer call.
func (c Config) CallTimeout() time.Duration {
	return parseDuration(c.Cluster.CallTimeout, 5*time.Second)
}

// CommandTimeout bounds one launcher command.
func (c Config) CommandTimeout() time.Duration {
	return parseDuration(c.Cluster.CommandTimeout, time.Minute)
}

// StartTimeout bounds how long a spawned peer may take to become ready.
func (c Config) StartTimeout() time.Duration {
	return parseDuration(c.Cluster.StartTimeout, 10*time.Second)
}

// WatchInterval is the pause between two health probes of the quorum.
func (c Config) WatchInterval() time.Duration {
	return parseDuration(c.Cluster.WatchInterval, 2*time.Second)
}

// generalsHome returns the data directory.
func generalsHome() string {
	if env := os.Getenv("GENERALS_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".generals")
}

// Home is exported for use by other packages.
func Home() string {
	return generalsHome()
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
