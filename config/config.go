package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	log "github.com/sirupsen/logrus"
)

const (
	NetworkModeTor    = "tor"
	NetworkModeDirect = "direct"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config represents the configuration of the tracker
type Config struct {
	// Default config file location
	configFile string

	// Our own identity as announced to peers in every Ping
	Tracker struct {
		OnionAddress  string `yaml:"onion_address"`
		Port          uint16 `yaml:"port"`
		ListenAddress string `yaml:"listen"`
	} `yaml:"tracker"`

	Monitor struct {
		Cooldown       time.Duration `yaml:"cooldown"`
		Attempts       uint64        `yaml:"attempts"`
		RetryBackoff   time.Duration `yaml:"retry_backoff"`
		AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	} `yaml:"monitor"`

	// Outbound connections go through Tor unless mode is "direct"
	Network struct {
		Mode         string `yaml:"mode"`
		SocksAddress string `yaml:"socks"`
	} `yaml:"network"`

	DataStore struct {
		MempoolPath string `yaml:"mempool"`
	} `yaml:"datastore"`

	Metrics struct {
		ListenAddress string `yaml:"listen"`
	} `yaml:"metrics"`

	Log struct {
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
	} `yaml:"log"`
}

// NewEmptyConfig generates a new configuration with default settings
func NewEmptyConfig(configFile string) *Config {
	cfg := &Config{}

	cfg.configFile = configFile

	cfg.Tracker.Port = 8080
	cfg.Tracker.ListenAddress = "127.0.0.1:8080"

	cfg.Monitor.Cooldown = 15 * time.Minute
	cfg.Monitor.Attempts = 3
	cfg.Monitor.RetryBackoff = 1 * time.Second
	cfg.Monitor.AttemptTimeout = 30 * time.Second

	cfg.Network.Mode = NetworkModeTor
	cfg.Network.SocksAddress = "127.0.0.1:9050"

	cfg.DataStore.MempoolPath = "/tmp/sentinel/mempool"

	cfg.Log.MaxSizeMB = 100
	cfg.Log.MaxBackups = 3

	return cfg
}

func NewConfigFromFile(configFile string) (*Config, error) {
	cfg := NewEmptyConfig(configFile)
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves the configuration to a file
func (c *Config) Save() error {
	log.Infof("Saving config to %s", c.configFile)

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.configFile, data, 0644)
}

func (c *Config) Load() error {
	log.Infof("Loading config from %s", c.configFile)
	data, err := os.ReadFile(c.configFile)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

func (c *Config) Validate() error {
	switch c.Network.Mode {
	case NetworkModeTor:
		if c.Network.SocksAddress == "" {
			return fmt.Errorf("%w: network.socks is required in %q mode", ErrInvalidConfig, NetworkModeTor)
		}
	case NetworkModeDirect:
	default:
		return fmt.Errorf("%w: unknown network.mode %q", ErrInvalidConfig, c.Network.Mode)
	}

	if c.Tracker.OnionAddress == "" {
		return fmt.Errorf("%w: tracker.onion_address is required", ErrInvalidConfig)
	}
	if c.Monitor.Cooldown <= 0 {
		return fmt.Errorf("%w: monitor.cooldown must be positive", ErrInvalidConfig)
	}
	if c.Monitor.Attempts == 0 {
		return fmt.Errorf("%w: monitor.attempts must be at least 1", ErrInvalidConfig)
	}
	return nil
}
