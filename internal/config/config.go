// Package config loads the wsechod server configuration from a YAML file.
//
// The file is optional; every field has a sensible default and flags win
// over file values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration file.
//
// Example:
//
//	listen: ":8080"
//	path: /ws
//	log_level: info
//	max_frame_size: 1048576
//	max_message_size: 4194304
//	ping_interval: 30s
//	close_timeout: 5s
type Config struct {
	// Listen is the host:port the HTTP server binds.
	Listen string `yaml:"listen"`

	// Path is the WebSocket endpoint path.
	Path string `yaml:"path"`

	// LogLevel is one of debug, info, warn, error. Empty disables logging.
	LogLevel string `yaml:"log_level,omitempty"`

	// MaxFrameSize bounds a single inbound frame payload in bytes.
	MaxFrameSize int64 `yaml:"max_frame_size,omitempty"`

	// MaxMessageSize bounds an assembled inbound message in bytes.
	MaxMessageSize int64 `yaml:"max_message_size,omitempty"`

	// PingInterval is the keep-alive ping period; zero disables pings.
	PingInterval time.Duration `yaml:"ping_interval,omitempty"`

	// CloseTimeout bounds the wait for a close acknowledgment.
	CloseTimeout time.Duration `yaml:"close_timeout,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:       ":8080",
		Path:         "/ws",
		CloseTimeout: 5 * time.Second,
	}
}

// Load reads a YAML configuration file merged over the defaults.
// An empty path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}
