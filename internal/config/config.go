// Package config provides configuration parsing and validation for Rosetta.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration shared by the server and
// client entry points. Both binaries parse the same file shape and simply
// read the sections relevant to them.
type Config struct {
	Log    LogConfig    `yaml:"log"`
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// ServerConfig configures the Rosetta relay server.
type ServerConfig struct {
	// ListenAddress is the TCP address to accept connections on.
	// Default ":54746" per the reference protocol's fixed port.
	ListenAddress string `yaml:"listen_address"`

	// DataDir holds server_privkey.dat and the saved_{M,Q,G,Gm}.dat group
	// parameter files consumed at startup.
	DataDir string `yaml:"data_dir"`

	// MetricsAddress, if non-empty, serves Prometheus metrics over HTTP.
	MetricsAddress string `yaml:"metrics_address"`
}

// ClientConfig configures the Rosetta client library / CLI harness.
type ClientConfig struct {
	// ServerAddress is the relay server's TCP address to dial.
	ServerAddress string `yaml:"server_address"`

	// DataDir holds the client's save file (§4.2) and server_pubkey.dat.
	DataDir string `yaml:"data_dir"`

	// JoinTimeout bounds how long the client waits for a join-room reply
	// before surfacing a timeout to the caller (§5: "no retry is performed
	// by the core").
	JoinTimeout time.Duration `yaml:"join_timeout"`

	// PollInterval is the cadence of the background poller thread.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollTimeout bounds a single poll round-trip.
	PollTimeout time.Duration `yaml:"poll_timeout"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			ListenAddress: ":54746",
			DataDir:       "./data",
		},
		Client: ClientConfig{
			ServerAddress: "127.0.0.1:54746",
			DataDir:       "./data",
			JoinTimeout:   10 * time.Second,
			PollInterval:  2 * time.Second,
			PollTimeout:   10 * time.Second,
		},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes, expanding ${VAR}/$VAR
// references against the process environment before unmarshaling.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces environment variable references with their values.
// Supports ${VAR:-default} for default values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		if idx := strings.Index(name, ":-"); idx != -1 {
			varName := name[:idx]
			defaultVal := name[idx+2:]
			if val, ok := os.LookupEnv(varName); ok {
				return val
			}
			return defaultVal
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if !isValidLogLevel(c.Log.Level) {
		errs = append(errs, fmt.Sprintf("invalid log.level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}
	if !isValidLogFormat(c.Log.Format) {
		errs = append(errs, fmt.Sprintf("invalid log.format: %s (must be text or json)", c.Log.Format))
	}

	if c.Server.ListenAddress == "" {
		errs = append(errs, "server.listen_address is required")
	}
	if c.Server.DataDir == "" {
		errs = append(errs, "server.data_dir is required")
	}

	if c.Client.ServerAddress == "" {
		errs = append(errs, "client.server_address is required")
	}
	if c.Client.DataDir == "" {
		errs = append(errs, "client.data_dir is required")
	}
	if c.Client.JoinTimeout <= 0 {
		errs = append(errs, "client.join_timeout must be positive")
	}
	if c.Client.PollInterval <= 0 {
		errs = append(errs, "client.poll_interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func isValidLogFormat(format string) bool {
	switch format {
	case "text", "json":
		return true
	default:
		return false
	}
}

// String returns a YAML representation of the config for debugging.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}
