package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %s, want info", cfg.Log.Level)
	}
	if cfg.Server.ListenAddress != ":54746" {
		t.Errorf("Server.ListenAddress = %s, want :54746", cfg.Server.ListenAddress)
	}
	if cfg.Client.JoinTimeout != 10*time.Second {
		t.Errorf("Client.JoinTimeout = %s, want 10s", cfg.Client.JoinTimeout)
	}
	if cfg.Client.PollInterval != 2*time.Second {
		t.Errorf("Client.PollInterval = %s, want 2s", cfg.Client.PollInterval)
	}
}

func TestParse_ValidConfig(t *testing.T) {
	yamlConfig := `
log:
  level: debug
  format: json

server:
  listen_address: "0.0.0.0:54746"
  data_dir: "/var/lib/rosetta"
  metrics_address: ":9090"

client:
  server_address: "relay.example.com:54746"
  data_dir: "./client-data"
  join_timeout: 5s
  poll_interval: 1s
  poll_timeout: 5s
`
	cfg, err := Parse([]byte(yamlConfig))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %s, want debug", cfg.Log.Level)
	}
	if cfg.Server.ListenAddress != "0.0.0.0:54746" {
		t.Errorf("Server.ListenAddress = %s", cfg.Server.ListenAddress)
	}
	if cfg.Client.ServerAddress != "relay.example.com:54746" {
		t.Errorf("Client.ServerAddress = %s", cfg.Client.ServerAddress)
	}
	if cfg.Client.JoinTimeout != 5*time.Second {
		t.Errorf("Client.JoinTimeout = %s, want 5s", cfg.Client.JoinTimeout)
	}
}

func TestParse_InvalidLogLevel(t *testing.T) {
	yamlConfig := `
log:
  level: noisy
  format: text
`
	_, err := Parse([]byte(yamlConfig))
	if err == nil {
		t.Fatal("expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "log.level") {
		t.Errorf("error should mention log.level, got: %v", err)
	}
}

func TestParse_EnvVarExpansion(t *testing.T) {
	os.Setenv("ROSETTA_TEST_ADDR", "10.0.0.5:54746")
	defer os.Unsetenv("ROSETTA_TEST_ADDR")

	yamlConfig := `
server:
  listen_address: "${ROSETTA_TEST_ADDR}"
  data_dir: "./data"
`
	cfg, err := Parse([]byte(yamlConfig))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Server.ListenAddress != "10.0.0.5:54746" {
		t.Errorf("ListenAddress = %s, want expanded env var", cfg.Server.ListenAddress)
	}
}

func TestParse_EnvVarDefault(t *testing.T) {
	yamlConfig := `
server:
  listen_address: "${ROSETTA_UNSET_VAR:-:54746}"
  data_dir: "./data"
`
	cfg, err := Parse([]byte(yamlConfig))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Server.ListenAddress != ":54746" {
		t.Errorf("ListenAddress = %s, want default value", cfg.Server.ListenAddress)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rosetta.yaml")

	content := []byte(`
log:
  level: warn
  format: text
server:
  listen_address: ":54746"
  data_dir: "./data"
client:
  server_address: "127.0.0.1:54746"
  data_dir: "./data"
  join_timeout: 10s
  poll_interval: 2s
  poll_timeout: 10s
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %s, want warn", cfg.Log.Level)
	}
}

func TestValidate_MissingRequiredFields(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for empty config")
	}
}

func TestString_IncludesListenAddress(t *testing.T) {
	cfg := Default()
	out := cfg.String()
	if !strings.Contains(out, "listen_address") {
		t.Errorf("String() output missing listen_address: %s", out)
	}
}
