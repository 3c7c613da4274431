package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	contents := `{
  "hostAddress": "127.0.0.1",
  "hostPort": 12345,
  "maxConnections": 64,
  "logging": {"log_level": "debug"}
}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig() returned error: %v", err)
	}

	if cfg.HostAddress != "127.0.0.1" {
		t.Errorf("HostAddress = %q, want %q", cfg.HostAddress, "127.0.0.1")
	}
	if cfg.HostPort != 12345 {
		t.Errorf("HostPort = %d, want %d", cfg.HostPort, 12345)
	}
	if cfg.MaxConnections != 64 {
		t.Errorf("MaxConnections = %d, want %d", cfg.MaxConnections, 64)
	}
	if cfg.Logging.LogLevel != "debug" {
		t.Errorf("Logging.LogLevel = %q, want %q", cfg.Logging.LogLevel, "debug")
	}

	// Keys absent from the file fall back to their defaults.
	if cfg.UpdateInterval != 0.05 {
		t.Errorf("UpdateInterval = %v, want default 0.05", cfg.UpdateInterval)
	}
	if cfg.BannedIPsFile != "banned_ips.json" {
		t.Errorf("BannedIPsFile = %q, want default", cfg.BannedIPsFile)
	}
}

func TestConfig_ListenAddress(t *testing.T) {
	cfg := &Config{HostAddress: "0.0.0.0", HostPort: 7777}
	if got, want := cfg.ListenAddress(), "0.0.0.0:7777"; got != want {
		t.Errorf("ListenAddress() = %q, want %q", got, want)
	}
}

func TestConfig_BroadcastInterval(t *testing.T) {
	cfg := &Config{UpdateInterval: 0.05}
	if got, want := cfg.BroadcastInterval(), 50*time.Millisecond; got != want {
		t.Errorf("BroadcastInterval() = %v, want %v", got, want)
	}
}
