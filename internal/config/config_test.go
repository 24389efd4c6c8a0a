package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Host = %q, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Relay.CommandQueueSize != 100 {
		t.Errorf("CommandQueueSize = %d, want 100", cfg.Relay.CommandQueueSize)
	}
	if cfg.Relay.BusCapacity != 100 {
		t.Errorf("BusCapacity = %d, want 100", cfg.Relay.BusCapacity)
	}
	if cfg.Relay.MailboxCapacity != 16 {
		t.Errorf("MailboxCapacity = %d, want 16", cfg.Relay.MailboxCapacity)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9000
  auth_token: sekrit
  allowed_origins:
    - https://pad.example.com
relay:
  mailbox_capacity: 32
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.AuthToken != "sekrit" {
		t.Errorf("AuthToken = %q, want sekrit", cfg.Server.AuthToken)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://pad.example.com" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Relay.MailboxCapacity != 32 {
		t.Errorf("MailboxCapacity = %d, want 32", cfg.Relay.MailboxCapacity)
	}
	// Untouched keys keep their defaults.
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Host = %q, want default", cfg.Server.Host)
	}
	if cfg.Relay.BusCapacity != 100 {
		t.Errorf("BusCapacity = %d, want default", cfg.Relay.BusCapacity)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("RELAY_PORT", "9001")
	t.Setenv("RELAY_AUTH_TOKEN", "from-env")
	t.Setenv("RELAY_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9001 {
		t.Errorf("Port = %d, want env override 9001", cfg.Server.Port)
	}
	if cfg.Server.AuthToken != "from-env" {
		t.Errorf("AuthToken = %q, want from-env", cfg.Server.AuthToken)
	}
	if len(cfg.Server.AllowedOrigins) != 2 {
		t.Errorf("AllowedOrigins = %v, want two entries", cfg.Server.AllowedOrigins)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
