package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RadiusAuthPort != 1812 || cfg.RadiusAcctPort != 1813 || cfg.RadiusCoAPort != 3799 {
		t.Errorf("default ports = %d/%d/%d", cfg.RadiusAuthPort, cfg.RadiusAcctPort, cfg.RadiusCoAPort)
	}
	if cfg.DBPort != 5432 {
		t.Errorf("default db port = %d", cfg.DBPort)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RADIUS_PORT", "2812")
	t.Setenv("RADIUS_ACCT_PORT", "2813")
	t.Setenv("REQUIRE_MESSAGE_AUTH", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RadiusAuthPort != 2812 || cfg.RadiusAcctPort != 2813 {
		t.Errorf("env ports not applied: %d/%d", cfg.RadiusAuthPort, cfg.RadiusAcctPort)
	}
	if !cfg.RequireMessageAuth {
		t.Error("REQUIRE_MESSAGE_AUTH not applied")
	}
}

func TestLoadYAMLFileUnderEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("radius_port: 3812\nlog_level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LOG_LEVEL", "warn") // env wins over the file

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RadiusAuthPort != 3812 {
		t.Errorf("yaml port = %d, want 3812", cfg.RadiusAuthPort)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("log level = %q, env must override the file", cfg.LogLevel)
	}
}

func TestLoadRejectsBadPorts(t *testing.T) {
	t.Setenv("RADIUS_PORT", "70000")
	if _, err := Load(); err == nil {
		t.Fatal("out-of-range port accepted")
	}

	t.Setenv("RADIUS_PORT", "1813")
	if _, err := Load(); err == nil {
		t.Fatal("colliding auth/acct ports accepted")
	}
}

func TestAdminSecretGenerated(t *testing.T) {
	t.Setenv("ADMIN_PORT", "8080")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.JWTSecret == "" {
		t.Error("admin surface enabled without a JWT secret")
	}
}
