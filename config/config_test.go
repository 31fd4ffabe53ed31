package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeTemp(t, "config.json", `{
		"app_name": "TestApp",
		"listen_ip": "127.0.0.1",
		"listen_port": 9090,
		"session_key": "test-session-key",
		"database_path": "/tmp/journal.db"
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.AppName != "TestApp" {
		t.Errorf("Expected AppName 'TestApp', got '%s'", cfg.AppName)
	}
	if cfg.ListenIP != "127.0.0.1" {
		t.Errorf("Expected ListenIP '127.0.0.1', got '%s'", cfg.ListenIP)
	}
	if cfg.ListenPort != 9090 {
		t.Errorf("Expected ListenPort 9090, got %d", cfg.ListenPort)
	}
	if cfg.SessionKey != "test-session-key" {
		t.Errorf("Expected SessionKey 'test-session-key', got '%s'", cfg.SessionKey)
	}
	if cfg.DatabasePath != "/tmp/journal.db" {
		t.Errorf("Expected DatabasePath '/tmp/journal.db', got '%s'", cfg.DatabasePath)
	}
	// untouched fields keep their defaults
	if cfg.UploadDir != "static/uploads" {
		t.Errorf("Expected default UploadDir, got '%s'", cfg.UploadDir)
	}
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeTemp(t, "config.yaml", "app_name: YamlApp\nlisten_port: 7070\npassword_hasher: argon2id\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.AppName != "YamlApp" || cfg.ListenPort != 7070 {
		t.Errorf("YAML values not applied: %+v", cfg)
	}
	if cfg.PasswordHasher != "argon2id" {
		t.Errorf("Expected argon2id hasher, got %s", cfg.PasswordHasher)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeTemp(t, "config.json", `{"session_key": "from-file", "listen_port": 9090}`)
	t.Setenv("DAYBOOK_SESSION_KEY", "from-env")
	t.Setenv("DAYBOOK_UPLOAD_DIR", "/var/daybook")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SessionKey != "from-env" {
		t.Errorf("Expected env session key, got %s", cfg.SessionKey)
	}
	if cfg.UploadDir != "/var/daybook" {
		t.Errorf("Expected env upload dir, got %s", cfg.UploadDir)
	}
	if cfg.ListenPort != 9090 {
		t.Errorf("Expected file port to survive env parsing, got %d", cfg.ListenPort)
	}
}

func TestLoadConfigGeneratesSessionKey(t *testing.T) {
	path := writeTemp(t, "config.json", `{"session_key": "CHANGE_ME_IN_PRODUCTION"}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SessionKey == "" || cfg.SessionKey == placeholderKey {
		t.Error("Expected a generated session key")
	}
	if len(cfg.SessionKey) != 64 {
		t.Errorf("Expected 32 random bytes hex encoded, got %d chars", len(cfg.SessionKey))
	}
}

func TestLoadConfigNoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load without file failed: %v", err)
	}
	if cfg.DatabaseDriver != "sqlite3" {
		t.Errorf("Expected default driver sqlite3, got %s", cfg.DatabaseDriver)
	}
}

func TestLoadConfigInvalidPath(t *testing.T) {
	if _, err := Load("non-existent-path.json"); err == nil {
		t.Error("Load with non-existent path should have failed")
	}
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	path := writeTemp(t, "invalid_config.json", `{ "invalid": json }`)

	if _, err := Load(path); err == nil {
		t.Error("Load with invalid JSON should have failed")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.DatabaseDriver = "postgres" }},
		{"unknown backend", func(c *Config) { c.UploadBackend = "ftp" }},
		{"s3 without bucket", func(c *Config) { c.UploadBackend = "s3" }},
		{"unknown hasher", func(c *Config) { c.PasswordHasher = "md5" }},
		{"zero upload size", func(c *Config) { c.MaxUploadSize = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}

	if err := Defaults().Validate(); err != nil {
		t.Errorf("Defaults should be valid: %v", err)
	}
}
