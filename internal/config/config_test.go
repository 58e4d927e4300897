package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cocoro.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
schema_version: 1
core:
  http_addr: 127.0.0.1:8081
log:
  level: debug
  format: json
session:
  backend: file
  path: /tmp/sessions
cocoro:
  email: user@example.com
  password: secret
  device_id: dev-1
  model_name: KI-ND50
  poll_interval: 2m
mqtt:
  broker: tcp://broker:1883
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Core.HTTPAddr != "127.0.0.1:8081" || cfg.Core.GRPCAddr != DefaultGRPCAddr {
		t.Fatalf("unexpected core config: %+v", cfg.Core)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected log config: %+v", cfg.Log)
	}
	if cfg.Cocoro == nil || cfg.Cocoro.DeviceID != "dev-1" || cfg.Cocoro.PollInterval != 2*time.Minute {
		t.Fatalf("unexpected cocoro config: %+v", cfg.Cocoro)
	}
	if cfg.MQTT == nil || cfg.MQTT.TopicPrefix != DefaultTopicPrefix {
		t.Fatalf("expected default topic prefix: %+v", cfg.MQTT)
	}
	if !EnabledPlugins(cfg)["cocoro"] {
		t.Fatalf("expected cocoro enabled")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Session.Backend != DefaultSessionStore || cfg.Session.Path != DefaultSessionPath {
		t.Fatalf("unexpected session defaults: %+v", cfg.Session)
	}
	if cfg.Cocoro != nil {
		t.Fatalf("cocoro should be disabled without config")
	}
	if len(EnabledPlugins(cfg)) != 0 {
		t.Fatalf("expected no enabled plugins")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GOHOME_COCORO_EMAIL", "env@example.com")
	t.Setenv("GOHOME_COCORO_PASSWORD", "from-env")

	path := writeConfig(t, `
cocoro:
  email: file@example.com
  password: file
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Cocoro.Email != "env@example.com" || cfg.Cocoro.Password != "from-env" {
		t.Fatalf("env should override file: %+v", cfg.Cocoro)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			SchemaVersion: SchemaVersion,
			Core:          CoreConfig{GRPCAddr: DefaultGRPCAddr, HTTPAddr: DefaultHTTPAddr},
			Session:       SessionConfig{Backend: "none"},
			Cocoro:        &CocoroConfig{Email: "user@example.com", Password: "secret", DeviceID: "dev-1"},
		}
	}

	if err := Validate(base()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := map[string]func(*Config){
		"schema":        func(c *Config) { c.SchemaVersion = 2 },
		"backend":       func(c *Config) { c.Session.Backend = "redis" },
		"bolt path":     func(c *Config) { c.Session.Backend = "bolt" },
		"s3 fields":     func(c *Config) { c.Session.Backend = "s3" },
		"email":         func(c *Config) { c.Cocoro.Email = " " },
		"password":      func(c *Config) { c.Cocoro.Password = "" },
		"poll interval": func(c *Config) { c.Cocoro.PollInterval = 10 * time.Second },
		"mqtt broker":   func(c *Config) { c.MQTT = &MQTTConfig{} },
		"mqtt device": func(c *Config) {
			c.MQTT = &MQTTConfig{Broker: "tcp://broker:1883"}
			c.Cocoro.DeviceID = ""
		},
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(cfg)
		if err := Validate(cfg); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestReadSecret(t *testing.T) {
	got, err := ReadSecret("inline", "")
	if err != nil || got != "inline" {
		t.Fatalf("inline secret: %q, %v", got, err)
	}

	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte("from-file\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	got, err = ReadSecret("inline", path)
	if err != nil || got != "from-file" {
		t.Fatalf("file secret: %q, %v", got, err)
	}

	if _, err := ReadSecret("", filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error for missing secret file")
	}
}
