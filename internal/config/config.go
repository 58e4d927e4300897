package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	SchemaVersion       = 1
	DefaultPath         = "/etc/gohome/cocoro.yaml"
	DefaultGRPCAddr     = "0.0.0.0:9000"
	DefaultHTTPAddr     = "0.0.0.0:8080"
	DefaultDashboardDir = "/var/lib/gohome/dashboards"
	DefaultSessionPath  = "/var/lib/gohome/sessions.db"
	DefaultSessionStore = "bolt"
	DefaultTopicPrefix  = "gohome/cocoro"
	EnvPrefix           = "gohome"
)

// Config is the daemon and CLI configuration.
type Config struct {
	SchemaVersion int           `mapstructure:"schema_version"`
	Core          CoreConfig    `mapstructure:"core"`
	Log           LogConfig     `mapstructure:"log"`
	Session       SessionConfig `mapstructure:"session"`
	Cocoro        *CocoroConfig `mapstructure:"cocoro"`
	MQTT          *MQTTConfig   `mapstructure:"mqtt"`
}

type CoreConfig struct {
	GRPCAddr     string `mapstructure:"grpc_addr"`
	HTTPAddr     string `mapstructure:"http_addr"`
	DashboardDir string `mapstructure:"dashboard_dir"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SessionConfig selects where portal session cookies are persisted.
type SessionConfig struct {
	Backend string   `mapstructure:"backend"`
	Path    string   `mapstructure:"path"`
	S3      S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Endpoint      string `mapstructure:"endpoint"`
	Bucket        string `mapstructure:"bucket"`
	Prefix        string `mapstructure:"prefix"`
	Region        string `mapstructure:"region"`
	AccessKeyFile string `mapstructure:"access_key_file"`
	SecretKeyFile string `mapstructure:"secret_key_file"`
}

type CocoroConfig struct {
	Email         string        `mapstructure:"email"`
	Password      string        `mapstructure:"password"`
	PasswordFile  string        `mapstructure:"password_file"`
	DeviceID      string        `mapstructure:"device_id"`
	ModelName     string        `mapstructure:"model_name"`
	AppBaseURL    string        `mapstructure:"app_base_url"`
	PortalBaseURL string        `mapstructure:"portal_base_url"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RatePerMinute int           `mapstructure:"rate_per_minute"`
	RatePerDay    int           `mapstructure:"rate_per_day"`
}

type MQTTConfig struct {
	Broker       string `mapstructure:"broker"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	PasswordFile string `mapstructure:"password_file"`
	TopicPrefix  string `mapstructure:"topic_prefix"`
}

// envKeys are bound explicitly so env-only setups populate optional sections.
var envKeys = []string{
	"cocoro.email",
	"cocoro.password",
	"cocoro.password_file",
	"cocoro.device_id",
	"cocoro.model_name",
	"cocoro.poll_interval",
	"mqtt.broker",
	"mqtt.username",
	"mqtt.password",
	"mqtt.password_file",
}

// Load reads the YAML config (if present), applies env overrides and
// defaults, and validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("schema_version", SchemaVersion)
	v.SetDefault("core.grpc_addr", DefaultGRPCAddr)
	v.SetDefault("core.http_addr", DefaultHTTPAddr)
	v.SetDefault("core.dashboard_dir", DefaultDashboardDir)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("session.backend", DefaultSessionStore)
	v.SetDefault("session.path", DefaultSessionPath)
}

func applyDefaults(cfg *Config) {
	if cfg.Session.S3.Prefix == "" {
		cfg.Session.S3.Prefix = "gohome/sessions"
	}
	if cfg.MQTT != nil && cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = DefaultTopicPrefix
	}
}

// Validate enforces required invariants beyond field typing.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.SchemaVersion != SchemaVersion {
		return fmt.Errorf("schema_version must be %d", SchemaVersion)
	}
	if cfg.Core.GRPCAddr == "" {
		return fmt.Errorf("core.grpc_addr is required")
	}
	if cfg.Core.HTTPAddr == "" {
		return fmt.Errorf("core.http_addr is required")
	}

	switch cfg.Session.Backend {
	case "none":
	case "file", "bolt":
		if cfg.Session.Path == "" {
			return fmt.Errorf("session.path is required for the %s backend", cfg.Session.Backend)
		}
	case "s3":
		s3 := cfg.Session.S3
		if s3.Endpoint == "" || s3.Bucket == "" || s3.AccessKeyFile == "" || s3.SecretKeyFile == "" {
			return fmt.Errorf("session.s3 requires endpoint, bucket, access_key_file and secret_key_file")
		}
	default:
		return fmt.Errorf("unknown session.backend %q", cfg.Session.Backend)
	}

	if c := cfg.Cocoro; c != nil {
		if strings.TrimSpace(c.Email) == "" {
			return fmt.Errorf("cocoro.email is required")
		}
		if c.Password == "" && c.PasswordFile == "" {
			return fmt.Errorf("cocoro.password or cocoro.password_file is required")
		}
		if c.PollInterval != 0 && c.PollInterval < time.Minute {
			return fmt.Errorf("cocoro.poll_interval must be at least 1m")
		}
	}

	if m := cfg.MQTT; m != nil {
		if m.Broker == "" {
			return fmt.Errorf("mqtt.broker is required")
		}
		if cfg.Cocoro == nil || cfg.Cocoro.DeviceID == "" {
			return fmt.Errorf("mqtt requires cocoro.device_id")
		}
	}

	return nil
}

// EnabledPlugins maps enabled plugin IDs based on config presence.
func EnabledPlugins(cfg *Config) map[string]bool {
	enabled := make(map[string]bool)
	if cfg == nil {
		return enabled
	}
	if cfg.Cocoro != nil {
		enabled["cocoro"] = true
	}
	return enabled
}

// ReadSecret returns value, or the trimmed contents of file when set.
func ReadSecret(value, file string) (string, error) {
	if strings.TrimSpace(file) == "" {
		return value, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("read secret file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
