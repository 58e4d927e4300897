package cocoro

import (
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/joshp123/gohome-cocoro/internal/config"
	"github.com/joshp123/gohome-cocoro/internal/sessionstore"
)

const (
	defaultAppBaseURL    = "https://cocoroplusapp.jp.sharp"
	defaultPortalBaseURL = "https://cocoromembers.jp.sharp"

	defaultLoginTimeout    = 10 * time.Second
	defaultRequestTimeout  = 15 * time.Second
	defaultLoginBackoff    = 30 * time.Second
	defaultLoginBackoffMax = 15 * time.Minute
	defaultPollInterval    = 5 * time.Minute
	minPollInterval        = time.Minute

	defaultRatePerMinute = 30
	defaultRatePerDay    = 2000
)

// Config defines runtime configuration for the COCORO AIR client.
type Config struct {
	Email     string
	Password  string
	DeviceID  string
	ModelName string

	AppBaseURL    string
	PortalBaseURL string

	LoginTimeout    time.Duration
	RequestTimeout  time.Duration
	LoginBackoff    time.Duration
	LoginBackoffMax time.Duration
	PollInterval    time.Duration

	RatePerMinute int
	RatePerDay    int

	Logger *slog.Logger
	Store  sessionstore.Store
}

// ConfigFromSettings builds a client config from the loaded file config.
func ConfigFromSettings(cfg *config.CocoroConfig) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("cocoro config is required")
	}

	password, err := config.ReadSecret(cfg.Password, cfg.PasswordFile)
	if err != nil {
		return Config{}, fmt.Errorf("cocoro password: %w", err)
	}

	out := Config{
		Email:         strings.TrimSpace(cfg.Email),
		Password:      password,
		DeviceID:      strings.TrimSpace(cfg.DeviceID),
		ModelName:     strings.TrimSpace(cfg.ModelName),
		AppBaseURL:    cfg.AppBaseURL,
		PortalBaseURL: cfg.PortalBaseURL,
		PollInterval:  cfg.PollInterval,
		RatePerMinute: cfg.RatePerMinute,
		RatePerDay:    cfg.RatePerDay,
	}
	if err := out.validateCredentials(); err != nil {
		return Config{}, err
	}
	return out.withDefaults(), nil
}

func (c Config) validateCredentials() error {
	if c.Email == "" {
		return fmt.Errorf("cocoro email is required")
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return fmt.Errorf("cocoro email %q is invalid: %w", c.Email, err)
	}
	if c.Password == "" {
		return fmt.Errorf("cocoro password is required")
	}
	return nil
}

func (c Config) withDefaults() Config {
	c.AppBaseURL = strings.TrimRight(strings.TrimSpace(c.AppBaseURL), "/")
	if c.AppBaseURL == "" {
		c.AppBaseURL = defaultAppBaseURL
	}
	c.PortalBaseURL = strings.TrimRight(strings.TrimSpace(c.PortalBaseURL), "/")
	if c.PortalBaseURL == "" {
		c.PortalBaseURL = defaultPortalBaseURL
	}
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = defaultLoginTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.LoginBackoff <= 0 {
		c.LoginBackoff = defaultLoginBackoff
	}
	if c.LoginBackoffMax < c.LoginBackoff {
		c.LoginBackoffMax = defaultLoginBackoffMax
		if c.LoginBackoffMax < c.LoginBackoff {
			c.LoginBackoffMax = c.LoginBackoff
		}
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.PollInterval < minPollInterval {
		c.PollInterval = minPollInterval
	}
	if c.RatePerMinute <= 0 {
		c.RatePerMinute = defaultRatePerMinute
	}
	if c.RatePerDay <= 0 {
		c.RatePerDay = defaultRatePerDay
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
