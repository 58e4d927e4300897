package cocoro

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/joshp123/gohome-cocoro/internal/rate"
	"github.com/joshp123/gohome-cocoro/internal/sessionstore"
)

const (
	pathDiscover   = "/v1/cocoro-air/login"
	pathSSOView    = "/sic-front/sso/ExLoginViewAction.do"
	pathSSOAction  = "/sic-front/sso/A050101ExLoginAction.do"
	pathProperties = "/v1/cocoro-air/objects-conceal/air-cleaner"
	pathControl    = "/v1/cocoro-air/sync/air-cleaner"
	pathDevices    = "/v1/cocoro-air/devices"

	exsiteID       = "50130"
	loginSuccess   = "login=success"
	maxBodyBytes   = 1 << 20
	maxAuthRetries = 1
)

// Client talks to the COCORO AIR cloud portal for one account/device pair.
//
// The session is swapped under a mutex, but the re-login-and-retry path
// assumes a single caller: two callers hitting an expired session at the same
// time will each log in, and the later login replaces the earlier session.
type Client struct {
	cfg       Config
	logger    *slog.Logger
	transport http.RoundTripper
	store     sessionstore.Store
	storeKey  string
	backoff   *loginBackoff
	now       func() time.Time

	mu      sync.Mutex
	session *Session
}

// NewClient validates the credentials, applies defaults and restores a stored
// session when one is available. It does not contact the portal; the first login
// happens on Login or on the first data call.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.validateCredentials(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	decl := rate.Provider("cocoro").
		MaxRequestsPer(rate.Minute, cfg.RatePerMinute).
		MaxRequestsPer(rate.Day, cfg.RatePerDay).
		ReadHeaders(rate.StandardHeaders())
	guarded := rate.WrapHTTP(decl, &http.Client{})

	c := &Client{
		cfg:       cfg,
		logger:    cfg.Logger.With("plugin", "cocoro"),
		transport: guarded.Transport,
		store:     cfg.Store,
		storeKey:  sessionKey(cfg.Email),
		backoff:   newLoginBackoff(cfg.LoginBackoff, cfg.LoginBackoffMax),
		now:       time.Now,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.restoreSession(ctx)

	return c, nil
}

// DeviceID returns the configured device identifier, if any.
func (c *Client) DeviceID() string {
	return c.cfg.DeviceID
}

// Session returns the current session, or nil before the first login.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Login runs the SSO redirect chain and replaces the session on success.
// A failed login leaves the previous session in place.
func (c *Client) Login(ctx context.Context) error {
	session, err := c.authenticate(ctx)
	if err != nil {
		retryAt := c.backoff.fail(c.now())
		loginTotal.WithLabelValues("failure").Inc()
		c.logger.Warn("login failed", "error", err, "relogin_after", retryAt)
		return err
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	c.backoff.reset()
	loginTotal.WithLabelValues("success").Inc()
	c.logger.Info("login success")
	c.persistSession(ctx, session)
	return nil
}

func (c *Client) authenticate(ctx context.Context) (*Session, error) {
	session, err := newSession()
	if err != nil {
		return nil, &AuthenticationError{Step: "discover", Reason: "cookie jar", Err: err}
	}
	hc := &http.Client{Jar: session.jar, Transport: session.transport(c.transport, c.now), Timeout: c.cfg.LoginTimeout}

	redirectURL, err := c.discover(ctx, hc)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, redirectURL, nil)
	if err != nil {
		return nil, &AuthenticationError{Step: "sso", Reason: "build request", Err: err}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, &AuthenticationError{Step: "sso", Reason: "request failed", Err: err}
	}
	drain(resp)
	if !strings.HasSuffix(resp.Request.URL.Path, pathSSOView) {
		return nil, &AuthenticationError{Step: "sso", Reason: fmt.Sprintf("unexpected login page %s", resp.Request.URL.Redacted())}
	}

	form := url.Values{
		"memberId":    {c.cfg.Email},
		"password":    {c.cfg.Password},
		"captchaText": {"1"},
		"autoLogin":   {"on"},
		"exsiteId":    {exsiteID},
	}
	req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.PortalBaseURL+pathSSOAction, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &AuthenticationError{Step: "authenticate", Reason: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err = hc.Do(req)
	if err != nil {
		return nil, &AuthenticationError{Step: "authenticate", Reason: "request failed", Err: err}
	}
	drain(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, &AuthenticationError{Step: "authenticate", Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}
	if !strings.Contains(resp.Request.URL.String(), loginSuccess) {
		return nil, &AuthenticationError{Step: "authenticate", Reason: "portal did not report login=success"}
	}

	session.loggedInAt = c.now()
	return session, nil
}

func (c *Client) discover(ctx context.Context, hc *http.Client) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.AppBaseURL+pathDiscover, nil)
	if err != nil {
		return "", &AuthenticationError{Step: "discover", Reason: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	resp, err := hc.Do(req)
	if err != nil {
		return "", &AuthenticationError{Step: "discover", Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &AuthenticationError{Step: "discover", Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	var payload struct {
		RedirectURL string `json:"redirectUrl"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&payload); err != nil {
		return "", &AuthenticationError{Step: "discover", Reason: "decode response", Err: err}
	}
	redirect := strings.TrimSpace(payload.RedirectURL)
	if redirect == "" {
		return "", &AuthenticationError{Step: "discover", Reason: "response has no redirectUrl"}
	}
	if u, err := url.Parse(redirect); err != nil || u.Scheme == "" || u.Host == "" {
		return "", &AuthenticationError{Step: "discover", Reason: fmt.Sprintf("invalid redirectUrl %q", redirect)}
	}
	return redirect, nil
}

// reauthenticate is the implicit login used by data calls. It honours the
// failure backoff; explicit Login calls do not.
func (c *Client) reauthenticate(ctx context.Context) error {
	if until := c.backoff.blockedUntil(c.now()); !until.IsZero() {
		return &AuthenticationError{Step: "backoff", Reason: "recent login failed", RetryAt: until}
	}
	return c.Login(ctx)
}

// ListDevices returns the devices registered to the account.
func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	body, err := c.call(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.AppBaseURL+pathDevices, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return decodeDevices(body)
}

// SensorData reads and decodes the current status of a device.
func (c *Client) SensorData(ctx context.Context, deviceID string) (Snapshot, error) {
	if strings.TrimSpace(deviceID) == "" {
		return Snapshot{}, ErrMissingDeviceID
	}
	body, err := c.readProperties(ctx, deviceID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("sensor data: %w", err)
	}
	snapshot, err := decodeSnapshot(deviceID, body, c.now())
	if err != nil {
		c.logger.Error("decode sensor data failed", "error", err, "response", truncate(body))
		return Snapshot{}, fmt.Errorf("sensor data: %w", err)
	}
	c.logger.Debug("sensor data", "device_id", deviceID, "snapshot", snapshot.String())
	return snapshot, nil
}

// HumidityMode reports whether humidity mode is on for the configured device.
func (c *Client) HumidityMode(ctx context.Context) (bool, error) {
	deviceID := c.cfg.DeviceID
	if strings.TrimSpace(deviceID) == "" {
		return false, ErrMissingDeviceID
	}
	body, err := c.readProperties(ctx, deviceID)
	if err != nil {
		return false, fmt.Errorf("humidity mode: %w", err)
	}
	on, err := decodeHumidityMode(body)
	if err != nil {
		c.logger.Error("decode humidity mode failed", "error", err, "response", truncate(body))
		return false, fmt.Errorf("humidity mode: %w", err)
	}
	return on, nil
}

// SetHumidityMode switches humidity mode for the configured device. The mode
// is validated before any request is made.
func (c *Client) SetHumidityMode(ctx context.Context, mode Mode) error {
	if mode != ModeOn && mode != ModeOff {
		return &InvalidArgumentError{Field: "mode", Value: string(mode), Reason: "must be either 'on' or 'off'"}
	}
	deviceID := c.cfg.DeviceID
	if strings.TrimSpace(deviceID) == "" {
		return ErrMissingDeviceID
	}

	payload, err := json.Marshal(map[string]any{
		"additional_request": false,
		"deviceToken":        deviceID,
		"event_key":          "echonet_control",
		"data": []map[string]any{{
			"opc": opcodeControl,
			"odt": map[string]string{"s5": "00", fieldHumidityMode: mode.wireValue()},
		}},
		"model_name": c.cfg.ModelName,
	})
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}

	body, err := c.call(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AppBaseURL+pathControl, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		c.logger.Error("set humidity mode failed", "mode", mode, "error", err)
		return fmt.Errorf("set humidity mode: %w", err)
	}
	c.logger.Debug("set humidity mode", "mode", mode, "response", truncate(body))
	return nil
}

func (c *Client) readProperties(ctx context.Context, deviceID string) ([]byte, error) {
	query := url.Values{
		"device_id": {deviceID},
		"event_key": {"echonet_property"},
		"epc":       {"0x80+0x86"},
		"opc":       {"k1+k2+k3"},
		"count":     {"1"},
	}
	return c.call(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.AppBaseURL+pathProperties+"?"+query.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
}

// call issues one request and, on 401, performs at most one re-login and one
// retry. build is invoked per attempt so request bodies are fresh.
func (c *Client) call(ctx context.Context, build func(context.Context) (*http.Request, error)) ([]byte, error) {
	if c.Session() == nil {
		if err := c.reauthenticate(ctx); err != nil {
			return nil, err
		}
	}

	for attempt := 0; ; attempt++ {
		req, err := build(ctx)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		status, body, err := c.do(req)
		if err != nil {
			return nil, err
		}

		if status == http.StatusUnauthorized {
			if attempt >= maxAuthRetries {
				return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, ErrAuthorizationExpired)
			}
			reauthTotal.Inc()
			c.logger.Info("session expired, logging in again", "path", req.URL.Path)
			if err := c.reauthenticate(ctx); err != nil {
				return nil, err
			}
			continue
		}

		if status < 200 || status >= 300 {
			return nil, &HTTPStatusError{Status: status, Body: truncate(body)}
		}
		return body, nil
	}
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	hc := &http.Client{Transport: c.transport, Timeout: c.cfg.RequestTimeout}
	if session := c.Session(); session != nil {
		hc.Jar = session.jar
		hc.Transport = session.transport(c.transport, c.now)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	_ = resp.Body.Close()
}

func truncate(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit])
	}
	return string(body)
}

// IsTransient reports whether err is worth retrying on the next poll rather
// than needing operator attention.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var rateErr rate.RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status >= 500 || statusErr.Status == http.StatusTooManyRequests
	}
	var decodeErr *DecodeError
	var argErr *InvalidArgumentError
	if errors.As(err, &decodeErr) || errors.As(err, &argErr) || errors.Is(err, ErrMissingDeviceID) {
		return false
	}
	return !isAuthFailure(err)
}
