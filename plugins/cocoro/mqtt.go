package cocoro

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"
)

// MQTTConfig configures the optional MQTT bridge.
type MQTTConfig struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
	Interval    time.Duration
}

type mqttTopics struct {
	state        string
	availability string
	command      string
}

func newMQTTTopics(prefix, deviceID string) mqttTopics {
	base := strings.TrimRight(prefix, "/") + "/" + deviceID
	return mqttTopics{
		state:        base + "/state",
		availability: base + "/availability",
		command:      base + "/humidity_mode/set",
	}
}

// MQTTBridge publishes snapshots and accepts humidity-mode commands.
type MQTTBridge struct {
	client  mqtt.Client
	monitor *Monitor
	topics  mqttTopics
	logger  *slog.Logger
	cancel  context.CancelFunc
	done    chan struct{}
}

// StartMQTTBridge connects to the broker and starts publishing at cfg.Interval.
func StartMQTTBridge(ctx context.Context, cfg MQTTConfig, monitor *Monitor, logger *slog.Logger) (*MQTTBridge, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	if monitor.deviceID == "" {
		return nil, ErrMissingDeviceID
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultPollInterval
	}

	b := &MQTTBridge{
		monitor: monitor,
		topics:  newMQTTTopics(cfg.TopicPrefix, monitor.deviceID),
		logger:  logger.With("component", "mqtt"),
		done:    make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	if strings.HasPrefix(cfg.Broker, "ssl://") || strings.HasPrefix(cfg.Broker, "tls://") {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetClientID("gohome-cocoro-" + randomSuffix())
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetWill(b.topics.availability, payloadOffline, 1, true)
	opts.OnConnect = func(client mqtt.Client) {
		if token := client.Subscribe(b.topics.command, 1, b.onCommand); token.Wait() && token.Error() != nil {
			b.logger.Error("subscribe failed", "topic", b.topics.command, "error", token.Error())
		}
		b.publish(b.topics.availability, []byte(payloadOnline), true)
	}

	b.client = mqtt.NewClient(opts)
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	ctx, b.cancel = context.WithCancel(ctx)
	go b.run(ctx, cfg.Interval)
	return b, nil
}

func (b *MQTTBridge) run(ctx context.Context, interval time.Duration) {
	defer close(b.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	b.publishState(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.publishState(ctx)
		}
	}
}

// Stop halts publishing and disconnects, marking the device offline.
func (b *MQTTBridge) Stop() {
	b.cancel()
	<-b.done
	b.publish(b.topics.availability, []byte(payloadOffline), true)
	b.client.Disconnect(250)
}

func (b *MQTTBridge) publishState(ctx context.Context) {
	cached := b.monitor.Current(ctx)
	payload, err := statePayload(cached)
	if err != nil {
		b.logger.Error("encode state failed", "error", err)
		return
	}
	b.publish(b.topics.state, payload, true)
}

func (b *MQTTBridge) publish(topic string, payload []byte, retained bool) {
	if token := b.client.Publish(topic, 1, retained, payload); token.Wait() && token.Error() != nil {
		b.logger.Warn("publish failed", "topic", topic, "error", token.Error())
	}
}

func (b *MQTTBridge) onCommand(_ mqtt.Client, msg mqtt.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	if err := handleModeCommand(ctx, b.monitor, msg.Payload()); err != nil {
		b.logger.Warn("humidity mode command failed", "payload", string(msg.Payload()), "error", err)
		return
	}
	b.publishState(ctx)
}

// handleModeCommand applies an "on"/"off" payload.
func handleModeCommand(ctx context.Context, monitor *Monitor, payload []byte) error {
	mode, err := ParseMode(string(payload))
	if err != nil {
		return err
	}
	return monitor.SetHumidityMode(ctx, mode)
}

type statePayloadJSON struct {
	Temperature  *int    `json:"temperature"`
	Humidity     *int    `json:"humidity"`
	WaterTank    *bool   `json:"water_tank"`
	HumidityMode *string `json:"humidity_mode"`
	Stale        bool    `json:"stale"`
	UpdatedAt    int64   `json:"updated_at"`
}

func statePayload(cached cachedSnapshot) ([]byte, error) {
	s := cached.snapshot
	out := statePayloadJSON{
		Temperature: s.Temperature,
		Humidity:    s.Humidity,
		WaterTank:   s.WaterTank,
		Stale:       !cached.success,
	}
	if s.HumidityMode != nil {
		mode := string(ModeFromBool(*s.HumidityMode))
		out.HumidityMode = &mode
	}
	if !s.FetchedAt.IsZero() {
		out.UpdatedAt = s.FetchedAt.Unix()
	}
	return json.Marshal(out)
}

func randomSuffix() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
