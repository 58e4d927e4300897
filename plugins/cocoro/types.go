package cocoro

import (
	"fmt"
	"strings"
	"time"
)

// Mode is a humidity-mode command value.
type Mode string

const (
	ModeOn  Mode = "on"
	ModeOff Mode = "off"
)

// ParseMode validates a user-supplied mode string.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeOn:
		return ModeOn, nil
	case ModeOff:
		return ModeOff, nil
	}
	return "", &InvalidArgumentError{Field: "mode", Value: value, Reason: "must be either 'on' or 'off'"}
}

func (m Mode) wireValue() string {
	if m == ModeOn {
		return "FF"
	}
	return "00"
}

func (m Mode) Bool() bool {
	return m == ModeOn
}

func ModeFromBool(on bool) Mode {
	if on {
		return ModeOn
	}
	return ModeOff
}

// Device is a unit registered to the account.
type Device struct {
	ID        string `json:"device_id" yaml:"device_id"`
	Name      string `json:"name" yaml:"name"`
	ModelName string `json:"model_name" yaml:"model_name"`
	Online    bool   `json:"online" yaml:"online"`
}

// Snapshot is one decoded status read. Nil fields were absent or malformed.
type Snapshot struct {
	DeviceID     string    `json:"device_id" yaml:"device_id"`
	Temperature  *int      `json:"temperature" yaml:"temperature"`
	Humidity     *int      `json:"humidity" yaml:"humidity"`
	WaterTank    *bool     `json:"water_tank" yaml:"water_tank"`
	HumidityMode *bool     `json:"humidity_mode" yaml:"humidity_mode"`
	FetchedAt    time.Time `json:"fetched_at" yaml:"fetched_at"`
}

func (s Snapshot) String() string {
	return fmt.Sprintf("temperature=%s humidity=%s water_tank=%s humidity_mode=%s",
		intString(s.Temperature), intString(s.Humidity), boolString(s.WaterTank), boolString(s.HumidityMode))
}

func intString(v *int) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%d", *v)
}

func boolString(v *bool) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%t", *v)
}
