package cocoro

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	envelopeKey = "objects_aircleaner_020"

	opcodeSensor  = "k1"
	opcodeControl = "k3"

	fieldTemperature  = "s1"
	fieldHumidity     = "s2"
	fieldWaterTank    = "s6"
	fieldHumidityMode = "s7"

	// Seven digits keep every accepted value inside a 32-bit int.
	maxHexDigits = 7
)

// propertyBody is the part of the echonet_property response we read. Other
// top-level keys and non-object data items are ignored.
type propertyBody struct {
	Body struct {
		Data []json.RawMessage `json:"data"`
	} `json:"body"`
}

// opcodeFields holds the sub-object for one opcode, e.g. {"s1":"19","s2":"32"}.
type opcodeFields map[string]any

func decodeProperties(body []byte) ([]map[string]json.RawMessage, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	raw, ok := top[envelopeKey]
	if !ok {
		return nil, &DecodeError{Opcode: envelopeKey, Reason: "envelope missing"}
	}
	var envelope propertyBody
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &DecodeError{Opcode: envelopeKey, Reason: "malformed envelope: " + err.Error()}
	}

	items := make([]map[string]json.RawMessage, 0, len(envelope.Body.Data))
	for _, entry := range envelope.Body.Data {
		var item map[string]json.RawMessage
		if err := json.Unmarshal(entry, &item); err != nil || item == nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// findOpcode returns the first data item carrying the opcode.
func findOpcode(items []map[string]json.RawMessage, opcode string) (opcodeFields, error) {
	for _, item := range items {
		raw, ok := item[opcode]
		if !ok {
			continue
		}
		var fields opcodeFields
		if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
			return nil, &DecodeError{Opcode: opcode, Reason: "not an object"}
		}
		return fields, nil
	}
	return nil, &DecodeError{Opcode: opcode, Reason: "not present in response"}
}

func (f opcodeFields) hex(field string) (int, bool) {
	value, ok := f[field].(string)
	if !ok {
		return 0, false
	}
	return parseHex(value)
}

// parseHex decodes a base-16 status string. Empty, oversized or malformed
// input is rejected rather than trusted.
func parseHex(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxHexDigits {
		return 0, false
	}
	parsed, err := strconv.ParseUint(raw, 16, 31)
	if err != nil {
		return 0, false
	}
	return int(parsed), true
}

func decodeSnapshot(deviceID string, body []byte, now time.Time) (Snapshot, error) {
	items, err := decodeProperties(body)
	if err != nil {
		return Snapshot{}, err
	}

	sensor, err := findOpcode(items, opcodeSensor)
	if err != nil {
		return Snapshot{}, err
	}

	snapshot := Snapshot{DeviceID: deviceID, FetchedAt: now}
	if v, ok := sensor.hex(fieldTemperature); ok {
		snapshot.Temperature = &v
	}
	if v, ok := sensor.hex(fieldHumidity); ok {
		snapshot.Humidity = &v
	}
	if v, ok := sensor.hex(fieldWaterTank); ok {
		present := v != 0
		snapshot.WaterTank = &present
	}
	if control, err := findOpcode(items, opcodeControl); err == nil {
		if on, err := humidityModeFrom(control); err == nil {
			snapshot.HumidityMode = &on
		}
	}
	return snapshot, nil
}

func decodeHumidityMode(body []byte) (bool, error) {
	items, err := decodeProperties(body)
	if err != nil {
		return false, err
	}
	control, err := findOpcode(items, opcodeControl)
	if err != nil {
		return false, err
	}
	return humidityModeFrom(control)
}

func humidityModeFrom(control opcodeFields) (bool, error) {
	value, ok := control.hex(fieldHumidityMode)
	if !ok {
		return false, &DecodeError{Opcode: opcodeControl, Field: fieldHumidityMode, Reason: "missing or malformed"}
	}
	return value == 0xff, nil
}

func decodeDevices(body []byte) ([]Device, error) {
	var resp struct {
		Devices []struct {
			DeviceID  string `json:"device_id"`
			Name      string `json:"name"`
			ModelName string `json:"model_name"`
			Online    *bool  `json:"online"`
		} `json:"devices"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode devices: %w", err)
	}

	devices := make([]Device, 0, len(resp.Devices))
	for _, d := range resp.Devices {
		if strings.TrimSpace(d.DeviceID) == "" {
			continue
		}
		device := Device{ID: d.DeviceID, Name: d.Name, ModelName: d.ModelName}
		if d.Online != nil {
			device.Online = *d.Online
		}
		devices = append(devices, device)
	}
	return devices, nil
}
