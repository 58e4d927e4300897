package cocoro

import (
	"errors"
	"testing"
	"time"
)

func TestParseHex(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"19", 25, true},
		{"1A", 26, true},
		{"1a", 26, true},
		{" ff ", 255, true},
		{"0", 0, true},
		{"", 0, false},
		{"zz", 0, false},
		{"-1", 0, false},
		{"123456789", 0, false},
		{"FFFFFFF", 0xFFFFFFF, true},
		{"80000000", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseHex(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("parseHex(%q) = %d, %v; want %d, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestDecodeSnapshotPartialFields(t *testing.T) {
	body := []byte(`{"objects_aircleaner_020":{"body":{"data":[{"k1":{"s1":"1A","s2":"xyz"}}]}}}`)
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	snapshot, err := decodeSnapshot("dev-1", body, now)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snapshot.Temperature == nil || *snapshot.Temperature != 26 {
		t.Fatalf("unexpected temperature: %v", snapshot.Temperature)
	}
	if snapshot.Humidity != nil {
		t.Fatalf("malformed humidity should be nil, got %d", *snapshot.Humidity)
	}
	if snapshot.WaterTank != nil || snapshot.HumidityMode != nil {
		t.Fatalf("absent fields should be nil: %+v", snapshot)
	}
	if !snapshot.FetchedAt.Equal(now) {
		t.Fatalf("unexpected fetched_at: %s", snapshot.FetchedAt)
	}
}

func TestDecodeSnapshotWaterTankEmpty(t *testing.T) {
	body := []byte(`{"objects_aircleaner_020":{"body":{"data":[{"k1":{"s1":"14","s6":"00"},"k3":{"s7":"00"}}]}}}`)

	snapshot, err := decodeSnapshot("dev-1", body, time.Now())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snapshot.WaterTank == nil || *snapshot.WaterTank {
		t.Fatalf("expected empty water tank, got %v", snapshot.WaterTank)
	}
	if snapshot.HumidityMode == nil || *snapshot.HumidityMode {
		t.Fatalf("expected humidity mode off, got %v", snapshot.HumidityMode)
	}
}

func TestDecodeSnapshotMissingSensorOpcode(t *testing.T) {
	body := []byte(`{"objects_aircleaner_020":{"body":{"data":[{"k3":{"s7":"ff"}}]}}}`)

	_, err := decodeSnapshot("dev-1", body, time.Now())
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if decodeErr.Opcode != "k1" {
		t.Fatalf("unexpected opcode: %s", decodeErr.Opcode)
	}
}

func TestDecodeSnapshotMissingEnvelope(t *testing.T) {
	_, err := decodeSnapshot("dev-1", []byte(`{"other":{}}`), time.Now())
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestDecodeHumidityMode(t *testing.T) {
	on, err := decodeHumidityMode([]byte(`{"objects_aircleaner_020":{"body":{"data":[{"k3":{"s7":"FF"}}]}}}`))
	if err != nil || !on {
		t.Fatalf("expected on, got %v, %v", on, err)
	}

	on, err = decodeHumidityMode([]byte(`{"objects_aircleaner_020":{"body":{"data":[{"k3":{"s7":"01"}}]}}}`))
	if err != nil || on {
		t.Fatalf("only ff means on, got %v, %v", on, err)
	}

	_, err = decodeHumidityMode([]byte(`{"objects_aircleaner_020":{"body":{"data":[{"k3":{"s5":"00"}}]}}}`))
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) || decodeErr.Field != "s7" {
		t.Fatalf("expected missing s7 DecodeError, got %v", err)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"on": ModeOn, "OFF": ModeOff, " On ": ModeOn} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %v, %v", in, got, err)
		}
	}
	var argErr *InvalidArgumentError
	if _, err := ParseMode("auto"); !errors.As(err, &argErr) {
		t.Fatalf("expected InvalidArgumentError, got %v", err)
	}
	if ModeOn.wireValue() != "FF" || ModeOff.wireValue() != "00" {
		t.Fatalf("unexpected wire values")
	}
}

func TestDecodeSnapshotIgnoresSiblingKeys(t *testing.T) {
	body := []byte(`{"status":200,"message":"ok","objects_aircleaner_020":{"body":{"data":[{"k1":{"s1":"19","s2":"32"}}]}}}`)

	snapshot, err := decodeSnapshot("dev-1", body, time.Now())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snapshot.Temperature == nil || *snapshot.Temperature != 25 {
		t.Fatalf("unexpected temperature: %v", snapshot.Temperature)
	}
	if snapshot.Humidity == nil || *snapshot.Humidity != 50 {
		t.Fatalf("unexpected humidity: %v", snapshot.Humidity)
	}
}

func TestDecodeSnapshotSkipsNonObjectItems(t *testing.T) {
	body := []byte(`{"objects_aircleaner_020":{"body":{"data":["x",42,null,{"k1":{"s1":"19"}},{"k3":{"s7":"ff"}}]}}}`)

	snapshot, err := decodeSnapshot("dev-1", body, time.Now())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snapshot.Temperature == nil || *snapshot.Temperature != 25 {
		t.Fatalf("unexpected temperature: %v", snapshot.Temperature)
	}
	if snapshot.HumidityMode == nil || !*snapshot.HumidityMode {
		t.Fatalf("unexpected humidity mode: %v", snapshot.HumidityMode)
	}
}
