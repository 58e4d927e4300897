package main

import (
	"testing"

	"github.com/joshp123/gohome-cocoro/plugins/cocoro"
)

func TestResolveDevice(t *testing.T) {
	devices := []cocoro.Device{
		{ID: "dev-1", Name: "Living Room"},
		{ID: "dev-2", Name: "bed-room"},
	}

	cases := map[string]string{
		"dev-1":        "dev-1",
		"living room":  "dev-1",
		"LIVING_ROOM":  "dev-1",
		"Bed Room":     "dev-2",
		" bed--room  ": "dev-2",
	}
	for input, want := range cases {
		got, err := resolveDevice(input, devices)
		if err != nil {
			t.Fatalf("resolve %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("resolve %q: expected %s, got %s", input, want, got)
		}
	}

	if _, err := resolveDevice("kitchen", devices); err == nil {
		t.Fatalf("expected error for unknown device")
	}
}

func TestParseOutput(t *testing.T) {
	for _, value := range []string{"table", "JSON", " yaml ", ""} {
		if _, err := parseOutput(value); err != nil {
			t.Fatalf("parse %q: %v", value, err)
		}
	}
	if _, err := parseOutput("xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
