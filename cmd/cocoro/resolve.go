package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/joshp123/gohome-cocoro/plugins/cocoro"
)

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	replacer := strings.NewReplacer(" ", "_", "-", "_")
	name = replacer.Replace(name)
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	return name
}

// resolveDevice accepts an exact device id or a loosely matched name.
func resolveDevice(input string, devices []cocoro.Device) (string, error) {
	for _, d := range devices {
		if d.ID == input {
			return d.ID, nil
		}
	}
	needle := normalizeName(input)
	for _, d := range devices {
		if normalizeName(d.Name) == needle {
			return d.ID, nil
		}
	}
	available := make([]string, 0, len(devices))
	for _, d := range devices {
		available = append(available, d.Name)
	}
	sort.Strings(available)
	return "", fmt.Errorf("device %q not found. Available: %s", input, strings.Join(available, ", "))
}
