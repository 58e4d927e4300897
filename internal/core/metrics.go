package core

import "github.com/prometheus/client_golang/prometheus"

// MetricsRegistry builds a registry from shared and plugin collectors.
// Collectors shared between plugins are registered once.
func MetricsRegistry(plugins []Plugin, shared ...prometheus.Collector) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	seen := make(map[prometheus.Collector]bool)

	register := func(c prometheus.Collector) {
		if seen[c] {
			return
		}
		seen[c] = true
		registry.MustRegister(c)
	}

	for _, c := range shared {
		register(c)
	}
	for _, plugin := range plugins {
		for _, collector := range plugin.Collectors() {
			register(collector)
		}
	}

	return registry
}
