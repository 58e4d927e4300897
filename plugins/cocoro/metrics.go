package cocoro

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	loginTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gohome_cocoro_login_total",
			Help: "COCORO portal login attempts by result",
		},
		[]string{"result"},
	)
	reauthTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gohome_cocoro_reauth_total",
			Help: "Re-logins triggered by an expired session",
		},
	)
)

// MetricsCollector exposes the cached device snapshot.
type MetricsCollector struct {
	monitor *Monitor

	temperature  *prometheus.GaugeVec
	humidity     *prometheus.GaugeVec
	waterTank    *prometheus.GaugeVec
	humidityMode *prometheus.GaugeVec
	lastSuccess  prometheus.Gauge
	success      prometheus.Gauge
}

// NewMetricsCollector exports the monitor's snapshot. Scrapes read through
// Monitor.Current, so they never poll more often than the monitor interval.
func NewMetricsCollector(monitor *Monitor) *MetricsCollector {
	labels := []string{"device_id"}
	return &MetricsCollector{
		monitor: monitor,
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gohome_cocoro_temperature_celsius",
			Help: "Room temperature reported by the purifier (celsius)",
		}, labels),
		humidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gohome_cocoro_humidity_percent",
			Help: "Relative humidity reported by the purifier (percent)",
		}, labels),
		waterTank: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gohome_cocoro_water_tank",
			Help: "Humidifier water tank has water (1=yes, 0=no)",
		}, labels),
		humidityMode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gohome_cocoro_humidity_mode",
			Help: "Humidity mode (1=on, 0=off)",
		}, labels),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gohome_cocoro_last_success_timestamp_seconds",
			Help: "Last successful COCORO poll timestamp (epoch seconds)",
		}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gohome_cocoro_scrape_success",
			Help: "Last poll success (1=ok, 0=error)",
		}),
	}
}

// SharedCollectors returns package-level counters shared by all clients.
func SharedCollectors() []prometheus.Collector {
	return []prometheus.Collector{loginTotal, reauthTotal}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	c.temperature.Describe(ch)
	c.humidity.Describe(ch)
	c.waterTank.Describe(ch)
	c.humidityMode.Describe(ch)
	c.lastSuccess.Describe(ch)
	c.success.Describe(ch)
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c.apply(c.monitor.Current(ctx))
	c.temperature.Collect(ch)
	c.humidity.Collect(ch)
	c.waterTank.Collect(ch)
	c.humidityMode.Collect(ch)
	c.lastSuccess.Collect(ch)
	c.success.Collect(ch)
}

func (c *MetricsCollector) apply(cached cachedSnapshot) {
	c.temperature.Reset()
	c.humidity.Reset()
	c.waterTank.Reset()
	c.humidityMode.Reset()

	snapshot := cached.snapshot
	labels := prometheus.Labels{"device_id": c.monitor.deviceID}
	if snapshot.Temperature != nil {
		c.temperature.With(labels).Set(float64(*snapshot.Temperature))
	}
	if snapshot.Humidity != nil {
		c.humidity.With(labels).Set(float64(*snapshot.Humidity))
	}
	if snapshot.WaterTank != nil {
		c.waterTank.With(labels).Set(boolGauge(*snapshot.WaterTank))
	}
	if snapshot.HumidityMode != nil {
		c.humidityMode.With(labels).Set(boolGauge(*snapshot.HumidityMode))
	}

	if cached.success {
		c.success.Set(1)
		c.lastSuccess.Set(float64(cached.fetchedAt.Unix()))
	} else {
		c.success.Set(0)
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
