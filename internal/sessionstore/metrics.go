package sessionstore

import "github.com/prometheus/client_golang/prometheus"

var persistOK = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "gohome_session_persist_ok",
		Help: "Session persistence health (1=ok, 0=error)",
	},
	[]string{"key"},
)

// RecordPersist records the outcome of the last session save.
func RecordPersist(key string, ok bool) {
	if ok {
		persistOK.WithLabelValues(key).Set(1)
		return
	}
	persistOK.WithLabelValues(key).Set(0)
}

// MetricsCollectors returns collectors for the session store.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{persistOK}
}
