package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultOK    = "ok"
	ResultError = "error"

	DropOffline     = "offline"
	DropBufferFull  = "buffer_full"
	DropRateLimited = "rate_limited"
)

var (
	Deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pairchat",
			Name:      "fanout_deliveries_total",
			Help:      "Real-time events queued on a live connection, by event type.",
		},
		[]string{"event"},
	)

	Drops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pairchat",
			Name:      "fanout_drops_total",
			Help:      "Real-time events dropped, by event type and reason.",
		},
		[]string{"event", "reason"},
	)

	LifecycleOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pairchat",
			Name:      "lifecycle_operations_total",
			Help:      "Message lifecycle operations, by operation and result.",
		},
		[]string{"op", "result"},
	)

	OnlineUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pairchat",
			Name:      "online_users",
			Help:      "Users with at least one live connection.",
		},
	)

	Connections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pairchat",
			Name:      "ws_connections",
			Help:      "Open websocket connections.",
		},
	)
)

func init() {
	prometheus.MustRegister(Deliveries, Drops, LifecycleOps, OnlineUsers, Connections)
}

// ObserveOp records the outcome of a lifecycle operation.
func ObserveOp(op string, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	LifecycleOps.WithLabelValues(op, result).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
