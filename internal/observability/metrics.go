package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	eventsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "verse",
			Subsystem: "runtime",
			Name:      "events_dispatched_total",
			Help:      "Engine events dispatched by the update loop.",
		},
		[]string{"kind", "route"},
	)
	connectRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "verse",
			Subsystem: "server",
			Name:      "connect_requests_total",
			Help:      "Connect requests by outcome.",
		},
		[]string{"result", "reason"},
	)
	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "verse",
			Subsystem: "server",
			Name:      "connections_active",
			Help:      "Accepted connections currently open.",
		},
	)
	liveNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "verse",
			Subsystem: "server",
			Name:      "nodes_live",
			Help:      "Nodes registered in the server graph.",
		},
	)
	indexReplays = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "verse",
			Subsystem: "index",
			Name:      "replayed_nodes_total",
			Help:      "Node creations replayed to new index subscribers.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "verse",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"component", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "verse",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"component", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			eventsDispatched,
			connectRequests,
			activeConnections,
			liveNodes,
			indexReplays,
			httpRequests,
			httpDuration,
		)
	})
}

// RecordEvent counts one dispatched event. route is "runtime", "session"
// or "dropped".
func RecordEvent(kind, route string) {
	RegisterMetrics()
	eventsDispatched.WithLabelValues(kind, route).Inc()
}

func RecordConnectAccepted() {
	RegisterMetrics()
	connectRequests.WithLabelValues("accepted", "").Inc()
}

func RecordConnectRejected(reason string) {
	RegisterMetrics()
	connectRequests.WithLabelValues("rejected", reason).Inc()
}

func SetActiveConnections(n int) {
	RegisterMetrics()
	activeConnections.Set(float64(n))
}

func SetLiveNodes(n int) {
	RegisterMetrics()
	liveNodes.Set(float64(n))
}

func RecordIndexReplay(n int) {
	RegisterMetrics()
	indexReplays.Add(float64(n))
}

func RecordHTTPRequest(component, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(component, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(component, method, path, statusLabel).Observe(duration.Seconds())
}
