package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"kvrelay/replication"
	"kvrelay/storage"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kvrelay"

type Metrics struct {
	registry            *prometheus.Registry
	requestDuration     *prometheus.HistogramVec
	requestCount        *prometheus.CounterVec
	replicationRequests *prometheus.CounterVec
	replicationDuration *prometheus.HistogramVec
	upstreamRequests    *prometheus.CounterVec
	upstreamDuration    *prometheus.HistogramVec
}

// NewMetrics registers all collectors on a private registry, so several
// instances can coexist in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "route", "status"}),

		requestCount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),

		replicationRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replication_requests_total",
			Help:      "Replica requests issued by the leader, by operation and outcome",
		}, []string{"op", "outcome"}),

		replicationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "replication_request_duration_seconds",
			Help:      "Duration of individual replica requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),

		upstreamRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_upstream_requests_total",
			Help:      "Requests forwarded by the proxy, by upstream and outcome",
		}, []string{"upstream", "outcome"}),

		upstreamDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "proxy_upstream_duration_seconds",
			Help:      "Duration of forwarded requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"upstream"}),
	}
}

func (m *Metrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, route, code).Observe(duration.Seconds())
	m.requestCount.WithLabelValues(method, route, code).Inc()
}

func (m *Metrics) ObserveReplication(op replication.Op, outcome string, duration time.Duration) {
	m.replicationRequests.WithLabelValues(string(op), outcome).Inc()
	m.replicationDuration.WithLabelValues(string(op)).Observe(duration.Seconds())
}

func (m *Metrics) ObserveUpstream(upstream, outcome string, duration time.Duration) {
	m.upstreamRequests.WithLabelValues(upstream, outcome).Inc()
	m.upstreamDuration.WithLabelValues(upstream).Observe(duration.Seconds())
}

// RegisterStorage exposes the number of keys held by s.
func (m *Metrics) RegisterStorage(s storage.Storage) {
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "storage_keys",
		Help:      "Number of keys in the local store",
	}, func() float64 { return float64(s.Len()) })
}

// RegisterNodeInfo publishes the static role and replica set size.
func (m *Metrics) RegisterNodeInfo(node, role string, replicas int) {
	info := promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "node_info",
		Help:      "Static node identity; value is the number of configured replicas",
	}, []string{"node", "role"})
	info.WithLabelValues(node, role).Set(float64(replicas))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request metrics labelled by the mux route template.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &ResponseWriter{ResponseWriter: w, StatusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.ObserveRequest(r.Method, route, rw.StatusCode, time.Since(start))
	})
}

var _ replication.Observer = (*Metrics)(nil)
