package radius

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics mirrors the event-log counters as Prometheus collectors for the
// /metrics endpoint, which main serves on its own METRICS_PORT listener.
type Metrics struct {
	AuthRequests   *prometheus.CounterVec
	AcctRequests   *prometheus.CounterVec
	CoARequests    *prometheus.CounterVec
	RateLimited    prometheus.Counter
	ActiveSessions prometheus.Gauge
	ResponseTime   prometheus.Histogram
	BytesTotal     *prometheus.CounterVec
}

// NewMetrics builds the collector set
func NewMetrics() *Metrics {
	return &Metrics{
		AuthRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radius_auth_requests_total",
			Help: "Access-Requests processed, by result",
		}, []string{"result"}),
		AcctRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radius_acct_requests_total",
			Help: "Accounting-Requests processed, by status type",
		}, []string{"status"}),
		CoARequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radius_coa_requests_total",
			Help: "Outbound CoA/Disconnect exchanges, by operation and result",
		}, []string{"op", "result"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radius_rate_limited_total",
			Help: "Datagrams dropped by the per-source rate limiter",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "radius_active_sessions",
			Help: "Sessions with a null stop time",
		}),
		ResponseTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "radius_response_seconds",
			Help:    "Datagram processing latency",
			Buckets: prometheus.DefBuckets,
		}),
		BytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radius_session_bytes_total",
			Help: "Reconstructed session byte totals, by direction",
		}, []string{"direction"}),
	}
}

// Register registers every collector on reg
func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.AuthRequests,
		m.AcctRequests,
		m.CoARequests,
		m.RateLimited,
		m.ActiveSessions,
		m.ResponseTime,
		m.BytesTotal,
	)
}

func (m *Metrics) observe(e Event) {
	switch e.Kind {
	case EventAuthRequest:
		if e.Result == ResultRateLimited {
			m.RateLimited.Inc()
		} else {
			m.AuthRequests.WithLabelValues(string(e.Result)).Inc()
			m.ResponseTime.Observe(e.Latency.Seconds())
		}
	case EventAcctStart:
		m.AcctRequests.WithLabelValues("start").Inc()
		m.ResponseTime.Observe(e.Latency.Seconds())
	case EventAcctUpdate:
		m.AcctRequests.WithLabelValues("interim").Inc()
		m.ResponseTime.Observe(e.Latency.Seconds())
	case EventAcctStop:
		m.AcctRequests.WithLabelValues("stop").Inc()
		m.ResponseTime.Observe(e.Latency.Seconds())
	case EventAcctSweep:
		m.AcctRequests.WithLabelValues("sweep").Inc()
	case EventCoADisconnect:
		m.CoARequests.WithLabelValues("disconnect", string(e.Result)).Inc()
	case EventCoAChange:
		m.CoARequests.WithLabelValues("change", string(e.Result)).Inc()
	}

	if e.InputOctets > 0 {
		m.BytesTotal.WithLabelValues("input").Add(float64(e.InputOctets))
	}
	if e.OutputOctets > 0 {
		m.BytesTotal.WithLabelValues("output").Add(float64(e.OutputOctets))
	}
}
