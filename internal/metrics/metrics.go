// Package metrics holds the Prometheus collectors for the server, the
// scheduler and the admin HTTP surface.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "llmsock"

// Metrics implements sched.Observer and session.Observer.
type Metrics struct {
	reg *prometheus.Registry

	connectionsTotal  prometheus.Counter
	connectionsActive prometheus.Gauge
	requestsTotal     *prometheus.CounterVec
	tokensTotal       prometheus.Counter
	promptWordsTotal  prometheus.Counter
	requestDuration   prometheus.Histogram
	firstToken        prometheus.Histogram

	schedYields prometheus.Counter
	schedPanics prometheus.Counter
	schedTasks  prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInflight prometheus.Gauge
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Accepted client connections.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Currently open client connections.",
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Prompt lines processed, by outcome.",
		}, []string{"outcome"}),
		tokensTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_generated_total",
			Help:      "Tokens written to clients.",
		}),
		promptWordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompt_words_total",
			Help:      "Prompt words fed to sessions.",
		}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from rendering a prompt to the end of its response.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		firstToken: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_token_seconds",
			Help:      "Time from rendering a prompt to its first generated token.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		schedYields: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "yields_total",
			Help:      "Voluntary yields by scheduler tasks.",
		}),
		schedPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "panics_total",
			Help:      "Recovered task panics.",
		}),
		schedTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tasks",
			Help:      "Live scheduler tasks.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of admin HTTP requests",
		}, []string{"path", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of admin HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method", "status"}),
		httpInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "In-flight admin HTTP requests",
		}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connectionsTotal, m.connectionsActive, m.requestsTotal,
		m.tokensTotal, m.promptWordsTotal, m.requestDuration, m.firstToken,
		m.schedYields, m.schedPanics, m.schedTasks,
		m.httpRequests, m.httpDuration, m.httpInflight,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ConnOpened() {
	m.connectionsTotal.Inc()
	m.connectionsActive.Inc()
}

func (m *Metrics) ConnClosed() { m.connectionsActive.Dec() }

func (m *Metrics) WordsFed(n int)  { m.promptWordsTotal.Add(float64(n)) }
func (m *Metrics) TokenGenerated() { m.tokensTotal.Inc() }

func (m *Metrics) FirstToken(d time.Duration) { m.firstToken.Observe(d.Seconds()) }

func (m *Metrics) RequestDone(outcome string, d time.Duration) {
	m.requestsTotal.WithLabelValues(outcome).Inc()
	m.requestDuration.Observe(d.Seconds())
}

func (m *Metrics) TaskStarted() { m.schedTasks.Inc() }
func (m *Metrics) TaskDone()    { m.schedTasks.Dec() }
func (m *Metrics) Yielded()     { m.schedYields.Inc() }
func (m *Metrics) Panicked()    { m.schedPanics.Inc() }

// ObserveHTTP records one finished admin request.
func (m *Metrics) ObserveHTTP(path, method string, status int, d time.Duration) {
	code := itoa(status)
	m.httpRequests.WithLabelValues(path, method, code).Inc()
	m.httpDuration.WithLabelValues(path, method, code).Observe(d.Seconds())
}

// Inflight returns the in-flight admin request gauge.
func (m *Metrics) Inflight() prometheus.Gauge { return m.httpInflight }

// fast integer to ascii for small set of status codes
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [4]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
