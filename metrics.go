package rdsiamauth

import "github.com/prometheus/client_golang/prometheus"

// Metrics receives token cache events. Implementations must be safe for
// concurrent use and must not block.
type Metrics interface {
	// Hit is called when a fresh cached token is served.
	Hit()
	// Miss is called when the cache has no fresh token for a key.
	Miss()
	// Refresh is called after a token was signed and stored.
	Refresh()
	// Failure is called when the signer returned an error.
	Failure()
}

// NoopMetrics discards all events.
type NoopMetrics struct{}

func (NoopMetrics) Hit()     {}
func (NoopMetrics) Miss()    {}
func (NoopMetrics) Refresh() {}
func (NoopMetrics) Failure() {}

// PrometheusMetrics exports token cache events as Prometheus counters.
type PrometheusMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	refreshes prometheus.Counter
	failures  prometheus.Counter
}

var _ Metrics = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates the token cache counters and registers them
// with reg. A nil reg leaves the counters unregistered.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rdsiamauth",
			Subsystem: "token_cache",
			Name:      "hits_total",
			Help:      "Total number of tokens served from the cache",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rdsiamauth",
			Subsystem: "token_cache",
			Name:      "misses_total",
			Help:      "Total number of lookups that found no fresh token",
		}),
		refreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rdsiamauth",
			Subsystem: "token_cache",
			Name:      "refreshes_total",
			Help:      "Total number of tokens signed and stored",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rdsiamauth",
			Subsystem: "token_cache",
			Name:      "signing_failures_total",
			Help:      "Total number of failed signing calls",
		}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.hits, m.misses, m.refreshes, m.failures} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PrometheusMetrics) Hit()     { m.hits.Inc() }
func (m *PrometheusMetrics) Miss()    { m.misses.Inc() }
func (m *PrometheusMetrics) Refresh() { m.refreshes.Inc() }
func (m *PrometheusMetrics) Failure() { m.failures.Inc() }
