package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/keithlinneman/dbprobe/internal/dbpool"
)

// PoolStatser is implemented by *dbpool.Pool.
type PoolStatser interface {
	Stats() dbpool.Stats
}

// poolCollector reads pool statistics at scrape time.
type poolCollector struct {
	src PoolStatser

	conns            *prometheus.Desc
	maxConns         *prometheus.Desc
	acquires         *prometheus.Desc
	emptyAcquires    *prometheus.Desc
	canceledAcquires *prometheus.Desc
	acquireSeconds   *prometheus.Desc
	newConns         *prometheus.Desc
	closedConns      *prometheus.Desc
}

func newPoolCollector(src PoolStatser) *poolCollector {
	return &poolCollector{
		src: src,
		conns: prometheus.NewDesc("db_pool_connections",
			"Connections currently in the pool by state", []string{"state"}, nil),
		maxConns: prometheus.NewDesc("db_pool_max_connections",
			"Upper bound on open connections (pool_size + max_overflow)", nil, nil),
		acquires: prometheus.NewDesc("db_pool_acquires_total",
			"Successful connection acquires", nil, nil),
		emptyAcquires: prometheus.NewDesc("db_pool_empty_acquires_total",
			"Acquires that had to wait for or open a connection", nil, nil),
		canceledAcquires: prometheus.NewDesc("db_pool_canceled_acquires_total",
			"Acquires abandoned because the context ended (includes pool_timeout)", nil, nil),
		acquireSeconds: prometheus.NewDesc("db_pool_acquire_seconds_total",
			"Cumulative time spent acquiring connections", nil, nil),
		newConns: prometheus.NewDesc("db_pool_new_connections_total",
			"Connections opened", nil, nil),
		closedConns: prometheus.NewDesc("db_pool_closed_connections_total",
			"Connections closed by the pool by reason", []string{"reason"}, nil),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.conns
	ch <- c.maxConns
	ch <- c.acquires
	ch <- c.emptyAcquires
	ch <- c.canceledAcquires
	ch <- c.acquireSeconds
	ch <- c.newConns
	ch <- c.closedConns
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()

	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(s.Acquired), "acquired")
	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(s.Idle), "idle")
	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(s.Constructing), "constructing")
	ch <- prometheus.MustNewConstMetric(c.maxConns, prometheus.GaugeValue, float64(s.Max))

	ch <- prometheus.MustNewConstMetric(c.acquires, prometheus.CounterValue, float64(s.AcquireCount))
	ch <- prometheus.MustNewConstMetric(c.emptyAcquires, prometheus.CounterValue, float64(s.EmptyAcquireCount))
	ch <- prometheus.MustNewConstMetric(c.canceledAcquires, prometheus.CounterValue, float64(s.CanceledAcquireCount))
	ch <- prometheus.MustNewConstMetric(c.acquireSeconds, prometheus.CounterValue, s.AcquireDuration.Seconds())
	ch <- prometheus.MustNewConstMetric(c.newConns, prometheus.CounterValue, float64(s.NewConns))

	ch <- prometheus.MustNewConstMetric(c.closedConns, prometheus.CounterValue, float64(s.LifetimeDestroyed), "recycle")
	ch <- prometheus.MustNewConstMetric(c.closedConns, prometheus.CounterValue, float64(s.IdleDestroyed), "idle")
	ch <- prometheus.MustNewConstMetric(c.closedConns, prometheus.CounterValue, float64(s.OverflowClosed), "overflow")
}

// RegisterPool exposes src's statistics under db_pool_*. Call at most once.
func (m *ServerMetrics) RegisterPool(src PoolStatser) error {
	return m.reg.Register(newPoolCollector(src))
}
