package database

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolSnapshot is the part of the connection pool state exported as metrics.
// Every login and every authenticated request takes a connection, so
// saturation shows up first in Acquired and EmptyAcquires.
type PoolSnapshot struct {
	Acquired        int32
	Idle            int32
	Total           int32
	Max             int32
	Acquires        int64
	EmptyAcquires   int64
	CanceledAcquire int64
	AcquireWait     time.Duration
}

// SnapshotPool reads the current statistics of pool.
func SnapshotPool(pool *pgxpool.Pool) PoolSnapshot {
	s := pool.Stat()
	return PoolSnapshot{
		Acquired:        s.AcquiredConns(),
		Idle:            s.IdleConns(),
		Total:           s.TotalConns(),
		Max:             s.MaxConns(),
		Acquires:        s.AcquireCount(),
		EmptyAcquires:   s.EmptyAcquireCount(),
		CanceledAcquire: s.CanceledAcquireCount(),
		AcquireWait:     s.AcquireDuration(),
	}
}

type poolMetric struct {
	desc      *prometheus.Desc
	valueType prometheus.ValueType
	value     func(PoolSnapshot) float64
}

// PoolCollector exports a PoolSnapshot, taken on every scrape, as Prometheus
// metrics labelled with the service name.
type PoolCollector struct {
	service  string
	snapshot func() PoolSnapshot
	metrics  []poolMetric
}

// NewPoolCollector creates a collector that calls snapshot on each scrape.
func NewPoolCollector(service string, snapshot func() PoolSnapshot) *PoolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("db_pool_"+name, help, []string{"service"}, nil)
	}
	gauge := prometheus.GaugeValue
	counter := prometheus.CounterValue

	return &PoolCollector{
		service:  service,
		snapshot: snapshot,
		metrics: []poolMetric{
			{desc("acquired_connections", "Connections currently held by requests"), gauge,
				func(s PoolSnapshot) float64 { return float64(s.Acquired) }},
			{desc("idle_connections", "Connections currently idle in the pool"), gauge,
				func(s PoolSnapshot) float64 { return float64(s.Idle) }},
			{desc("total_connections", "Connections currently open"), gauge,
				func(s PoolSnapshot) float64 { return float64(s.Total) }},
			{desc("max_connections", "Configured pool size"), gauge,
				func(s PoolSnapshot) float64 { return float64(s.Max) }},
			{desc("acquires_total", "Connection acquires"), counter,
				func(s PoolSnapshot) float64 { return float64(s.Acquires) }},
			{desc("empty_acquires_total", "Acquires that waited because the pool was exhausted"), counter,
				func(s PoolSnapshot) float64 { return float64(s.EmptyAcquires) }},
			{desc("canceled_acquires_total", "Acquires abandoned because the request context ended"), counter,
				func(s PoolSnapshot) float64 { return float64(s.CanceledAcquire) }},
			{desc("acquire_wait_seconds_total", "Time spent waiting for a connection"), counter,
				func(s PoolSnapshot) float64 { return s.AcquireWait.Seconds() }},
		},
	}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.snapshot()
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.valueType, m.value(s), c.service)
	}
}

// RegisterPoolMetrics registers a collector for pool with reg.
func RegisterPoolMetrics(reg prometheus.Registerer, pool *pgxpool.Pool, service string) error {
	c := NewPoolCollector(service, func() PoolSnapshot { return SnapshotPool(pool) })
	if err := reg.Register(c); err != nil {
		return fmt.Errorf("register pool metrics: %w", err)
	}
	return nil
}
