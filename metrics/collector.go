// Package metrics exports trial store row counts to Prometheus.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/warp/trialdb/logging"
	"github.com/warp/trialdb/trial"
)

const namespace = "trialdb"

// DefaultTimeout bounds a single scrape's count queries.
const DefaultTimeout = 5 * time.Second

// Collector reads per-relation row counts on every scrape.
type Collector struct {
	counter trial.Counter
	log     *logging.Logger
	timeout time.Duration

	rows *prometheus.Desc
	up   *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector backed by counter. A nil log discards.
func NewCollector(counter trial.Counter, log *logging.Logger) *Collector {
	if log == nil {
		log = logging.Nop()
	}
	return &Collector{
		counter: counter,
		log:     log,
		timeout: DefaultTimeout,
		rows: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "relation_rows"),
			"Number of rows in each relation of the trial schema.",
			[]string{"relation"}, nil,
		),
		up: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "store_up"),
			"Whether the last count query succeeded (1) or failed (0).",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.rows
	ch <- c.up
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	counts, err := c.counter.Counts(ctx)
	if err != nil {
		c.log.Warn("metrics count failed", "error", err)
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 1)

	for _, relation := range trial.Relations {
		ch <- prometheus.MustNewConstMetric(c.rows, prometheus.GaugeValue,
			float64(counts.ByRelation(relation)), relation)
	}
}

// NewRegistry returns a registry holding the collector plus the Go and
// process collectors.
func NewRegistry(counter trial.Counter, log *logging.Logger) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(counter, log),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
