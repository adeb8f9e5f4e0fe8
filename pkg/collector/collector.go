package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/cirocosta/docker-hub-exporter/pkg/target"
)

const selfNamespace = "docker_hub_exporter"

var (
	targetUpDesc = prometheus.NewDesc(
		prometheus.BuildFQName(selfNamespace, "target", "up"),
		"whether the target was collected successfully during the last scrape",
		[]string{"kind", "target"}, nil,
	)

	recordsSkippedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(selfNamespace, "target", "records_skipped"),
		"number of records of the target that could not be mapped "+
			"during the last scrape",
		[]string{"kind", "target"}, nil,
	)

	fetchDurationDesc = prometheus.NewDesc(
		prometheus.BuildFQName(selfNamespace, "target", "fetch_duration_seconds"),
		"distribution of the time taken to fetch each target during the "+
			"last scrape",
		nil, nil,
	)

	collectDurationDesc = prometheus.NewDesc(
		prometheus.BuildFQName(selfNamespace, "", "collect_duration_seconds"),
		"time taken by the last collection cycle",
		nil, nil,
	)
)

const DefaultCollectTimeout = 1 * time.Minute

// Collector implements the prometheus Collector interface, fetching fresh
// repository statistics from Docker Hub whenever a prometheus scrape is
// received.
//
type Collector struct {
	// fetcher is the registry client used to retrieve repository
	// documents.
	//
	fetcher Fetcher

	// concurrency is the maximum number of targets fetched at the same
	// time during a cycle.
	//
	concurrency int

	// timeout bounds a whole collection cycle.
	//
	timeout time.Duration

	log logr.Logger

	mu      sync.RWMutex
	targets target.Set
}

// ensure that we implement prometheus' collector interface.
//
var _ prometheus.Collector = &Collector{}

// Option is a type used by functional arguments to mutate the collector to
// override default behavior.
//
type Option func(c *Collector)

// WithConcurrency sets how many targets may be fetched at once. Defaults to
// 1, collecting targets one after the other.
//
func WithConcurrency(v int) Option {
	return func(c *Collector) {
		c.concurrency = v
	}
}

// WithCollectTimeout bounds the duration of a collection cycle.
//
func WithCollectTimeout(v time.Duration) Option {
	return func(c *Collector) {
		c.timeout = v
	}
}

func WithLogger(v logr.Logger) Option {
	return func(c *Collector) {
		c.log = v
	}
}

// New instantiates a Collector for a non-empty set of targets.
//
func New(fetcher Fetcher, targets target.Set, opts ...Option) (*Collector, error) {
	c := &Collector{
		fetcher:     fetcher,
		concurrency: 1,
		timeout:     DefaultCollectTimeout,
		log:         logr.Discard(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if err := c.SetTargets(targets); err != nil {
		return nil, fmt.Errorf("set targets: %w", err)
	}

	return c, nil
}

// SetTargets replaces the targets polled from the next cycle on.
//
func (c *Collector) SetTargets(set target.Set) error {
	if set.Len() == 0 {
		return &target.ConfigurationError{
			Field:   "IMAGES/ORGS",
			Message: "no targets to collect",
		}
	}

	c.mu.Lock()
	c.targets = set
	c.mu.Unlock()

	c.log.Info("targets set",
		"repositories", len(set.Repositories),
		"organizations", len(set.Organizations))

	if overlap := overlapping(set); len(overlap) > 0 {
		c.log.Info("repositories also listed by a configured "+
			"organization are reported once",
			"repositories", overlap)
	}

	return nil
}

// overlapping lists the repositories of the set whose namespace is also
// one of its organizations.
//
func overlapping(set target.Set) []string {
	orgs := make(map[string]struct{}, len(set.Organizations))
	for _, org := range set.Organizations {
		orgs[org.Namespace] = struct{}{}
	}

	var out []string
	for _, repo := range set.Repositories {
		if _, found := orgs[repo.Namespace]; found {
			out = append(out, repo.String())
		}
	}

	return out
}

// Targets returns the targets currently polled.
//
func (c *Collector) Targets() target.Set {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.targets
}

// Describe implements the Describe function of the Collector interface.
//
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	describe(RepositorySeries, ch)

	ch <- targetUpDesc
	ch <- recordsSkippedDesc
	ch <- fetchDurationDesc
	ch <- collectDurationDesc
}

// Collect implements the Collect function of the Collector interface.
//
// Prometheus doesn't hand us the scrape request's context, so the cycle runs
// under the collector's own timeout instead.
//
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	for _, m := range c.CollectMetrics(ctx) {
		ch <- m
	}
}

// CollectMetrics runs a full collection cycle, returning the repository
// series followed by the exporter's own per-cycle metrics.
//
func (c *Collector) CollectMetrics(ctx context.Context) []prometheus.Metric {
	var (
		start = time.Now()
		set   = c.Targets()
		log   = c.log.WithValues("cycle", uuid.NewString())
	)

	log.V(1).Info("collecting", "targets", set.Len())

	results := RunCycle(ctx, c.fetcher, set, c.concurrency, log)

	assembler := NewCycle(RepositorySeries)
	summary := NewSummary()

	var selfMetrics []prometheus.Metric

	for _, res := range results {
		for _, rec := range res.Records {
			if err := assembler.AddRecord(rec); err != nil {
				log.Error(err, "add record", "target", res.Target)
			}
		}

		summary.Observe(res.Duration)

		up := 1.0
		if res.Err != nil {
			up = 0
		}

		selfMetrics = append(selfMetrics,
			prometheus.MustNewConstMetric(
				targetUpDesc, prometheus.GaugeValue, up,
				string(res.Kind), res.Target,
			),
			prometheus.MustNewConstMetric(
				recordsSkippedDesc, prometheus.GaugeValue, float64(res.Skipped),
				string(res.Kind), res.Target,
			),
		)
	}

	metrics, dropped := uniqueSamples(assembler.Finish())
	if dropped > 0 {
		log.V(1).Info("dropped repeated samples", "count", dropped)
	}

	metrics = append(metrics, selfMetrics...)
	metrics = append(metrics,
		summary.Metric(fetchDurationDesc),
		prometheus.MustNewConstMetric(
			collectDurationDesc, prometheus.GaugeValue,
			time.Since(start).Seconds(),
		),
	)

	log.V(1).Info("collected", "metrics", len(metrics),
		"took", time.Since(start).String())

	return metrics
}

// uniqueSamples keeps the first sample of every series and label pair,
// which is what the registry would expose anyway, sparing it from failing
// the gathering of repeated ones.
//
func uniqueSamples(metrics []prometheus.Metric) ([]prometheus.Metric, int) {
	var (
		seen   = make(map[string]struct{}, len(metrics))
		unique = metrics[:0]
	)

	for _, m := range metrics {
		pb := &dto.Metric{}
		if err := m.Write(pb); err != nil {
			unique = append(unique, m)
			continue
		}

		key := m.Desc().String()
		for _, pair := range pb.GetLabel() {
			key += "\xff" + pair.GetName() + "=" + pair.GetValue()
		}

		if _, found := seen[key]; found {
			continue
		}

		seen[key] = struct{}{}
		unique = append(unique, m)
	}

	return unique, len(metrics) - len(unique)
}
