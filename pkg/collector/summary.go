package collector

import (
	"time"

	"github.com/beorn7/perks/quantile"
	"github.com/prometheus/client_golang/prometheus"
)

// defaultObjectives are the quantiles (quantile -> epsilon) computed over
// the fetch durations of a cycle unless overridden with `WithObjectives`.
//
var defaultObjectives = map[float64]float64{
	0.50: 0.05,
	0.90: 0.01,
	0.99: 0.001,
	1.00: 0.001,
}

// Summary summarizes the durations observed during a single cycle. Unlike
// prometheus' own Summary it holds no state across scrapes.
//
type Summary struct {
	count      uint64
	sum        float64
	objectives map[float64]float64

	stream *quantile.Stream
}

type SummaryOption func(s *Summary)

func WithObjectives(v map[float64]float64) SummaryOption {
	return func(s *Summary) {
		s.objectives = v
	}
}

func NewSummary(opts ...SummaryOption) *Summary {
	summary := &Summary{
		objectives: defaultObjectives,
	}

	for _, opt := range opts {
		opt(summary)
	}

	summary.stream = quantile.NewTargeted(summary.objectives)

	return summary
}

// Observe adds a duration, in seconds, to the summary.
//
func (s *Summary) Observe(d time.Duration) {
	v := d.Seconds()

	s.sum += v
	s.stream.Insert(v)
	s.count++
}

func (s *Summary) Count() uint64 {
	return s.count
}

func (s *Summary) Sum() float64 {
	return s.sum
}

// Quantiles queries the stream for every objective. With no observations
// the map is empty.
//
func (s *Summary) Quantiles() map[float64]float64 {
	quantiles := make(map[float64]float64, len(s.objectives))
	if s.count == 0 {
		return quantiles
	}

	for phi := range s.objectives {
		quantiles[phi] = s.stream.Query(phi)
	}

	return quantiles
}

// Metric renders the summary as a constant prometheus summary.
//
func (s *Summary) Metric(desc *prometheus.Desc) prometheus.Metric {
	return prometheus.MustNewConstSummary(
		desc, s.Count(), s.Sum(), s.Quantiles(),
	)
}
