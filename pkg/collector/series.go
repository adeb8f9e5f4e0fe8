package collector

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cirocosta/docker-hub-exporter/pkg/hub"
)

// Namespace prefixes every repository series.
//
const Namespace = "docker_hub_image"

// Kind is the type of a declared series.
//
type Kind int

const (
	KindCounter Kind = iota
	KindGauge
)

// SeriesSpec declares one series produced for every repository record.
//
type SeriesSpec struct {
	Name string
	Help string
	Kind Kind

	// Value extracts the sample value from a record.
	//
	Value func(r hub.Record) float64
}

// Labels is the label pair every repository sample carries.
//
type Labels struct {
	Image string
	User  string
}

// Sample is a single labeled value of a series.
//
type Sample struct {
	Labels Labels
	Value  float64
}

var labelNames = []string{"image", "user"}

// RepositorySeries is the set of series emitted on every collection cycle,
// each record contributing exactly one sample to each of them.
//
var RepositorySeries = []SeriesSpec{
	{
		Name: "pulls_total",
		Help: "number of times the image has been pulled",
		Kind: KindCounter,
		Value: func(r hub.Record) float64 {
			return float64(r.PullCount)
		},
	},
	{
		Name: "stars",
		Help: "number of stars given to the repository",
		Kind: KindGauge,
		Value: func(r hub.Record) float64 {
			return float64(r.StarCount)
		},
	},
	{
		Name: "is_automated",
		Help: "whether the image is built automatically (1) or not (0)",
		Kind: KindGauge,
		Value: func(r hub.Record) float64 {
			return r.Automated()
		},
	},
	{
		Name: "last_updated",
		Help: "unix timestamp (seconds) of the last update to the repository",
		Kind: KindGauge,
		Value: func(r hub.Record) float64 {
			return r.LastUpdated
		},
	},
}

// Series accumulates the samples of one declared series during a cycle.
//
type Series struct {
	spec      SeriesSpec
	desc      *prometheus.Desc
	valueType prometheus.ValueType
	samples   []Sample
}

// newSeries constructs the series for a spec, its value type being fixed by
// the spec's kind.
//
func newSeries(spec SeriesSpec) *Series {
	s := &Series{
		spec: spec,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "", spec.Name),
			spec.Help,
			labelNames, nil,
		),
	}

	switch spec.Kind {
	case KindCounter:
		s.valueType = prometheus.CounterValue
	case KindGauge:
		s.valueType = prometheus.GaugeValue
	default:
		panic(fmt.Sprintf("unknown kind %d for series %s", spec.Kind, spec.Name))
	}

	return s
}

// Samples returns the samples added so far, in insertion order.
//
func (s *Series) Samples() []Sample {
	return s.samples
}

// Assembler gathers the samples of all declared series for a single
// collection cycle. It's not safe for concurrent use; each cycle owns its own
// instance.
//
type Assembler struct {
	order  []*Series
	byName map[string]*Series
	sealed bool
}

// NewCycle instantiates an Assembler with one empty series per spec.
//
func NewCycle(specs []SeriesSpec) *Assembler {
	a := &Assembler{
		byName: make(map[string]*Series, len(specs)),
	}

	for _, spec := range specs {
		s := newSeries(spec)

		a.order = append(a.order, s)
		a.byName[spec.Name] = s
	}

	return a
}

// AddSample appends a sample to the named series. Label pairs don't need to
// be unique: every call results in its own sample.
//
func (a *Assembler) AddSample(name string, labels Labels, value float64) error {
	if a.sealed {
		return fmt.Errorf("add sample to '%s': cycle already finished", name)
	}

	s, found := a.byName[name]
	if !found {
		return fmt.Errorf("add sample: unknown series '%s'", name)
	}

	s.samples = append(s.samples, Sample{Labels: labels, Value: value})

	return nil
}

// AddRecord contributes one sample of a record to every declared series,
// labeled with the record's own name and user.
//
func (a *Assembler) AddRecord(rec hub.Record) error {
	labels := Labels{Image: rec.Name, User: rec.User}

	for _, s := range a.order {
		if err := a.AddSample(s.spec.Name, labels, s.spec.Value(rec)); err != nil {
			return err
		}
	}

	return nil
}

// Series returns the named series, nil if not declared.
//
func (a *Assembler) Series(name string) *Series {
	return a.byName[name]
}

// Finish seals the assembler and converts every sample into a constant
// prometheus metric, series by series.
//
func (a *Assembler) Finish() []prometheus.Metric {
	a.sealed = true

	var metrics []prometheus.Metric
	for _, s := range a.order {
		for _, sample := range s.samples {
			metrics = append(metrics, prometheus.MustNewConstMetric(
				s.desc,
				s.valueType,
				sample.Value,
				sample.Labels.Image, sample.Labels.User,
			))
		}
	}

	return metrics
}

// describe sends the descriptors of every declared series.
//
func describe(specs []SeriesSpec, ch chan<- *prometheus.Desc) {
	for _, spec := range specs {
		ch <- newSeries(spec).desc
	}
}
