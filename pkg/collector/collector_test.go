package collector

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/cirocosta/docker-hub-exporter/pkg/target"
)

func newTestCollector(t *testing.T, fetcher Fetcher, set target.Set, opts ...Option) *Collector {
	t.Helper()

	c, err := New(fetcher, set, opts...)
	require.NoError(t, err)

	return c
}

func TestCollector_Collect(t *testing.T) {
	fetcher := &fakeFetcher{
		repos: map[string]string{
			"acme/widget": document("acme", "widget", 345678, 12, true),
		},
		orgs: map[string][]string{
			"other": {
				document("other", "a", 10, 1, false),
				document("other", "b", 20, 2, false),
			},
		},
	}

	c := newTestCollector(t, fetcher, target.Set{
		Repositories:  repos("acme/widget", "acme/gone"),
		Organizations: []target.Organization{{Namespace: "other"}},
	})

	const expected = `
# HELP docker_hub_image_pulls_total number of times the image has been pulled
# TYPE docker_hub_image_pulls_total counter
docker_hub_image_pulls_total{image="a",user="other"} 10
docker_hub_image_pulls_total{image="b",user="other"} 20
docker_hub_image_pulls_total{image="widget",user="acme"} 345678
# HELP docker_hub_image_stars number of stars given to the repository
# TYPE docker_hub_image_stars gauge
docker_hub_image_stars{image="a",user="other"} 1
docker_hub_image_stars{image="b",user="other"} 2
docker_hub_image_stars{image="widget",user="acme"} 12
# HELP docker_hub_image_is_automated whether the image is built automatically (1) or not (0)
# TYPE docker_hub_image_is_automated gauge
docker_hub_image_is_automated{image="a",user="other"} 0
docker_hub_image_is_automated{image="b",user="other"} 0
docker_hub_image_is_automated{image="widget",user="acme"} 1
# HELP docker_hub_image_last_updated unix timestamp (seconds) of the last update to the repository
# TYPE docker_hub_image_last_updated gauge
docker_hub_image_last_updated{image="a",user="other"} 1.5790842e+09
docker_hub_image_last_updated{image="b",user="other"} 1.5790842e+09
docker_hub_image_last_updated{image="widget",user="acme"} 1.5790842e+09
# HELP docker_hub_exporter_target_up whether the target was collected successfully during the last scrape
# TYPE docker_hub_exporter_target_up gauge
docker_hub_exporter_target_up{kind="organization",target="other"} 1
docker_hub_exporter_target_up{kind="repository",target="acme/gone"} 0
docker_hub_exporter_target_up{kind="repository",target="acme/widget"} 1
`

	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"docker_hub_image_pulls_total",
		"docker_hub_image_stars",
		"docker_hub_image_is_automated",
		"docker_hub_image_last_updated",
		"docker_hub_exporter_target_up",
	)
	require.NoError(t, err)
}

func TestCollector_CollectMetrics_selfMetrics(t *testing.T) {
	fetcher := &fakeFetcher{
		repos: map[string]string{"acme/widget": document("acme", "widget", 1, 1, false)},
	}

	c := newTestCollector(t, fetcher, target.Set{Repositories: repos("acme/widget", "acme/gone")})

	metrics := c.CollectMetrics(context.Background())

	var summary *dto.Summary
	for _, m := range metrics {
		if !strings.Contains(m.Desc().String(), "fetch_duration_seconds") {
			continue
		}

		pb := &dto.Metric{}
		require.NoError(t, m.Write(pb))
		summary = pb.GetSummary()
	}

	require.NotNil(t, summary)
	require.Equal(t, uint64(2), summary.GetSampleCount())
	require.NotEmpty(t, summary.GetQuantile())
}

func TestCollector_noDuplicatedWork(t *testing.T) {
	fetcher := &fakeFetcher{
		repos: map[string]string{"acme/widget": document("acme", "widget", 1, 1, false)},
	}

	c := newTestCollector(t, fetcher, target.Set{Repositories: repos("acme/widget")},
		WithConcurrency(8))

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	_, err := reg.Gather()
	require.NoError(t, err)
	require.Equal(t, int64(1), fetcher.calls)

	_, err = reg.Gather()
	require.NoError(t, err)
	require.Equal(t, int64(2), fetcher.calls)
}

func TestCollector_SetTargets(t *testing.T) {
	fetcher := &fakeFetcher{
		repos: map[string]string{
			"acme/a": document("acme", "a", 1, 0, false),
			"acme/b": document("acme", "b", 2, 0, false),
		},
	}

	c := newTestCollector(t, fetcher, target.Set{Repositories: repos("acme/a")})
	require.Equal(t, 1, testutil.CollectAndCount(c, "docker_hub_image_stars"))

	require.NoError(t, c.SetTargets(target.Set{Repositories: repos("acme/a", "acme/b")}))
	require.Equal(t, 2, testutil.CollectAndCount(c, "docker_hub_image_stars"))

	err := c.SetTargets(target.Set{})
	var cfgErr *target.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, 2, c.Targets().Len())
}

func Test_New_noTargets(t *testing.T) {
	fetcher := &fakeFetcher{}

	_, err := New(fetcher, target.Set{})
	require.Error(t, err)

	var cfgErr *target.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	require.Zero(t, fetcher.calls)
}

func TestCollector_Collect_timeout(t *testing.T) {
	fetcher := &fakeFetcher{
		repos: map[string]string{
			"acme/widget": document("acme", "widget", 1, 1, false),
		},
		hang: map[string]bool{"acme/stuck": true},
	}

	c := newTestCollector(t, fetcher,
		target.Set{Repositories: repos("acme/widget", "acme/stuck")},
		WithCollectTimeout(50*time.Millisecond),
	)

	const expected = `
# HELP docker_hub_image_stars number of stars given to the repository
# TYPE docker_hub_image_stars gauge
docker_hub_image_stars{image="widget",user="acme"} 1
# HELP docker_hub_exporter_target_up whether the target was collected successfully during the last scrape
# TYPE docker_hub_exporter_target_up gauge
docker_hub_exporter_target_up{kind="repository",target="acme/stuck"} 0
docker_hub_exporter_target_up{kind="repository",target="acme/widget"} 1
`

	start := time.Now()
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"docker_hub_image_stars",
		"docker_hub_exporter_target_up",
	)
	require.NoError(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestCollector_Collect_overlappingTargets(t *testing.T) {
	fetcher := &fakeFetcher{
		repos: map[string]string{
			"acme/a": document("acme", "a", 1, 1, false),
		},
		orgs: map[string][]string{
			"acme": {
				document("acme", "a", 1, 1, false),
				document("acme", "b", 2, 2, false),
			},
		},
	}

	set := target.Set{
		Repositories:  repos("acme/a"),
		Organizations: []target.Organization{{Namespace: "acme"}},
	}
	require.Equal(t, []string{"acme/a"}, overlapping(set))

	c := newTestCollector(t, fetcher, set)

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	mfs, err := reg.Gather()
	require.NoError(t, err)

	var stars *dto.MetricFamily
	for _, mf := range mfs {
		if mf.GetName() == "docker_hub_image_stars" {
			stars = mf
		}
	}

	require.NotNil(t, stars)
	require.Len(t, stars.GetMetric(), 2)
}
