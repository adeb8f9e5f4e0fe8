package collector

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/cirocosta/docker-hub-exporter/pkg/hub"
	"github.com/cirocosta/docker-hub-exporter/pkg/target"
)

// Fetcher retrieves raw repository documents from the registry (see
// `hub.Client`).
//
type Fetcher interface {
	FetchRepository(ctx context.Context, repo target.Repository) (json.RawMessage, error)
	FetchAllOrganizationRepositories(ctx context.Context, org target.Organization) ([]json.RawMessage, error)
}

var _ Fetcher = (*hub.Client)(nil)

// TargetResult is what a single target contributed to a cycle.
//
type TargetResult struct {
	Kind   target.Kind
	Target string

	// Records are the successfully mapped records, in the order the
	// registry returned them.
	//
	Records []hub.Record

	// Skipped counts the records of an organization that failed mapping.
	//
	Skipped int

	// Err is set when the target as a whole failed, in which case
	// Records is empty.
	//
	Err error

	Duration time.Duration
}

// RunCycle fetches and maps every target of the set, returning one result
// per target: repositories first, then organizations, each in configuration
// order.
//
// Failures are isolated to the target they happened in. Up to `concurrency`
// targets are fetched at the same time, each writing only to its own result
// so the returned order never depends on scheduling.
//
func RunCycle(
	ctx context.Context,
	fetcher Fetcher,
	set target.Set,
	concurrency int,
	log logr.Logger,
) []TargetResult {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]TargetResult, set.Len())

	var g errgroup.Group
	g.SetLimit(concurrency)

	for idx, repo := range set.Repositories {
		idx, repo := idx, repo

		g.Go(func() error {
			results[idx] = collectRepository(ctx, fetcher, repo)
			return nil
		})
	}

	offset := len(set.Repositories)
	for idx, org := range set.Organizations {
		idx, org := idx, org

		g.Go(func() error {
			results[offset+idx] = collectOrganization(ctx, fetcher, org, log)
			return nil
		})
	}

	_ = g.Wait()

	for _, res := range results {
		if res.Err != nil {
			log.Error(res.Err, "target failed",
				"kind", res.Kind, "target", res.Target)
		}
	}

	return results
}

func collectRepository(
	ctx context.Context, fetcher Fetcher, repo target.Repository,
) TargetResult {
	res := TargetResult{
		Kind:   target.KindRepository,
		Target: repo.String(),
	}

	start := time.Now()
	doc, err := fetcher.FetchRepository(ctx, repo)
	res.Duration = time.Since(start)

	if err != nil {
		res.Err = err
		return res
	}

	rec, err := hub.Map(doc)
	if err != nil {
		res.Err = err
		return res
	}

	res.Records = []hub.Record{rec}

	return res
}

func collectOrganization(
	ctx context.Context, fetcher Fetcher, org target.Organization, log logr.Logger,
) TargetResult {
	res := TargetResult{
		Kind:   target.KindOrganization,
		Target: org.String(),
	}

	start := time.Now()
	docs, err := fetcher.FetchAllOrganizationRepositories(ctx, org)
	res.Duration = time.Since(start)

	if err != nil {
		res.Err = err
		return res
	}

	for idx, doc := range docs {
		rec, err := hub.Map(doc)
		if err != nil {
			log.Error(err, "skipping record",
				"target", res.Target, "index", idx)

			res.Skipped++
			continue
		}

		res.Records = append(res.Records, rec)
	}

	return res
}
