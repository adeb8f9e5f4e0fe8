// Package collector provides the core functionality of this exporter.
//
// It implements the Prometheus collector interface, fetching fresh Docker Hub
// repository statistics whenever a request hits this exporter, allowing us to
// not have to rely on a particular interval defined in this exporter
// (instead, rely on prometheus' scrape interval).
//
// Each scrape runs one collection cycle: every configured repository and
// organization is fetched, each repository document is mapped into a record,
// and the records are assembled into the `docker_hub_image_*` series, which
// are only handed over once all targets have been processed.
//
package collector
