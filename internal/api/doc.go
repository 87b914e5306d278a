// Package api serves the aggregated thread statistics over HTTP. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/summary for the report figures.
//   - GET /v1/threads and /v1/authors for paged listings.
//   - GET /v1/authors/{name}/emails for identity lookups.
package api
