// Package api hosts the read-only HTTP view of the archive. Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/sources lists the registered sources.
//   - GET /v1/sources/{source}/articles/{id} returns archived metadata, and
//     .../raw the stored HTML.
//   - GET /v1/logs/{name} tails an ordered URL log, optionally filtered by
//     source domain.
package api
