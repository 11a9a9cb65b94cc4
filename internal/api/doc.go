// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - POST /v1/crawl runs a crawl for the caller.
//   - GET /v1/sources lists the channel catalogue by kind.
//   - GET /v1/credits/{user_id}, POST /v1/credits/quote and
//     POST /v1/credits/{user_id}/topup manage balances.
//   - GET and PUT /v1/ratelimit/{user_id} inspect and override windows.
//   - GET /healthz, /readyz and /metrics for probes and Prometheus.
package api
