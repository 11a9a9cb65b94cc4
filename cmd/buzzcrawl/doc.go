// Package main hosts the buzzcrawl entrypoint.
//
// Request flow:
//   - HTTP API: internal/api.Server validates requests and hands them to the orchestrator. Errors are mapped to
//     status codes with a typed JSON body.
//   - Orchestrator: checks the input, admits the user through the sliding window limiter, consults the response
//     cache, charges credits, fans the phrase out to the registered fetchers and normalizes the results.
//   - Fetchers: Reddit's JSON search and HTML boards are fetched with colly, spaced per host by a token bucket.
//   - Persistence & fanout: credit balances live in memory or Postgres, the cache in memory or Redis. Audit events
//     are batched by a hub and sent to zap, Prometheus, Pub/Sub and a blob archive (local disk or GCS).
//
// Quick checklist:
//   - Configure with a file passed through --config or BUZZCRAWL_* env vars (BUZZCRAWL_SERVER_PORT,
//     BUZZCRAWL_CACHE_BACKEND, BUZZCRAWL_CREDIT_DSN, ...).
//   - Run locally: go run ./cmd/buzzcrawl serve, or go run ./cmd/buzzcrawl crawl --sources reddit,clien galaxy s24.
//   - The process reacts to SIGTERM by draining in-flight requests and flushing audit sinks.
package main
