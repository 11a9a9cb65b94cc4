// Package audit records what the crawl service did: every request, every
// user-facing error, every failed source, and the history of genuine crawls.
// Events are emitted without blocking the request path, batched on a
// background goroutine, and fanned out to sinks such as structured logs,
// Prometheus counters, Pub/Sub, or a blob archive.
package audit
