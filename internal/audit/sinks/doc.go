// Package sinks implements audit consumers: structured logging, Prometheus
// counters, Pub/Sub publication, and a JSON archive of crawl results. Each
// sink satisfies audit.Sink.
package sinks
