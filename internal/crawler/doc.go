// Package crawler holds the domain types shared across the service: crawl
// requests and results, fetch batches, the typed crawl error, and the small
// interfaces (fetchers, caches, clocks, publishers) the other packages
// implement.
package crawler
