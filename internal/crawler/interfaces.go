package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves raw items for a search phrase from one source.
type Fetcher interface {
	Fetch(ctx context.Context, phrase string) ([]RawItem, error)
}

// FetcherFunc adapts a plain function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, phrase string) ([]RawItem, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, phrase string) ([]RawItem, error) {
	return f(ctx, phrase)
}

// ResponseCache stores serialized crawl results for a bounded time.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for cache keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces request IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// Attributed payloads expose message attributes alongside their JSON body.
type Attributed interface {
	Attributes() map[string]string
}
